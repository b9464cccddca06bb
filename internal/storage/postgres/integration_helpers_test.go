package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// Интеграционные тесты выполняются только при наличии доступного PostgreSQL.
// DSN берётся из CART_POSTGRES_TEST_DSN, иначе тест пропускается.
func openStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("CART_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("CART_POSTGRES_TEST_DSN is not set; skipping postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	truncateTablesForIntegrationTest(t, store)

	return store
}

func truncateTablesForIntegrationTest(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tables := []string{"cart_snapshots", "cart_timeline_events", "outbox_messages", "idempotency_keys"}
	for _, table := range tables {
		if _, err := store.DB().ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}
