package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

const opTimeout = 5 * time.Second

type snapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository создаёт PostgreSQL-реализацию SnapshotRepository.
// Снапшот хранится как единый JSONB-документ на identity-ключ: корзина
// всегда читается и перезаписывается целиком.
func NewSnapshotRepository(store *Store) domain.SnapshotRepository {
	return &snapshotRepository{db: store.DB()}
}

func (r *snapshotRepository) Load(key domain.IdentityKey) (domain.Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var payload []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT payload
		FROM cart_snapshots
		WHERE identity_key = $1
	`, string(key)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, false, nil
	}
	if err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("load cart snapshot: %w", err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("decode cart snapshot: %w", err)
	}

	return snap, true, nil
}

func (r *snapshotRepository) Save(key domain.IdentityKey, snap domain.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cart snapshot: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (identity_key, payload, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (identity_key) DO UPDATE
		SET payload = EXCLUDED.payload, updated_at = NOW()
	`, string(key), payload); err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.SnapshotRepository = (*snapshotRepository)(nil)
