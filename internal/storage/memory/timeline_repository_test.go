package memory_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cart/internal/domain"
	"github.com/vladislavdragonenkov/cart/internal/storage/memory"
)

func TestTimelineRepository_AppendList(t *testing.T) {
	repo := memory.NewTimelineRepository()
	now := time.Now().UTC()

	events := []domain.TimelineEvent{
		{Identity: "customer-1", Type: "ItemAdded", Detail: "product-1 x1", Occurred: now},
		{Identity: "customer-1", Type: "CartCleared", Occurred: now.Add(time.Second)},
		{Identity: "customer-2", Type: "ItemAdded", Detail: "product-9 x2", Occurred: now},
	}
	for _, event := range events {
		if err := repo.Append(event); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	list, err := repo.List("customer-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 events, got %d", len(list))
	}
	if list[0].Type != "ItemAdded" || list[1].Type != "CartCleared" {
		t.Fatalf("events must be ordered chronologically: %+v", list)
	}
}

func TestTimelineRepository_RequiresIdentity(t *testing.T) {
	repo := memory.NewTimelineRepository()

	if err := repo.Append(domain.TimelineEvent{Type: "ItemAdded"}); err == nil {
		t.Fatalf("expected error for event without identity")
	}
}

func TestTimelineRepository_EmptyList(t *testing.T) {
	repo := memory.NewTimelineRepository()

	list, err := repo.List("missing")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty history, got %d", len(list))
	}
}
