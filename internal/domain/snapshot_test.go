package domain_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	cart := makeCart()
	snap := domain.SnapshotFromCart(cart)

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded domain.Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	restored := domain.RestoreCart(cart.Identity, decoded, time.Now().UTC())
	if len(restored.Items) != len(cart.Items) {
		t.Fatalf("expected %d items, got %d", len(cart.Items), len(restored.Items))
	}
	for i := range cart.Items {
		if restored.Items[i].ProductID != cart.Items[i].ProductID {
			t.Fatalf("item %d: product mismatch", i)
		}
		if restored.Items[i].Quantity != cart.Items[i].Quantity {
			t.Fatalf("item %d: quantity mismatch", i)
		}
		if !restored.Items[i].UnitPrice.Equal(cart.Items[i].UnitPrice) {
			t.Fatalf("item %d: price mismatch", i)
		}
	}
	if !restored.Total().Equal(cart.Total()) {
		t.Fatalf("expected total %s, got %s", cart.Total(), restored.Total())
	}
}

// Цены в снапшоте сериализуются как JSON-числа, а не строки.
func TestSnapshotPricesAreNumbers(t *testing.T) {
	cart := makeCart()
	data, err := json.Marshal(domain.SnapshotFromCart(cart))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	body := string(data)
	if strings.Contains(body, `"price":"`) {
		t.Fatalf("prices must be serialized as numbers: %s", body)
	}
	if !strings.Contains(body, `"total":49.97`) {
		t.Fatalf("expected numeric total in snapshot: %s", body)
	}
}

// Хранимый total игнорируется: после загрузки сумма выводится из позиций.
func TestRestoreCart_TotalIsUntrusted(t *testing.T) {
	snap := domain.Snapshot{
		Items: []domain.SnapshotItem{
			{ID: "item-1", ProductID: "product-1", Name: "Shirt", Price: decimal.RequireFromString("20"), Quantity: 2},
		},
		Total: decimal.RequireFromString("999"),
	}

	cart := domain.RestoreCart("customer-1", snap, time.Now().UTC())
	if want := decimal.RequireFromString("40"); !cart.Total().Equal(want) {
		t.Fatalf("expected recomputed total %s, got %s", want, cart.Total())
	}
}

func TestRestoreCart_DropsInvalidLines(t *testing.T) {
	price := decimal.RequireFromString("10")
	snap := domain.Snapshot{
		Items: []domain.SnapshotItem{
			{ID: "item-1", ProductID: "product-1", Price: price, Quantity: 1},
			{ID: "item-2", ProductID: "", Price: price, Quantity: 1},
			{ID: "item-3", ProductID: "product-3", Price: price, Quantity: 0},
			{ID: "item-4", ProductID: "product-4", Price: decimal.RequireFromString("-5"), Quantity: 1},
		},
	}

	cart := domain.RestoreCart("customer-1", snap, time.Now().UTC())
	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 surviving item, got %d", len(cart.Items))
	}
	if cart.Items[0].ProductID != "product-1" {
		t.Fatalf("unexpected surviving item: %+v", cart.Items[0])
	}
	if errs := cart.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("restored cart must satisfy invariants, got %v", errs)
	}
}

func TestRestoreCart_MergesDuplicateProducts(t *testing.T) {
	price := decimal.RequireFromString("10")
	snap := domain.Snapshot{
		Items: []domain.SnapshotItem{
			{ID: "item-1", ProductID: "product-1", Price: price, Quantity: 1},
			{ID: "item-2", ProductID: "product-1", Price: price, Quantity: 2},
		},
	}

	cart := domain.RestoreCart("customer-1", snap, time.Now().UTC())
	if len(cart.Items) != 1 {
		t.Fatalf("expected a single merged line, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", cart.Items[0].Quantity)
	}
}

func TestRestoreCart_EmptyImageFallsBack(t *testing.T) {
	snap := domain.Snapshot{
		Items: []domain.SnapshotItem{
			{ID: "item-1", ProductID: "product-1", Price: decimal.RequireFromString("10"), Quantity: 1},
		},
	}

	cart := domain.RestoreCart("customer-1", snap, time.Now().UTC())
	if cart.Items[0].ImageURL != domain.PlaceholderImageURL {
		t.Fatalf("expected placeholder image, got %q", cart.Items[0].ImageURL)
	}
}
