package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Снапшот хранит цены как JSON-числа, а не строки.
	decimal.MarshalJSONWithoutQuotes = true
}

// SnapshotItem — сериализованная позиция корзины.
type SnapshotItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int32           `json:"quantity"`
}

// Snapshot — durable-представление корзины для одного identity-ключа.
// Поле total дублирует сумму позиций только ради читаемости снапшота:
// при загрузке оно не считается достоверным и всегда пересчитывается.
type Snapshot struct {
	Items []SnapshotItem  `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// SnapshotFromCart строит снапшот по текущему состоянию корзины.
func SnapshotFromCart(cart Cart) Snapshot {
	items := make([]SnapshotItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, SnapshotItem{
			ID:        item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.UnitPrice,
			Image:     item.ImageURL,
			Quantity:  item.Quantity,
		})
	}
	return Snapshot{Items: items, Total: cart.Total()}
}

// RestoreCart восстанавливает корзину из снапшота.
// Снапшот — недоверенный вход: позиции без товара или с количеством < 1
// отбрасываются, дубли по товару сливаются в первую позицию, total
// выводится заново из позиций.
func RestoreCart(identity IdentityKey, snap Snapshot, now time.Time) Cart {
	cart := Cart{
		Identity:  identity,
		Items:     make([]CartItem, 0, len(snap.Items)),
		UpdatedAt: now,
	}

	index := make(map[string]int, len(snap.Items))
	for _, raw := range snap.Items {
		if raw.ProductID == "" || raw.Quantity < 1 || raw.Price.IsNegative() {
			continue
		}

		if pos, ok := index[raw.ProductID]; ok {
			cart.Items[pos].Quantity += raw.Quantity
			continue
		}

		item := CartItem{
			ID:        raw.ID,
			ProductID: raw.ProductID,
			Name:      raw.Name,
			UnitPrice: raw.Price,
			ImageURL:  raw.Image,
			Quantity:  raw.Quantity,
			CreatedAt: now,
		}
		if item.ImageURL == "" {
			item.ImageURL = PlaceholderImageURL
		}
		index[raw.ProductID] = len(cart.Items)
		cart.Items = append(cart.Items, item)
	}

	return cart
}
