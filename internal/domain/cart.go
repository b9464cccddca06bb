package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IdentityKey определяет владельца корзины: id пользователя или гостевой ключ.
type IdentityKey string

// GuestIdentity — общий ключ для неавторизованных сессий.
const GuestIdentity IdentityKey = "guest"

// NormalizeIdentity приводит ключ к каноническому виду.
// Пустой ключ означает гостевую корзину.
func NormalizeIdentity(raw string) IdentityKey {
	key := strings.TrimSpace(raw)
	if key == "" {
		return GuestIdentity
	}
	return IdentityKey(key)
}

// CartItem представляет одну позицию корзины.
type CartItem struct {
	// ID позиции генерируется при добавлении и не совпадает с id товара.
	ID string
	// ProductID — слабая ссылка на товар каталога.
	ProductID string
	// Name — снапшот названия на момент добавления.
	Name string
	// UnitPrice — цена за единицу, зафиксированная при добавлении.
	// Последующие изменения каталога позицию не затрагивают.
	UnitPrice decimal.Decimal
	// ImageURL — снапшот картинки для отображения.
	ImageURL string
	// Quantity — количество единиц, всегда >= 1.
	Quantity int32
	// CreatedAt фиксирует момент появления позиции в корзине.
	CreatedAt time.Time
}

// Subtotal возвращает стоимость позиции: цена * количество.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart агрегирует позиции корзины одного владельца.
// Total не хранится отдельно и всегда выводится из позиций.
type Cart struct {
	Identity  IdentityKey
	Items     []CartItem
	UpdatedAt time.Time
}

// Total возвращает точную сумму по всем позициям без округления.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ItemCount возвращает суммарное количество единиц во всех позициях.
func (c Cart) ItemCount() int32 {
	var count int32
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItem возвращает индекс позиции по её id или -1.
func (c Cart) FindItem(itemID string) int {
	for idx, item := range c.Items {
		if item.ID == itemID {
			return idx
		}
	}
	return -1
}

// FindProduct возвращает индекс позиции по id товара или -1.
func (c Cart) FindProduct(productID string) int {
	for idx, item := range c.Items {
		if item.ProductID == productID {
			return idx
		}
	}
	return -1
}

// Clone возвращает глубокую копию корзины, безопасную для выдачи наружу.
func (c Cart) Clone() Cart {
	dst := c
	dst.Items = make([]CartItem, len(c.Items))
	copy(dst.Items, c.Items)
	return dst
}

// ValidateInvariants проверяет базовые инварианты корзины и возвращает список замечаний.
func (c Cart) ValidateInvariants() []error {
	var errs []error

	if c.Identity == "" {
		errs = append(errs, ErrCartIdentityRequired)
	}

	seen := make(map[string]struct{}, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrCartItemProductRequired)
		}
		if item.Quantity < 1 {
			errs = append(errs, ErrCartItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, ErrCartItemPriceNegative)
		}
		if _, ok := seen[item.ProductID]; ok {
			errs = append(errs, ErrCartDuplicateProduct)
		}
		seen[item.ProductID] = struct{}{}
	}

	return errs
}
