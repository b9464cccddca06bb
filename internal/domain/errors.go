package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего ключа владельца корзины.
	ErrCartIdentityRequired = errors.New("cart identity key is required")
	// Ошибка позиции без ссылки на товар.
	ErrCartItemProductRequired = errors.New("cart item product_id is required")
	// Ошибка при некорректном количестве в позиции (< 1).
	ErrCartItemQtyInvalid = errors.New("cart item quantity must be at least 1")
	// Ошибка отрицательной цены позиции.
	ErrCartItemPriceNegative = errors.New("cart item price must be non-negative")
	// Ошибка дублирования товара: на один товар допустима ровно одна позиция.
	ErrCartDuplicateProduct = errors.New("cart already contains a line for this product")
	// Ошибка некорректного запрошенного количества в операции добавления.
	ErrQuantityInvalid = errors.New("quantity must be at least 1")

	// Ошибка отсутствующего id товара в описании каталога.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отсутствующей или непарсящейся цены товара.
	ErrProductPriceRequired = errors.New("product price is required")
	// Ошибка отрицательной цены товара.
	ErrProductPriceNegative = errors.New("product price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrProductStockNegative = errors.New("product stock must be non-negative")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибка отсутствующего idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отсутствующего хэша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists сигнализирует о повторном запросе с тем же ключом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyNotFound возвращается, если запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyHashMismatch означает повторное использование ключа с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key is already used with different request payload")
)

// InsufficientStockError возвращается, когда суммарное количество в корзине
// превысило бы остаток товара. Сообщение обязано содержать доступный остаток.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, only %d available",
		e.ProductID, e.Requested, e.Available)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

// MalformedProductError агрегирует замечания валидации описания товара.
// Некорректный товар не должен попасть в корзину ни в каком виде.
type MalformedProductError struct {
	Issues []error
}

func (e *MalformedProductError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Error())
	}
	return "malformed product: " + strings.Join(parts, "; ")
}

// Unwrap открывает вложенные замечания для errors.Is.
func (e *MalformedProductError) Unwrap() []error {
	return e.Issues
}

// IsMalformedProduct проверяет, является ли ошибка браком входного товара.
func IsMalformedProduct(err error) bool {
	var target *MalformedProductError
	return errors.As(err, &target)
}
