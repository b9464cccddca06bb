package app

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// newTestProduct создаёт тестовый товар для использования в тестах.
func newTestProduct() domain.Product {
	price := decimal.NewFromFloat(19.99)
	return domain.Product{
		ID:    "prod-app-1",
		Name:  "Test Product",
		Price: &price,
		Stock: 10,
		Image: "https://example.com/p/app-1.png",
	}
}
