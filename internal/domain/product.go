package domain

import (
	"github.com/shopspring/decimal"
)

// PlaceholderImageURL используется, когда каталог не прислал ни одной картинки.
const PlaceholderImageURL = "/images/placeholder.png"

// ProductImage — одна картинка товара из каталога.
type ProductImage struct {
	URL       string `json:"url"`
	IsPrimary bool   `json:"is_primary,omitempty"`
}

// Product — описание товара, поставляемое каталогом на момент добавления.
// Цена принимается как JSON-число или числовая строка: decimal.Decimal
// разбирает оба варианта, дальше арифметика идёт только по decimal.
type Product struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock int32            `json:"stock"`
	// Каталог присылает либо одиночное поле image, либо список images.
	Image  string         `json:"image,omitempty"`
	Images []ProductImage `json:"images,omitempty"`
}

// Validate проверяет обязательные поля и возвращает MalformedProductError,
// если товар нельзя превратить в корректную позицию корзины.
func (p Product) Validate() error {
	var issues []error

	if p.ID == "" {
		issues = append(issues, ErrProductIDRequired)
	}
	if p.Name == "" {
		issues = append(issues, ErrProductNameRequired)
	}
	switch {
	case p.Price == nil:
		issues = append(issues, ErrProductPriceRequired)
	case p.Price.IsNegative():
		issues = append(issues, ErrProductPriceNegative)
	}
	if p.Stock < 0 {
		issues = append(issues, ErrProductStockNegative)
	}

	if len(issues) > 0 {
		return &MalformedProductError{Issues: issues}
	}
	return nil
}

// DisplayImage выбирает картинку для отображения: помеченную primary,
// затем первую из списка, затем одиночное поле image, иначе плейсхолдер.
func (p Product) DisplayImage() string {
	for _, img := range p.Images {
		if img.IsPrimary && img.URL != "" {
			return img.URL
		}
	}
	for _, img := range p.Images {
		if img.URL != "" {
			return img.URL
		}
	}
	if p.Image != "" {
		return p.Image
	}
	return PlaceholderImageURL
}
