package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus описывает доступность товара для заказа.
type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusOutOfStock   ProductStatus = "out-of-stock"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// Categories перечисляет допустимые категории каталога.
var Categories = []string{
	"men-shirts", "men-pants", "men-jackets", "men-shoes", "men-accessories",
	"women-dresses", "women-tops", "women-pants", "women-shoes", "women-accessories",
	"kids-boys", "kids-girls", "kids-shoes", "sale",
}

// Sizes перечисляет допустимые размеры вариантов.
var Sizes = []string{"XS", "S", "M", "L", "XL", "XXL", "28", "30", "32", "34", "36", "38", "40", "42"}

// Image описывает изображение товара.
type Image struct {
	URL       string
	Alt       string
	IsPrimary bool
}

// Variant описывает конкретное сочетание размера и цвета со своим остатком.
type Variant struct {
	ID    uuid.UUID
	Size  string
	Color string
	Stock int
	// Price переопределяет базовую цену товара, если задана.
	Price *decimal.Decimal
}

// Review описывает отзыв пользователя о товаре.
type Review struct {
	UserID    uuid.UUID
	Rating    int
	Comment   string
	Verified  bool
	CreatedAt time.Time
}

// Ratings содержит агрегированную оценку товара.
type Ratings struct {
	Average float64
	Count   int
}

// Product представляет товар каталога.
type Product struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	Category      string
	Brand         string
	SKU           string
	Images        []Image
	Variants      []Variant
	// BaseStock используется только для товаров без вариантов.
	BaseStock  int
	Status     ProductStatus
	Featured   bool
	Ratings    Ratings
	Reviews    []Review
	SalesCount int
	ViewCount  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TotalStock возвращает суммарный остаток по всем вариантам.
func (p *Product) TotalStock() int {
	if len(p.Variants) == 0 {
		return p.BaseStock
	}
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// RefreshStatus переключает статус между active и out-of-stock по остатку.
// Статусы inactive и discontinued не меняются.
func (p *Product) RefreshStatus() {
	total := p.TotalStock()
	switch {
	case total == 0 && p.Status == ProductStatusActive:
		p.Status = ProductStatusOutOfStock
	case total > 0 && p.Status == ProductStatusOutOfStock:
		p.Status = ProductStatusActive
	}
}

// PrimaryImage возвращает адрес основного изображения.
func (p *Product) PrimaryImage() string {
	for _, img := range p.Images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

// DiscountPercentage возвращает скидку в процентах относительно OriginalPrice.
func (p *Product) DiscountPercentage() int {
	if p.OriginalPrice == nil || !p.OriginalPrice.GreaterThan(p.Price) {
		return 0
	}
	pct := p.OriginalPrice.Sub(p.Price).Div(*p.OriginalPrice).Mul(decimal.NewFromInt(100))
	return int(pct.Round(0).IntPart())
}

// OnSale сообщает, продаётся ли товар со скидкой.
func (p *Product) OnSale() bool {
	return p.DiscountPercentage() > 0
}

// FindVariant возвращает индекс первого варианта, у которого совпадают все
// непустые запрошенные поля, или -1.
func (p *Product) FindVariant(size, color string) int {
	for i, v := range p.Variants {
		if size != "" && v.Size != size {
			continue
		}
		if color != "" && v.Color != color {
			continue
		}
		return i
	}
	return -1
}

// VariantByID возвращает индекс варианта с указанным идентификатором или -1.
func (p *Product) VariantByID(id uuid.UUID) int {
	for i, v := range p.Variants {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// UnitPrice возвращает цену варианта с индексом idx либо базовую цену.
func (p *Product) UnitPrice(idx int) decimal.Decimal {
	if idx >= 0 && idx < len(p.Variants) && p.Variants[idx].Price != nil && p.Variants[idx].Price.IsPositive() {
		return *p.Variants[idx].Price
	}
	return p.Price
}

// HasReviewFrom сообщает, оставлял ли пользователь отзыв.
func (p *Product) HasReviewFrom(userID uuid.UUID) bool {
	for _, r := range p.Reviews {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// RecalculateRatings пересчитывает среднюю оценку по всем отзывам.
func (p *Product) RecalculateRatings() {
	if len(p.Reviews) == 0 {
		p.Ratings = Ratings{}
		return
	}
	sum := 0
	for _, r := range p.Reviews {
		sum += r.Rating
	}
	p.Ratings = Ratings{
		Average: float64(sum) / float64(len(p.Reviews)),
		Count:   len(p.Reviews),
	}
}

// Clone возвращает глубокую копию товара.
func (p *Product) Clone() *Product {
	c := *p
	c.Images = append([]Image(nil), p.Images...)
	c.Variants = make([]Variant, len(p.Variants))
	for i, v := range p.Variants {
		c.Variants[i] = v
		if v.Price != nil {
			price := *v.Price
			c.Variants[i].Price = &price
		}
	}
	c.Reviews = append([]Review(nil), p.Reviews...)
	if p.OriginalPrice != nil {
		op := *p.OriginalPrice
		c.OriginalPrice = &op
	}
	return &c
}

// CategoryCount содержит количество активных товаров в категории.
type CategoryCount struct {
	Category string
	Count    int
}

// ProductFilter задаёт условия выборки товаров.
type ProductFilter struct {
	Category string
	Featured bool
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Page     Page
}
