package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/model"
)

const (
	featuredLimit = 8
	relatedLimit  = 4
)

// ListProducts возвращает страницу активных товаров и общее количество подходящих.
func (s *Service) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	products, total, err := s.repo.ListProducts(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return products, total, nil
}

// FeaturedProducts возвращает рекомендуемые активные товары.
func (s *Service) FeaturedProducts(ctx context.Context) ([]model.Product, error) {
	products, _, err := s.repo.ListProducts(ctx, model.ProductFilter{
		Featured: true,
		Page:     model.Page{Number: 1, Limit: featuredLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("list featured products: %w", err)
	}
	return products, nil
}

// RelatedProducts возвращает активные товары той же категории, кроме самого товара.
func (s *Service) RelatedProducts(ctx context.Context, id uuid.UUID) ([]model.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	candidates, _, err := s.repo.ListProducts(ctx, model.ProductFilter{
		Category: p.Category,
		Page:     model.Page{Number: 1, Limit: relatedLimit + 1},
	})
	if err != nil {
		return nil, fmt.Errorf("list related products: %w", err)
	}

	related := make([]model.Product, 0, relatedLimit)
	for _, c := range candidates {
		if c.ID == p.ID {
			continue
		}
		if len(related) == relatedLimit {
			break
		}
		related = append(related, c)
	}
	return related, nil
}

// GetProduct возвращает товар и увеличивает счётчик просмотров.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if err := s.repo.IncrementViewCount(ctx, id); err != nil {
		s.logger.Warn("increment view count", zap.String("product_id", id.String()), zap.Error(err))
	}
	return p, nil
}

// VariantInput описывает вариант создаваемого товара.
type VariantInput struct {
	Size  string
	Color string
	Stock int
	Price *decimal.Decimal
}

// CreateProductInput содержит данные нового товара.
type CreateProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	OriginalPrice *decimal.Decimal
	Category      string
	Brand         string
	SKU           string
	Images        []model.Image
	Variants      []VariantInput
	BaseStock     int
	Featured      bool
}

// CreateProduct добавляет товар в каталог. Артикул уникален без учёта регистра.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (*model.Product, error) {
	if !validPrice(in.Price) || (in.OriginalPrice != nil && !validPrice(*in.OriginalPrice)) {
		return nil, ErrInvalidPrice
	}
	for _, v := range in.Variants {
		if v.Price != nil && !validPrice(*v.Price) {
			return nil, ErrInvalidPrice
		}
	}

	now := s.now()
	p := &model.Product{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Price:         in.Price,
		OriginalPrice: in.OriginalPrice,
		Category:      in.Category,
		Brand:         strings.TrimSpace(in.Brand),
		SKU:           strings.ToUpper(strings.TrimSpace(in.SKU)),
		Images:        in.Images,
		BaseStock:     in.BaseStock,
		Status:        model.ProductStatusActive,
		Featured:      in.Featured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, v := range in.Variants {
		p.Variants = append(p.Variants, model.Variant{
			ID:    uuid.New(),
			Size:  v.Size,
			Color: strings.TrimSpace(v.Color),
			Stock: v.Stock,
			Price: v.Price,
		})
	}
	if len(p.Variants) > 0 {
		p.BaseStock = 0
	}
	p.RefreshStatus()

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, mapRepoError(err)
	}
	return p, nil
}

// validPrice проверяет, что сумма неотрицательна и хранится в целых центах без округления.
func validPrice(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(2))
}

// ProductUpdate содержит изменяемые поля товара. Nil-поля не меняются.
type ProductUpdate struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	OriginalPrice *decimal.Decimal
	Category      *string
	Brand         *string
	Featured      *bool
	Status        *model.ProductStatus
}

// UpdateProduct изменяет описание, цену, категорию и статус товара.
// Остатки меняются только через UpdateStock и заказы.
func (s *Service) UpdateProduct(ctx context.Context, id uuid.UUID, upd ProductUpdate) (*model.Product, error) {
	if upd.Price != nil && !validPrice(*upd.Price) {
		return nil, ErrInvalidPrice
	}
	if upd.OriginalPrice != nil && !validPrice(*upd.OriginalPrice) {
		return nil, ErrInvalidPrice
	}
	if upd.Category != nil && !slices.Contains(model.Categories, *upd.Category) {
		return nil, ErrInvalidCategory
	}
	if upd.Status != nil {
		switch *upd.Status {
		case model.ProductStatusActive, model.ProductStatusInactive, model.ProductStatusDiscontinued:
		default:
			return nil, ErrInvalidStatus
		}
	}

	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		p.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.OriginalPrice != nil {
		op := *upd.OriginalPrice
		p.OriginalPrice = &op
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.Brand != nil {
		p.Brand = strings.TrimSpace(*upd.Brand)
	}
	if upd.Featured != nil {
		p.Featured = *upd.Featured
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	p.RefreshStatus()
	p.UpdatedAt = s.now()

	if err := s.repo.UpdateProductDetails(ctx, p); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("product updated",
		zap.String("product_id", p.ID.String()),
		zap.String("status", string(p.Status)))
	return p, nil
}

// Categories возвращает категории с количеством активных товаров в каждой.
func (s *Service) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	categories, err := s.repo.ProductCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("product categories: %w", err)
	}
	return categories, nil
}

// StockUpdate задаёт новый остаток для варианта с точно совпадающими размером и цветом.
type StockUpdate struct {
	Size  string
	Color string
	Stock int
}

// UpdateStock выставляет остатки вариантов. Обновления без подходящего варианта пропускаются.
func (s *Service) UpdateStock(ctx context.Context, productID uuid.UUID, updates []StockUpdate) (*model.Product, error) {
	p, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return nil, mapRepoError(err)
	}

	for _, u := range updates {
		if u.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must be a non-negative integer", ErrValidation)
		}
		for i := range p.Variants {
			if p.Variants[i].Size == u.Size && p.Variants[i].Color == u.Color {
				p.Variants[i].Stock = u.Stock
				break
			}
		}
	}

	if err := s.repo.SaveProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("save product: %w", mapRepoError(err))
	}
	return p, nil
}

// AddReview добавляет отзыв пользователя и пересчитывает рейтинг товара.
func (s *Service) AddReview(ctx context.Context, productID, userID uuid.UUID, rating int, comment string) (*model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	review := model.Review{
		UserID:    userID,
		Rating:    rating,
		Comment:   strings.TrimSpace(comment),
		CreatedAt: s.now(),
	}

	ratings, err := s.repo.AddReview(ctx, productID, review)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.logger.Info("review added",
		zap.String("product_id", productID.String()),
		zap.Float64("rating_average", ratings.Average),
		zap.Int("rating_count", ratings.Count))
	return &review, nil
}
