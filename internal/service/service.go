// Package service реализует бизнес-логику магазина: оформление и жизненный цикл
// заказов, учёт остатков, каталог и учётные записи.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/events"
	"github.com/hamzabour2019/project-faith/internal/lock"
	"github.com/hamzabour2019/project-faith/internal/model"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	IncrementUserStats(ctx context.Context, id uuid.UUID, orders int, spent decimal.Decimal) error
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	GetUserStats(ctx context.Context) (*model.UserStatistics, error)
	UpdateUser(ctx context.Context, u *model.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error

	CreateProduct(ctx context.Context, p *model.Product) error
	GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*model.Product, error)
	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error)
	SaveProduct(ctx context.Context, p *model.Product) error
	UpdateProductDetails(ctx context.Context, p *model.Product) error
	ProductCategories(ctx context.Context) ([]model.CategoryCount, error)
	AdjustStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, delta int) error
	IncrementSales(ctx context.Context, productID uuid.UUID, quantity int) error
	IncrementViewCount(ctx context.Context, productID uuid.UUID) error
	// AddReview сохраняет отзыв и возвращает пересчитанную по всем отзывам оценку.
	AddReview(ctx context.Context, productID uuid.UUID, review model.Review) (model.Ratings, error)

	NextOrderSequence(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error)
	UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus, entry model.StatusEntry) error
	UpdateOrderShipping(ctx context.Context, id uuid.UUID, s model.ShippingInfo) error
	GetOrderStats(ctx context.Context) (*model.OrderStats, error)
}

// StockMode определяет, как оформление заказа списывает остатки.
type StockMode string

const (
	// StockModeRacy сохраняет заказ, затем перечитывает и сохраняет каждый товар.
	// Списание не атомарно с проверкой остатка.
	StockModeRacy StockMode = "racy"
	// StockModeAtomic резервирует остатки условным списанием до сохранения заказа.
	StockModeAtomic StockMode = "atomic"
	// StockModeLocked выполняет проверку и списание под блокировками товаров.
	StockModeLocked StockMode = "locked"
)

// ParseStockMode разбирает режим списания остатков.
func ParseStockMode(s string) (StockMode, error) {
	switch m := StockMode(s); m {
	case StockModeRacy, StockModeAtomic, StockModeLocked:
		return m, nil
	case "":
		return StockModeAtomic, nil
	}
	return "", fmt.Errorf("unknown stock mode %q", s)
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo      Repository
	logger    *zap.Logger
	publisher events.Publisher
	locker    lock.Locker
	stockMode StockMode
	hashCost  int
	now       func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithStockMode задаёт режим списания остатков.
func WithStockMode(m StockMode) Option {
	return func(s *Service) { s.stockMode = m }
}

// WithLocker задаёт блокировки для режима StockModeLocked.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithPublisher задаёт публикатор событий заказов.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithPasswordCost задаёт стоимость bcrypt-хеширования паролей.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием.
// По умолчанию используется атомарное списание и публикатор без брокера.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		repo:      repo,
		logger:    logger,
		publisher: events.NopPublisher{},
		stockMode: StockModeAtomic,
		hashCost:  12,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stockMode == StockModeLocked && s.locker == nil {
		s.locker = lock.NewMemoryLocker()
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("close publisher", zap.Error(err))
	}
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// StockMode возвращает текущий режим списания остатков.
func (s *Service) StockMode() StockMode {
	return s.stockMode
}

func (s *Service) publish(ctx context.Context, t events.Type, o *model.Order, previous model.OrderStatus) {
	e := events.NewOrderEvent(t, o, previous, s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish order event",
			zap.String("type", string(t)),
			zap.String("order_number", o.Number),
			zap.Error(err))
	}
}
