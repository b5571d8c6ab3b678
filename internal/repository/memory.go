package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Каждый вызов работает с
// копиями, поэтому чтение и последующая запись остаются независимыми
// операциями, как и при работе с внешней БД.
type MemoryRepository struct {
	mu sync.RWMutex

	users       map[uuid.UUID]*model.User
	usersByMail map[string]uuid.UUID

	products     map[uuid.UUID]*model.Product
	productOrder []uuid.UUID
	productsBySK map[string]uuid.UUID

	orders       map[uuid.UUID]*model.Order
	orderOrder   []uuid.UUID
	ordersByNum  map[string]uuid.UUID
	orderCounter atomic.Int64
}

// NewMemoryRepository создаёт пустое in-memory хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:        make(map[uuid.UUID]*model.User),
		usersByMail:  make(map[string]uuid.UUID),
		products:     make(map[uuid.UUID]*model.Product),
		productsBySK: make(map[string]uuid.UUID),
		orders:       make(map[uuid.UUID]*model.Order),
		ordersByNum:  make(map[string]uuid.UUID),
	}
}

// Close ничего не освобождает и нужен для совместимости с PostgresRepository.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser сохраняет нового пользователя.
func (r *MemoryRepository) CreateUser(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := r.usersByMail[email]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, email)
	}

	c := *u
	c.Email = email
	r.users[c.ID] = &c
	r.usersByMail[email] = c.ID
	return nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// GetUserByEmail возвращает пользователя по email без учёта регистра.
func (r *MemoryRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByMail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *r.users[id]
	return &c, nil
}

// UpdateLastLogin обновляет время последнего входа.
func (r *MemoryRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = at
	return nil
}

// IncrementUserStats увеличивает счётчики заказов и потраченной суммы.
func (r *MemoryRepository) IncrementUserStats(ctx context.Context, id uuid.UUID, orders int, spent decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Stats.TotalOrders += orders
	u.Stats.TotalSpent = u.Stats.TotalSpent.Add(spent)
	return nil
}

// ListUsers возвращает пользователей по фильтру.
func (r *MemoryRepository) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var matched []model.User
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(u.FirstName), search) &&
			!strings.Contains(strings.ToLower(u.LastName), search) &&
			!strings.Contains(u.Email, search) {
			continue
		}
		matched = append(matched, *u)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.SortAsc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Email < b.Email
	})

	return paginate(matched, f.Page), len(matched), nil
}

// GetUserStats считает пользователей по ролям и статусам.
func (r *MemoryRepository) GetUserStats(ctx context.Context) (*model.UserStatistics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.UserStatistics{}
	roles := make(map[string]int)
	statuses := make(map[string]int)
	for _, u := range r.users {
		stats.TotalUsers++
		switch u.Role {
		case model.RoleAdmin:
			stats.AdminUsers++
		case model.RoleCustomer:
			stats.CustomerUsers++
		}
		if u.Status == model.UserStatusActive {
			stats.ActiveUsers++
		}
		roles[string(u.Role)]++
		statuses[string(u.Status)]++
	}
	stats.RoleBreakdown = countStats(roles)
	stats.StatusBreakdown = countStats(statuses)
	return stats, nil
}

func countStats(m map[string]int) []model.CountStat {
	out := make([]model.CountStat, 0, len(m))
	for v, n := range m {
		out = append(out, model.CountStat{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

// UpdateUser сохраняет профиль, роль и статус пользователя.
func (r *MemoryRepository) UpdateUser(ctx context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	stored.FirstName = u.FirstName
	stored.LastName = u.LastName
	stored.Phone = u.Phone
	stored.Address = u.Address
	stored.Role = u.Role
	stored.Status = u.Status
	stored.UpdatedAt = u.UpdatedAt
	return nil
}

// UpdatePassword заменяет хеш пароля пользователя.
func (r *MemoryRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = append([]byte(nil), hash...)
	u.UpdatedAt = time.Now()
	return nil
}

// CreateProduct сохраняет новый товар.
func (r *MemoryRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sku := strings.ToUpper(p.SKU)
	if _, ok := r.productsBySK[sku]; ok {
		return fmt.Errorf("%w: %s", ErrSKUExists, sku)
	}

	c := p.Clone()
	c.SKU = sku
	r.products[c.ID] = c
	r.productsBySK[sku] = c.ID
	r.productOrder = append(r.productOrder, c.ID)
	return nil
}

// GetProductByID возвращает копию товара.
func (r *MemoryRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return p.Clone(), nil
}

// GetProductBySKU возвращает товар по артикулу без учёта регистра.
func (r *MemoryRepository) GetProductBySKU(ctx context.Context, sku string) (*model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.productsBySK[strings.ToUpper(strings.TrimSpace(sku))]
	if !ok {
		return nil, ErrProductNotFound
	}
	return r.products[id].Clone(), nil
}

// ListProducts возвращает активные товары по фильтру, новые первыми.
func (r *MemoryRepository) ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []model.Product
	for i := len(r.productOrder) - 1; i >= 0; i-- {
		p := r.products[r.productOrder[i]]
		if p.Status != model.ProductStatusActive {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Featured && !p.Featured {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		matched = append(matched, *p.Clone())
	}

	return paginate(matched, f.Page), len(matched), nil
}

// SaveProduct перезаписывает изменяемые поля товара и остатки его вариантов.
func (r *MemoryRepository) SaveProduct(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	for _, v := range p.Variants {
		if v.Stock < 0 {
			return fmt.Errorf("%w: variant %s", ErrInsufficientStock, v.ID)
		}
	}
	if p.BaseStock < 0 {
		return fmt.Errorf("%w: product %s", ErrInsufficientStock, p.ID)
	}

	p.RefreshStatus()
	stored.BaseStock = p.BaseStock
	stored.Status = p.Status
	stored.Featured = p.Featured
	stored.SalesCount = p.SalesCount
	for _, v := range p.Variants {
		if idx := stored.VariantByID(v.ID); idx >= 0 {
			stored.Variants[idx].Stock = v.Stock
		}
	}
	stored.RefreshStatus()
	stored.UpdatedAt = time.Now()
	return nil
}

// UpdateProductDetails сохраняет описательные поля, цену, категорию и статус товара.
// Остатки, изображения и варианты не меняются.
func (r *MemoryRepository) UpdateProductDetails(ctx context.Context, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.products[p.ID]
	if !ok {
		return ErrProductNotFound
	}
	stored.Name = p.Name
	stored.Description = p.Description
	stored.Price = p.Price
	stored.OriginalPrice = nil
	if p.OriginalPrice != nil {
		op := *p.OriginalPrice
		stored.OriginalPrice = &op
	}
	stored.Category = p.Category
	stored.Brand = p.Brand
	stored.Featured = p.Featured
	stored.Status = p.Status
	stored.RefreshStatus()
	stored.UpdatedAt = p.UpdatedAt
	return nil
}

// ProductCategories возвращает количество активных товаров по категориям.
func (r *MemoryRepository) ProductCategories(ctx context.Context) ([]model.CategoryCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int)
	for _, p := range r.products {
		if p.Status == model.ProductStatusActive {
			counts[p.Category]++
		}
	}
	out := make([]model.CategoryCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, model.CategoryCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// AdjustStock атомарно изменяет остаток варианта (или товара без вариантов) на delta.
// Если результат стал бы отрицательным, остаток не меняется и возвращается ErrInsufficientStock.
func (r *MemoryRepository) AdjustStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}

	if variantID == nil {
		if p.BaseStock+delta < 0 {
			return ErrInsufficientStock
		}
		p.BaseStock += delta
	} else {
		idx := p.VariantByID(*variantID)
		if idx < 0 {
			return ErrVariantNotFound
		}
		if p.Variants[idx].Stock+delta < 0 {
			return ErrInsufficientStock
		}
		p.Variants[idx].Stock += delta
	}

	p.RefreshStatus()
	p.UpdatedAt = time.Now()
	return nil
}

// IncrementSales увеличивает счётчик продаж товара.
func (r *MemoryRepository) IncrementSales(ctx context.Context, productID uuid.UUID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.SalesCount += quantity
	return nil
}

// IncrementViewCount увеличивает счётчик просмотров товара.
func (r *MemoryRepository) IncrementViewCount(ctx context.Context, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.ViewCount++
	return nil
}

// AddReview добавляет отзыв и пересчитывает рейтинг под той же блокировкой.
func (r *MemoryRepository) AddReview(ctx context.Context, productID uuid.UUID, review model.Review) (model.Ratings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[productID]
	if !ok {
		return model.Ratings{}, ErrProductNotFound
	}
	if p.HasReviewFrom(review.UserID) {
		return model.Ratings{}, ErrDuplicateReview
	}
	p.Reviews = append(p.Reviews, review)
	p.RecalculateRatings()
	return p.Ratings, nil
}

// NextOrderSequence возвращает следующее значение счётчика номеров заказов.
func (r *MemoryRepository) NextOrderSequence(ctx context.Context) (int64, error) {
	return r.orderCounter.Add(1), nil
}

// CreateOrder сохраняет заказ.
func (r *MemoryRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ordersByNum[o.Number]; ok {
		return fmt.Errorf("%w: %s", ErrOrderNumberExists, o.Number)
	}

	r.orders[o.ID] = o.Clone()
	r.ordersByNum[o.Number] = o.ID
	r.orderOrder = append(r.orderOrder, o.ID)
	return nil
}

// GetOrderByID возвращает копию заказа.
func (r *MemoryRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// GetOrderByNumber возвращает заказ по его номеру.
func (r *MemoryRepository) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.ordersByNum[strings.ToUpper(number)]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return r.orders[id].Clone(), nil
}

// ListOrders возвращает заказы по фильтру.
func (r *MemoryRepository) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []model.Order
	for _, id := range r.orderOrder {
		o := r.orders[id]
		if f.UserID != nil && !o.IsOwnedBy(*f.UserID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		matched = append(matched, *o.Clone())
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if f.SortAsc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return paginate(matched, f.Page), len(matched), nil
}

// UpdateOrderStatus сохраняет статус, оплату, доставку и дописывает запись истории.
// Запись выполняется, только если текущий статус заказа равен from.
func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, o *model.Order, from model.OrderStatus, entry model.StatusEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[o.ID]
	if !ok {
		return ErrOrderNotFound
	}
	if stored.Status != from {
		return fmt.Errorf("%w: %s is %s", ErrStatusChanged, o.Number, stored.Status)
	}
	stored.Status = o.Status
	stored.PaymentStatus = o.PaymentStatus
	stored.PaymentDetails = o.PaymentDetails
	stored.Shipping.ActualDelivery = o.Shipping.ActualDelivery
	stored.StatusHistory = append(stored.StatusHistory, entry)
	stored.UpdatedAt = o.UpdatedAt
	return nil
}

// UpdateOrderShipping обновляет сведения о доставке.
func (r *MemoryRepository) UpdateOrderShipping(ctx context.Context, id uuid.UUID, s model.ShippingInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.Shipping.TrackingNumber = s.TrackingNumber
	o.Shipping.Carrier = s.Carrier
	o.Shipping.EstimatedDelivery = s.EstimatedDelivery
	o.UpdatedAt = time.Now()
	return nil
}

// GetOrderStats считает количество заказов, выручку по оплаченным и разбивку по статусам.
func (r *MemoryRepository) GetOrderStats(ctx context.Context) (*model.OrderStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &model.OrderStats{TotalRevenue: decimal.Zero}
	byStatus := make(map[model.OrderStatus]*model.StatusStat)

	for _, id := range r.orderOrder {
		o := r.orders[id]
		stats.TotalOrders++
		if o.PaymentStatus == model.PaymentStatusPaid {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Pricing.Total)
		}
		s, ok := byStatus[o.Status]
		if !ok {
			s = &model.StatusStat{Status: o.Status, TotalAmount: decimal.Zero}
			byStatus[o.Status] = s
		}
		s.Count++
		s.TotalAmount = s.TotalAmount.Add(o.Pricing.Total)
	}

	for _, s := range byStatus {
		stats.StatusBreakdown = append(stats.StatusBreakdown, *s)
	}
	sort.Slice(stats.StatusBreakdown, func(i, j int) bool {
		return stats.StatusBreakdown[i].Status < stats.StatusBreakdown[j].Status
	})

	return stats, nil
}

func paginate[T any](items []T, p model.Page) []T {
	if p.Limit <= 0 {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return nil
	}
	end := start + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
