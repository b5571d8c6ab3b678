package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/events"
	"github.com/hamzabour2019/project-faith/internal/lock"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/repository"
)

const (
	defaultShippingMethod = "standard"
	createdNote           = "Order placed"
	cancelNote            = "Order cancelled by user"
)

// OrderItemInput описывает запрошенную позицию заказа.
type OrderItemInput struct {
	ProductID uuid.UUID
	Variant   model.VariantSelection
	Quantity  int
}

// CreateOrderInput содержит проверенные данные запроса на оформление заказа.
type CreateOrderInput struct {
	CustomerInfo    model.CustomerInfo
	ShippingAddress model.Address
	// BillingAddress равен nil, если адрес оплаты совпадает с адресом доставки.
	BillingAddress *model.Address
	Items          []OrderItemInput
	PaymentMethod  model.PaymentMethod
	ShippingMethod string
}

// stockLine описывает списание остатка по одной позиции.
type stockLine struct {
	productID uuid.UUID
	variantID *uuid.UUID
	quantity  int
	name      string
	size      string
	color     string
	// deduct ложен для позиции без варианта у товара с вариантами:
	// такая позиция проверяется по суммарному остатку и не списывается.
	deduct bool
}

// CreateOrder оформляет заказ. actor равен nil для гостевого заказа.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput, actor *model.User) (*model.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	switch s.stockMode {
	case StockModeAtomic:
		return s.createOrderReserved(ctx, in, actor)
	case StockModeLocked:
		keys := make([]string, 0, len(in.Items))
		for _, it := range in.Items {
			keys = append(keys, lock.ProductKey(it.ProductID.String()))
		}
		unlock, err := s.locker.Lock(ctx, keys...)
		if err != nil {
			return nil, fmt.Errorf("lock products: %w", err)
		}
		defer unlock()
		return s.createOrderSequential(ctx, in, actor)
	default:
		return s.createOrderSequential(ctx, in, actor)
	}
}

// createOrderSequential сохраняет заказ и только затем списывает остатки,
// перечитывая каждый товар. Ошибки после сохранения заказа не откатывают его.
func (s *Service) createOrderSequential(ctx context.Context, in CreateOrderInput, actor *model.User) (*model.Order, error) {
	o, _, err := s.prepareOrder(ctx, in, actor)
	if err != nil {
		return nil, err
	}

	if err := s.persistOrder(ctx, o); err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		s.decrementByReload(ctx, o, it)
	}

	s.afterOrderCreated(ctx, o, actor)
	return o, nil
}

// createOrderReserved списывает остатки условными обновлениями до сохранения заказа
// и возвращает их, если списание или сохранение не удалось.
func (s *Service) createOrderReserved(ctx context.Context, in CreateOrderInput, actor *model.User) (*model.Order, error) {
	o, lines, err := s.prepareOrder(ctx, in, actor)
	if err != nil {
		return nil, err
	}

	reserved := make([]stockLine, 0, len(lines))
	for _, l := range lines {
		if !l.deduct {
			continue
		}
		if err := s.repo.AdjustStock(ctx, l.productID, l.variantID, -l.quantity); err != nil {
			s.releaseStock(ctx, o.ID.String(), reserved)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return nil, stockError(l.name, l.size, l.color)
			}
			if errors.Is(err, repository.ErrVariantNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrVariantNotFound, l.name)
			}
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, l.productID)
			}
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
		reserved = append(reserved, l)
	}

	if err := s.persistOrder(ctx, o); err != nil {
		s.releaseStock(ctx, o.ID.String(), reserved)
		return nil, err
	}

	for _, l := range lines {
		if err := s.repo.IncrementSales(ctx, l.productID, l.quantity); err != nil {
			s.logger.Warn("increment sales count",
				zap.String("order_number", o.Number),
				zap.String("product_id", l.productID.String()),
				zap.Error(err))
		}
	}

	s.afterOrderCreated(ctx, o, actor)
	return o, nil
}

// prepareOrder проверяет позиции по каталогу, фиксирует цены и считает итоги.
// Первая же ошибка прерывает оформление до любых изменений в хранилище.
func (s *Service) prepareOrder(ctx context.Context, in CreateOrderInput, actor *model.User) (*model.Order, []stockLine, error) {
	items := make([]model.OrderItem, 0, len(in.Items))
	lines := make([]stockLine, 0, len(in.Items))
	subtotal := decimal.Zero

	// Повторяющиеся строки одного варианта или товара проверяются по суммарному количеству.
	perVariant := make(map[uuid.UUID]int)
	perProduct := make(map[uuid.UUID]int)

	for _, req := range in.Items {
		if req.Quantity < 1 {
			return nil, nil, ErrInvalidQuantity
		}

		p, err := s.repo.GetProductByID(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, nil, fmt.Errorf("%w: %s", ErrProductNotFound, req.ProductID)
			}
			return nil, nil, fmt.Errorf("get product %s: %w", req.ProductID, err)
		}

		if p.Status != model.ProductStatusActive {
			return nil, nil, fmt.Errorf("%w: %s", ErrProductUnavailable, p.Name)
		}

		perProduct[p.ID] += req.Quantity

		idx := -1
		if !req.Variant.IsEmpty() {
			idx = p.FindVariant(req.Variant.Size, req.Variant.Color)
			if idx < 0 {
				return nil, nil, fmt.Errorf("%w: %s", ErrVariantNotFound, p.Name)
			}
			v := p.Variants[idx]
			perVariant[v.ID] += req.Quantity
			if v.Stock < perVariant[v.ID] {
				return nil, nil, stockError(p.Name, v.Size, v.Color)
			}
		} else if p.TotalStock() < perProduct[p.ID] {
			return nil, nil, stockError(p.Name, "", "")
		}

		price := p.UnitPrice(idx)
		item := model.OrderItem{
			ProductID: p.ID,
			Snapshot: model.ProductSnapshot{
				Name:  p.Name,
				Price: price,
				Image: p.PrimaryImage(),
				SKU:   p.SKU,
			},
			Variant:  req.Variant,
			Quantity: req.Quantity,
			Price:    price,
			Total:    price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		}
		line := stockLine{
			productID: p.ID,
			quantity:  req.Quantity,
			name:      p.Name,
			deduct:    idx >= 0 || len(p.Variants) == 0,
		}
		if idx >= 0 {
			vid := p.Variants[idx].ID
			item.VariantID = &vid
			line.variantID = &vid
			line.size = p.Variants[idx].Size
			line.color = p.Variants[idx].Color
		}

		items = append(items, item)
		lines = append(lines, line)
		subtotal = subtotal.Add(item.Total)
	}

	now := s.now()
	o := &model.Order{
		ID:              uuid.New(),
		CustomerInfo:    normalizeCustomer(in.CustomerInfo),
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.ShippingAddress,
		Items:           items,
		Pricing:         CalculatePricing(subtotal),
		Status:          model.OrderStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentMethod:   in.PaymentMethod,
		Shipping:        model.ShippingInfo{Method: in.ShippingMethod},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.BillingAddress != nil {
		o.BillingAddress = *in.BillingAddress
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = model.PaymentCashOnDelivery
	}
	if o.Shipping.Method == "" {
		o.Shipping.Method = defaultShippingMethod
	}

	var actorID *uuid.UUID
	if actor != nil {
		id := actor.ID
		o.UserID = &id
		actorID = &id
	}
	o.StatusHistory = []model.StatusEntry{{
		Status:    model.OrderStatusPending,
		Timestamp: now,
		Note:      createdNote,
		UpdatedBy: actorID,
	}}

	return o, lines, nil
}

func normalizeCustomer(c model.CustomerInfo) model.CustomerInfo {
	return model.CustomerInfo{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:     strings.TrimSpace(c.Phone),
	}
}

// persistOrder присваивает номер и сохраняет заказ.
func (s *Service) persistOrder(ctx context.Context, o *model.Order) error {
	seq, err := s.repo.NextOrderSequence(ctx)
	if err != nil {
		return fmt.Errorf("next order number: %w", err)
	}
	o.Number = FormatOrderNumber(o.CreatedAt, seq)

	if err := s.repo.CreateOrder(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// FormatOrderNumber собирает номер заказа вида ORD-<миллисекунды>-<порядковый номер>.
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", at.UnixMilli(), seq)
}

func (s *Service) afterOrderCreated(ctx context.Context, o *model.Order, actor *model.User) {
	if actor != nil {
		if err := s.repo.IncrementUserStats(ctx, actor.ID, 1, o.Pricing.Total); err != nil {
			s.logger.Warn("update user stats",
				zap.String("order_number", o.Number),
				zap.String("user_id", actor.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("order created",
		zap.String("order_number", o.Number),
		zap.String("total", o.Pricing.Total.StringFixed(2)),
		zap.Int("items", len(o.Items)))

	s.publish(ctx, events.TypeOrderCreated, o, "")
}

// GetOrder возвращает заказ владельцу или администратору.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID, actor *model.User) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !canAccess(o, actor) {
		return nil, ErrAccessDenied
	}
	return o, nil
}

// canAccess разрешает доступ администратору и владельцу. Гостевые заказы доступны только администратору.
func canAccess(o *model.Order, actor *model.User) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || o.IsOwnedBy(actor.ID)
}

// TrackOrder возвращает заказ по номеру для публичного отслеживания.
func (s *Service) TrackOrder(ctx context.Context, number string) (*model.Order, error) {
	o, err := s.repo.GetOrderByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
	if err != nil {
		return nil, mapRepoError(err)
	}
	return o, nil
}

// ListOrders возвращает заказы по фильтру. Не администраторы видят только свои заказы.
func (s *Service) ListOrders(ctx context.Context, f model.OrderFilter, actor *model.User) ([]model.Order, int, error) {
	if actor == nil {
		return nil, 0, ErrAccessDenied
	}
	if !actor.IsAdmin() {
		id := actor.ID
		f.UserID = &id
	}

	orders, total, err := s.repo.ListOrders(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

// OrderStats возвращает сводную статистику по заказам.
func (s *Service) OrderStats(ctx context.Context) (*model.OrderStats, error) {
	stats, err := s.repo.GetOrderStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}

// UpdateStatus меняет статус заказа по таблице переходов. Доступно только администратору.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus, note string, actor *model.User) (*model.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAccessDenied
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if err := s.transition(ctx, o, status, strings.TrimSpace(note), actor); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder отменяет заказ и возвращает остатки.
func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID, actor *model.User, reason string) (*model.Order, error) {
	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !canAccess(o, actor) {
		return nil, ErrAccessDenied
	}
	if !o.Status.Cancellable() {
		return nil, ErrCannotCancel
	}

	note := strings.TrimSpace(reason)
	if note == "" {
		note = cancelNote
	}

	if err := s.transition(ctx, o, model.OrderStatusCancelled, note, actor); err != nil {
		return nil, err
	}
	return o, nil
}

// transition применяет переход, сохраняет его и выполняет побочные эффекты.
// Остатки возвращаются только после успешной записи статуса.
func (s *Service) transition(ctx context.Context, o *model.Order, next model.OrderStatus, note string, actor *model.User) error {
	previous := o.Status

	var actorID *uuid.UUID
	if actor != nil {
		id := actor.ID
		actorID = &id
	}

	if err := o.Transition(next, note, actorID, s.now()); err != nil {
		if errors.Is(err, model.ErrTransitionNotAllowed) {
			if next == model.OrderStatusCancelled {
				return ErrCannotCancel
			}
			return fmt.Errorf("%w: cannot change status from %s to %s", ErrInvalidTransition, previous, next)
		}
		return err
	}

	entry := o.StatusHistory[len(o.StatusHistory)-1]
	if err := s.repo.UpdateOrderStatus(ctx, o, previous, entry); err != nil {
		return fmt.Errorf("update order status: %w", mapRepoError(err))
	}

	eventType := events.TypeOrderStatusChanged
	if next == model.OrderStatusCancelled {
		eventType = events.TypeOrderCancelled
		s.restoreOrderStock(ctx, o)
	}

	s.logger.Info("order status changed",
		zap.String("order_number", o.Number),
		zap.String("from", string(previous)),
		zap.String("to", string(next)))

	s.publish(ctx, eventType, o, previous)
	return nil
}

// ShippingUpdate содержит новые сведения о доставке.
type ShippingUpdate struct {
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
}

// UpdateShipping обновляет трек-номер, перевозчика и ожидаемую дату доставки.
func (s *Service) UpdateShipping(ctx context.Context, id uuid.UUID, upd ShippingUpdate, actor *model.User) (*model.Order, error) {
	if !actor.IsAdmin() {
		return nil, ErrAccessDenied
	}

	err := s.repo.UpdateOrderShipping(ctx, id, model.ShippingInfo{
		TrackingNumber:    strings.TrimSpace(upd.TrackingNumber),
		Carrier:           strings.TrimSpace(upd.Carrier),
		EstimatedDelivery: upd.EstimatedDelivery,
	})
	if err != nil {
		return nil, mapRepoError(err)
	}

	o, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return o, nil
}
