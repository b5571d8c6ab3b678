package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus описывает этап жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// ErrTransitionNotAllowed возвращается, если таблица переходов запрещает смену статуса.
var ErrTransitionNotAllowed = errors.New("order status transition not allowed")

// transitions задаёт разрешённые переходы. Статусы без исходящих переходов терминальны.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  nil,
	OrderStatusCancelled:  nil,
	OrderStatusRefunded:   nil,
}

// Valid сообщает, входит ли статус в закрытый перечень.
func (s OrderStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransitionTo сообщает, разрешён ли переход в next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Cancellable сообщает, можно ли отменить заказ в этом статусе.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

// Transition проверяет переход по таблице, меняет статус, применяет побочные
// эффекты перехода и дописывает запись в историю.
func (o *Order) Transition(next OrderStatus, note string, actor *uuid.UUID, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, o.Status, next)
	}

	o.Status = next
	o.UpdatedAt = at

	switch next {
	case OrderStatusDelivered:
		delivered := at
		o.Shipping.ActualDelivery = &delivered
		if o.PaymentMethod == PaymentCashOnDelivery {
			paid := at
			o.PaymentStatus = PaymentStatusPaid
			o.PaymentDetails.PaymentDate = &paid
			o.PaymentDetails.PaymentGateway = string(PaymentCashOnDelivery)
		}
	case OrderStatusRefunded:
		if o.PaymentStatus == PaymentStatusPaid {
			o.PaymentStatus = PaymentStatusRefunded
		}
	}

	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    next,
		Timestamp: at,
		Note:      note,
		UpdatedBy: actor,
	})

	return nil
}
