// Package events публикует события жизненного цикла заказов.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamzabour2019/project-faith/internal/model"
)

// Type описывает вид события.
type Type string

const (
	TypeOrderCreated       Type = "order.created"
	TypeOrderStatusChanged Type = "order.status_changed"
	TypeOrderCancelled     Type = "order.cancelled"
)

// Item описывает позицию заказа в событии.
type Item struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Event описывает событие по заказу.
type Event struct {
	ID             string    `json:"eventId"`
	Type           Type      `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	UserID         string    `json:"userId,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Total          string    `json:"total"`
	Items          []Item    `json:"items,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewOrderEvent собирает событие по текущему состоянию заказа.
func NewOrderEvent(t Type, o *model.Order, previous model.OrderStatus, at time.Time) Event {
	e := Event{
		ID:             uuid.NewString(),
		Type:           t,
		OrderID:        o.ID.String(),
		OrderNumber:    o.Number,
		Status:         string(o.Status),
		PreviousStatus: string(previous),
		Total:          o.Pricing.Total.StringFixed(2),
		Timestamp:      at,
	}
	if o.UserID != nil {
		e.UserID = o.UserID.String()
	}
	for _, it := range o.Items {
		item := Item{ProductID: it.ProductID.String(), Quantity: it.Quantity}
		if it.VariantID != nil {
			item.VariantID = it.VariantID.String()
		}
		e.Items = append(e.Items, item)
	}
	return e
}

// Publisher отправляет события во внешнюю шину.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher отбрасывает события. Используется, когда брокеры не настроены.
type NopPublisher struct{}

// Publish ничего не делает.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close ничего не делает.
func (NopPublisher) Close() error { return nil }

// Recorder запоминает опубликованные события.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	// Err, если задана, возвращается из Publish.
	Err error
}

// Publish сохраняет событие.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// Close ничего не делает.
func (r *Recorder) Close() error { return nil }

// Events возвращает копию опубликованных событий.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
