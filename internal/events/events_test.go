package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamzabour2019/project-faith/internal/model"
)

func sampleOrder() *model.Order {
	user := uuid.New()
	variant := uuid.New()
	return &model.Order{
		ID:      uuid.New(),
		Number:  "ORD-1700000000000-0001",
		UserID:  &user,
		Status:  model.OrderStatusCancelled,
		Pricing: model.Pricing{Total: decimal.RequireFromString("56.4")},
		Items: []model.OrderItem{
			{ProductID: uuid.New(), VariantID: &variant, Quantity: 2},
			{ProductID: uuid.New(), Quantity: 1},
		},
	}
}

func TestNewOrderEvent(t *testing.T) {
	o := sampleOrder()
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	e := NewOrderEvent(TypeOrderCancelled, o, model.OrderStatusPending, at)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, o.ID.String(), e.OrderID)
	assert.Equal(t, o.UserID.String(), e.UserID)
	assert.Equal(t, "cancelled", e.Status)
	assert.Equal(t, "pending", e.PreviousStatus)
	assert.Equal(t, "56.40", e.Total)
	require.Len(t, e.Items, 2)
	assert.Equal(t, o.Items[0].VariantID.String(), e.Items[0].VariantID)
	assert.Empty(t, e.Items[1].VariantID)
}

func TestToMessage(t *testing.T) {
	e := NewOrderEvent(TypeOrderCreated, sampleOrder(), "", time.Now())

	msg, err := toMessage(e)
	require.NoError(t, err)
	assert.Equal(t, e.OrderID, string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "order.created", decoded["type"])
	assert.NotContains(t, decoded, "previousStatus")
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), Event{Type: TypeOrderCreated}))
	assert.Len(t, r.Events(), 1)

	r.Err = errors.New("broker down")
	assert.Error(t, r.Publish(context.Background(), Event{}))
	assert.Len(t, r.Events(), 1)

	assert.NoError(t, NopPublisher{}.Publish(context.Background(), Event{}))
}
