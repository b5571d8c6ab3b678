package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductRefreshStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   ProductStatus
		variants []Variant
		want     ProductStatus
	}{
		{
			name:     "active without stock becomes out-of-stock",
			status:   ProductStatusActive,
			variants: []Variant{{Size: "M", Stock: 0}},
			want:     ProductStatusOutOfStock,
		},
		{
			name:     "out-of-stock with stock becomes active",
			status:   ProductStatusOutOfStock,
			variants: []Variant{{Size: "M", Stock: 3}},
			want:     ProductStatusActive,
		},
		{
			name:     "discontinued is not reactivated",
			status:   ProductStatusDiscontinued,
			variants: []Variant{{Size: "M", Stock: 3}},
			want:     ProductStatusDiscontinued,
		},
		{
			name:     "inactive stays inactive when empty",
			status:   ProductStatusInactive,
			variants: []Variant{{Size: "M", Stock: 0}},
			want:     ProductStatusInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{Status: tt.status, Variants: tt.variants}
			p.RefreshStatus()
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

func TestProductTotalStock(t *testing.T) {
	p := &Product{BaseStock: 7}
	assert.Equal(t, 7, p.TotalStock())

	p.Variants = []Variant{{Stock: 2}, {Stock: 5}}
	assert.Equal(t, 7, p.TotalStock())
}

func TestProductFindVariant(t *testing.T) {
	p := &Product{Variants: []Variant{
		{Size: "S", Color: "red"},
		{Size: "M", Color: "red"},
		{Size: "M", Color: "blue"},
	}}

	assert.Equal(t, 1, p.FindVariant("M", ""))
	assert.Equal(t, 2, p.FindVariant("M", "blue"))
	assert.Equal(t, 0, p.FindVariant("", "red"))
	assert.Equal(t, -1, p.FindVariant("XL", ""))
}

func TestProductUnitPrice(t *testing.T) {
	override := decimal.RequireFromString("45.50")
	zero := decimal.Zero
	p := &Product{
		Price: decimal.RequireFromString("40"),
		Variants: []Variant{
			{Size: "S"},
			{Size: "M", Price: &override},
			{Size: "L", Price: &zero},
		},
	}

	assert.True(t, p.UnitPrice(-1).Equal(decimal.RequireFromString("40")))
	assert.True(t, p.UnitPrice(0).Equal(decimal.RequireFromString("40")))
	assert.True(t, p.UnitPrice(1).Equal(override))
	assert.True(t, p.UnitPrice(2).Equal(decimal.RequireFromString("40")))
}

func TestProductPrimaryImageAndDiscount(t *testing.T) {
	original := decimal.RequireFromString("80")
	p := &Product{
		Price:         decimal.RequireFromString("60"),
		OriginalPrice: &original,
		Images: []Image{
			{URL: "https://img/1.jpg"},
			{URL: "https://img/2.jpg", IsPrimary: true},
		},
	}

	assert.Equal(t, "https://img/2.jpg", p.PrimaryImage())
	assert.Equal(t, 25, p.DiscountPercentage())
	assert.True(t, p.OnSale())

	p.Images = p.Images[:1]
	assert.Equal(t, "https://img/1.jpg", p.PrimaryImage())
}

func TestProductRecalculateRatings(t *testing.T) {
	p := &Product{Reviews: []Review{{Rating: 4}, {Rating: 2}}}
	p.RecalculateRatings()

	assert.Equal(t, 3.0, p.Ratings.Average)
	assert.Equal(t, 2, p.Ratings.Count)
}

func TestProductCloneIsDeep(t *testing.T) {
	p := &Product{Variants: []Variant{{Size: "M", Stock: 3}}}
	c := p.Clone()
	c.Variants[0].Stock = 0

	assert.Equal(t, 3, p.Variants[0].Stock)
}

func TestOrderStatusTable(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusConfirmed))
	assert.True(t, OrderStatusProcessing.CanTransitionTo(OrderStatusCancelled))
	assert.True(t, OrderStatusShipped.CanTransitionTo(OrderStatusRefunded))
	assert.False(t, OrderStatusShipped.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusShipped))
	assert.False(t, OrderStatusDelivered.CanTransitionTo(OrderStatusRefunded))

	for _, s := range []OrderStatus{OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		assert.False(t, s.Cancellable(), s)
	}
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded} {
		assert.True(t, s.Terminal(), s)
	}

	assert.False(t, OrderStatus("lost").Valid())
}

func TestOrderTransitionDeliveredMarksCashOnDeliveryPaid(t *testing.T) {
	actor := uuid.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &Order{
		Status:        OrderStatusShipped,
		PaymentMethod: PaymentCashOnDelivery,
		PaymentStatus: PaymentStatusPending,
	}

	require.NoError(t, o.Transition(OrderStatusDelivered, "left at door", &actor, now))

	assert.Equal(t, OrderStatusDelivered, o.Status)
	assert.Equal(t, PaymentStatusPaid, o.PaymentStatus)
	require.NotNil(t, o.PaymentDetails.PaymentDate)
	assert.Equal(t, now, *o.PaymentDetails.PaymentDate)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, "left at door", o.StatusHistory[0].Note)
	assert.Equal(t, &actor, o.StatusHistory[0].UpdatedBy)
}

func TestOrderTransitionRejected(t *testing.T) {
	o := &Order{Status: OrderStatusDelivered}

	err := o.Transition(OrderStatusCancelled, "", nil, time.Now())
	require.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, OrderStatusDelivered, o.Status)
	assert.Empty(t, o.StatusHistory)
}

func TestPage(t *testing.T) {
	p := Page{Number: 3, Limit: 20}
	assert.Equal(t, 40, p.Offset())
	assert.Equal(t, 3, p.TotalPages(41))
	assert.Equal(t, 0, Page{}.TotalPages(10))
}
