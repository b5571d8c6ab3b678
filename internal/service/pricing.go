package service

import (
	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/model"
)

var (
	// TaxRate ставка НДС.
	TaxRate = decimal.RequireFromString("0.16")
	// FreeShippingThreshold сумма, строго выше которой доставка бесплатна.
	FreeShippingThreshold = decimal.NewFromInt(100)
	// FlatShippingFee фиксированная стоимость доставки.
	FlatShippingFee = decimal.NewFromInt(10)
)

// CalculatePricing рассчитывает доставку, налог и итог по сумме позиций.
// Налог округляется до копеек.
func CalculatePricing(subtotal decimal.Decimal) model.Pricing {
	shipping := FlatShippingFee
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := subtotal.Mul(TaxRate).Round(2)
	discount := decimal.Zero

	return model.Pricing{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discount,
		Total:    subtotal.Add(shipping).Add(tax).Sub(discount),
	}
}
