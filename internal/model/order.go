package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash-on-delivery"
	PaymentCreditCard     PaymentMethod = "credit-card"
	PaymentPayPal         PaymentMethod = "paypal"
	PaymentBankTransfer   PaymentMethod = "bank-transfer"
)

// CustomerInfo содержит контактные данные покупателя.
type CustomerInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Address описывает почтовый адрес.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// ProductSnapshot фиксирует данные товара на момент оформления заказа.
type ProductSnapshot struct {
	Name  string
	Price decimal.Decimal
	Image string
	SKU   string
}

// VariantSelection описывает запрошенный вариант товара.
type VariantSelection struct {
	Size  string
	Color string
}

// IsEmpty сообщает, что вариант не запрашивался.
func (v VariantSelection) IsEmpty() bool {
	return v.Size == "" && v.Color == ""
}

// OrderItem описывает позицию заказа.
type OrderItem struct {
	ProductID uuid.UUID
	Snapshot  ProductSnapshot
	Variant   VariantSelection
	// VariantID заполнен, если при оформлении был найден вариант.
	VariantID *uuid.UUID
	Quantity  int
	Price     decimal.Decimal
	Total     decimal.Decimal
}

// Pricing содержит расчёт стоимости заказа.
type Pricing struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// PaymentDetails содержит сведения о проведённой оплате.
type PaymentDetails struct {
	TransactionID  string
	PaymentDate    *time.Time
	PaymentGateway string
}

// ShippingInfo содержит сведения о доставке.
type ShippingInfo struct {
	Method            string
	TrackingNumber    string
	Carrier           string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
}

// StatusEntry описывает одну запись истории смены статусов.
type StatusEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	Note      string
	UpdatedBy *uuid.UUID
}

// Order представляет заказ покупателя.
type Order struct {
	ID     uuid.UUID
	Number string
	// UserID равен nil для гостевых заказов.
	UserID          *uuid.UUID
	CustomerInfo    CustomerInfo
	ShippingAddress Address
	BillingAddress  Address
	Items           []OrderItem
	Pricing         Pricing
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	PaymentDetails  PaymentDetails
	Shipping        ShippingInfo
	StatusHistory   []StatusEntry
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOwnedBy сообщает, принадлежит ли заказ пользователю.
func (o *Order) IsOwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}

// CustomerName возвращает полное имя покупателя.
func (o *Order) CustomerName() string {
	return o.CustomerInfo.FirstName + " " + o.CustomerInfo.LastName
}

// Clone возвращает глубокую копию заказа.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	return &c
}

// OrderFilter задаёт условия выборки заказов.
type OrderFilter struct {
	UserID        *uuid.UUID
	Status        OrderStatus
	PaymentStatus PaymentStatus
	// SortAsc включает сортировку по дате создания по возрастанию.
	SortAsc bool
	Page    Page
}

// StatusStat содержит количество и сумму заказов в одном статусе.
type StatusStat struct {
	Status      OrderStatus
	Count       int
	TotalAmount decimal.Decimal
}

// OrderStats содержит сводную статистику по заказам.
type OrderStats struct {
	TotalOrders     int
	TotalRevenue    decimal.Decimal
	StatusBreakdown []StatusStat
}
