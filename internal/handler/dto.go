package handler

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/model"
)

// money сериализуется числом с двумя знаками после запятой.
type money decimal.Decimal

func (m money) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(m).StringFixed(2)), nil
}

func moneyPtr(d *decimal.Decimal) *money {
	if d == nil {
		return nil
	}
	m := money(*d)
	return &m
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,password"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
}

func (r *registerRequest) trim() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type imageRequest struct {
	URL       string `json:"url" validate:"required,url"`
	Alt       string `json:"alt" validate:"max=200"`
	IsPrimary bool   `json:"isPrimary"`
}

type variantRequest struct {
	Size  string           `json:"size" validate:"required,size"`
	Color string           `json:"color" validate:"required,max=30"`
	Stock int              `json:"stock" validate:"min=0"`
	Price *decimal.Decimal `json:"price"`
}

type createProductRequest struct {
	Name          string           `json:"name" validate:"required,min=2,max=100"`
	Description   string           `json:"description" validate:"required,min=10,max=2000"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	Category      string           `json:"category" validate:"required,category"`
	Brand         string           `json:"brand" validate:"max=50"`
	SKU           string           `json:"sku" validate:"required,min=3,max=20"`
	Images        []imageRequest   `json:"images" validate:"required,min=1,dive"`
	Variants      []variantRequest `json:"variants" validate:"required,min=1,dive"`
	Featured      bool             `json:"featured"`
}

type stockRequest struct {
	Size  string `json:"size" validate:"required"`
	Color string `json:"color" validate:"required"`
	Stock int    `json:"stock" validate:"min=0"`
}

type updateStockRequest struct {
	Variants []stockRequest `json:"variants" validate:"required,min=1,dive"`
}

type reviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=500"`
}

type customerRequest struct {
	FirstName string `json:"firstName" validate:"required,min=2,max=50"`
	LastName  string `json:"lastName" validate:"required,min=2,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,phone"`
}

type addressRequest struct {
	Street  string `json:"street" validate:"required,max=200"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	ZipCode string `json:"zipCode" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
}

func (c *customerRequest) trim() {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
}

func (a *addressRequest) trim() {
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.ZipCode = strings.TrimSpace(a.ZipCode)
	a.Country = strings.TrimSpace(a.Country)
}

func (a addressRequest) toModel() model.Address {
	a.trim()
	return model.Address{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		ZipCode: a.ZipCode,
		Country: a.Country,
	}
}

type variantSelection struct {
	Size  string `json:"size,omitempty" validate:"size"`
	Color string `json:"color,omitempty" validate:"max=30"`
}

type orderItemRequest struct {
	Product  string            `json:"product" validate:"required,uuid"`
	Variant  *variantSelection `json:"variant" validate:"omitempty"`
	Quantity int               `json:"quantity" validate:"required,min=1"`
}

type createOrderRequest struct {
	CustomerInfo    customerRequest    `json:"customerInfo" validate:"required"`
	ShippingAddress addressRequest     `json:"shippingAddress" validate:"required"`
	BillingAddress  *addressRequest    `json:"billingAddress" validate:"omitempty"`
	SameAsShipping  *bool              `json:"sameAsShipping"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod   string             `json:"paymentMethod" validate:"omitempty,oneof=cash-on-delivery credit-card paypal bank-transfer"`
	ShippingMethod  string             `json:"shippingMethod" validate:"omitempty,oneof=standard express overnight"`
}

// trim убирает пробелы по краям, чтобы строка из одних пробелов не проходила required.
func (r *createOrderRequest) trim() {
	r.CustomerInfo.trim()
	r.ShippingAddress.trim()
	if r.BillingAddress != nil {
		r.BillingAddress.trim()
	}
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type updateShippingRequest struct {
	TrackingNumber    string     `json:"trackingNumber" validate:"max=100"`
	Carrier           string     `json:"carrier" validate:"max=100"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userAddressRequest struct {
	Street  *string `json:"street" validate:"omitempty,max=200"`
	City    *string `json:"city" validate:"omitempty,max=100"`
	State   *string `json:"state" validate:"omitempty,max=100"`
	ZipCode *string `json:"zipCode" validate:"omitempty,max=20"`
	Country *string `json:"country" validate:"omitempty,max=100"`
}

type updateUserRequest struct {
	FirstName *string             `json:"firstName" validate:"omitempty,min=2,max=50"`
	LastName  *string             `json:"lastName" validate:"omitempty,min=2,max=50"`
	Phone     *string             `json:"phone" validate:"omitempty,phone"`
	Address   *userAddressRequest `json:"address" validate:"omitempty"`
	Role      *string             `json:"role" validate:"omitempty,oneof=customer admin"`
	Status    *string             `json:"status" validate:"omitempty,oneof=active inactive suspended"`
}

func (r *updateUserRequest) trim() {
	for _, f := range []*string{r.FirstName, r.LastName, r.Phone} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

type userStatusRequest struct {
	Status string `json:"status"`
}

type updateProductRequest struct {
	Name          *string          `json:"name" validate:"omitempty,min=2,max=100"`
	Description   *string          `json:"description" validate:"omitempty,min=10,max=2000"`
	Price         *decimal.Decimal `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	Category      *string          `json:"category" validate:"omitempty,category"`
	Brand         *string          `json:"brand" validate:"omitempty,max=50"`
	Featured      *bool            `json:"featured"`
	Status        *string          `json:"status" validate:"omitempty,oneof=active inactive discontinued"`
}

func (r *updateProductRequest) trim() {
	for _, f := range []*string{r.Name, r.Description, r.Brand} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

type userStatsResponse struct {
	TotalOrders int   `json:"totalOrders"`
	TotalSpent  money `json:"totalSpent"`
}

type userResponse struct {
	ID        string            `json:"id"`
	FirstName string            `json:"firstName"`
	LastName  string            `json:"lastName"`
	Email     string            `json:"email"`
	Phone     string            `json:"phone,omitempty"`
	Address   *model.Address    `json:"address,omitempty"`
	Role      model.Role        `json:"role"`
	Status    model.UserStatus  `json:"status"`
	Stats     userStatsResponse `json:"stats"`
	LastLogin *time.Time        `json:"lastLogin,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID.String(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		Status:    u.Status,
		Stats: userStatsResponse{
			TotalOrders: u.Stats.TotalOrders,
			TotalSpent:  money(u.Stats.TotalSpent),
		},
		CreatedAt: u.CreatedAt,
	}
	if u.Address != (model.Address{}) {
		addr := u.Address
		resp.Address = &addr
	}
	if !u.LastLogin.IsZero() {
		last := u.LastLogin
		resp.LastLogin = &last
	}
	return resp
}

type authResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

type imageResponse struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
}

type variantResponse struct {
	ID    string `json:"id"`
	Size  string `json:"size"`
	Color string `json:"color"`
	Stock int    `json:"stock"`
	Price *money `json:"price,omitempty"`
}

type reviewResponse struct {
	UserID    string    `json:"user"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

func newReviewResponse(r model.Review) reviewResponse {
	return reviewResponse{
		UserID:    r.UserID.String(),
		Rating:    r.Rating,
		Comment:   r.Comment,
		Verified:  r.Verified,
		CreatedAt: r.CreatedAt,
	}
}

type ratingsResponse struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type productResponse struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	Price              money               `json:"price"`
	OriginalPrice      *money              `json:"originalPrice,omitempty"`
	DiscountPercentage int                 `json:"discountPercentage"`
	OnSale             bool                `json:"onSale"`
	Category           string              `json:"category"`
	Brand              string              `json:"brand,omitempty"`
	SKU                string              `json:"sku"`
	Images             []imageResponse     `json:"images"`
	PrimaryImage       string              `json:"primaryImage"`
	Variants           []variantResponse   `json:"variants"`
	TotalStock         int                 `json:"totalStock"`
	Status             model.ProductStatus `json:"status"`
	Featured           bool                `json:"featured"`
	Ratings            ratingsResponse     `json:"ratings"`
	Reviews            []reviewResponse    `json:"reviews,omitempty"`
	SalesCount         int                 `json:"salesCount"`
	ViewCount          int                 `json:"viewCount"`
	CreatedAt          time.Time           `json:"createdAt"`
}

func newProductResponse(p *model.Product) productResponse {
	resp := productResponse{
		ID:                 p.ID.String(),
		Name:               p.Name,
		Description:        p.Description,
		Price:              money(p.Price),
		OriginalPrice:      moneyPtr(p.OriginalPrice),
		DiscountPercentage: p.DiscountPercentage(),
		OnSale:             p.OnSale(),
		Category:           p.Category,
		Brand:              p.Brand,
		SKU:                p.SKU,
		Images:             make([]imageResponse, 0, len(p.Images)),
		PrimaryImage:       p.PrimaryImage(),
		Variants:           make([]variantResponse, 0, len(p.Variants)),
		TotalStock:         p.TotalStock(),
		Status:             p.Status,
		Featured:           p.Featured,
		Ratings:            ratingsResponse{Average: p.Ratings.Average, Count: p.Ratings.Count},
		SalesCount:         p.SalesCount,
		ViewCount:          p.ViewCount,
		CreatedAt:          p.CreatedAt,
	}
	for _, img := range p.Images {
		resp.Images = append(resp.Images, imageResponse{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	for _, v := range p.Variants {
		resp.Variants = append(resp.Variants, variantResponse{
			ID:    v.ID.String(),
			Size:  v.Size,
			Color: v.Color,
			Stock: v.Stock,
			Price: moneyPtr(v.Price),
		})
	}
	for _, r := range p.Reviews {
		resp.Reviews = append(resp.Reviews, newReviewResponse(r))
	}
	return resp
}

func newProductList(products []model.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for i := range products {
		out = append(out, newProductResponse(&products[i]))
	}
	return out
}

// countResponse повторяет формат группировки {"_id": значение, "count": n}.
type countResponse struct {
	ID    string `json:"_id"`
	Count int    `json:"count"`
}

func newCountList(stats []model.CountStat) []countResponse {
	out := make([]countResponse, 0, len(stats))
	for _, c := range stats {
		out = append(out, countResponse{ID: c.Value, Count: c.Count})
	}
	return out
}

type userOverviewResponse struct {
	TotalUsers    int `json:"totalUsers"`
	ActiveUsers   int `json:"activeUsers"`
	AdminUsers    int `json:"adminUsers"`
	CustomerUsers int `json:"customerUsers"`
}

type userStatisticsResponse struct {
	Overview        userOverviewResponse `json:"overview"`
	RoleBreakdown   []countResponse      `json:"roleBreakdown"`
	StatusBreakdown []countResponse      `json:"statusBreakdown"`
}

func newUserStatisticsResponse(s *model.UserStatistics) userStatisticsResponse {
	return userStatisticsResponse{
		Overview: userOverviewResponse{
			TotalUsers:    s.TotalUsers,
			ActiveUsers:   s.ActiveUsers,
			AdminUsers:    s.AdminUsers,
			CustomerUsers: s.CustomerUsers,
		},
		RoleBreakdown:   newCountList(s.RoleBreakdown),
		StatusBreakdown: newCountList(s.StatusBreakdown),
	}
}

func newCategoryList(categories []model.CategoryCount) []countResponse {
	out := make([]countResponse, 0, len(categories))
	for _, c := range categories {
		out = append(out, countResponse{ID: c.Category, Count: c.Count})
	}
	return out
}

type paginationResponse struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	Limit       int  `json:"limit"`
}

func newPagination(p model.Page, total int) paginationResponse {
	pages := p.TotalPages(total)
	return paginationResponse{
		CurrentPage: p.Number,
		TotalPages:  pages,
		TotalCount:  total,
		HasNextPage: p.Number < pages,
		HasPrevPage: p.Number > 1,
		Limit:       p.Limit,
	}
}

type snapshotResponse struct {
	Name  string `json:"name"`
	Price money  `json:"price"`
	Image string `json:"image,omitempty"`
	SKU   string `json:"sku"`
}

type orderItemResponse struct {
	Product   string            `json:"product"`
	Snapshot  snapshotResponse  `json:"productSnapshot"`
	Variant   *variantSelection `json:"variant,omitempty"`
	VariantID string            `json:"variantId,omitempty"`
	Quantity  int               `json:"quantity"`
	Price     money             `json:"price"`
	Total     money             `json:"total"`
}

type pricingResponse struct {
	Subtotal money `json:"subtotal"`
	Shipping money `json:"shipping"`
	Tax      money `json:"tax"`
	Discount money `json:"discount"`
	Total    money `json:"total"`
}

func newPricingResponse(p model.Pricing) pricingResponse {
	return pricingResponse{
		Subtotal: money(p.Subtotal),
		Shipping: money(p.Shipping),
		Tax:      money(p.Tax),
		Discount: money(p.Discount),
		Total:    money(p.Total),
	}
}

type paymentDetailsResponse struct {
	TransactionID  string     `json:"transactionId,omitempty"`
	PaymentDate    *time.Time `json:"paymentDate,omitempty"`
	PaymentGateway string     `json:"paymentGateway,omitempty"`
}

type shippingResponse struct {
	Method            string     `json:"method"`
	TrackingNumber    string     `json:"trackingNumber,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	ActualDelivery    *time.Time `json:"actualDelivery,omitempty"`
}

func newShippingResponse(s model.ShippingInfo) shippingResponse {
	return shippingResponse{
		Method:            s.Method,
		TrackingNumber:    s.TrackingNumber,
		Carrier:           s.Carrier,
		EstimatedDelivery: s.EstimatedDelivery,
		ActualDelivery:    s.ActualDelivery,
	}
}

type statusEntryResponse struct {
	Status    model.OrderStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Note      string            `json:"note,omitempty"`
	UpdatedBy string            `json:"updatedBy,omitempty"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	User            string                 `json:"user,omitempty"`
	CustomerInfo    model.CustomerInfo     `json:"customerInfo"`
	ShippingAddress model.Address          `json:"shippingAddress"`
	BillingAddress  model.Address          `json:"billingAddress"`
	Items           []orderItemResponse    `json:"items"`
	Pricing         pricingResponse        `json:"pricing"`
	Status          model.OrderStatus      `json:"status"`
	PaymentStatus   model.PaymentStatus    `json:"paymentStatus"`
	PaymentMethod   model.PaymentMethod    `json:"paymentMethod"`
	PaymentDetails  paymentDetailsResponse `json:"paymentDetails"`
	Shipping        shippingResponse       `json:"shipping"`
	StatusHistory   []statusEntryResponse  `json:"statusHistory"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

func newOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID.String(),
		OrderNumber:     o.Number,
		CustomerInfo:    o.CustomerInfo,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Items:           make([]orderItemResponse, 0, len(o.Items)),
		Pricing:         newPricingResponse(o.Pricing),
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		PaymentDetails: paymentDetailsResponse{
			TransactionID:  o.PaymentDetails.TransactionID,
			PaymentDate:    o.PaymentDetails.PaymentDate,
			PaymentGateway: o.PaymentDetails.PaymentGateway,
		},
		Shipping:      newShippingResponse(o.Shipping),
		StatusHistory: make([]statusEntryResponse, 0, len(o.StatusHistory)),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.UserID != nil {
		resp.User = o.UserID.String()
	}
	for _, it := range o.Items {
		item := orderItemResponse{
			Product: it.ProductID.String(),
			Snapshot: snapshotResponse{
				Name:  it.Snapshot.Name,
				Price: money(it.Snapshot.Price),
				Image: it.Snapshot.Image,
				SKU:   it.Snapshot.SKU,
			},
			Quantity: it.Quantity,
			Price:    money(it.Price),
			Total:    money(it.Total),
		}
		if !it.Variant.IsEmpty() {
			item.Variant = &variantSelection{Size: it.Variant.Size, Color: it.Variant.Color}
		}
		if it.VariantID != nil {
			item.VariantID = it.VariantID.String()
		}
		resp.Items = append(resp.Items, item)
	}
	for _, e := range o.StatusHistory {
		entry := statusEntryResponse{Status: e.Status, Timestamp: e.Timestamp, Note: e.Note}
		if e.UpdatedBy != nil {
			entry.UpdatedBy = e.UpdatedBy.String()
		}
		resp.StatusHistory = append(resp.StatusHistory, entry)
	}
	return resp
}

type trackHistoryResponse struct {
	Status    model.OrderStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Note      string            `json:"note,omitempty"`
}

// trackResponse публичная проекция заказа: без идентификаторов пользователей и контактов.
type trackResponse struct {
	OrderNumber   string                 `json:"orderNumber"`
	Status        model.OrderStatus      `json:"status"`
	PaymentStatus model.PaymentStatus    `json:"paymentStatus"`
	Shipping      shippingResponse       `json:"shipping"`
	StatusHistory []trackHistoryResponse `json:"statusHistory"`
	CustomerName  string                 `json:"customerName"`
	Pricing       pricingResponse        `json:"pricing"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func newTrackResponse(o *model.Order) trackResponse {
	resp := trackResponse{
		OrderNumber:   o.Number,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Shipping:      newShippingResponse(o.Shipping),
		StatusHistory: make([]trackHistoryResponse, 0, len(o.StatusHistory)),
		CustomerName:  o.CustomerName(),
		Pricing:       newPricingResponse(o.Pricing),
		CreatedAt:     o.CreatedAt,
	}
	for _, e := range o.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, trackHistoryResponse{Status: e.Status, Timestamp: e.Timestamp, Note: e.Note})
	}
	return resp
}

type statusStatResponse struct {
	Status      model.OrderStatus `json:"status"`
	Count       int               `json:"count"`
	TotalAmount money             `json:"totalAmount"`
}

type orderStatsResponse struct {
	TotalOrders     int                  `json:"totalOrders"`
	TotalRevenue    money                `json:"totalRevenue"`
	StatusBreakdown []statusStatResponse `json:"statusBreakdown"`
}

func newOrderStatsResponse(s *model.OrderStats) orderStatsResponse {
	resp := orderStatsResponse{
		TotalOrders:     s.TotalOrders,
		TotalRevenue:    money(s.TotalRevenue),
		StatusBreakdown: make([]statusStatResponse, 0, len(s.StatusBreakdown)),
	}
	for _, st := range s.StatusBreakdown {
		resp.StatusBreakdown = append(resp.StatusBreakdown, statusStatResponse{
			Status:      st.Status,
			Count:       st.Count,
			TotalAmount: money(st.TotalAmount),
		})
	}
	return resp
}
