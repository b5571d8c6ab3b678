package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hamzabour2019/project-faith/internal/middleware"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/service"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

// CreateOrder оформляет заказ. Токен необязателен: без него создаётся гостевой заказ.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.trim()
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	in := service.CreateOrderInput{
		CustomerInfo: model.CustomerInfo{
			FirstName: req.CustomerInfo.FirstName,
			LastName:  req.CustomerInfo.LastName,
			Email:     req.CustomerInfo.Email,
			Phone:     req.CustomerInfo.Phone,
		},
		ShippingAddress: req.ShippingAddress.toModel(),
		PaymentMethod:   model.PaymentMethod(req.PaymentMethod),
		ShippingMethod:  req.ShippingMethod,
	}
	if req.SameAsShipping != nil && !*req.SameAsShipping && req.BillingAddress != nil {
		billing := req.BillingAddress.toModel()
		in.BillingAddress = &billing
	}
	for _, it := range req.Items {
		item := service.OrderItemInput{
			ProductID: uuid.MustParse(it.Product),
			Quantity:  it.Quantity,
		}
		if it.Variant != nil {
			item.Variant = model.VariantSelection{Size: it.Variant.Size, Color: strings.TrimSpace(it.Variant.Color)}
		}
		in.Items = append(in.Items, item)
	}

	actor, _ := middleware.UserFromContext(r.Context())

	o, err := h.service.CreateOrder(r.Context(), in, actor)
	if errors.Is(err, service.ErrProductNotFound) {
		h.writeFail(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create order")
		return
	}
	h.writeData(w, http.StatusCreated, newOrderResponse(o), "Order created successfully")
}

// ListOrders возвращает заказы: администратору все, покупателю только свои.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		h.writeValidation(w, err)
		return
	}

	q := r.URL.Query()
	f := model.OrderFilter{
		Status:        model.OrderStatus(q.Get("status")),
		PaymentStatus: model.PaymentStatus(q.Get("paymentStatus")),
		SortAsc:       q.Get("sortOrder") == "asc",
		Page:          page,
	}

	orders, total, err := h.service.ListOrders(r.Context(), f, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch orders")
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	h.writeData(w, http.StatusOK, map[string]any{
		"orders":     resp,
		"pagination": newPagination(page, total),
	}, "")
}

// OrderStats возвращает сводную статистику заказов.
func (h *Handler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.OrderStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch order statistics")
		return
	}
	h.writeData(w, http.StatusOK, newOrderStatsResponse(stats), "")
}

// TrackOrder возвращает публичную проекцию заказа по номеру.
func (h *Handler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	number := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "orderNumber")))
	if !validation.IsValidOrderNumber(number) {
		h.writeFail(w, http.StatusNotFound, "Order not found", nil)
		return
	}

	o, err := h.service.TrackOrder(r.Context(), number)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to track order")
		return
	}
	h.writeData(w, http.StatusOK, newTrackResponse(o), "")
}

// GetOrder возвращает заказ владельцу или администратору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch order")
		return
	}
	h.writeData(w, http.StatusOK, newOrderResponse(o), "")
}

// UpdateStatus меняет статус заказа.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	o, err := h.service.UpdateStatus(r.Context(), id, model.OrderStatus(req.Status), req.Note, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update order status")
		return
	}
	h.writeData(w, http.StatusOK, newOrderResponse(o), "Order status updated successfully")
}

// UpdateShipping обновляет сведения о доставке.
func (h *Handler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req updateShippingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	o, err := h.service.UpdateShipping(r.Context(), id, service.ShippingUpdate{
		TrackingNumber:    req.TrackingNumber,
		Carrier:           req.Carrier,
		EstimatedDelivery: req.EstimatedDelivery,
	}, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update shipping info")
		return
	}
	h.writeData(w, http.StatusOK, newOrderResponse(o), "Shipping info updated successfully")
}

// CancelOrder отменяет заказ.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	o, err := h.service.CancelOrder(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to cancel order")
		return
	}
	h.writeData(w, http.StatusOK, newOrderResponse(o), "Order cancelled successfully")
}

// orderRequest извлекает пользователя и идентификатор заказа; при ошибке ответ уже записан.
func (h *Handler) orderRequest(w http.ResponseWriter, r *http.Request) (*model.User, uuid.UUID, bool) {
	actor, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return nil, uuid.Nil, false
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return nil, uuid.Nil, false
	}
	return actor, id, true
}
