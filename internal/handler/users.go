package handler

import (
	"net/http"

	"github.com/hamzabour2019/project-faith/internal/middleware"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/service"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

// ListUsers возвращает страницу пользователей с фильтрами role, status и search.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageWithLimit(r, userPageLimit)
	if err != nil {
		h.writeValidation(w, err)
		return
	}

	q := r.URL.Query()
	f := model.UserFilter{
		Role:    model.Role(q.Get("role")),
		Status:  model.UserStatus(q.Get("status")),
		Search:  q.Get("search"),
		SortAsc: q.Get("sortOrder") == "asc",
		Page:    page,
	}

	users, total, err := h.service.ListUsers(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch users")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}
	h.writeData(w, http.StatusOK, map[string]any{
		"users":      resp,
		"pagination": newPagination(page, total),
	}, "")
}

// UserStats возвращает сводку по учётным записям.
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.UserStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch user statistics")
		return
	}
	h.writeData(w, http.StatusOK, newUserStatisticsResponse(stats), "")
}

// GetUser возвращает профиль пользователя владельцу или администратору.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	u, err := h.service.GetUserProfile(r.Context(), id, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch user")
		return
	}
	h.writeData(w, http.StatusOK, newUserResponse(u), "")
}

// UpdateUser изменяет профиль пользователя.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.trim()
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	upd := service.UserUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		upd.Role = &role
	}
	if req.Status != nil {
		status := model.UserStatus(*req.Status)
		upd.Status = &status
	}
	if a := req.Address; a != nil {
		upd.Address = &service.AddressUpdate{
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			ZipCode: a.ZipCode,
			Country: a.Country,
		}
	}

	u, err := h.service.UpdateUser(r.Context(), id, upd, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update user")
		return
	}
	h.writeData(w, http.StatusOK, newUserResponse(u), "User updated successfully")
}

// UserOrders возвращает заказы пользователя.
func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		h.writeValidation(w, err)
		return
	}

	orders, total, err := h.service.ListUserOrders(r.Context(), id, page, actor)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch user orders")
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

// SetUserStatus меняет статус учётной записи.
func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	var req userStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	u, err := h.service.SetUserStatus(r.Context(), id, model.UserStatus(req.Status))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update user status")
		return
	}
	h.writeData(w, http.StatusOK, newUserResponse(u), "User status updated successfully")
}
