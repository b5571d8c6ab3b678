package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/service"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any, message string) {
	h.writeJSON(w, status, successResponse{Success: true, Message: message, Data: data})
}

func (h *Handler) writeFail(w http.ResponseWriter, status int, msg string, details any) {
	h.writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

// writeValidation отвечает 400 со списком нарушений.
func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		h.writeFail(w, http.StatusBadRequest, "Validation failed", verrs)
		return
	}
	h.writeFail(w, http.StatusBadRequest, "Validation failed", nil)
}

// statusFor сопоставляет вид ошибки бизнес-логики с HTTP-статусом.
// Ноль означает сбой хранилища.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrUnavailable),
		errors.Is(err, service.ErrStockConflict),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrDuplicate):
		return http.StatusBadRequest
	}
	return 0
}

// writeServiceError отвечает по ошибке сервиса. Сбои хранилища логируются,
// а в боевом окружении клиент получает только fallback.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if status := statusFor(err); status != 0 {
		h.writeFail(w, status, err.Error(), nil)
		return
	}

	h.logger.Error(fallback,
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	if h.production {
		h.writeFail(w, http.StatusInternalServerError, fallback, nil)
		return
	}
	h.writeFail(w, http.StatusInternalServerError, fallback, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
