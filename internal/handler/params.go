package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

const (
	defaultPageLimit = 10
	userPageLimit    = 20
	maxPageLimit     = 100
)

// parsePage разбирает page и limit из строки запроса.
func parsePage(r *http.Request) (model.Page, error) {
	return parsePageWithLimit(r, defaultPageLimit)
}

// parsePageWithLimit разбирает page и limit, подставляя limit по умолчанию.
func parsePageWithLimit(r *http.Request, limit int) (model.Page, error) {
	p := model.Page{Number: 1, Limit: limit}
	var errs validation.Errors

	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs = append(errs, validation.FieldError{Field: "page", Message: "must be a positive integer"})
		} else {
			p.Number = n
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageLimit {
			errs = append(errs, validation.FieldError{Field: "limit", Message: "must be between 1 and 100"})
		} else {
			p.Limit = n
		}
	}

	if len(errs) > 0 {
		return p, errs
	}
	return p, nil
}

// parsePrice разбирает необязательную цену из строки запроса.
func parsePrice(r *http.Request, name string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, validation.Errors{{Field: name, Message: "must be a non-negative number"}}
	}
	return &d, nil
}

// pathID разбирает идентификатор из параметра маршрута.
func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}
