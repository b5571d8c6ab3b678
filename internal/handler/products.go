package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hamzabour2019/project-faith/internal/middleware"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/service"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

// ListProducts возвращает страницу активных товаров по фильтру.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	minPrice, err := parsePrice(r, "minPrice")
	if err != nil {
		h.writeValidation(w, err)
		return
	}
	maxPrice, err := parsePrice(r, "maxPrice")
	if err != nil {
		h.writeValidation(w, err)
		return
	}

	q := r.URL.Query()
	f := model.ProductFilter{
		Category: q.Get("category"),
		Featured: q.Get("featured") == "true",
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Page:     page,
	}

	products, total, err := h.service.ListProducts(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch products")
		return
	}

	h.writeData(w, http.StatusOK, map[string]any{
		"products":   newProductList(products),
		"pagination": newPagination(page, total),
	}, "")
}

// FeaturedProducts возвращает рекомендуемые товары.
func (h *Handler) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.FeaturedProducts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch featured products")
		return
	}
	h.writeData(w, http.StatusOK, newProductList(products), "")
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	p, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch product")
		return
	}
	h.writeData(w, http.StatusOK, newProductResponse(p), "")
}

// RelatedProducts возвращает товары той же категории.
func (h *Handler) RelatedProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	products, err := h.service.RelatedProducts(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch related products")
		return
	}
	h.writeData(w, http.StatusOK, newProductList(products), "")
}

// CreateProduct добавляет товар в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}
	errs := priceErrors("price", &req.Price)
	errs = append(errs, priceErrors("originalPrice", req.OriginalPrice)...)
	for i, v := range req.Variants {
		errs = append(errs, priceErrors(fmt.Sprintf("variants[%d].price", i), v.Price)...)
	}
	if len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	in := service.CreateProductInput{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Category:      req.Category,
		Brand:         req.Brand,
		SKU:           req.SKU,
		Featured:      req.Featured,
	}
	for _, img := range req.Images {
		in.Images = append(in.Images, model.Image{URL: img.URL, Alt: img.Alt, IsPrimary: img.IsPrimary})
	}
	for _, v := range req.Variants {
		in.Variants = append(in.Variants, service.VariantInput{Size: v.Size, Color: v.Color, Stock: v.Stock, Price: v.Price})
	}

	p, err := h.service.CreateProduct(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create product")
		return
	}
	h.writeData(w, http.StatusCreated, newProductResponse(p), "Product created successfully")
}

// priceErrors проверяет, что цена неотрицательна и содержит не больше двух знаков после запятой.
func priceErrors(field string, d *decimal.Decimal) validation.Errors {
	switch {
	case d == nil:
		return nil
	case d.IsNegative():
		return validation.Errors{{Field: field, Message: "must be a positive number"}}
	case !d.Equal(d.Round(2)):
		return validation.Errors{{Field: field, Message: "must have at most 2 decimal places"}}
	}
	return nil
}

// UpdateProduct изменяет описание, цену, категорию и статус товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.trim()
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}
	errs := priceErrors("price", req.Price)
	errs = append(errs, priceErrors("originalPrice", req.OriginalPrice)...)
	if len(errs) > 0 {
		h.writeValidation(w, errs)
		return
	}

	upd := service.ProductUpdate{
		Name:          req.Name,
		Description:   req.Description,
		Price:         req.Price,
		OriginalPrice: req.OriginalPrice,
		Category:      req.Category,
		Brand:         req.Brand,
		Featured:      req.Featured,
	}
	if req.Status != nil {
		status := model.ProductStatus(*req.Status)
		upd.Status = &status
	}

	p, err := h.service.UpdateProduct(r.Context(), id, upd)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update product")
		return
	}
	h.writeData(w, http.StatusOK, newProductResponse(p), "Product updated successfully")
}

// Categories возвращает категории с количеством активных товаров.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch categories")
		return
	}
	h.writeData(w, http.StatusOK, newCategoryList(categories), "")
}

// UpdateStock выставляет остатки вариантов товара.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	var req updateStockRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	updates := make([]service.StockUpdate, 0, len(req.Variants))
	for _, v := range req.Variants {
		updates = append(updates, service.StockUpdate{Size: v.Size, Color: strings.TrimSpace(v.Color), Stock: v.Stock})
	}

	p, err := h.service.UpdateStock(r.Context(), id, updates)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update stock")
		return
	}
	h.writeData(w, http.StatusOK, newProductResponse(p), "Stock updated successfully")
}

// AddReview добавляет отзыв текущего пользователя.
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		h.writeFail(w, http.StatusBadRequest, "Invalid id", nil)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	review, err := h.service.AddReview(r.Context(), id, u.ID, req.Rating, req.Comment)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to add review")
		return
	}
	h.writeData(w, http.StatusCreated, newReviewResponse(*review), "Review added successfully")
}
