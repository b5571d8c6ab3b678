// Package repository содержит реализации хранилища: PostgreSQL и in-memory.
package repository

import "errors"

// ErrUserExists возвращается при попытке создать пользователя с уже занятым email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrSKUExists возвращается при создании товара с уже существующим артикулом.
	ErrSKUExists = errors.New("product sku already exists")
	// ErrVariantNotFound возвращается, если у товара нет указанного варианта.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrInsufficientStock возвращается, если условное списание остатка увело бы его в минус.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateReview возвращается при повторном отзыве пользователя о товаре.
	ErrDuplicateReview = errors.New("review already exists")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusChanged возвращается, если статус заказа изменился с момента чтения.
	ErrStatusChanged = errors.New("order status changed concurrently")
	// ErrOrderNumberExists возвращается при конфликте номера заказа.
	ErrOrderNumberExists = errors.New("order number already exists")
)
