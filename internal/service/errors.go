package service

import (
	"errors"
	"fmt"

	"github.com/hamzabour2019/project-faith/internal/repository"
)

// Виды ошибок бизнес-логики. Обработчики сопоставляют их с HTTP-статусами через errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrUnavailable       = errors.New("unavailable")
	ErrStockConflict     = errors.New("stock conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicate         = errors.New("duplicate")
	ErrUnauthorized      = errors.New("unauthorized")
)

// kindError связывает конкретную ошибку с её видом.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Конкретные ошибки. Текст каждой ошибки показывается клиенту.
var (
	ErrProductNotFound    error = &kindError{ErrNotFound, "Product not found"}
	ErrProductUnavailable error = &kindError{ErrUnavailable, "Product is not available"}
	ErrVariantNotFound    error = &kindError{ErrStockConflict, "Variant not found for product"}
	ErrInsufficientStock  error = &kindError{ErrStockConflict, "Insufficient stock for"}
	ErrOrderNotFound      error = &kindError{ErrNotFound, "Order not found"}
	ErrUserNotFound       error = &kindError{ErrNotFound, "User not found"}
	ErrDuplicateReview    error = &kindError{ErrDuplicate, "You have already reviewed this product"}
	ErrEmailTaken         error = &kindError{ErrDuplicate, "User already exists with this email"}
	ErrSKUTaken           error = &kindError{ErrDuplicate, "Product with this SKU already exists"}
	ErrInvalidCredentials error = &kindError{ErrUnauthorized, "Invalid email or password"}
	ErrAccountInactive    error = &kindError{ErrUnauthorized, "Account is not active"}
	ErrAccessDenied       error = &kindError{ErrForbidden, "Access denied"}
	ErrCannotCancel       error = &kindError{ErrInvalidTransition, "Order cannot be cancelled at this stage"}
	ErrStatusConflict     error = &kindError{ErrInvalidTransition, "Order status was changed by another request"}
	ErrInvalidStatus      error = &kindError{ErrValidation, "Invalid status"}
	ErrInvalidRating      error = &kindError{ErrValidation, "Rating must be between 1 and 5"}
	ErrInvalidQuantity    error = &kindError{ErrValidation, "Quantity must be at least 1"}
	ErrEmptyOrder         error = &kindError{ErrValidation, "At least one item is required"}
	ErrInvalidPrice       error = &kindError{ErrValidation, "Price must be a non-negative amount with at most 2 decimal places"}
	ErrInvalidCategory    error = &kindError{ErrValidation, "Invalid category"}
	ErrInvalidUserStatus  error = &kindError{ErrValidation, "Invalid status. Must be active, inactive, or suspended"}
	ErrInvalidRole        error = &kindError{ErrValidation, "Invalid role. Must be customer or admin"}
	ErrPasswordRequired   error = &kindError{ErrValidation, "Current password and new password are required"}
	ErrPasswordTooShort   error = &kindError{ErrValidation, "New password must be at least 6 characters long"}
	ErrWrongPassword      error = &kindError{ErrUnauthorized, "Current password is incorrect"}
)

// mapRepoError переводит ошибки хранилища в ошибки бизнес-логики.
// Неизвестные ошибки возвращаются как есть и считаются сбоем хранилища.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrProductNotFound):
		return ErrProductNotFound
	case errors.Is(err, repository.ErrOrderNotFound):
		return ErrOrderNotFound
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrDuplicateReview):
		return ErrDuplicateReview
	case errors.Is(err, repository.ErrUserExists):
		return ErrEmailTaken
	case errors.Is(err, repository.ErrSKUExists):
		return ErrSKUTaken
	case errors.Is(err, repository.ErrStatusChanged):
		return ErrStatusConflict
	}
	return err
}

func stockError(name string, size, color string) error {
	if size == "" && color == "" {
		return fmt.Errorf("%w %s", ErrInsufficientStock, name)
	}
	return fmt.Errorf("%w %s (%s %s)", ErrInsufficientStock, name, size, color)
}
