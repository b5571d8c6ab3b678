// Package model содержит доменные сущности магазина: пользователей, товары и заказы.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// UserStatus описывает состояние учётной записи.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// UserStats содержит накопительную статистику покупок пользователя.
type UserStats struct {
	TotalOrders int
	TotalSpent  decimal.Decimal
}

// User представляет зарегистрированного покупателя или администратора.
type User struct {
	ID           uuid.UUID
	FirstName    string
	LastName     string
	Email        string
	PasswordHash []byte
	Phone        string
	Address      Address
	Role         Role
	Status       UserStatus
	Stats        UserStats
	LastLogin    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Valid сообщает, является ли статус одним из известных.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// IsAdmin сообщает, является ли пользователь администратором.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// IsActive сообщает, может ли пользователь работать с системой.
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// FullName возвращает имя и фамилию через пробел.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Page задаёт параметры постраничной выборки.
type Page struct {
	Number int
	Limit  int
}

// Offset возвращает количество пропускаемых записей.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// TotalPages возвращает количество страниц для total записей.
func (p Page) TotalPages(total int) int {
	if p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// UserFilter задаёт условия выборки пользователей.
type UserFilter struct {
	Role   Role
	Status UserStatus
	// Search ищет подстроку в имени, фамилии или email без учёта регистра.
	Search  string
	SortAsc bool
	Page    Page
}

// CountStat содержит количество записей с одним значением поля.
type CountStat struct {
	Value string
	Count int
}

// UserStatistics содержит сводку по учётным записям.
type UserStatistics struct {
	TotalUsers      int
	ActiveUsers     int
	AdminUsers      int
	CustomerUsers   int
	RoleBreakdown   []CountStat
	StatusBreakdown []CountStat
}
