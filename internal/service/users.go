package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hamzabour2019/project-faith/internal/model"
)

// RegisterInput содержит данные для регистрации покупателя.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
}

// RegisterUser создаёт учётную запись покупателя.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := &model.User{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         model.RoleCustomer,
		Status:       model.UserStatusActive,
		Stats:        model.UserStats{TotalSpent: decimal.Zero},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, mapRepoError(err)
	}
	return u, nil
}

// AuthenticateUser проверяет email и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(mapRepoError(err), ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !u.IsActive() {
		return nil, ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	u.LastLogin = s.now()
	if err := s.repo.UpdateLastLogin(ctx, u.ID, u.LastLogin); err != nil {
		s.logger.Warn("update last login", zap.String("user_id", u.ID.String()), zap.Error(err))
	}

	return u, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return u, nil
}

// ListUsers возвращает страницу пользователей по фильтру.
func (s *Service) ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidUserStatus
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, ErrInvalidRole
	}
	users, total, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// UserStats возвращает сводку по учётным записям.
func (s *Service) UserStats(ctx context.Context) (*model.UserStatistics, error) {
	stats, err := s.repo.GetUserStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

// authorizeUser разрешает доступ к учётной записи id её владельцу и администратору.
func authorizeUser(actor *model.User, id uuid.UUID) error {
	if actor == nil {
		return ErrAccessDenied
	}
	if actor.IsAdmin() || actor.ID == id {
		return nil
	}
	return ErrAccessDenied
}

// GetUserProfile возвращает пользователя владельцу учётной записи или администратору.
func (s *Service) GetUserProfile(ctx context.Context, id uuid.UUID, actor *model.User) (*model.User, error) {
	if err := authorizeUser(actor, id); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// AddressUpdate содержит изменяемые поля адреса. Nil-поля не меняются.
type AddressUpdate struct {
	Street  *string
	City    *string
	State   *string
	ZipCode *string
	Country *string
}

func (a *AddressUpdate) apply(cur model.Address) model.Address {
	set := func(dst, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&cur.Street, a.Street)
	set(&cur.City, a.City)
	set(&cur.State, a.State)
	set(&cur.ZipCode, a.ZipCode)
	set(&cur.Country, a.Country)
	return cur
}

// UserUpdate содержит изменяемые поля профиля. Nil-поля не меняются.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *AddressUpdate
	// Role и Status применяются только по запросу администратора.
	Role   *model.Role
	Status *model.UserStatus
}

// UpdateUser изменяет профиль. Покупатель может менять только собственный профиль,
// роль и статус при этом игнорируются.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate, actor *model.User) (*model.User, error) {
	if err := authorizeUser(actor, id); err != nil {
		return nil, err
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		u.Address = upd.Address.apply(u.Address)
	}
	if actor.IsAdmin() {
		if upd.Role != nil {
			if !upd.Role.Valid() {
				return nil, ErrInvalidRole
			}
			u.Role = *upd.Role
		}
		if upd.Status != nil {
			if !upd.Status.Valid() {
				return nil, ErrInvalidUserStatus
			}
			u.Status = *upd.Status
		}
	}
	u.UpdatedAt = s.now()

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("user updated",
		zap.String("user_id", u.ID.String()),
		zap.String("by", actor.ID.String()))
	return u, nil
}

// SetUserStatus меняет статус учётной записи.
func (s *Service) SetUserStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (*model.User, error) {
	if !status.Valid() {
		return nil, ErrInvalidUserStatus
	}

	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	u.Status = status
	u.UpdatedAt = s.now()

	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info("user status changed",
		zap.String("user_id", u.ID.String()),
		zap.String("status", string(status)))
	return u, nil
}

// ListUserOrders возвращает заказы пользователя, новые первыми.
func (s *Service) ListUserOrders(ctx context.Context, id uuid.UUID, page model.Page, actor *model.User) ([]model.Order, int, error) {
	if err := authorizeUser(actor, id); err != nil {
		return nil, 0, err
	}
	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		return nil, 0, mapRepoError(err)
	}

	orders, total, err := s.repo.ListOrders(ctx, model.OrderFilter{UserID: &id, Page: page})
	if err != nil {
		return nil, 0, fmt.Errorf("list user orders: %w", err)
	}
	return orders, total, nil
}

// minPasswordLength минимальная длина нового пароля при смене.
const minPasswordLength = 6

// ChangePassword заменяет пароль после проверки текущего.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return ErrPasswordRequired
	}
	if len(next) < minPasswordLength {
		return ErrPasswordTooShort
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return mapRepoError(err)
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(current)); err != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return mapRepoError(err)
	}

	s.logger.Info("password changed", zap.String("user_id", userID.String()))
	return nil
}
