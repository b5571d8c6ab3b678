// Package handler содержит HTTP-обработчики API магазина.
package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamzabour2019/project-faith/internal/middleware"
	"github.com/hamzabour2019/project-faith/internal/model"
	"github.com/hamzabour2019/project-faith/internal/service"
	"github.com/hamzabour2019/project-faith/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	ListUsers(ctx context.Context, f model.UserFilter) ([]model.User, int, error)
	UserStats(ctx context.Context) (*model.UserStatistics, error)
	GetUserProfile(ctx context.Context, id uuid.UUID, actor *model.User) (*model.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, upd service.UserUpdate, actor *model.User) (*model.User, error)
	SetUserStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (*model.User, error)
	ListUserOrders(ctx context.Context, id uuid.UUID, page model.Page, actor *model.User) ([]model.Order, int, error)

	ListProducts(ctx context.Context, f model.ProductFilter) ([]model.Product, int, error)
	FeaturedProducts(ctx context.Context) ([]model.Product, error)
	RelatedProducts(ctx context.Context, id uuid.UUID) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	CreateProduct(ctx context.Context, in service.CreateProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, upd service.ProductUpdate) (*model.Product, error)
	Categories(ctx context.Context) ([]model.CategoryCount, error)
	UpdateStock(ctx context.Context, productID uuid.UUID, updates []service.StockUpdate) (*model.Product, error)
	AddReview(ctx context.Context, productID, userID uuid.UUID, rating int, comment string) (*model.Review, error)

	CreateOrder(ctx context.Context, in service.CreateOrderInput, actor *model.User) (*model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID, actor *model.User) (*model.Order, error)
	TrackOrder(ctx context.Context, number string) (*model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter, actor *model.User) ([]model.Order, int, error)
	OrderStats(ctx context.Context) (*model.OrderStats, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OrderStatus, note string, actor *model.User) (*model.Order, error)
	UpdateShipping(ctx context.Context, id uuid.UUID, upd service.ShippingUpdate, actor *model.User) (*model.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID, actor *model.User, reason string) (*model.Order, error)
}

// Options задаёт параметры HTTP-слоя.
type Options struct {
	// Production скрывает подробности внутренних ошибок от клиента.
	Production bool
	// RateLimit число запросов в минуту с одного IP, ноль отключает ограничение.
	RateLimit   int
	CORSOrigins []string
}

// Handler реализует HTTP-обработчики API магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	production     bool
	rateLimit      int
	corsOrigins    []string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		production:     opts.Production,
		rateLimit:      opts.RateLimit,
		corsOrigins:    opts.CORSOrigins,
	}
}

// Register обрабатывает регистрацию нового покупателя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.trim()
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Phone:     req.Phone,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "Registration failed")
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, u, "User registered successfully")
}

// Login выполняет аутентификацию и выдаёт токен.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if err := validation.Struct(req); err != nil {
		h.writeValidation(w, err)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err, "Login failed")
		return
	}

	h.respondWithToken(w, r, http.StatusOK, u, "Login successful")
}

func (h *Handler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *model.User, message string) {
	token, err := h.authMiddleware.IssueToken(u.ID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to issue token")
		return
	}
	h.writeData(w, status, authResponse{User: newUserResponse(u), Token: token}, message)
}

// Me возвращает профиль текущего пользователя.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}
	h.writeData(w, http.StatusOK, map[string]any{"user": newUserResponse(u)}, "")
}

// Logout подтверждает выход. Токен без состояния удаляется на стороне клиента.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, nil, "Logout successful")
}

// VerifyToken подтверждает, что токен действителен, и возвращает его владельца.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}
	h.writeData(w, http.StatusOK, map[string]any{"user": newUserResponse(u)}, "Token is valid")
}

// ChangePassword меняет пароль текущего пользователя.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}

	if err := h.service.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err, "Failed to change password")
		return
	}
	h.writeData(w, http.StatusOK, nil, "Password changed successfully")
}

// Health сообщает, что сервис отвечает.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}
