package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	custommiddleware "github.com/hamzabour2019/project-faith/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware магазина.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.CORS(h.corsOrigins))
	r.Use(custommiddleware.GzipMiddleware)

	auth := h.authMiddleware

	r.Route("/api", func(r chi.Router) {
		if h.rateLimit > 0 {
			r.Use(httprate.Limit(h.rateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					h.writeFail(w, http.StatusTooManyRequests, "Too many requests, please try again later.", nil)
				}),
			))
		}

		r.Get("/health", h.Health)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)

				r.Get("/me", h.Me)
				r.Post("/logout", h.Logout)
				r.Post("/change-password", h.ChangePassword)
				r.Post("/verify-token", h.VerifyToken)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Get("/{id}/orders", h.UserOrders)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireAdmin)

				r.Get("/", h.ListUsers)
				r.Get("/stats", h.UserStats)
				r.Patch("/{id}/status", h.SetUserStatus)
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.With(auth.Optional).Get("/", h.ListProducts)
			r.Get("/featured", h.FeaturedProducts)
			r.Get("/categories", h.Categories)
			r.With(auth.Optional).Get("/{id}", h.GetProduct)
			r.Get("/{id}/related", h.RelatedProducts)

			r.With(auth.Middleware).Post("/{id}/reviews", h.AddReview)

			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware, custommiddleware.RequireAdmin)

				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Patch("/{id}/stock", h.UpdateStock)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(auth.Optional).Post("/", h.CreateOrder)
			r.Get("/track/{orderNumber}", h.TrackOrder)

			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)

				r.Get("/", h.ListOrders)
				r.Get("/{id}", h.GetOrder)
				r.Post("/{id}/cancel", h.CancelOrder)

				r.Group(func(r chi.Router) {
					r.Use(custommiddleware.RequireAdmin)

					r.Get("/stats", h.OrderStats)
					r.Patch("/{id}/status", h.UpdateStatus)
					r.Patch("/{id}/shipping", h.UpdateShipping)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeFail(w, http.StatusNotFound, "Route not found", nil)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeFail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), nil)
	})

	return r
}
