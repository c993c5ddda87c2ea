package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruriclub/supportdesk/internal/middleware"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// RouterConfig carries the handlers and HTTP policy of the API server.
type RouterConfig struct {
	Health *HealthHandler
	Auth   *AuthHandler
	Chat   *ChatHandler

	JWTSecret          string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	Logger             *logger.Logger
}

// NewRouter builds the API route table.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).Post("/login", cfg.Auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.TrackUser)
		r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Client
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleClient))
			r.Post("/chat", cfg.Chat.Chat)
			r.Post("/chat/request-human", cfg.Chat.RequestHuman)
			r.Post("/chat/client/send", cfg.Chat.ClientSend)
		})

		// Shared lookups; handlers narrow access per caller
		r.Get("/assignment/{client_id}", cfg.Chat.Assignment)
		r.Get("/chat/employee/{employee_id}/client/{client_id}", cfg.Chat.EmployeeClientHistory)

		// Employee
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleEmployee, model.RoleAdmin))
			r.Get("/employee/{employee_id}/assignments", cfg.Chat.EmployeeAssignments)
			r.Get("/admin/contact", cfg.Chat.AdminContact)
			r.Get("/chat/admin/{employee_id}", cfg.Chat.AdminChatHistory)
		})
		r.With(middleware.RequireRole(model.RoleEmployee)).Post("/chat/employee/reply", cfg.Chat.EmployeeReply)
		r.With(middleware.RequireRole(model.RoleEmployee)).Post("/chat/admin/employee-to-admin", cfg.Chat.EmployeeToAdmin)

		// Admin
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/admin/employees", cfg.Chat.AdminEmployees)
			r.Get("/admin/chat/{employee_id}", cfg.Chat.AdminChatHistory)
			r.Post("/admin/chat/send", cfg.Chat.AdminSend)
			r.Get("/admin/employee_ratings", cfg.Chat.EmployeeRatings)
			r.Get("/admin/events/{client_id}", cfg.Chat.ClientEvents)
		})
	})

	return r
}
