package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/cmlabs-hris/geo-attendance/internal/config"
	"github.com/cmlabs-hris/geo-attendance/internal/handler/http/middleware"
	"github.com/cmlabs-hris/geo-attendance/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type Handlers struct {
	Attendance AttendanceHandler
	Approval   ApprovalHandler
	Event      EventHandler
}

func NewRouter(cfg *config.Config, JWTService jwt.Service, handlers Handlers) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(cfg.App.Env != "development")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("env", cfg.App.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.App.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
		// SSE connections stay open for hours
		Skip: func(req *http.Request, respStatus int) bool {
			return req.URL.Path == "/api/v1/events"
		},
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	if cfg.Storage.Type == "local" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Storage.BasePath)))
		r.Handle("/uploads/*", fs)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// EventSource cannot send headers, the stream authenticates with a query token
		r.Get("/events", handlers.Event.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired(JWTService.JWTAuth()))

			r.Get("/events/token", handlers.Event.GetSSEToken)

			r.Route("/attendance", func(r chi.Router) {
				r.Post("/in", handlers.Attendance.ClockIn)
				r.Post("/out", handlers.Attendance.ClockOut)
				r.Get("/my", handlers.Attendance.GetMyRecord)

				// Admin only
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Get("/", handlers.Attendance.List)
					r.Get("/{id}", handlers.Attendance.Get)
				})
			})

			r.Route("/approvals", func(r chi.Router) {
				r.Use(middleware.RequireAdmin)
				r.Get("/", handlers.Approval.List)
				r.Get("/{id}", handlers.Approval.Get)
				r.Post("/{id}/approve", handlers.Approval.Approve)
				r.Post("/{id}/reject", handlers.Approval.Reject)
			})
		})
	})
	return r
}
