package api

import (
	"log/slog"
	"time"

	"github.com/gearguard/gearguard/internal/api/handlers"
	"github.com/gearguard/gearguard/internal/api/middleware"
	"github.com/gearguard/gearguard/internal/auth"
	"github.com/gearguard/gearguard/internal/database/models"
	"github.com/gearguard/gearguard/internal/feed"
	"github.com/gearguard/gearguard/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB           *gorm.DB
	Redis        *redis.Client
	Logger       *slog.Logger
	JWTService   *auth.JWTService
	AuthService  *auth.Service
	Hub          *feed.Hub
	Resolver     *workflow.Resolver
	Executor     *workflow.Executor
	InviteExpiry time.Duration

	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	userHandler := handlers.NewUserHandler(cfg.DB)
	orgHandler := handlers.NewOrganizationHandler(cfg.DB, cfg.JWTService)
	teamHandler := handlers.NewTeamHandler(cfg.DB, cfg.InviteExpiry)
	categoryHandler := handlers.NewCategoryHandler(cfg.DB)
	equipmentHandler := handlers.NewEquipmentHandler(cfg.DB, cfg.Hub)
	requestHandler := handlers.NewRequestHandler(cfg.DB, cfg.Hub, cfg.Resolver, cfg.Executor)
	boardHandler := handlers.NewBoardHandler(cfg.DB, cfg.Hub, cfg.Resolver)
	scheduleHandler := handlers.NewScheduleHandler(cfg.DB)
	dashboardHandler := handlers.NewDashboardHandler(cfg.DB)

	manage := middleware.RequireRole(models.RoleAdmin, models.RoleManager)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			r.Get("/me", userHandler.Me)

			// Onboarding: reachable before any organization membership.
			r.Post("/organizations", orgHandler.Create)
			r.Post("/join-requests", orgHandler.CreateJoinRequest)
			r.Post("/invites/accept", teamHandler.AcceptInvite)

			// Tenant-scoped routes
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireOrganization)

				r.Get("/users", userHandler.List)
				r.With(adminOnly).Put("/users/{id}/role", userHandler.UpdateRole)

				r.With(adminOnly).Get("/join-requests", orgHandler.ListJoinRequests)
				r.With(adminOnly).Post("/join-requests/{id}/approve", orgHandler.ApproveJoinRequest)
				r.With(adminOnly).Post("/join-requests/{id}/reject", orgHandler.RejectJoinRequest)

				r.Route("/teams", func(r chi.Router) {
					r.Get("/", teamHandler.List)
					r.Get("/{id}", teamHandler.Get)
					r.With(manage).Post("/", teamHandler.Create)
					r.With(manage).Put("/{id}", teamHandler.Update)
					r.With(manage).Delete("/{id}", teamHandler.Delete)
					r.With(manage).Post("/{id}/members", teamHandler.AddMember)
					r.With(manage).Delete("/{id}/members/{userID}", teamHandler.RemoveMember)
					r.With(manage).Post("/{id}/invites", teamHandler.CreateInvite)
				})

				r.Route("/categories", func(r chi.Router) {
					r.Get("/", categoryHandler.List)
					r.With(manage).Post("/", categoryHandler.Create)
					r.With(manage).Put("/{id}", categoryHandler.Update)
					r.With(manage).Delete("/{id}", categoryHandler.Delete)
				})

				r.Route("/equipment", func(r chi.Router) {
					r.Get("/", equipmentHandler.List)
					r.Get("/{id}", equipmentHandler.Get)
					r.With(manage).Post("/", equipmentHandler.Create)
					r.With(manage).Put("/{id}", equipmentHandler.Update)
					r.With(adminOnly).Delete("/{id}", equipmentHandler.Delete)
				})

				r.Route("/requests", func(r chi.Router) {
					r.Get("/", requestHandler.List)
					r.Post("/", requestHandler.Create)
					r.Get("/{id}", requestHandler.Get)
					r.Put("/{id}", requestHandler.Update)
					// Role checks for transitions live in the workflow
					// package; any member may attempt one.
					r.Post("/{id}/transition", requestHandler.Transition)
					r.Get("/{id}/logs", requestHandler.Logs)
				})

				r.Get("/board", boardHandler.Board)
				r.Get("/feed", boardHandler.Feed)

				r.Route("/schedules", func(r chi.Router) {
					r.Get("/", scheduleHandler.List)
					r.With(manage).Post("/", scheduleHandler.Create)
					r.With(manage).Put("/{id}", scheduleHandler.Update)
					r.With(manage).Delete("/{id}", scheduleHandler.Delete)
					r.With(manage).Post("/{id}/trigger", scheduleHandler.Trigger)
				})

				r.Get("/dashboard/stats", dashboardHandler.Stats)
			})
		})
	})

	return &Router{r}
}
