package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/handler"
	"github.com/vitrinehq/vitrine/internal/server/middleware"
	"github.com/vitrinehq/vitrine/internal/service"
)

// Server is the top-level HTTP server for the back office. It owns the Chi
// router and the handlers wired to the account service.
type Server struct {
	cfg        config.Settings
	router     chi.Router
	store      *config.Store
	accounts   *service.AccountService
	catalog    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithCatalog mounts h under /api/v1/catalog behind the ADMIN or SUPERADMIN
// requirement.
func WithCatalog(h http.Handler) Option {
	return func(s *Server) { s.catalog = h }
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg config.Settings, store *config.Store, accounts *service.AccountService, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		accounts: accounts,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	// Cookies travel cross-origin only to explicitly listed origins.
	if len(s.cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(chimw.Compress(5))

	guard := service.NewGuard(s.accounts.Tokens())
	cookies := handler.CookieConfig{
		Secure:     s.cfg.Server.SecureCookies,
		AccessTTL:  s.cfg.Auth.AccessTTL,
		RefreshTTL: s.cfg.Auth.RefreshTTL,
	}
	sessions := handler.NewSessionHandler(s.accounts, cookies, s.logger)
	admins := handler.NewAdminHandler(s.accounts, s.logger)
	health := handler.NewHealthHandler(s.store, s.logger)

	// --- Health checks (no auth required) ---
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)

	// --- API description (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.baseURL()).ServeSpec)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {

		// Sessions: register and login are public but rate limited per IP;
		// refresh authenticates with the refresh credential itself. Logout
		// needs no credential so an expired session can still clear both
		// cookies.
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if n := s.cfg.Server.LoginRateLimit; n > 0 {
					r.Use(middleware.RateLimit(n))
				}
				r.Post("/register", sessions.Register)
				r.Post("/login", sessions.Login)
			})
			r.Post("/refresh", sessions.Refresh)
			r.Post("/logout", sessions.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(guard))
				r.Use(middleware.RequireRole(service.RoleSetAdmins))
				r.Get("/me", sessions.Me)
				r.Put("/password", sessions.ChangePassword)
			})
		})

		// Admin management is SUPERADMIN only.
		r.Route("/admins", func(r chi.Router) {
			r.Use(middleware.Authenticate(guard))
			r.Use(middleware.RequireRole(service.RoleSetSuper))

			r.Get("/", admins.List)
			r.Post("/", admins.Create)
			r.Get("/{adminId}", admins.Get)
			r.Patch("/{adminId}", admins.Update)
			r.Delete("/{adminId}", admins.Delete)
			r.Put("/{adminId}/password", admins.ResetPassword)
		})

		// Catalog collaborators see any authenticated back office principal.
		if s.catalog != nil {
			r.Route("/catalog", func(r chi.Router) {
				r.Use(middleware.Authenticate(guard))
				r.Use(middleware.RequireRole(service.RoleSetAdmins))
				r.Mount("/", s.catalog)
			})
		}
	})

	s.router = r
}

func (s *Server) baseURL() string {
	host := s.cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, s.cfg.Server.Port)
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received or ctx is cancelled. It then performs a graceful shutdown,
// draining in-flight requests. The caller owns the store and audit emitter and
// closes them afterwards.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
