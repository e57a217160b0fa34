package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/userauth/apiserver/config"
	"github.com/userauth/apiserver/internal/auth"
	"github.com/userauth/apiserver/internal/db"
	"github.com/userauth/apiserver/internal/events"
	"github.com/userauth/apiserver/internal/handlers"
	"github.com/userauth/apiserver/internal/mq"
	"github.com/userauth/apiserver/internal/ratelimit"
	"github.com/userauth/apiserver/internal/services"
	"github.com/userauth/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	closers    []func() error
}

// Deps are the collaborators a Server is built from. New fills them from
// config; tests supply their own.
type Deps struct {
	Users   services.UserRepository
	Hasher  services.PasswordHasher
	Limiter ratelimit.Limiter
	Events  services.EventPublisher
	Logger  *slog.Logger
}

// New opens the configured store, limiter and event backend and constructs a
// Server around them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	deps := Deps{Logger: logger}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory user store; accounts are lost on restart")
		deps.Users = store.NewMemoryUserRepository()
	default:
		dbConn, err := db.Open(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		closers = append(closers, dbConn.Close)
		deps.Users = store.NewUserRepository(dbConn)
	}

	if cfg.RateLimit.RedisAddr != "" {
		limiter, err := ratelimit.NewRedis(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB, logger)
		if err != nil {
			logger.Warn("redis rate limiter unavailable, falling back to memory", "addr", cfg.RateLimit.RedisAddr, "error", err)
			limiter = ratelimit.NewMemory()
		}
		deps.Limiter = limiter
	} else {
		deps.Limiter = ratelimit.NewMemory()
	}
	closers = append(closers, func() error { deps.Limiter.Close(); return nil })

	queue, err := mq.Open(ctx, cfg.Events)
	if err != nil {
		cleanup()
		return nil, err
	}
	if queue != nil {
		closers = append(closers, queue.Close)
		deps.Events = events.NewUserEvents(queue, cfg.Events.Topic)
	}

	srv := NewWithDeps(cfg, deps)
	srv.closers = closers
	return srv, nil
}

// NewWithDeps constructs a Server from explicit collaborators.
func NewWithDeps(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hasher := deps.Hasher
	if hasher == nil {
		hasher = auth.NewPasswordHasher(auth.DefaultPasswordCost)
	}
	ttl := cfg.JWT.TTL
	if ttl <= 0 {
		ttl = config.DefaultTokenTTL
	}
	tokens := auth.NewTokenManager(cfg.JWT.Secret, ttl)

	opts := []services.Option{services.WithLogger(logger)}
	if deps.Events != nil {
		opts = append(opts, services.WithEvents(deps.Events))
	}
	userService := services.NewUserService(deps.Users, hasher, tokens, opts...)
	authHandler := handlers.NewAuthHandler(userService, logger)

	m := newMetrics()
	routes := handlers.AuthRoutes{
		RequireAuth: handlers.RequireAuth(tokens),
		RateLimit: func(scope string) func(http.Handler) http.Handler {
			return handlers.RateLimit(deps.Limiter, scope, cfg.RateLimit.Requests, cfg.RateLimit.Window, m.recordRateLimitHit)
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.RateLimit.TrustProxy {
		router.Use(middleware.RealIP)
	}
	router.Use(
		middleware.Recoverer,
		middleware.Logger,
		m.middleware,
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", handlers.TokenHeader},
			MaxAge:         300,
		}),
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/", handlers.Home)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.handler())
	router.Group(func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, routes)
	})
	router.Route("/api/users", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, routes)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("app listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the store, limiter and
// event backend.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
	s.closers = nil
	return err
}

var (
	_ services.UserRepository = (*store.UserRepository)(nil)
	_ services.UserRepository = (*store.MemoryUserRepository)(nil)
)
