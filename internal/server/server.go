// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, services,
// handlers and middleware, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → Server.New() creates:
//	  sqlstore.Store → Auth/Book/Review/Recommendation services → handlers
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/bookshelf/internal/auth"
	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/handler"
	"github.com/sakif/bookshelf/internal/metrics"
	"github.com/sakif/bookshelf/internal/middleware"
	"github.com/sakif/bookshelf/internal/repository/sqlstore"
	"github.com/sakif/bookshelf/internal/service"
	"github.com/sakif/bookshelf/internal/validation"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database pool. Run closes it after the HTTP server
// has drained; callers that never call Run must call Close.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	store   *sqlstore.Store
	metrics *metrics.Metrics
}

// New opens the store named by cfg.Database.URL, builds every service and
// handler, and mounts the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := sqlstore.Open(ctx, cfg.Database.URL, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the fully wired router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database pool.
func (s *Server) Close() error {
	return s.store.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                   → database ping
// GET    /metrics                   → Prometheus exposition
// POST   /auth/register             → create account
// POST   /auth/login                → sign in
// GET    /auth/me                   → current user            [auth]
// GET    /books                     → paged, filtered catalogue
// POST   /books                     → add a book              [auth]
// GET    /books/{id}                → book with reviews
// PUT    /books/{id}                → partial update          [auth]
// DELETE /books/{id}                → delete with reviews     [auth]
// GET    /books/{id}/reviews        → a book's reviews
// POST   /books/{id}/reviews        → review a book           [auth]
// POST   /reviews                   → review, bookId in body  [auth]
// PUT    /reviews/{id}              → partial update          [auth]
// DELETE /reviews/{id}              → delete                  [auth]
// GET    /recommendations/{bookId}  → related books
// GET    /users/me/books            → caller's books          [auth]
// GET    /users/me/reviews          → caller's reviews        [auth]
//
// Every API route is also served under /api.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers
//  3. Recoverer: turns panics into JSON 500s
//  4. Logger: logs each request with timing info
//  5. Metrics: counts and times each request by route pattern
//  6. SecurityHeaders: nosniff, frame denial, no referrer
//  7. CORS: answers preflights for the browser origin(s)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Recoverer(s.logger))
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(middleware.SecurityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	s.router.NotFound(handler.NotFound)
	s.router.MethodNotAllowed(handler.MethodNotAllowed)

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.JWTExpiry)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords, err := auth.NewPasswordService(s.config.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	// DEPENDENCY CHAIN:
	//   s.store implements all three repository interfaces
	//   services receive the interfaces, handlers receive the services
	v := validation.New()
	authService := service.NewAuthService(s.store, tokens, passwords, v, s.config.Auth.AdminEmails, s.logger)
	bookService := service.NewBookService(s.store, s.store, v, s.logger)
	reviewService := service.NewReviewService(s.store, s.store, v, s.logger)
	recService := service.NewRecommendationService(s.store)

	api := apiHandlers{
		auth:        handler.NewAuthHandler(authService, s.metrics, s.logger),
		books:       handler.NewBookHandler(bookService, reviewService, s.logger),
		reviews:     handler.NewReviewHandler(reviewService, s.logger),
		recs:        handler.NewRecommendationHandler(recService, s.logger),
		requireAuth: auth.RequireAuth(tokens, handler.ErrorWriter(s.logger)),
	}

	s.router.Get("/healthz", handler.NewHealthHandler(s.store, s.logger).HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	api.mount(s.router)
	s.router.Route("/api", api.mount)

	return nil
}

type apiHandlers struct {
	auth        *handler.AuthHandler
	books       *handler.BookHandler
	reviews     *handler.ReviewHandler
	recs        *handler.RecommendationHandler
	requireAuth func(http.Handler) http.Handler
}

func (h apiHandlers) mount(r chi.Router) {
	// Public
	r.Post("/auth/register", h.auth.HandleRegister)
	r.Post("/auth/login", h.auth.HandleLogin)
	r.Get("/books", h.books.HandleList)
	r.Get("/books/{id}", h.books.HandleGet)
	r.Get("/books/{id}/reviews", h.books.HandleListReviews)
	r.Get("/recommendations/{bookId}", h.recs.HandleRecommend)

	// Bearer token required
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/auth/me", h.auth.HandleMe)
		r.Post("/books", h.books.HandleCreate)
		r.Put("/books/{id}", h.books.HandleUpdate)
		r.Delete("/books/{id}", h.books.HandleDelete)
		r.Post("/books/{id}/reviews", h.reviews.HandleCreateForBook)
		r.Post("/reviews", h.reviews.HandleCreate)
		r.Put("/reviews/{id}", h.reviews.HandleUpdate)
		r.Delete("/reviews/{id}", h.reviews.HandleDelete)
		r.Get("/users/me/books", h.books.HandleListMine)
		r.Get("/users/me/reviews", h.reviews.HandleListMine)
	})
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (ShutdownTimeout)
//  3. Close the database pool
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		s.store.Close()
		return fmt.Errorf("listening on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. Tests pass a listener on port 0.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Ensure the database is closed when the server stops.
	defer s.store.Close()

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("database", string(s.store.Dialect())),
		)
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
