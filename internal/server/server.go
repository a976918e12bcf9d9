// Package server is the composition root: it turns a config.Config into
// opened stores, services, handlers and a chi router, and runs the HTTP
// server until a shutdown signal arrives.
//
// DEPENDENCY FLOW:
//
//	config.Config
//	  → OpenStores      (collection store + image store, metrics-instrumented)
//	  → NewServices     (auth, clubs, progress, catalog, images)
//	  → handlers        (one per resource)
//	  → routes          (public, optional-auth and required-auth groups)
//
// The admin CLI reuses OpenStores and NewServices so it applies the same
// rules as the API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/book-club/internal/auth"
	"github.com/sakif/book-club/internal/catalog"
	"github.com/sakif/book-club/internal/config"
	"github.com/sakif/book-club/internal/handler"
	"github.com/sakif/book-club/internal/imaging"
	"github.com/sakif/book-club/internal/metrics"
	"github.com/sakif/book-club/internal/middleware"
	"github.com/sakif/book-club/internal/openlibrary"
	"github.com/sakif/book-club/internal/service"
	"github.com/sakif/book-club/internal/textgen"
)

// Services is every service the API exposes, built over one set of stores.
type Services struct {
	Collections *service.Collections
	Tokens      *auth.TokenService
	Auth        *service.AuthService
	Clubs       *service.ClubService
	Progress    *service.ProgressService
	Catalog     *service.CatalogService
	Images      *service.ImageService
}

// NewServices wires the services. The Open Library client and the text
// generator are created here; the text generator stays disabled without an
// API key.
func NewServices(cfg *config.Config, stores *Stores, logger *slog.Logger) (*Services, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	books := openlibrary.New(openlibrary.Config{
		BaseURL:           cfg.OpenLibrary.BaseURL,
		Timeout:           cfg.OpenLibrary.Timeout,
		RequestsPerSecond: cfg.OpenLibrary.RequestsPerSecond,
		CacheTTL:          cfg.OpenLibrary.CacheTTL,
	}, logger.With(slog.String("component", "openlibrary")))

	describer := textgen.New(textgen.Config{
		BaseURL: cfg.TextGen.BaseURL,
		APIKey:  cfg.TextGen.APIKey,
		Model:   cfg.TextGen.Model,
		Timeout: cfg.TextGen.Timeout,
	})

	opts := imaging.DefaultOptions()
	if cfg.Images.MaxBytes > 0 {
		opts.MaxBytes = cfg.Images.MaxBytes
	}
	if cfg.Images.MaxDim > 0 {
		opts.MaxDim = cfg.Images.MaxDim
	}
	if cfg.Images.MaxPixels > 0 {
		opts.MaxPixels = cfg.Images.MaxPixels
	}
	if cfg.Images.JPEGQuality > 0 {
		opts.JPEGQuality = cfg.Images.JPEGQuality
	}

	cols := service.NewCollections(stores.Collections, logger)
	clubs := service.NewClubService(cols, logger)

	return &Services{
		Collections: cols,
		Tokens:      tokens,
		Auth:        service.NewAuthService(cols, tokens, auth.NewPasswordService(), logger),
		Clubs:       clubs,
		Progress:    service.NewProgressService(cols, logger),
		Catalog:     service.NewCatalogService(cols, books, describer, logger),
		Images:      service.NewImageService(stores.Images, cols, clubs, opts, logger),
	}, nil
}

// SeedCatalog merges the books in a YAML seed file into the catalog.
// Existing books with the same IDs are replaced.
func SeedCatalog(ctx context.Context, catalogSvc *service.CatalogService, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	books, err := catalog.ParseSeed(data)
	if err != nil {
		return 0, err
	}
	if err := catalogSvc.PutBooks(ctx, books); err != nil {
		return 0, fmt.Errorf("storing seed books: %w", err)
	}
	return len(books), nil
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the stores. Start closes them after the HTTP server has
// drained, so no request is cut off mid-write.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	stores    *Stores
	services  *Services
	metrics   *metrics.Registry
	startedAt time.Time
}

// New opens storage, builds the services and sets up the routes.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	reg := metrics.NewRegistry()

	stores, err := OpenStores(ctx, cfg, reg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	services, err := NewServices(cfg, stores, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}

	if cfg.Seed.File != "" {
		n, err := SeedCatalog(ctx, services.Catalog, cfg.Seed.File)
		if err != nil {
			stores.Close()
			return nil, err
		}
		logger.Info("catalog seeded", slog.String("file", cfg.Seed.File), slog.Int("books", n))
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		stores:    stores,
		services:  services,
		metrics:   reg,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns an ID that the logger picks up
//  2. RealIP: extracts the client IP from proxy headers
//  3. Recoverer: turns a panic into a 500
//  4. Metrics, Logger: run after routing so they see the route pattern
//  5. CORS: answers preflight requests before any auth check
//
// ROUTE GROUPS:
//   - public:         health, metrics, auth entry points, catalog reads, image bytes
//   - optional auth:  club directory reads (private clubs need membership)
//   - required auth:  everything that mutates state, plus /api/me
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics(s.metrics))
	r.Use(middleware.Logger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	svc := s.services
	var github *auth.GitHubProvider
	if s.config.Auth.GitHub.Enabled() {
		gh := s.config.Auth.GitHub
		github = auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(svc.Auth, github, svc.Tokens.TTL(), s.config.Server.SecureCookies, s.logger)
	meHandler := handler.NewMeHandler(svc.Auth, svc.Clubs, svc.Progress, s.logger)
	clubHandler := handler.NewClubHandler(svc.Clubs, svc.Progress, s.logger)
	bookHandler := handler.NewBookHandler(svc.Catalog, svc.Progress, s.logger)
	imageHandler := handler.NewImageHandler(svc.Images, s.config.Images.MaxBytes, s.logger)

	requireAuth := auth.RequireAuth(svc.Tokens)
	optionalAuth := auth.OptionalAuth(svc.Tokens)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		if authHandler.GitHubEnabled() {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		} else {
			s.logger.Info("GitHub login disabled, client credentials not configured")
		}
	})

	r.Route("/api", func(r chi.Router) {
		// === Public ===
		r.Get("/books", bookHandler.HandleList)
		r.Get("/books/search", bookHandler.HandleSearch)
		r.Get("/books/discover", bookHandler.HandleDiscover)
		r.Get("/books/{id}", bookHandler.HandleGet)
		r.Get("/books/{id}/progress", bookHandler.HandleProgress)
		r.Get("/images/{id}", imageHandler.HandleGet)

		// === Optional auth ===
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/clubs", clubHandler.HandleList)
			r.Get("/clubs/{id}", clubHandler.HandleGet)
			r.Get("/clubs/{id}/books/{bookID}/progress", clubHandler.HandleBookProgress)
			r.Get("/images/owner/{ownerKey}", imageHandler.HandleGetByOwner)
		})

		// === Required auth ===
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", meHandler.HandleGet)
			r.Put("/me", meHandler.HandleUpdate)
			r.Get("/me/clubs", meHandler.HandleClubs)
			r.Get("/me/progress", meHandler.HandleProgress)
			r.Put("/me/progress/{bookID}", meHandler.HandleUpdateProgress)
			r.Delete("/me/progress/{bookID}", meHandler.HandleResetProgress)
			r.Post("/me/progress/{bookID}/pause", meHandler.HandlePause)
			r.Post("/me/progress/{bookID}/review", meHandler.HandleReview)
			r.Get("/me/shelf", meHandler.HandleShelf)
			r.Put("/me/shelf/{bookID}", meHandler.HandleAddToShelf)
			r.Delete("/me/shelf/{bookID}", meHandler.HandleRemoveFromShelf)

			r.Post("/clubs", clubHandler.HandleCreate)
			r.Put("/clubs/{id}", clubHandler.HandleUpdate)
			r.Delete("/clubs/{id}", clubHandler.HandleDelete)
			r.Post("/clubs/{id}/join", clubHandler.HandleJoin)
			r.Post("/clubs/{id}/leave", clubHandler.HandleLeave)
			r.Put("/clubs/{id}/members/{userID}/role", clubHandler.HandleChangeRole)
			r.Put("/clubs/{id}/members/{userID}/suspended", clubHandler.HandleSetSuspended)
			r.Post("/clubs/{id}/books", clubHandler.HandleAddBook)
			r.Put("/clubs/{id}/books/{bookID}", clubHandler.HandleSetBookStatus)
			r.Delete("/clubs/{id}/books/{bookID}", clubHandler.HandleRemoveBook)
			r.Put("/clubs/{id}/current-book", clubHandler.HandleSetCurrentBook)

			r.Post("/books", bookHandler.HandleAdd)

			r.Post("/images", imageHandler.HandleUpload)
			r.Delete("/images/{id}", imageHandler.HandleDelete)
		})
	})
}

// handleHealth reports ok when the club collection can be read, which
// exercises the storage backend end to end.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if _, err := s.services.Collections.Clubs.Snapshot(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"uptime":%q}`+"\n", status, time.Since(s.startedAt).Round(time.Second).String())
}

// Close releases the stores without serving. Used when New succeeded but
// the caller decides not to Start.
func (s *Server) Close() error {
	return s.stores.Close()
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests
// (bounded by server.shutdown_timeout) and closes the stores.
func (s *Server) Start() error {
	defer func() {
		if err := s.stores.Close(); err != nil {
			s.logger.Error("closing storage", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
