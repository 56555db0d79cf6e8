// Package server wires the application together and runs the HTTP server.
//
// This is the composition root: every dependency — database, OAuth client,
// session manager, metrics, handlers — is constructed and connected here, in
// one place, rather than scattered across the codebase. main.go stays
// minimal: load config, build logger, call server.New, call Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avkulikov/weatherhub/internal/auth"
	"github.com/avkulikov/weatherhub/internal/config"
	"github.com/avkulikov/weatherhub/internal/handler"
	"github.com/avkulikov/weatherhub/internal/metrics"
	"github.com/avkulikov/weatherhub/internal/middleware"
	sqliteRepo "github.com/avkulikov/weatherhub/internal/repository/sqlite"
	"github.com/avkulikov/weatherhub/internal/service"
	"github.com/avkulikov/weatherhub/internal/weather"
)

// Server owns the router and the resources that must be released on
// shutdown — most importantly the database connection, which needs a clean
// Close to flush the WAL and drop the file lock.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency graph.
//
// The chain, leaves first:
//
//	sqlite.DB                          → user store
//	auth.Discovery + auth.Client       → provider protocol mechanics
//	auth.SessionManager                → cookie ↔ user store bridge
//	service.AuthFlow                   → the handshake state machine
//	handler.*                          → HTTP bindings
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	discovery := auth.NewDiscovery(s.cfg.DiscoveryURL, s.cfg.UpstreamTimeout)
	oauthClient := auth.NewClient(
		s.cfg.GoogleClientID,
		s.cfg.GoogleClientSecret,
		s.cfg.BaseURL+"/login/callback",
		s.cfg.UpstreamTimeout,
	)

	sessions, err := auth.NewSessionManager(s.cfg.SessionSecret, s.db)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	flow := service.NewAuthFlow(discovery, oauthClient, s.db, collector, s.logger)

	weatherClient := weather.New(weather.Config{
		APIKey:    s.cfg.OpenWeatherAPIKey,
		UserAgent: s.cfg.GeocoderUserAgent,
		Timeout:   s.cfg.UpstreamTimeout,
	}, collector)

	authHandler := handler.NewAuthHandler(flow, sessions, s.logger)
	pageHandler := handler.NewPageHandler(s.logger)
	weatherHandler := handler.NewWeatherHandler(weatherClient, s.logger)

	// Global middleware, in order: request id → real ip → panic recovery →
	// request logging → session identity resolution.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(auth.WithIdentity(sessions, s.logger))

	s.router.Get("/", pageHandler.HandleIndex)
	s.router.Get("/about", pageHandler.HandleAbout)
	s.router.Get("/useragent", pageHandler.HandleUserAgent)

	s.router.Get("/login", authHandler.HandleLogin)
	s.router.Get("/login/callback", authHandler.HandleCallback)
	s.router.With(auth.RequireAuth).Get("/logout", authHandler.HandleLogout)

	s.router.Get("/list/", weatherHandler.HandleListHint)
	s.router.Get("/list/{city}", weatherHandler.HandleWeekForecast)
	s.router.Get("/weather/", weatherHandler.HandleDateHint)
	// Kept at the root for compatibility with the original URL scheme;
	// static routes like /login/callback win over the wildcard in chi.
	s.router.Get("/{city}/{date}", weatherHandler.HandleDayWeather)

	s.router.Handle("/metrics", metrics.Handler(registry))

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, give in-flight requests 30 seconds, close the
// database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("baseURL", s.cfg.BaseURL),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
