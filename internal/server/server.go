// Package server is the composition root: it builds the dependency graph
// (database → stores → services → handlers), mounts the routes, and runs
// the HTTP server with graceful shutdown.
//
// The wiring all happens in one place so each layer only receives what it
// needs: services get repository interfaces, handlers get services, and
// nothing below this package ever sees HTTP or the config file.
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
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/anika/codeclass/internal/auth"
	"github.com/anika/codeclass/internal/config"
	"github.com/anika/codeclass/internal/handler"
	"github.com/anika/codeclass/internal/middleware"
	sqliterepo "github.com/anika/codeclass/internal/repository/sqlite"
	"github.com/anika/codeclass/internal/service"
	"github.com/anika/codeclass/internal/storage"
)

// Server owns the router and the resources that need closing on shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliterepo.DB
}

// New assembles the full dependency graph from the validated config.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliterepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := storage.New(cfg.UploadRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing upload root: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, time.Duration(cfg.TokenTTL))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring tokens: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(store, tokens, passwords)
	return s, nil
}

// Router exposes the handler tree, mainly for tests driving the server
// through httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Close releases the server's resources without going through Start.
func (s *Server) Close() error {
	return s.db.Close()
}

func (s *Server) setupRoutes(store *storage.Store, tokens *auth.TokenService, passwords *auth.PasswordService) {
	// Order matters: the logger wants the request ID and real client IP
	// already resolved, and Recoverer must sit inside the logger so a
	// panicked request still produces a log line with its 500.
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(chimw.Recoverer)

	authService := service.NewAuthService(s.db, s.db, tokens, passwords, s.logger)
	workspaceService := service.NewWorkspaceService(s.db, s.db, s.db, store, s.logger)
	adminService := service.NewAdminService(s.db, s.db, s.db, passwords, store, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	workspaceHandler := handler.NewWorkspaceHandler(workspaceService, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)

		// Everything below requires a valid token backed by a live session.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authService))

			r.Post("/logout", authHandler.HandleLogout)
			r.Get("/me", authHandler.HandleMe)
			r.Post("/me/password", authHandler.HandleChangePassword)

			r.Post("/submit_code", workspaceHandler.HandleSubmit)
			r.Get("/projects", workspaceHandler.HandleProjects)
			r.Delete("/project/{id}", workspaceHandler.HandleDeleteProject)
			r.Get("/project/{id}/files", workspaceHandler.HandleProjectFiles)
			r.Get("/file/{id}", workspaceHandler.HandleGetFile)
			r.Get("/file/{id}/download", workspaceHandler.HandleDownloadFile)
			r.Put("/file/{id}", workspaceHandler.HandleUpdateFile)
			r.Delete("/file/{id}", workspaceHandler.HandleDeleteFile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin())

				r.Get("/users", adminHandler.HandleListUsers)
				r.Post("/users", adminHandler.HandleCreateUser)
				r.Put("/users/{id}", adminHandler.HandleUpdateUser)
				r.Delete("/users/{id}", adminHandler.HandleDeleteUser)
				r.Post("/users/{id}/toggle_admin", adminHandler.HandleToggleAdmin)
				r.Post("/users/{id}/toggle_active", adminHandler.HandleToggleActive)
				r.Post("/users/{id}/logout", adminHandler.HandleForceLogout)
				r.Get("/files", adminHandler.HandleListFiles)
				r.Get("/sessions", adminHandler.HandleListSessions)
			})
		})
	})
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests for up to 30s, and
// close the database so the WAL is flushed and the file lock released.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // file downloads can be slow on classroom wifi
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
			slog.String("uploads", s.cfg.UploadRoot),
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
