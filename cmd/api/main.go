package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duobook/duobook-go/internal/config"
	"github.com/duobook/duobook-go/internal/handler"
	"github.com/duobook/duobook-go/internal/logger"
	"github.com/duobook/duobook-go/internal/middleware"
	"github.com/duobook/duobook-go/internal/repository"
	"github.com/duobook/duobook-go/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()
	slog.SetDefault(logger.New(logger.Config{
		Environment: cfg.Env,
		Level:       logger.ParseLevel(cfg.LogLevel),
	}))

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	err = repository.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		slog.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	authService := service.NewAuthService(userRepo, tokenRepo, cfg.JWTSecret, cfg.JWTExpiry)
	authHandler := handler.NewAuthHandler(authService)

	libraryService := service.NewLibraryService(
		repository.NewBookRepository(db),
		repository.NewDeletionRepository(db),
		repository.NewReadingLocationRepository(db),
	)
	libraryHandler := handler.NewLibraryHandler(libraryService)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(5, 10))
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
	})

	r.Get("/auth/check-validity", authHandler.HandleCheckValidity)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(authService))
		r.Post("/auth/logout", authHandler.HandleLogout)
		r.Post("/auth/logout-all", authHandler.HandleLogoutAll)
		r.Get("/auth/me", authHandler.HandleMe)

		r.Get("/deleted-books", libraryHandler.HandleListDeleted)
		r.Post("/deleted-books", libraryHandler.HandleMarkDeleted)
		r.Get("/books", libraryHandler.HandleListBooks)
		r.Get("/books/{bookID}", libraryHandler.HandleGetBook)
		r.Post("/books/{bookID}", libraryHandler.HandleUpsertBook)
		r.Get("/reading-locations", libraryHandler.HandleListLocations)
		r.Post("/reading-locations", libraryHandler.HandleUpsertLocations)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
