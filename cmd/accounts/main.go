package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_service/internal/auth"
	"account_service/internal/config"
	forgotPassword "account_service/internal/http_server/handlers/forgot_password"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/me"
	"account_service/internal/http_server/handlers/register"
	resetPassword "account_service/internal/http_server/handlers/reset_password"
	"account_service/internal/http_server/handlers/users"
	"account_service/internal/http_server/handlers/verify"
	"account_service/internal/http_server/middleware/authn"
	"account_service/internal/lib/api/validation"
	"account_service/internal/rabbitmq"
	"account_service/internal/storage/postgres"
	redisstore "account_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting account service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	tokenStore, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer tokenStore.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	authService := auth.New(
		log,
		storage,
		storage,
		tokenStore,
		msgBroker,
		cfg.Tokens.SessionTokenSecret,
		cfg.Tokens.SessionTokenTTL,
		cfg.Tokens.OneTimeTokenTTL,
		cfg.PublicURL,
	)

	router := setupRouter(log, authService, storage, cfg.Tokens.SessionTokenSecret)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Account service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	userStore *postgres.PostgresRepo,
	sessionSecret string,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validation.New()

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", register.New(log, validate, authService))
			r.Post("/login", login.New(log, validate, authService))
			r.Post("/forgot-password", forgotPassword.New(log, validate, authService))

			r.Group(func(r chi.Router) {
				r.Use(authn.New(sessionSecret))

				r.Get("/me", me.New(log, authService))
				r.Patch("/verify", verify.New(log, authService))
				r.Patch("/reset-password", resetPassword.New(log, validate, authService))
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", users.All(log, userStore))
			r.Get("/{id}", users.ByID(log, userStore))
			r.Get("/user/{user}", users.ByIdentifier(log, userStore))
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
