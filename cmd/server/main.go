package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/account"
	"github.com/dhernos/vestri-auth/internal/auth"
	"github.com/dhernos/vestri-auth/internal/config"
	"github.com/dhernos/vestri-auth/internal/database"
	"github.com/dhernos/vestri-auth/internal/email"
	"github.com/dhernos/vestri-auth/internal/logging"
	redisx "github.com/dhernos/vestri-auth/internal/redis"
	"github.com/dhernos/vestri-auth/internal/server"
)

const (
	auditMaxLen     = 1000
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, flush, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("log setup error: %w", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []server.HealthCheck

	var users auth.UserStore
	switch cfg.UserStore {
	case config.StoreMemory:
		logger.Warn("using in-memory user store, users are lost on restart")
		users = auth.NewMemoryUserStore()
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database error", zap.Error(err))
			return err
		}
		defer db.Close()
		users = auth.NewUserRepository(db)
		checks = append(checks, server.HealthCheck{Name: "postgres", Check: db.Ping})
	}

	var redisClient *goredis.Client
	if cfg.SessionBackend == config.SessionBackendRedis || cfg.RateLimitEnabled {
		redisClient, err = redisx.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("redis error", zap.Error(err))
			return err
		}
		defer redisClient.Close()
		checks = append(checks, server.HealthCheck{Name: "redis", Check: redisx.Check(redisClient)})
	}

	var sessions auth.SessionIssuer
	switch cfg.SessionBackend {
	case config.SessionBackendJWT:
		sessions = auth.NewJWTIssuer(cfg.JWTSecret, cfg.SessionTTL, cfg.CookieSecure)
	default:
		sessions = &auth.RedisSessionIssuer{
			Store:  &auth.SessionStore{Redis: redisClient},
			TTL:    cfg.SessionTTL,
			Secure: cfg.CookieSecure,
		}
	}

	mailer, closeMailer, err := newNotifier(cfg, logger)
	if err != nil {
		logger.Error("email transport error", zap.Error(err))
		return err
	}
	defer closeMailer()

	var (
		rateLimiter *auth.RateLimiter
		auditor     auth.Auditor
	)
	if redisClient != nil {
		auditor = &auth.AuditLogger{Redis: redisClient, MaxLen: auditMaxLen}
		if cfg.RateLimitEnabled {
			rateLimiter = &auth.RateLimiter{Redis: redisClient}
		}
	}

	accounts := account.NewService(account.Deps{
		Users:    users,
		Hasher:   auth.NewBcryptHasher(cfg.BcryptCost),
		Codes:    auth.NumericCodeGenerator{},
		Sessions: sessions,
		Mailer:   mailer,
		Audit:    auditor,
		Logger:   logger.Named("account"),
		CodeTTL:  cfg.VerificationCodeTTL,
	})

	api := server.NewServer(cfg, accounts, rateLimiter, logger.Named("http"), checks...)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", addr),
			zap.String("user_store", cfg.UserStore),
			zap.String("session_backend", cfg.SessionBackend),
			zap.String("email_transport", cfg.Email.Transport),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return serveErr
}

func newNotifier(cfg config.Config, logger *zap.Logger) (email.Notifier, func(), error) {
	switch cfg.Email.Transport {
	case config.EmailTransportSMTP:
		return email.NewSender(cfg.Email), func() {}, nil
	case config.EmailTransportAMQP:
		publisher, err := email.NewQueuePublisher(cfg.AMQP)
		if err != nil {
			return nil, nil, err
		}
		return publisher, publisher.Close, nil
	default:
		return &email.LogSender{Logger: logger.Named("mail")}, func() {}, nil
	}
}
