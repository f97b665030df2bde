package server

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/account"
	"github.com/dhernos/vestri-auth/internal/auth"
	"github.com/dhernos/vestri-auth/internal/config"
)

// HealthCheck is a named dependency probe reported by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	Accounts *account.Service
	// RateLimiter is optional; nil disables throttling.
	RateLimiter    *auth.RateLimiter
	Logger         *zap.Logger
	Config         config.Config
	checks         []HealthCheck
	trustedProxies []net.IPNet
}

func NewServer(cfg config.Config, accounts *account.Service, rl *auth.RateLimiter, logger *zap.Logger, checks ...HealthCheck) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Accounts:       accounts,
		RateLimiter:    rl,
		Logger:         logger,
		Config:         cfg,
		checks:         checks,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.Logger))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/auth", func(ar chi.Router) {
		ar.Post("/signup", s.handleSignup)
		ar.Post("/verify-email", s.handleVerifyEmail)
		ar.Post("/resend-verification", s.handleResendVerification)
		ar.Post("/login", s.handleLogin)
		ar.Post("/logout", s.handleLogout)
	})

	return r
}
