package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/account"
	"github.com/dhernos/vestri-auth/internal/auth"
	"github.com/dhernos/vestri-auth/internal/i18n"
)

const (
	msgAllFieldsRequired = "All fields are required"
	msgUserExists        = "User already exists"
	msgInvalidCode       = "Invalid or expired verification code"
	msgInternal          = "Internal server error"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	meta := s.requestMeta(r)
	if s.RateLimiter != nil {
		locked, ttl, err := s.RateLimiter.RegisterSignupAttempt(ctx, strings.TrimSpace(req.Email), meta.IP)
		if err != nil {
			s.internalError(w, r, "signup rate limit", err)
			return
		}
		if locked {
			writeThrottled(w, "Too many signup attempts. Try again later.", ttl)
			return
		}
	}

	res, err := s.Accounts.Signup(ctx, account.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		Name:        req.Name,
		RequestMeta: meta,
	})
	if err != nil {
		s.writeAccountError(w, r, "signup", err)
		return
	}

	http.SetCookie(w, res.Cookie)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "User created successfully",
		"user":    res.User,
	})
}

type verifyEmailRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	meta := s.requestMeta(r)
	if s.RateLimiter != nil {
		locked, ttl, err := s.RateLimiter.RegisterVerifyAttempt(ctx, meta.IP)
		if err != nil {
			s.internalError(w, r, "verify rate limit", err)
			return
		}
		if locked {
			writeThrottled(w, "Too many verification attempts. Try again later.", ttl)
			return
		}
	}

	user, err := s.Accounts.VerifyEmail(ctx, account.VerifyInput{Code: req.Code, RequestMeta: meta})
	if err != nil {
		s.writeAccountError(w, r, "verify email", err)
		return
	}
	if s.RateLimiter != nil {
		s.RateLimiter.ResetVerify(ctx, meta.IP)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Email verified successfully",
		"user":    user,
	})
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()
	meta := s.requestMeta(r)
	addr := strings.TrimSpace(req.Email)
	cooldownKey := auth.ResendCooldownKey(addr)
	if s.RateLimiter != nil && addr != "" {
		if ttl := s.RateLimiter.CooldownTTL(ctx, cooldownKey); ttl > 0 {
			writeThrottled(w, "Please wait before requesting another code.", ttl)
			return
		}
	}

	if err := s.Accounts.ResendVerification(ctx, addr, meta); err != nil {
		s.writeAccountError(w, r, "resend verification", err)
		return
	}
	if s.RateLimiter != nil {
		s.RateLimiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "If the account exists and is not verified, a new code has been sent.",
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Login page")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Logout page")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.Logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
			results[c.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{"status": overall, "checks": results})
}

func (s *Server) requestMeta(r *http.Request) account.RequestMeta {
	return account.RequestMeta{
		Locale:    i18n.LocaleFromRequest(r),
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
	}
}

func (s *Server) writeAccountError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, account.ErrValidation):
		writeFailure(w, http.StatusBadRequest, msgAllFieldsRequired)
	case errors.Is(err, account.ErrConflict):
		writeFailure(w, http.StatusBadRequest, msgUserExists)
	case errors.Is(err, account.ErrInvalidOrExpired):
		writeFailure(w, http.StatusBadRequest, msgInvalidCode)
	default:
		s.internalError(w, r, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.Logger.Error(op+" failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeFailure(w, http.StatusInternalServerError, msgInternal)
}

func writeThrottled(w http.ResponseWriter, message string, ttl time.Duration) {
	writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
		"success":  false,
		"message":  message,
		"cooldown": int64(ttl.Seconds()),
	})
}
