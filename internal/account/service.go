// Package account implements the signup and email-verification workflow on
// top of the collaborators in package auth and package email.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/auth"
	"github.com/dhernos/vestri-auth/internal/email"
	"github.com/dhernos/vestri-auth/internal/i18n"
	"github.com/dhernos/vestri-auth/internal/metrics"
)

const DefaultCodeTTL = 24 * time.Hour

type Deps struct {
	Users    auth.UserStore
	Hasher   auth.PasswordHasher
	Codes    auth.CodeGenerator
	Sessions auth.SessionIssuer
	Mailer   email.Notifier
	Audit    auth.Auditor
	Logger   *zap.Logger
	CodeTTL  time.Duration
	Now      func() time.Time
}

type Service struct {
	users    auth.UserStore
	hasher   auth.PasswordHasher
	codes    auth.CodeGenerator
	sessions auth.SessionIssuer
	mailer   email.Notifier
	audit    auth.Auditor
	logger   *zap.Logger
	codeTTL  time.Duration
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		users:    d.Users,
		hasher:   d.Hasher,
		codes:    d.Codes,
		sessions: d.Sessions,
		mailer:   d.Mailer,
		audit:    d.Audit,
		logger:   d.Logger,
		codeTTL:  d.CodeTTL,
		now:      d.Now,
	}
	if s.codes == nil {
		s.codes = auth.NumericCodeGenerator{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RequestMeta describes the caller for audit purposes.
type RequestMeta struct {
	Locale    string
	IP        string
	UserAgent string
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
	RequestMeta
}

type SignupResult struct {
	User *auth.User
	// Cookie carries the session minted for the new user.
	Cookie *http.Cookie
}

// Signup registers an unverified user, issues a session for it and sends the
// verification code. A failed verification email is logged and does not fail
// the signup; nothing is rolled back when a later step fails.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	addr := strings.TrimSpace(in.Email)
	name := strings.TrimSpace(in.Name)
	if addr == "" || in.Password == "" || name == "" {
		metrics.IncSignup(metrics.ResultInvalid)
		return nil, ErrValidation
	}

	existing, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		return nil, s.signupFailed(fmt.Errorf("lookup email: %w", err))
	}
	if existing != nil {
		metrics.IncSignup(metrics.ResultConflict)
		return nil, ErrConflict
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.signupFailed(fmt.Errorf("hash password: %w", err))
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, s.signupFailed(fmt.Errorf("generate verification code: %w", err))
	}

	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        addr,
		PasswordHash: hash,
		Name:         name,
	}
	user.SetVerificationCode(code, s.now().Add(s.codeTTL))

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrDuplicateEmail) {
			metrics.IncSignup(metrics.ResultConflict)
			return nil, ErrConflict
		}
		return nil, s.signupFailed(fmt.Errorf("create user: %w", err))
	}

	cookie, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, s.signupFailed(fmt.Errorf("issue session: %w", err))
	}

	if err := s.sendVerification(ctx, user, code, in.Locale); err != nil {
		s.logger.Warn("verification email not sent",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		s.record(ctx, auth.AuditEmailSendFailed, user.ID, in.RequestMeta, map[string]interface{}{
			"template": i18n.TemplateVerification,
		})
	}

	s.record(ctx, auth.AuditSignup, user.ID, in.RequestMeta, nil)
	metrics.IncSignup(metrics.ResultSuccess)
	return &SignupResult{User: user, Cookie: cookie}, nil
}

type VerifyInput struct {
	Code string
	RequestMeta
}

// VerifyEmail marks the owner of an unexpired code verified and sends the
// welcome email. Wrong and expired codes are indistinguishable to the caller.
func (s *Service) VerifyEmail(ctx context.Context, in VerifyInput) (*auth.User, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		metrics.IncEmailVerification(metrics.ResultInvalid)
		return nil, ErrInvalidOrExpired
	}

	user, err := s.users.FindByVerificationCode(ctx, code, s.now())
	if err != nil {
		return nil, s.verifyFailed(fmt.Errorf("lookup code: %w", err))
	}
	if user == nil {
		metrics.IncEmailVerification(metrics.ResultInvalid)
		return nil, ErrInvalidOrExpired
	}

	// Only the request that clears the code wins when two race on it.
	user, err = s.users.ConsumeVerificationCode(ctx, user.ID, code, s.now())
	if err != nil {
		return nil, s.verifyFailed(fmt.Errorf("mark verified: %w", err))
	}
	if user == nil {
		metrics.IncEmailVerification(metrics.ResultInvalid)
		return nil, ErrInvalidOrExpired
	}

	content := i18n.WelcomeEmail(in.Locale, user.Name)
	if err := s.send(ctx, user.Email, content); err != nil {
		return nil, s.verifyFailed(fmt.Errorf("send welcome email: %w", err))
	}

	s.record(ctx, auth.AuditEmailVerified, user.ID, in.RequestMeta, nil)
	metrics.IncEmailVerification(metrics.ResultSuccess)
	return user, nil
}

// ResendVerification replaces the pending code of an unverified user and
// mails it again. Unknown and already verified addresses are ignored so the
// caller cannot probe which accounts exist.
func (s *Service) ResendVerification(ctx context.Context, addr string, meta RequestMeta) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ErrValidation
	}

	user, err := s.users.FindByEmail(ctx, addr)
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if user == nil || user.IsVerified {
		return nil
	}

	code, err := s.codes.Generate()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	user.SetVerificationCode(code, s.now().Add(s.codeTTL))
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.sendVerification(ctx, user, code, meta.Locale); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *auth.User, code, locale string) error {
	hours := max(1, int(s.codeTTL.Hours()))
	return s.send(ctx, user.Email, i18n.VerificationEmail(locale, code, hours))
}

func (s *Service) send(ctx context.Context, to string, c i18n.EmailContent) error {
	err := s.mailer.Send(ctx, email.Message{
		To:       to,
		Subject:  c.Subject,
		Text:     c.Text,
		HTML:     c.HTML,
		Template: c.Template,
	})
	metrics.IncEmailSend(c.Template, err)
	return err
}

func (s *Service) record(ctx context.Context, event, userID string, meta RequestMeta, extra map[string]interface{}) {
	if s.audit == nil {
		return
	}
	err := s.audit.Log(ctx, auth.AuditEvent{
		EventType: event,
		UserID:    userID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Meta:      extra,
	})
	if err != nil {
		s.logger.Warn("audit log failed", zap.String("event", event), zap.Error(err))
	}
}

func (s *Service) signupFailed(err error) error {
	metrics.IncSignup(metrics.ResultError)
	return fmt.Errorf("signup: %w", err)
}

func (s *Service) verifyFailed(err error) error {
	metrics.IncEmailVerification(metrics.ResultError)
	return fmt.Errorf("verify email: %w", err)
}
