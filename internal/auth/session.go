package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionIssuer mints a credential for user and returns the cookie that
// carries it.
type SessionIssuer interface {
	Issue(ctx context.Context, user *User) (*http.Cookie, error)
}

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Verified  bool      `json:"verified"`
	ExpiresAt time.Time `json:"expiresAt"`
	LoginTime time.Time `json:"loginTime"`
}

type SessionStore struct {
	Redis *redis.Client
}

func (s *SessionStore) Create(ctx context.Context, sess Session) error {
	key := "session:" + sess.ID

	data := map[string]interface{}{
		"userId":    sess.UserID,
		"verified":  sess.Verified,
		"expires":   sess.ExpiresAt.Unix(),
		"loginTime": sess.LoginTime.Unix(),
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.Redis.TxPipeline()
	pipe.HSet(ctx, key, data)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// RedisSessionIssuer stores a server-side session and hands out its id.
type RedisSessionIssuer struct {
	Store  *SessionStore
	TTL    time.Duration
	Secure bool
}

func (i *RedisSessionIssuer) Issue(ctx context.Context, user *User) (*http.Cookie, error) {
	now := time.Now()
	sess := Session{
		ID:        NewSessionID(),
		UserID:    user.ID,
		Verified:  user.IsVerified,
		LoginTime: now,
		ExpiresAt: now.Add(i.TTL),
	}
	if err := i.Store.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sessionCookie(SessionCookieName, sess.ID, sess.ExpiresAt, i.Secure), nil
}

func NewSessionID() string {
	return uuid.NewString()
}
