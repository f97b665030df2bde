package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	Redis *redis.Client
}

const (
	EmailCooldown           = 60 * time.Second
	verifyMaxAttempts       = 10
	verifyAttemptTTL        = 15 * time.Minute
	signupMaxAttemptsIP     = 10
	signupAttemptTTLIP      = 30 * time.Minute
	signupMaxAttemptsEmail  = 3
	signupAttemptTTLEmail   = 30 * time.Minute
	resendCooldownKeyPrefix = "resend_cooldown:"
)

type attemptKey struct {
	key string
	max int64
	ttl time.Duration
}

func (r *RateLimiter) verifyAttemptKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "verify_attempts:" + ip
}

func (r *RateLimiter) signupAttemptIPKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "signup_attempts_ip:" + ip
}

func (r *RateLimiter) signupAttemptEmailKey(email string) string {
	if email == "" {
		return ""
	}
	return "signup_attempts_email:" + emailKeyPart(email)
}

func ResendCooldownKey(email string) string {
	return resendCooldownKeyPrefix + emailKeyPart(email)
}

// RegisterSignupAttempt counts a signup per client IP and per email and
// reports whether either bucket is exhausted.
func (r *RateLimiter) RegisterSignupAttempt(ctx context.Context, email, ip string) (bool, time.Duration, error) {
	return r.register(ctx, []attemptKey{
		{r.signupAttemptIPKey(ip), signupMaxAttemptsIP, signupAttemptTTLIP},
		{r.signupAttemptEmailKey(email), signupMaxAttemptsEmail, signupAttemptTTLEmail},
	})
}

// RegisterVerifyAttempt counts a code submission per client IP. Codes carry
// no other identity, so the IP bucket bounds brute force of the code space.
func (r *RateLimiter) RegisterVerifyAttempt(ctx context.Context, ip string) (bool, time.Duration, error) {
	return r.register(ctx, []attemptKey{
		{r.verifyAttemptKey(ip), verifyMaxAttempts, verifyAttemptTTL},
	})
}

func (r *RateLimiter) ResetVerify(ctx context.Context, ip string) {
	if key := r.verifyAttemptKey(ip); key != "" {
		r.Redis.Del(ctx, key)
	}
}

func (r *RateLimiter) register(ctx context.Context, keys []attemptKey) (bool, time.Duration, error) {
	locked := false
	var ttlMax time.Duration

	for _, k := range keys {
		if k.key == "" {
			continue
		}
		attempts, err := r.Redis.Incr(ctx, k.key).Result()
		if err != nil {
			return false, 0, err
		}
		if attempts == 1 {
			r.Redis.Expire(ctx, k.key, k.ttl)
		}
		if attempts > k.max {
			locked = true
		}
		if ttl, _ := r.Redis.TTL(ctx, k.key).Result(); ttl > ttlMax {
			ttlMax = ttl
		}
	}

	return locked, ttlMax, nil
}

func (r *RateLimiter) CooldownTTL(ctx context.Context, key string) time.Duration {
	ttl, err := r.Redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (r *RateLimiter) SetCooldown(ctx context.Context, key string, ttl time.Duration) {
	r.Redis.Set(ctx, key, "1", ttl)
}
