package email

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/textproto"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts = 5
	retryKeyPrefix     = "mail_retry:"
)

// RetryCounter counts delivery attempts per queued message in Redis.
type RetryCounter struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{Redis: rdb, TTL: ttl}
}

// IncrementAndGet bumps the attempt count for key and returns it.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.Redis.Expire(ctx, key, r.TTL)
	}
	return count, nil
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.Redis.Del(ctx, key).Err()
}

// retryKey identifies a delivery across redeliveries. Messages published
// without an id fall back to a digest of the body.
func retryKey(d amqp091.Delivery) string {
	if d.MessageId != "" {
		return retryKeyPrefix + d.MessageId
	}
	sum := sha256.Sum256(d.Body)
	return retryKeyPrefix + hex.EncodeToString(sum[:])
}

// isPermanent reports SMTP 5xx replies, which a retry cannot fix.
func isPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}
