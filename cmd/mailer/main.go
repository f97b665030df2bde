package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/config"
	"github.com/dhernos/vestri-auth/internal/email"
	"github.com/dhernos/vestri-auth/internal/logging"
	redisx "github.com/dhernos/vestri-auth/internal/redis"
)

const retryWindow = 24 * time.Hour

// The mailer drains the email queue filled by the API when
// EMAIL_TRANSPORT=amqp and delivers each message over SMTP.
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadMailer()
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

	var retries *email.RetryCounter
	redisClient, err := redisx.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, failed emails get one redelivery", zap.Error(err))
	} else {
		defer redisClient.Close()
		retries = email.NewRetryCounter(redisClient, retryWindow)
	}

	consumer, err := email.NewQueueConsumer(cfg.AMQP, email.NewSender(cfg.Email), retries, logger.Named("mailer"))
	if err != nil {
		logger.Error("queue setup failed", zap.Error(err))
		return err
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		logger.Error("consumer stopped", zap.Error(err))
		return err
	}
	logger.Info("mailer stopped")
	return nil
}
