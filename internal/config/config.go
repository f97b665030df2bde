package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	SessionBackendRedis = "redis"
	SessionBackendJWT   = "jwt"

	EmailTransportSMTP = "smtp"
	EmailTransportAMQP = "amqp"
	EmailTransportLog  = "log"
)

type Config struct {
	Port                string
	BaseURL             string
	DatabaseURL         string
	UserStore           string
	RedisURL            string
	MigrationsDir       string
	SessionBackend      string
	SessionTTL          time.Duration
	JWTSecret           string
	CookieSecure        bool
	VerificationCodeTTL time.Duration
	BcryptCost          int
	RateLimitEnabled    bool
	TrustedProxies      []string
	Log                 LogConfig
	Email               EmailConfig
	AMQP                AMQPConfig
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

type EmailConfig struct {
	Transport string
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	Secure    bool
}

func (e EmailConfig) Enabled() bool {
	return e.Host != "" && e.Port != 0 && e.From != ""
}

type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
}

// Load reads configuration from the environment. When CONFIG_FILE points to
// a YAML file its keys act as defaults underneath the real environment.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(src)
}

// LoadMailer reads configuration for the mail worker, which needs only the
// broker and SMTP settings.
func LoadMailer() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return loadMailer(src)
}

func load(src *source) (Config, error) {
	cfg := parse(src)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadMailer(src *source) (Config, error) {
	cfg := parse(src)
	if cfg.AMQP.URL == "" {
		return Config{}, fmt.Errorf("AMQP_URL is required")
	}
	if !cfg.Email.Enabled() {
		return Config{}, fmt.Errorf("EMAIL_SERVER_HOST, EMAIL_SERVER_PORT and EMAIL_FROM are required")
	}
	return cfg, nil
}

func parse(src *source) Config {
	clean := func(val string) string {
		return strings.Trim(val, "\"' \t\r\n")
	}

	cfg := Config{
		Port:                src.getDefault("PORT", "8080"),
		BaseURL:             src.getDefault("APP_BASE_URL", "http://localhost:3000"),
		DatabaseURL:         src.get("DATABASE_URL"),
		UserStore:           strings.ToLower(src.getDefault("USER_STORE", StorePostgres)),
		RedisURL:            src.getDefault("REDIS_URL", "redis://localhost:6379"),
		MigrationsDir:       src.getDefault("MIGRATIONS_DIR", "./migrations"),
		SessionBackend:      strings.ToLower(src.getDefault("SESSION_BACKEND", SessionBackendRedis)),
		SessionTTL:          parseDuration(src.get("SESSION_TTL"), 7*24*time.Hour),
		JWTSecret:           src.get("JWT_SECRET"),
		CookieSecure:        parseBoolDefault(src.get("COOKIE_SECURE"), true),
		VerificationCodeTTL: parseDuration(src.get("VERIFICATION_CODE_TTL"), 24*time.Hour),
		BcryptCost:          parseInt(src.get("BCRYPT_COST"), 10),
		RateLimitEnabled:    parseBoolDefault(src.get("RATE_LIMIT_ENABLED"), true),
		TrustedProxies:      parseList(src.get("TRUSTED_PROXIES")),
	}

	cfg.Log = LogConfig{
		Level:      strings.ToLower(src.getDefault("LOG_LEVEL", "info")),
		File:       src.get("LOG_FILE"),
		MaxSizeMB:  parseInt(src.get("LOG_MAX_SIZE_MB"), 50),
		MaxBackups: parseInt(src.get("LOG_MAX_BACKUPS"), 5),
	}

	cfg.Email = EmailConfig{
		Transport: strings.ToLower(clean(src.get("EMAIL_TRANSPORT"))),
		Host:      clean(src.get("EMAIL_SERVER_HOST")),
		Port:      parseInt(clean(src.getDefault("EMAIL_SERVER_PORT", "587")), 587),
		Username:  clean(src.get("EMAIL_SERVER_USER")),
		Password:  clean(src.get("EMAIL_SERVER_PASSWORD")),
		From:      clean(src.get("EMAIL_FROM")),
		Secure:    parseBool(src.get("EMAIL_SERVER_SECURE")),
	}
	if cfg.Email.Transport == "" {
		cfg.Email.Transport = EmailTransportLog
		if cfg.Email.Enabled() {
			cfg.Email.Transport = EmailTransportSMTP
		}
	}

	cfg.AMQP = AMQPConfig{
		URL:      src.get("AMQP_URL"),
		Exchange: src.getDefault("AMQP_EXCHANGE", "notifications"),
		Queue:    src.getDefault("AMQP_QUEUE", "email.outbound"),
	}

	if cfg.Log.File != "" {
		if abs, err := filepath.Abs(cfg.Log.File); err == nil {
			cfg.Log.File = abs
		}
	}

	return cfg
}

func (c Config) validate() error {
	switch c.UserStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown USER_STORE %q", c.UserStore)
	}

	switch c.SessionBackend {
	case SessionBackendRedis:
	case SessionBackendJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required for the jwt session backend")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	switch c.Email.Transport {
	case EmailTransportSMTP:
		if !c.Email.Enabled() {
			return fmt.Errorf("EMAIL_SERVER_HOST, EMAIL_SERVER_PORT and EMAIL_FROM are required for smtp")
		}
	case EmailTransportAMQP:
		if c.AMQP.URL == "" {
			return fmt.Errorf("AMQP_URL is required for the amqp email transport")
		}
	case EmailTransportLog:
	default:
		return fmt.Errorf("unknown EMAIL_TRANSPORT %q", c.Email.Transport)
	}

	if c.VerificationCodeTTL <= 0 {
		return fmt.Errorf("VERIFICATION_CODE_TTL must be positive")
	}
	return nil
}

func parseBool(val string) bool {
	if val == "" {
		return false
	}
	val = strings.ToLower(strings.Trim(val, "\"' "))
	return val == "1" || val == "true" || val == "yes"
}

func parseBoolDefault(val string, def bool) bool {
	if strings.TrimSpace(val) == "" {
		return def
	}
	return parseBool(val)
}

func parseInt(val string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}

func parseDuration(val string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return d
}

func parseList(val string) []string {
	parts := strings.Split(val, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
