package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config is built once at startup and handed to constructors. Nothing else reads the environment.
type Config struct {
	Environment string
	Version     string
	Commit      string

	HTTPAddr string
	GRPCAddr string

	DatabaseDSN    string
	MigrateOnStart bool

	Token     TokenConfig
	Cookie    CookieConfig
	Bootstrap BootstrapConfig

	Redis         RedisConfig
	LoginAttempts int
	LoginWindow   time.Duration

	IdentityTimeout time.Duration
	RateBurst       int
	RatePerSecond   int
	CORSOrigins     []string

	LogLevel     string
	OTLPEndpoint string
}

type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

type CookieConfig struct {
	Domain string
	Secure bool
}

// BootstrapConfig holds the credentials of the first privileged account.
type BootstrapConfig struct {
	Email    string
	Password string
	Name     string
	Role     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Production reports whether the process runs with production cookie and secret rules.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

// Load reads WORKSDESK_* variables, applies defaults and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Environment:    strings.ToLower(getEnv("WORKSDESK_ENV", EnvDevelopment)),
		Version:        getEnv("WORKSDESK_VERSION", "dev"),
		Commit:         getEnv("WORKSDESK_COMMIT", "none"),
		HTTPAddr:       getEnv("WORKSDESK_HTTP_ADDR", ":8080"),
		GRPCAddr:       getEnv("WORKSDESK_GRPC_ADDR", ":9090"),
		DatabaseDSN:    os.Getenv("WORKSDESK_PG_DSN"),
		LogLevel:       getEnv("WORKSDESK_LOG_LEVEL", "info"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:    parseCSVEnv("WORKSDESK_CORS_ORIGINS"),
		MigrateOnStart: false,
		Token: TokenConfig{
			Secret: []byte(os.Getenv("WORKSDESK_JWT_SECRET")),
			Issuer: getEnv("WORKSDESK_JWT_ISSUER", "worksdesk"),
		},
		Cookie: CookieConfig{
			Domain: os.Getenv("WORKSDESK_COOKIE_DOMAIN"),
		},
		Bootstrap: BootstrapConfig{
			Email:    strings.ToLower(strings.TrimSpace(os.Getenv("WORKSDESK_ADMIN_EMAIL"))),
			Password: os.Getenv("WORKSDESK_ADMIN_PASSWORD"),
			Name:     getEnv("WORKSDESK_ADMIN_NAME", "Administrator"),
			Role:     getEnv("WORKSDESK_ADMIN_ROLE", "direction"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("WORKSDESK_REDIS_ADDR"),
			Password: os.Getenv("WORKSDESK_REDIS_PASSWORD"),
		},
	}

	var err error
	if cfg.Token.TTL, err = durationEnv("WORKSDESK_TOKEN_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.LoginWindow, err = durationEnv("WORKSDESK_LOGIN_WINDOW", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.IdentityTimeout, err = durationEnv("WORKSDESK_IDENTITY_TIMEOUT", 3*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LoginAttempts, err = intEnv("WORKSDESK_LOGIN_ATTEMPTS", 10); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = intEnv("WORKSDESK_RATE_BURST", 50); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSecond, err = intEnv("WORKSDESK_RATE_PER_SEC", 25); err != nil {
		return Config{}, err
	}
	if cfg.Redis.DB, err = intEnv("WORKSDESK_REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.MigrateOnStart, err = boolEnv("WORKSDESK_MIGRATE_ON_START", false); err != nil {
		return Config{}, err
	}
	cfg.Cookie.Secure = cfg.Production()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules. Load calls it; tests building Config by hand may call it too.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}
	if len(c.Token.Secret) == 0 {
		return errors.New("config: WORKSDESK_JWT_SECRET is required")
	}
	if c.Production() && len(c.Token.Secret) < 32 {
		return errors.New("config: WORKSDESK_JWT_SECRET must be at least 32 bytes in production")
	}
	if c.Production() && c.DatabaseDSN == "" {
		return errors.New("config: WORKSDESK_PG_DSN is required in production")
	}
	if c.Token.TTL <= 0 {
		return errors.New("config: token ttl must be positive")
	}
	if (c.Bootstrap.Email == "") != (c.Bootstrap.Password == "") {
		return errors.New("config: WORKSDESK_ADMIN_EMAIL and WORKSDESK_ADMIN_PASSWORD must be set together")
	}
	if c.LoginAttempts < 0 {
		return errors.New("config: login attempts must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseCSVEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return v, nil
}
