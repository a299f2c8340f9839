package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName              = "RideSync"
	defaultAppEnv               = "development"
	defaultPort                 = "8080"
	defaultLogLevel             = "info"
	defaultShutdownDelay        = 10 * time.Second
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultVerificationTokenTTL = 24 * time.Hour
	defaultSessionTokenTTL      = 30 * 24 * time.Hour
	defaultChallengeTTL         = 10 * time.Minute
	defaultRequestTimeout       = 5 * time.Second
	defaultBcryptCost           = 12
	defaultOTPPerMinute         = 3
	defaultLoginPerMinute       = 5
	defaultVerifyPerMinute      = 5
	defaultOTPMaxAttempts       = 5
	defaultDBMaxConns           = 10
	defaultDBMinConns           = 2
	defaultDBMaxConnLifetime    = time.Hour
	defaultRedisPoolSize        = 10
	defaultSMTPPort             = 587
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string
	LogFile  string

	DatabaseURL string
	RedisURL    string

	DBMaxConns        int
	DBMinConns        int
	DBMaxConnLifetime time.Duration
	RedisPoolSize     int

	JWTSecret            string
	VerificationTokenTTL time.Duration
	SessionTokenTTL      time.Duration
	ChallengeTTL         time.Duration
	BcryptCost           int

	RequestTimeout time.Duration
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	OTPRequestsPerMinute    int
	LoginAttemptsPerMinute  int
	VerifyAttemptsPerMinute int
	// OTPMaxAttempts is how many wrong codes a challenge absorbs before it is discarded.
	OTPMaxAttempts int

	SMTP SMTPConfig
}

// SMTPConfig holds outbound mail settings. An empty Host disables email delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough settings are present to send mail.
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getEnv("APP_NAME", defaultAppName),
		AppEnv:      getEnv("APP_ENV", defaultAppEnv),
		Port:        getEnv("PORT", defaultPort),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFile:     os.Getenv("LOG_FILE"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.VerificationTokenTTL, err = durationEnv("VERIFICATION_TOKEN_TTL", defaultVerificationTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTokenTTL, err = durationEnv("SESSION_TOKEN_TTL", defaultSessionTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeTTL, err = durationEnv("OTP_TTL", defaultChallengeTTL); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", defaultRequestTimeout); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", defaultBcryptCost); err != nil {
		return Config{}, err
	}
	if cfg.OTPRequestsPerMinute, err = intEnv("OTP_REQUESTS_PER_MINUTE", defaultOTPPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.LoginAttemptsPerMinute, err = intEnv("LOGIN_ATTEMPTS_PER_MINUTE", defaultLoginPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.VerifyAttemptsPerMinute, err = intEnv("VERIFY_ATTEMPTS_PER_MINUTE", defaultVerifyPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.OTPMaxAttempts, err = intEnv("OTP_MAX_ATTEMPTS", defaultOTPMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = intEnv("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns, err = intEnv("DB_MIN_CONNS", defaultDBMinConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConnLifetime, err = durationEnv("DB_MAX_CONN_LIFETIME", defaultDBMaxConnLifetime); err != nil {
		return Config{}, err
	}
	if cfg.RedisPoolSize, err = intEnv("REDIS_POOL_SIZE", defaultRedisPoolSize); err != nil {
		return Config{}, err
	}
	if cfg.SMTP.Port, err = intEnv("SMTP_PORT", defaultSMTPPort); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings that have no safe default.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.VerificationTokenTTL <= 0 || c.SessionTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	if c.OTPMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, and DB_MAX_CONNS positive")
	}
	if c.RedisPoolSize < 0 {
		return fmt.Errorf("REDIS_POOL_SIZE must not be negative")
	}
	return nil
}

// IsDev reports whether the service runs in a local development posture, where
// Postgres and Redis may be replaced by in-process fallbacks.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as an integer number of seconds, falling back to
// KEY parsed as a Go duration string.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
