package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"go-auth-server/internal/throttle"
)

type Config struct {
	ServerPort              string        `env:"SERVER_PORT" envDefault:"8080"`
	ServerReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"15s"`
	ServerWriteTimeout      time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	ServerIdleTimeout       time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	RequestTimeout          time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	CORSOrigins             []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	// TrustedProxyCount is how many reverse proxies append to X-Forwarded-For; 0 ignores it.
	TrustedProxyCount int `env:"TRUSTED_PROXY_COUNT" envDefault:"0"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"pretty"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret                string `env:"JWT_SECRET"`
	JWTIssuer                string `env:"JWT_ISSUER" envDefault:"go-auth-server"`
	ClientCredentialsRefresh bool   `env:"CLIENT_CREDENTIALS_REFRESH" envDefault:"false"`
	AllowPlainPKCE           bool   `env:"ALLOW_PKCE_PLAIN" envDefault:"true"`

	// SecretEncryptionKey is base64 of the 32-byte key sealing client signing secrets.
	SecretEncryptionKey string `env:"SECRET_ENCRYPTION_KEY"`

	LoginMaxAttempts   int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	LoginLockoutWindow time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"30m"`

	AuthRealm              string        `env:"AUTH_REALM" envDefault:"api"`
	HMACTimestampHeader    string        `env:"HMAC_TIMESTAMP_HEADER" envDefault:"Timestamp"`
	HMACNonceHeader        string        `env:"HMAC_NONCE_HEADER" envDefault:"Nonce"`
	HMACTimestampThreshold time.Duration `env:"HMAC_TIMESTAMP_THRESHOLD" envDefault:"300s"`
	HMACMaxBodyBytes       int64         `env:"HMAC_MAX_BODY_BYTES" envDefault:"1048576"`

	ThrottleEnabled       bool   `env:"THROTTLE_ENABLED" envDefault:"true"`
	ThrottleAnonRate      string `env:"THROTTLE_ANON_RATE" envDefault:"6/m"`
	ThrottleBurstRate     string `env:"THROTTLE_BURST_RATE" envDefault:"60/m"`
	ThrottleSustainedRate string `env:"THROTTLE_SUSTAINED_RATE" envDefault:"10000/d"`

	AuthRateLimitRPM int `env:"AUTH_RATE_LIMIT_RPM" envDefault:"30"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"auth.security-events"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if _, err := c.EncryptionKey(); err != nil {
		return err
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}

	if c.LoginLockoutWindow <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_WINDOW must be positive")
	}

	if c.HMACTimestampThreshold <= 0 {
		return fmt.Errorf("HMAC_TIMESTAMP_THRESHOLD must be positive")
	}

	if c.HMACMaxBodyBytes <= 0 {
		return fmt.Errorf("HMAC_MAX_BODY_BYTES must be positive")
	}

	if c.TrustedProxyCount < 0 {
		return fmt.Errorf("TRUSTED_PROXY_COUNT must not be negative")
	}

	if _, err := c.ThrottleTiers(); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or pretty")
	}

	return nil
}

func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.SecretEncryptionKey))
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY must be base64 of 32 bytes")
	}
	return key, nil
}

func (c *Config) ThrottleTiers() ([]throttle.Tier, error) {
	return throttle.TierConfig{
		Anon:      c.ThrottleAnonRate,
		Burst:     c.ThrottleBurstRate,
		Sustained: c.ThrottleSustainedRate,
	}.Tiers()
}
