package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"dashboard-service/internal/pkg/jwt"
	"dashboard-service/internal/pkg/otp"
	"dashboard-service/internal/pkg/session"
	otpengine "dashboard-service/internal/service/otp"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type AppConfig struct {
	Env string `env:"APP_ENV" envDefault:"production"`

	Server     ServerConfig     `envPrefix:"HTTP_"`
	Postgres   PostgresConfig   `envPrefix:"DB_"`
	Redis      RedisConfig      `envPrefix:"REDIS_"`
	JWT        JWTConfig        `envPrefix:"JWT_"`
	OTP        OTPConfig        `envPrefix:"OTP_"`
	Reset      ResetConfig      `envPrefix:"RESET_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Cookie     CookieConfig     `envPrefix:"COOKIE_"`
	SMTP       SMTPConfig       `envPrefix:"SMTP_"`
	SuperAdmin SuperAdminConfig `envPrefix:"SUPER_ADMIN_"`
	Routes     RouteConfig      `envPrefix:"ROUTE_"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

type ServerConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8000"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type PostgresConfig struct {
	URL         string `env:"URL"`
	MaxConns    int32  `env:"MAX_CONNS" envDefault:"10"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
}

type RedisConfig struct {
	ClusterMode bool     `env:"CLUSTER" envDefault:"false"`
	Addresses   []string `env:"ADDRS" envSeparator:"," envDefault:"localhost:6379"`
	Password    string   `env:"PASS"`
	DB          int      `env:"DB" envDefault:"0"`
	PoolSize    int      `env:"POOL_SIZE" envDefault:"10"`
}

type JWTConfig struct {
	PrivateKeyPath string        `env:"PRIVATE_KEY_PATH" envDefault:"/app/secrets/jwt_private.pem"`
	PublicKeyPath  string        `env:"PUBLIC_KEY_PATH" envDefault:"/app/secrets/jwt_public.pem"`
	Issuer         string        `env:"ISSUER" envDefault:"dashboard-service"`
	Audience       string        `env:"AUDIENCE" envDefault:"dashboard"`
	KID            string        `env:"KID" envDefault:"dashboard-key"`
	MaxLifetime    time.Duration `env:"MAX_LIFETIME" envDefault:"720h"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"8h"`
}

type OTPConfig struct {
	Length int           `env:"LENGTH" envDefault:"6"`
	TTL    time.Duration `env:"TTL" envDefault:"10m"`
	Secret string        `env:"SECRET"`
	Policy string        `env:"POLICY" envDefault:"latest_wins"`
	Store  string        `env:"STORE" envDefault:"postgres"`
}

type ResetConfig struct {
	TicketTTL         time.Duration `env:"TICKET_TTL" envDefault:"15m"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH" envDefault:"8"`
}

type RateLimitConfig struct {
	LoginAttempts int64         `env:"LOGIN_ATTEMPTS" envDefault:"5"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	ResetRequests int64         `env:"RESET_REQUESTS" envDefault:"3"`
	ResetWindow   time.Duration `env:"RESET_WINDOW" envDefault:"1h"`
	OTPAttempts   int64         `env:"OTP_ATTEMPTS" envDefault:"5"`
	OTPWindow     time.Duration `env:"OTP_WINDOW" envDefault:"10m"`
}

type CookieConfig struct {
	Name   string `env:"NAME" envDefault:"dashboard_session"`
	Secure bool   `env:"SECURE" envDefault:"true"`
}

type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"465"`
	User     string `env:"USER"`
	Pass     string `env:"PASS"`
	FromName string `env:"FROM_NAME" envDefault:"Dashboard"`
	Secure   bool   `env:"SECURE" envDefault:"true"`
}

type SuperAdminConfig struct {
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
	FullName string `env:"FULL_NAME" envDefault:"Super Admin"`
}

// RouteConfig feeds the route access policy. Protected and public entries
// are path prefixes.
type RouteConfig struct {
	LoginPath          string        `env:"LOGIN_PATH" envDefault:"/login"`
	DashboardPath      string        `env:"DASHBOARD_PATH" envDefault:"/dashboard"`
	Protected          []string      `env:"PROTECTED" envSeparator:"," envDefault:"/dashboard,/api/v1,/ws"`
	Public             []string      `env:"PUBLIC" envSeparator:"," envDefault:"/api/v1/auth/login,/api/v1/auth/reset,/api/v1/health"`
	RefreshGranularity time.Duration `env:"REFRESH_GRANULARITY" envDefault:"1m"`
}

// Load parses the environment into AppConfig and validates it.
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate checks cross-field rules. In development a missing OTP secret is
// replaced by a random per-process one.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Postgres.URL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if len(c.Redis.Addresses) == 0 {
		errs = append(errs, errors.New("REDIS_ADDRS is required"))
	}

	if c.OTP.Secret == "" && c.IsDevelopment() {
		c.OTP.Secret = randomSecret()
	}
	if len(c.OTP.Secret) < 16 {
		errs = append(errs, errors.New("OTP_SECRET must be at least 16 bytes"))
	}
	if c.OTP.Length <= 0 || c.OTP.Length > otp.MaxLength {
		errs = append(errs, fmt.Errorf("OTP_LENGTH must be between 1 and %d", otp.MaxLength))
	}
	if c.OTP.TTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if _, err := otpengine.ParsePolicy(c.OTP.Policy); err != nil {
		errs = append(errs, fmt.Errorf("OTP_POLICY: %w", err))
	}
	switch c.OTP.Store {
	case StorePostgres, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("OTP_STORE must be %q or %q", StorePostgres, StoreRedis))
	}

	if c.JWT.MaxLifetime <= 0 || c.JWT.IdleTimeout <= 0 {
		errs = append(errs, errors.New("JWT_MAX_LIFETIME and JWT_IDLE_TIMEOUT must be positive"))
	}
	if c.Reset.TicketTTL <= 0 {
		errs = append(errs, errors.New("RESET_TICKET_TTL must be positive"))
	}
	if c.Reset.MinPasswordLength <= 0 {
		errs = append(errs, errors.New("RESET_MIN_PASSWORD_LENGTH must be positive"))
	}
	if !strings.HasPrefix(c.Routes.LoginPath, "/") || !strings.HasPrefix(c.Routes.DashboardPath, "/") {
		errs = append(errs, errors.New("ROUTE_LOGIN_PATH and ROUTE_DASHBOARD_PATH must be absolute paths"))
	}

	return errors.Join(errs...)
}

// TokenConfig maps the JWT section onto the token service config.
func (c AppConfig) TokenConfig() jwt.Config {
	return jwt.Config{
		PrivPath:    c.JWT.PrivateKeyPath,
		PubPath:     c.JWT.PublicKeyPath,
		Issuer:      c.JWT.Issuer,
		Audience:    c.JWT.Audience,
		KID:         c.JWT.KID,
		MaxLifetime: c.JWT.MaxLifetime,
		IdleTimeout: c.JWT.IdleTimeout,
	}
}

// EngineConfig maps the OTP section onto the verification engine config.
// Validate has already rejected an unknown policy.
func (c AppConfig) EngineConfig() otpengine.Config {
	policy, _ := otpengine.ParsePolicy(c.OTP.Policy)
	return otpengine.Config{
		Length: c.OTP.Length,
		TTL:    c.OTP.TTL,
		Policy: policy,
	}
}

func (c AppConfig) Limits() session.Limits {
	return session.Limits{
		LoginAttempts: c.RateLimit.LoginAttempts,
		LoginWindow:   c.RateLimit.LoginWindow,
		ResetRequests: c.RateLimit.ResetRequests,
		ResetWindow:   c.RateLimit.ResetWindow,
		OTPAttempts:   c.RateLimit.OTPAttempts,
		OTPWindow:     c.RateLimit.OTPWindow,
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("config: read random secret: %v", err))
	}
	return hex.EncodeToString(b)
}
