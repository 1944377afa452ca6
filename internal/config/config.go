// Package config loads service configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"BOOKMATE_HOST,default=0.0.0.0"`
	Port            int           `env:"BOOKMATE_PORT,default=8080"`
	ShutdownTimeout time.Duration `env:"BOOKMATE_SHUTDOWN_TIMEOUT,default=10s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig controls the Postgres pool.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
}

// LoggingConfig selects level and format.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

// AppsScriptConfig is the webhook of the default tenant.
type AppsScriptConfig struct {
	URL     string        `env:"APPS_SCRIPT_URL"`
	Secret  string        `env:"APPS_SCRIPT_SECRET"`
	Timeout time.Duration `env:"APPS_SCRIPT_TIMEOUT,default=30s"`
}

// GoogleConfig holds service-account credentials and the default sheet.
type GoogleConfig struct {
	CredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	SheetID         string `env:"GOOGLE_SHEET_ID"`
}

// HasCredentials reports whether Sheets access is configured.
func (g GoogleConfig) HasCredentials() bool {
	return strings.TrimSpace(g.CredentialsJSON) != "" || strings.TrimSpace(g.CredentialsFile) != ""
}

// CacheConfig selects the cache backend and TTLs.
type CacheConfig struct {
	Backend  string        `env:"BOOKMATE_CACHE_BACKEND,default=memory"`
	RedisURL string        `env:"REDIS_URL"`
	TTL      time.Duration `env:"BOOKMATE_CACHE_TTL,default=60s"`
	InboxTTL time.Duration `env:"BOOKMATE_INBOX_TTL,default=5s"`
}

// AuthConfig holds the service token secret.
type AuthConfig struct {
	ServiceSecret string        `env:"BOOKMATE_SERVICE_SECRET"`
	TokenTTL      time.Duration `env:"BOOKMATE_TOKEN_TTL,default=1h"`
}

// HTTPConfig holds CORS and rate-limit settings.
type HTTPConfig struct {
	CORSAllowedOrigins string  `env:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64 `env:"BOOKMATE_RATE_LIMIT_RPS,default=10"`
	RateLimitBurst     int     `env:"BOOKMATE_RATE_LIMIT_BURST,default=20"`
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (h HTTPConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(h.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ReconcileConfig schedules reconciliation.
type ReconcileConfig struct {
	// Cron is a robfig/cron spec; "off" disables scheduled runs.
	Cron      string        `env:"BOOKMATE_RECONCILE_CRON,default=@every 6h"`
	Retention time.Duration `env:"BOOKMATE_RUN_RETENTION,default=720h"`
	Tolerance string        `env:"BOOKMATE_DRIFT_TOLERANCE,default=0.01"`
}

// Enabled reports whether a schedule is configured.
func (r ReconcileConfig) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(r.Cron)) {
	case "", "off", "disabled", "-":
		return false
	}
	return true
}

// ToleranceDecimal parses Tolerance. Validate guarantees it parses.
func (r ReconcileConfig) ToleranceDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(r.Tolerance))
	if err != nil {
		return decimal.New(1, -2)
	}
	return d
}

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	AppsScript AppsScriptConfig
	Google     GoogleConfig
	Cache      CacheConfig
	Auth       AuthConfig
	HTTP       HTTPConfig
	Reconcile  ReconcileConfig

	DefaultTenant string `env:"BOOKMATE_DEFAULT_TENANT"`
	LayoutFile    string `env:"BOOKMATE_LAYOUT_FILE"`
}

// Load reads an optional .env from the working directory, decodes the
// environment and validates the result.
func Load() (*Config, error) {
	return LoadFromEnvFile(".env")
}

// LoadFromEnvFile is Load with an explicit .env path. A missing file is not an error.
func LoadFromEnvFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	cfg, err := Decode()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode reads the environment without validating.
func Decode() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.Auth.ServiceSecret) < 16 {
		errs = append(errs, errors.New("BOOKMATE_SERVICE_SECRET must be at least 16 characters"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("BOOKMATE_PORT %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Cache.Backend) {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.RedisURL) == "" {
			errs = append(errs, errors.New("REDIS_URL is required when BOOKMATE_CACHE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("BOOKMATE_CACHE_BACKEND must be memory or redis, got %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 || c.Cache.InboxTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if d, err := decimal.NewFromString(strings.TrimSpace(c.Reconcile.Tolerance)); err != nil || d.IsNegative() {
		errs = append(errs, fmt.Errorf("BOOKMATE_DRIFT_TOLERANCE %q is not a non-negative number", c.Reconcile.Tolerance))
	}
	if c.Reconcile.Retention < 0 {
		errs = append(errs, errors.New("BOOKMATE_RUN_RETENTION must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// HasDefaultTenant reports whether enough is configured to seed a tenant at start-up.
func (c *Config) HasDefaultTenant() bool {
	return strings.TrimSpace(c.DefaultTenant) != "" &&
		strings.TrimSpace(c.Google.SheetID) != "" &&
		strings.TrimSpace(c.AppsScript.URL) != "" &&
		c.AppsScript.Secret != ""
}
