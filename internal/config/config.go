package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"exam-dashboard/internal/models"
)

const envPrefix = "DASHBOARD"

type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Logger   LoggerConfig   `envconfig:"LOG"`
	Security SecurityConfig `envconfig:"SECURITY"`
	Upload   UploadConfig   `envconfig:"UPLOAD"`
	Schema   SchemaConfig   `envconfig:"SCHEMA"`
}

type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"8084"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type LoggerConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

type SecurityConfig struct {
	EnableRateLimit bool     `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitRPS    int      `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst  int      `envconfig:"RATE_LIMIT_BURST" default:"20"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8084"`
	TrustedProxies  []string `envconfig:"TRUSTED_PROXIES" default:"127.0.0.1"`
	SecureCookies   bool     `envconfig:"SECURE_COOKIES" default:"false"`
}

// UploadConfig bounds what a single session may hold in memory.
type UploadConfig struct {
	MaxBytes       int64         `envconfig:"MAX_BYTES" default:"33554432"`
	CacheEntries   int           `envconfig:"CACHE_ENTRIES" default:"4"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	MaxSessions    int           `envconfig:"MAX_SESSIONS" default:"256"`
	MaxDisplayRows int           `envconfig:"MAX_DISPLAY_ROWS" default:"500"`
}

// SchemaConfig names the source columns. Files exported by other systems
// can be read by overriding these without code changes.
type SchemaConfig struct {
	DateColumn     string `envconfig:"DATE_COLUMN" default:"Examen.datum"`
	ResultColumn   string `envconfig:"RESULT_COLUMN" default:"Resultaat.uitslag"`
	LocationColumn string `envconfig:"LOCATION_COLUMN" default:"Algemeen.locatie_naam"`
	ProductColumn  string `envconfig:"PRODUCT_COLUMN" default:"Algemeen.product_code"`
	PassCode       string `envconfig:"PASS_CODE" default:"V"`
	FailCode       string `envconfig:"FAIL_CODE" default:"O"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	if c.Upload.CacheEntries <= 0 {
		return fmt.Errorf("upload cache entries must be positive")
	}

	if c.Upload.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Upload.MaxSessions <= 0 {
		return fmt.Errorf("max sessions must be positive")
	}

	if c.Schema.PassCode == "" || c.Schema.FailCode == "" {
		return fmt.Errorf("pass and fail codes cannot be empty")
	}

	if strings.EqualFold(c.Schema.PassCode, c.Schema.FailCode) {
		return fmt.Errorf("pass code and fail code must differ, both are %q", c.Schema.PassCode)
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ModelSchema converts the column configuration into the schema the loader
// and the view engine work with. Result codes are compared after the same
// upper-casing the loader applies to cell values.
func (c *Config) ModelSchema() models.Schema {
	return models.Schema{
		DateColumn:     c.Schema.DateColumn,
		ResultColumn:   c.Schema.ResultColumn,
		LocationColumn: c.Schema.LocationColumn,
		ProductColumn:  c.Schema.ProductColumn,
		PassCode:       strings.ToUpper(strings.TrimSpace(c.Schema.PassCode)),
		FailCode:       strings.ToUpper(strings.TrimSpace(c.Schema.FailCode)),
	}
}
