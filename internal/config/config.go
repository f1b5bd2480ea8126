package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"inventory-ledger/internal/logger"
)

type Config struct {
	// Database
	DatabaseURL     string
	TestDatabaseURL string
	DBMaxConns      int32

	// HTTP server
	ServerPort     string
	AllowedOrigins []string
	JWTSecret      string

	// Costing
	CostPrecision  int32
	ValuePrecision int32

	// CLI session, used when no bearer token is involved
	DefaultActorID int
	CompanyID      int
	WarehouseID    *int

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads .env (when present) and the environment. Missing keys take their defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		v, err := getInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	c := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		TestDatabaseURL: getEnv("TEST_DATABASE_URL", ""),
		DBMaxConns:      int32(intVar("DB_MAX_CONNS", 0)),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		CostPrecision:   int32(intVar("COST_PRECISION", 4)),
		ValuePrecision:  int32(intVar("VALUE_PRECISION", 2)),
		DefaultActorID:  intVar("DEFAULT_ACTOR_ID", 1),
		CompanyID:       intVar("COMPANY_ID", 1),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:   getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:       getEnv("LOG_OUTPUT", "stderr"),
	}
	if wh := intVar("WAREHOUSE_ID", 0); wh != 0 {
		c.WarehouseID = &wh
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.CostPrecision < 0 || c.CostPrecision > 10 {
		return fmt.Errorf("COST_PRECISION must be between 0 and 10, got %d", c.CostPrecision)
	}
	if c.ValuePrecision < 0 || c.ValuePrecision > 10 {
		return fmt.Errorf("VALUE_PRECISION must be between 0 and 10, got %d", c.ValuePrecision)
	}
	if c.DBMaxConns < 0 {
		return fmt.Errorf("DB_MAX_CONNS must not be negative, got %d", c.DBMaxConns)
	}
	if c.CompanyID <= 0 {
		return fmt.Errorf("COMPANY_ID must be positive, got %d", c.CompanyID)
	}
	return nil
}

// RequireServer checks the settings only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
