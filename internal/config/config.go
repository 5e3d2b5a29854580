package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/booking"
	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/MimeLyc/carshop-agent/pkg/log"
	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration: see llm.Config (LLM_API_KEY, LLM_API_URL, LLM_MODEL, ...)
//
// Server Configuration:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_STATIC_DIR: directory of a built web UI to serve at / (optional)
// - HTTP_REQUEST_TIMEOUT: seconds allowed for a non-streaming request (default: 120)
// - ADMIN_TOKEN: bearer token for /api/admin endpoints (admin API disabled when unset)
//
// Store Configuration:
// - STORE_DRIVER: sqlite or postgres (default: sqlite)
// - DATA_DIR: directory of the SQLite database (default: /app/data)
// - DATABASE_URL: Postgres connection string (required for postgres)
//
// Collaborators:
// - AUTH_URL, AUTH_API_KEY: identity service; the store's sessions are used when unset
// - RESEND_API_KEY, RESEND_BASE_URL, EMAIL_FROM, EMAIL_ORGANIZER, OUTBOX_WORKERS
// - BOOKING_BASE_URL: booking collaborator; in-process when unset
// - BOOKING_TZ: time zone of scheduling hints (default: America/Chicago)
// - RETELL_API_KEY: voice-agent webhook signing key
// - DEALERSHIPS_FILE: YAML list of dealership locations (optional)
//
// Agent and Audit:
// - AGENT_MAX_STEPS: model calls per turn (default: 10)
// - AUDIT_ENABLED, AUDIT_CRON (default: 0 * * * *), AUDIT_REPAIR
type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     llm.Config    `json:"llm"`
	Store   StoreConfig   `json:"store"`
	Auth    AuthConfig    `json:"auth"`
	Email   EmailConfig   `json:"email"`
	Booking BookingConfig `json:"booking"`
	Agent   AgentConfig   `json:"agent"`
	Audit   AuditConfig   `json:"audit"`
	Retell  RetellConfig  `json:"retell"`

	// Dealerships is the location directory used for test drives
	Dealerships booking.Directory `json:"-"`
}

type ServerConfig struct {
	Addr           string `json:"addr"`
	UIStaticDir    string `json:"ui_static_dir"`
	RequestTimeout int    `json:"request_timeout"`
	AdminToken     string `json:"-"`
}

type StoreConfig struct {
	Driver      string `json:"driver"`
	DataDir     string `json:"data_dir"`
	DatabaseURL string `json:"-"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type AuthConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"`
}

type EmailConfig struct {
	APIKey    string `json:"-"`
	BaseURL   string `json:"base_url"`
	From      string `json:"from"`
	Organizer string `json:"organizer"`
	Workers   int    `json:"workers"`
}

type BookingConfig struct {
	BaseURL  string `json:"base_url"`
	TimeZone string `json:"time_zone"`
}

type AgentConfig struct {
	MaxSteps int `json:"max_steps"`
}

type AuditConfig struct {
	Enabled  bool   `json:"enabled"`
	CronExpr string `json:"cron_expr"`
	Repair   bool   `json:"repair"`
}

type RetellConfig struct {
	APIKey string `json:"-"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Addr:           getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir:    getEnvString("UI_STATIC_DIR", ""),
			RequestTimeout: getEnvInt("HTTP_REQUEST_TIMEOUT", 120),
			AdminToken:     getEnvString("ADMIN_TOKEN", ""),
		},
		LLM: llm.Config{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "nvidia/llama-3.3-nemotron-super-49b-v1.5"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.6),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "Toyotron"),
			AuthFormat:  llm.AuthFormat(getEnvString("LLM_AUTH_FORMAT", string(llm.AuthAuto))),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(getEnvString("STORE_DRIVER", DriverSQLite)),
			DataDir:     getEnvString("DATA_DIR", "/app/data"),
			DatabaseURL: getEnvString("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			BaseURL: getEnvString("AUTH_URL", ""),
			APIKey:  getEnvString("AUTH_API_KEY", ""),
		},
		Email: EmailConfig{
			APIKey:    getEnvString("RESEND_API_KEY", ""),
			BaseURL:   getEnvString("RESEND_BASE_URL", "https://api.resend.com"),
			From:      getEnvString("EMAIL_FROM", "Toyotron <noreply@toyotron.local>"),
			Organizer: getEnvString("EMAIL_ORGANIZER", "noreply@toyotron.local"),
			Workers:   getEnvInt("OUTBOX_WORKERS", 2),
		},
		Booking: BookingConfig{
			BaseURL:  getEnvString("BOOKING_BASE_URL", ""),
			TimeZone: getEnvString("BOOKING_TZ", "America/Chicago"),
		},
		Agent: AgentConfig{
			MaxSteps: getEnvInt("AGENT_MAX_STEPS", 10),
		},
		Audit: AuditConfig{
			Enabled:  getEnvBool("AUDIT_ENABLED", true),
			CronExpr: getEnvString("AUDIT_CRON", "0 * * * *"),
			Repair:   getEnvBool("AUDIT_REPAIR", false),
		},
		Retell: RetellConfig{
			APIKey: getEnvString("RETELL_API_KEY", ""),
		},
		Dealerships: booking.DefaultDirectory(),
	}

	if path := getEnvString("DEALERSHIPS_FILE", ""); path != "" {
		dir, err := LoadDealerships(path)
		if err != nil {
			return nil, err
		}
		config.Dealerships = dir
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config: addr=%s store=%s model=%s audit=%v dealerships=%v",
		config.Server.Addr, config.Store.Driver, config.LLM.Model, config.Audit.Enabled, config.Dealerships.Keys())
	return config, nil
}

// validate reports every malformed setting at once. Missing collaborator
// credentials are not an error here; the Require* checks surface them when
// the collaborator is used.
func (c *Config) validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Server.Addr) == "" {
		result = multierror.Append(result, fmt.Errorf("HTTP_ADDR must not be empty"))
	}
	if c.Server.RequestTimeout < 1 {
		result = multierror.Append(result, fmt.Errorf("HTTP_REQUEST_TIMEOUT must be greater than 0"))
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.DataDir) == "" {
			result = multierror.Append(result, fmt.Errorf("DATA_DIR is required for the sqlite store"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_URL is required for the postgres store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORE_DRIVER %q is not supported (want sqlite or postgres)", c.Store.Driver))
	}
	if _, err := llm.ParseAuthFormat(string(c.LLM.AuthFormat)); err != nil {
		result = multierror.Append(result, fmt.Errorf("LLM_AUTH_FORMAT: %w", err))
	}
	if c.LLM.MaxTokens < 1 {
		result = multierror.Append(result, fmt.Errorf("LLM_MAX_TOKENS must be greater than 0"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2"))
	}
	if c.LLM.Timeout < 1 {
		result = multierror.Append(result, fmt.Errorf("LLM_TIMEOUT must be greater than 0"))
	}
	if c.Agent.MaxSteps < 1 {
		result = multierror.Append(result, fmt.Errorf("AGENT_MAX_STEPS must be greater than 0"))
	}
	if c.Email.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("OUTBOX_WORKERS must be greater than 0"))
	}
	if _, err := time.LoadLocation(c.Booking.TimeZone); err != nil {
		result = multierror.Append(result, fmt.Errorf("BOOKING_TZ: %w", err))
	}
	if c.Audit.Enabled {
		if _, err := cron.ParseStandard(c.Audit.CronExpr); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid AUDIT_CRON: %w", err))
		}
	}
	if len(c.Dealerships) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one dealership location is required"))
	}

	return result.ErrorOrNil()
}

// DBPath is the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.Store.DataDir, "carshop.db")
}

// BookingLocation is the zone scheduling hints resolve in. validate has
// already checked it loads.
func (c *Config) BookingLocation() *time.Location {
	loc, err := time.LoadLocation(c.Booking.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequireLLM fails when the model endpoint cannot be called.
func (c *Config) RequireLLM() error {
	return missing(map[string]string{
		"LLM_API_KEY": c.LLM.APIKey,
		"LLM_API_URL": c.LLM.APIURL,
		"LLM_MODEL":   c.LLM.Model,
	})
}

// RequireEmail fails when confirmation and voice emails cannot be sent.
func (c *Config) RequireEmail() error {
	return missing(map[string]string{"RESEND_API_KEY": c.Email.APIKey})
}

// RequireRetell fails when webhook signatures cannot be checked.
func (c *Config) RequireRetell() error {
	return missing(map[string]string{"RETELL_API_KEY": c.Retell.APIKey})
}

// RequireAdmin fails when the admin API has no token to check against.
func (c *Config) RequireAdmin() error {
	return missing(map[string]string{"ADMIN_TOKEN": c.Server.AdminToken})
}

func missing(values map[string]string) error {
	keys := make([]string, 0)
	for k, v := range values {
		if strings.TrimSpace(v) == "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return apperr.New(apperr.KindConfig, "missing configuration: "+strings.Join(keys, ", ")).
		WithContext("missing", keys)
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
