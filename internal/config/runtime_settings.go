package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/carshop-agent/internal/llm"
	"github.com/robfig/cron/v3"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the operator overrides kept next to the data. They
// win over the environment at startup.
type RuntimeSettings struct {
	LLMAPIURL  string `json:"llm_api_url"`
	LLMAPIKey  string `json:"llm_api_key"`
	LLMModel   string `json:"llm_model"`
	AuthFormat string `json:"llm_auth_format,omitempty"`
	AuditCron  string `json:"audit_cron"`
	AgentSteps int    `json:"agent_max_steps,omitempty"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.LLMAPIURL) == "" {
		return fmt.Errorf("llm_api_url is required")
	}
	if strings.TrimSpace(s.LLMAPIKey) == "" {
		return fmt.Errorf("llm_api_key is required")
	}
	if strings.TrimSpace(s.LLMModel) == "" {
		return fmt.Errorf("llm_model is required")
	}
	if _, err := llm.ParseAuthFormat(s.AuthFormat); err != nil {
		return fmt.Errorf("invalid llm_auth_format: %w", err)
	}
	if strings.TrimSpace(s.AuditCron) == "" {
		return fmt.Errorf("audit_cron is required")
	}
	if _, err := cron.ParseStandard(s.AuditCron); err != nil {
		return fmt.Errorf("invalid audit_cron: %w", err)
	}
	if s.AgentSteps < 0 {
		return fmt.Errorf("agent_max_steps must not be negative")
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		LLMAPIURL:  c.LLM.APIURL,
		LLMAPIKey:  c.LLM.APIKey,
		LLMModel:   c.LLM.Model,
		AuthFormat: string(c.LLM.AuthFormat),
		AuditCron:  c.Audit.CronExpr,
		AgentSteps: c.Agent.MaxSteps,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.LLMAPIURL) != "" {
			c.LLM.APIURL = settings.LLMAPIURL
		}
		if strings.TrimSpace(settings.LLMAPIKey) != "" {
			c.LLM.APIKey = settings.LLMAPIKey
		}
		if strings.TrimSpace(settings.LLMModel) != "" {
			c.LLM.Model = settings.LLMModel
		}
		if format, err := llm.ParseAuthFormat(settings.AuthFormat); err == nil && settings.AuthFormat != "" {
			c.LLM.AuthFormat = format
		}
		if strings.TrimSpace(settings.AuditCron) != "" {
			c.Audit.CronExpr = settings.AuditCron
		}
		if settings.AgentSteps > 0 {
			c.Agent.MaxSteps = settings.AgentSteps
		}
	}
}

// LoadRuntimeSettingsFile reads the settings file. A missing file yields
// an error matching os.ErrNotExist.
func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

// OptionalRuntimeSettings loads path when it exists.
func OptionalRuntimeSettings(path string) ([]Option, error) {
	settings, err := LoadRuntimeSettingsFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []Option{WithRuntimeSettings(settings)}, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore serves and persists the settings from the admin
// API. Updates take effect on the next start.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

// GetRuntimeSettings returns the current settings with the API key masked.
func (s *RuntimeSettingsStore) GetRuntimeSettings() RuntimeSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	out.LLMAPIKey = maskSecret(out.LLMAPIKey)
	return out
}

// UpdateRuntimeSettings validates and persists next. A masked or blank
// API key keeps the stored one.
func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(next.LLMAPIKey) == "" || next.LLMAPIKey == maskSecret(s.current.LLMAPIKey) {
		next.LLMAPIKey = s.current.LLMAPIKey
	}
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.current = next
	out := next
	out.LLMAPIKey = maskSecret(out.LLMAPIKey)
	return out, nil
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
