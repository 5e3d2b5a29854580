package llm

import (
	"fmt"
	"strings"
)

// AuthFormat is how the API key is presented in the Authorization header.
type AuthFormat string

const (
	// AuthAuto tests the provider once at client construction.
	AuthAuto   AuthFormat = "auto"
	AuthBearer AuthFormat = "bearer"
	// AuthRaw sends the key without the "Bearer " prefix.
	AuthRaw AuthFormat = "raw"
)

func ParseAuthFormat(s string) (AuthFormat, error) {
	switch AuthFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", AuthAuto:
		return AuthAuto, nil
	case AuthBearer:
		return AuthBearer, nil
	case AuthRaw:
		return AuthRaw, nil
	}
	return "", fmt.Errorf("unknown auth format %q (want auto, bearer or raw)", s)
}

// Config holds the configuration for LLM client
// Works with any OpenAI-compatible chat completions endpoint
//
// Environment Variables:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: nvidia/llama-3.3-nemotron-super-49b-v1.5)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 1024)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.6)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
// - LLM_AUTH_FORMAT: auto, bearer or raw (default: auto)
type Config struct {
	APIKey      string     `json:"api_key"`
	APIURL      string     `json:"api_url"`
	Model       string     `json:"model"`
	MaxTokens   int        `json:"max_tokens"`
	Temperature float64    `json:"temperature"`
	Timeout     int        `json:"timeout"`
	SiteURL     string     `json:"site_url"`
	AppName     string     `json:"app_name"`
	AuthFormat  AuthFormat `json:"auth_format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if _, err := ParseAuthFormat(string(c.AuthFormat)); err != nil {
		return err
	}
	return nil
}

// GetHeaders returns the attribution headers sent with every request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}

// Authorization renders the header value for the given format.
func (c *Config) Authorization(format AuthFormat) string {
	if format == AuthRaw {
		return c.APIKey
	}
	return "Bearer " + c.APIKey
}
