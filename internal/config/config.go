package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the database connection information.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// AdminConfig holds configuration for the admin API. An empty password disables it.
type AdminConfig struct {
	Password string `yaml:"password"`
}

// RateLimitConfig controls the per-IP fixed windows of the two gated endpoints.
type RateLimitConfig struct {
	ValidateMaxRequests  int    `yaml:"validate_max_requests"`
	SummarizeMaxRequests int    `yaml:"summarize_max_requests"`
	Window               string `yaml:"window"`
	SweepInterval        string `yaml:"sweep_interval"`
	SweepMaxAge          string `yaml:"sweep_max_age"`
}

// SecurityConfig controls the in-memory audit log.
type SecurityConfig struct {
	MaxEvents      int    `yaml:"max_events"`
	TrimTo         int    `yaml:"trim_to"`
	BurstThreshold int    `yaml:"burst_threshold"`
	BurstWindow    string `yaml:"burst_window"`
}

// GitHubConfig holds settings for the GitHub REST client.
type GitHubConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Token             string  `yaml:"token"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SummaryConfig holds the LLM provider settings. Providers without a key are skipped.
type SummaryConfig struct {
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	Timeout       string `yaml:"timeout"`
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	UsageResetSpec string `yaml:"usage_reset_spec"`
}

// CORSConfig lists the browser origins allowed to call the public endpoints.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config holds the configuration for the gateway.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Admin     AdminConfig     `yaml:"admin"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`
	GitHub    GitHubConfig    `yaml:"github"`
	Summary   SummaryConfig   `yaml:"summary"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	CORS      CORSConfig      `yaml:"cors"`
	Port      int             `yaml:"port"`
	Debug     bool            `yaml:"debug"`
}

// LoadConfig reads and parses the configuration file. It returns the config and a potential warning message.
var LoadConfig = func(path string) (*Config, string, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err == nil {
		// File exists, so unmarshal it
		err = yaml.Unmarshal(data, &config)
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		// An error other than "not found" occurred
		return nil, "", fmt.Errorf("failed to read config file: %w", err)
	}
	// If file does not exist, we continue with an empty config and rely on environment variables.

	warnings := applyDefaults(&config)
	if err := applyEnv(&config); err != nil {
		return nil, "", err
	}
	if config.Admin.Password == "" {
		warnings = append(warnings, "admin.password not set, admin API is disabled")
	}

	if err := config.Validate(); err != nil {
		return nil, "", err
	}

	return &config, strings.Join(warnings, "; "), nil
}

func applyDefaults(c *Config) []string {
	var warnings []string

	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RateLimit.ValidateMaxRequests == 0 {
		c.RateLimit.ValidateMaxRequests = 5
	}
	if c.RateLimit.SummarizeMaxRequests == 0 {
		c.RateLimit.SummarizeMaxRequests = 10
	}
	if c.RateLimit.Window == "" {
		c.RateLimit.Window = "15m"
		warnings = append(warnings, "rate_limit.window not set, using default value of 15m")
	}
	if c.RateLimit.SweepInterval == "" {
		c.RateLimit.SweepInterval = "5m"
	}
	if c.RateLimit.SweepMaxAge == "" {
		c.RateLimit.SweepMaxAge = c.RateLimit.Window
	}
	if c.Security.MaxEvents == 0 {
		c.Security.MaxEvents = 1000
	}
	if c.Security.TrimTo == 0 {
		c.Security.TrimTo = 500
	}
	if c.Security.BurstThreshold == 0 {
		c.Security.BurstThreshold = 10
	}
	if c.Security.BurstWindow == "" {
		c.Security.BurstWindow = "5m"
	}
	if c.GitHub.BaseURL == "" {
		c.GitHub.BaseURL = "https://api.github.com"
	}
	if c.GitHub.Timeout == "" {
		c.GitHub.Timeout = "10s"
	}
	if c.GitHub.RequestsPerSecond == 0 {
		c.GitHub.RequestsPerSecond = 5
	}
	if c.Summary.OpenAIBaseURL == "" {
		c.Summary.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.Summary.OpenAIModel == "" {
		c.Summary.OpenAIModel = "gpt-3.5-turbo"
	}
	if c.Summary.GeminiModel == "" {
		c.Summary.GeminiModel = "gemini-1.5-flash"
	}
	if c.Summary.Timeout == "" {
		c.Summary.Timeout = "30s"
	}
	if c.Scheduler.UsageResetSpec == "" {
		c.Scheduler.UsageResetSpec = "@monthly"
		warnings = append(warnings, "scheduler.usage_reset_spec not set, using default value of @monthly")
	}

	return warnings
}

func applyEnv(c *Config) error {
	// Override with environment variables if they exist
	if dsn := os.Getenv("MARUNOSE_DATABASE_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if dbType := os.Getenv("MARUNOSE_DATABASE_TYPE"); dbType != "" {
		c.Database.Type = dbType
	}
	if port := os.Getenv("MARUNOSE_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid MARUNOSE_PORT %q: %w", port, err)
		}
		c.Port = p
	}
	if password := os.Getenv("MARUNOSE_ADMIN_PASSWORD"); password != "" {
		c.Admin.Password = password
	}
	if debug := os.Getenv("MARUNOSE_DEBUG"); debug != "" {
		c.Debug = (debug == "true")
	}
	if origins := os.Getenv("MARUNOSE_CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORS.AllowedOrigins = strings.Split(origins, ",")
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Summary.OpenAIAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Summary.GeminiAPIKey = key
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		c.GitHub.Token = token
	}
	return nil
}

// Validate checks the final configuration after defaults and overrides.
func (c *Config) Validate() error {
	if c.Database.Type == "" || c.Database.DSN == "" {
		return fmt.Errorf("database type and dsn must be configured in config.yaml or via environment variables")
	}
	if c.RateLimit.ValidateMaxRequests < 0 || c.RateLimit.SummarizeMaxRequests < 0 {
		return fmt.Errorf("rate_limit max requests must not be negative")
	}
	if c.Security.TrimTo > c.Security.MaxEvents {
		return fmt.Errorf("security.trim_to (%d) must not exceed security.max_events (%d)", c.Security.TrimTo, c.Security.MaxEvents)
	}
	durations := map[string]string{
		"rate_limit.window":         c.RateLimit.Window,
		"rate_limit.sweep_interval": c.RateLimit.SweepInterval,
		"rate_limit.sweep_max_age":  c.RateLimit.SweepMaxAge,
		"security.burst_window":     c.Security.BurstWindow,
		"github.timeout":            c.GitHub.Timeout,
		"summary.timeout":           c.Summary.Timeout,
	}
	for name, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}
	if c.RateLimit.SweepMaxAgeDuration() < c.RateLimit.WindowDuration() {
		return fmt.Errorf("rate_limit.sweep_max_age (%s) must not be shorter than rate_limit.window (%s)", c.RateLimit.SweepMaxAge, c.RateLimit.Window)
	}
	return nil
}

// WindowDuration returns the parsed rate limit window.
func (c RateLimitConfig) WindowDuration() time.Duration {
	return mustDuration(c.Window)
}

func (c RateLimitConfig) SweepIntervalDuration() time.Duration {
	return mustDuration(c.SweepInterval)
}

func (c RateLimitConfig) SweepMaxAgeDuration() time.Duration {
	return mustDuration(c.SweepMaxAge)
}

func (c SecurityConfig) BurstWindowDuration() time.Duration {
	return mustDuration(c.BurstWindow)
}

func (c GitHubConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout)
}

func (c SummaryConfig) TimeoutDuration() time.Duration {
	return mustDuration(c.Timeout)
}

// mustDuration is only called on values that passed Validate.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
