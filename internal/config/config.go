// ABOUTME: Configuration loading and parsing for rocketlauncher
// ABOUTME: Supports YAML or TOML files with .env loading, env var expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values applied when a field is left empty
const (
	DefaultAssistantsBaseURL = "https://api.openai.com/v1"
	DefaultPollInterval      = time.Second
	DefaultRunTimeout        = 60 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultWorkflowTimeout   = 120 * time.Second
	DefaultSessionTTL        = 30 * time.Minute
	DefaultSubmitDedupeTTL   = 5 * time.Minute
	DefaultSendRate          = 1.0
	DefaultSendBurst         = 3
	DefaultDatabaseDriver    = "sqlite"
)

// Config represents the complete rocketlauncher configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Session    SessionConfig    `yaml:"session" toml:"session"`
	Workflows  WorkflowsConfig  `yaml:"workflows" toml:"workflows"`
	Assistants AssistantsConfig `yaml:"assistants" toml:"assistants"`
	Chat       ChatConfig       `yaml:"chat" toml:"chat"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// DatabaseConfig holds document store configuration
type DatabaseConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
}

// SessionConfig holds browser session cookie configuration
type SessionConfig struct {
	Secret       string `yaml:"secret" toml:"secret"`
	CookieSecure bool   `yaml:"cookie_secure" toml:"cookie_secure"`
}

// WorkflowsConfig configures the external workflow prediction service
type WorkflowsConfig struct {
	BaseURL     string        `yaml:"base_url" toml:"base_url"`
	APIKey      string        `yaml:"api_key" toml:"api_key"`
	SendHistory bool          `yaml:"send_history" toml:"send_history"`
	Timeout     time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// AssistantsConfig configures the external assistants (threads/runs) service
type AssistantsConfig struct {
	APIKey         string        `yaml:"api_key" toml:"api_key"`
	BaseURL        string        `yaml:"base_url" toml:"base_url"`
	PollInterval   time.Duration `yaml:"-" toml:"-"`
	RunTimeout     time.Duration `yaml:"-" toml:"-"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	PollIntervalRaw   string `yaml:"poll_interval" toml:"poll_interval"`
	RunTimeoutRaw     string `yaml:"run_timeout" toml:"run_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// ChatConfig holds chat session behaviour
type ChatConfig struct {
	PersistTranscripts bool          `yaml:"persist_transcripts" toml:"persist_transcripts"`
	SendRate           float64       `yaml:"send_rate" toml:"send_rate"`
	SendBurst          int           `yaml:"send_burst" toml:"send_burst"`
	SessionTTL         time.Duration `yaml:"-" toml:"-"`
	SubmitDedupeTTL    time.Duration `yaml:"-" toml:"-"`

	SessionTTLRaw      string `yaml:"session_ttl" toml:"session_ttl"`
	SubmitDedupeTTLRaw string `yaml:"submit_dedupe_ttl" toml:"submit_dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// A .env file next to the config (or in the working directory) is loaded first so
// that ${VAR_NAME} references can resolve to it. Files ending in .toml are parsed
// as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loadDotEnv(path)

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set
func loadDotEnv(configPath string) {
	candidates := []string{
		filepath.Join(filepath.Dir(configPath), ".env"),
		".env",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero values
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Assistants.BaseURL == "" {
		c.Assistants.BaseURL = DefaultAssistantsBaseURL
	}
	if c.Assistants.PollInterval == 0 {
		c.Assistants.PollInterval = DefaultPollInterval
	}
	if c.Assistants.RunTimeout == 0 {
		c.Assistants.RunTimeout = DefaultRunTimeout
	}
	if c.Assistants.RequestTimeout == 0 {
		c.Assistants.RequestTimeout = DefaultRequestTimeout
	}
	if c.Workflows.Timeout == 0 {
		c.Workflows.Timeout = DefaultWorkflowTimeout
	}
	if c.Chat.SessionTTL == 0 {
		c.Chat.SessionTTL = DefaultSessionTTL
	}
	if c.Chat.SubmitDedupeTTL == 0 {
		c.Chat.SubmitDedupeTTL = DefaultSubmitDedupeTTL
	}
	if c.Chat.SendRate == 0 {
		c.Chat.SendRate = DefaultSendRate
	}
	if c.Chat.SendBurst == 0 {
		c.Chat.SendBurst = DefaultSendBurst
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 bytes")
	}

	if c.Workflows.BaseURL == "" {
		return fmt.Errorf("workflows.base_url is required")
	}

	if c.Assistants.APIKey == "" {
		return fmt.Errorf("assistants.api_key is required")
	}

	if c.Assistants.PollInterval < 0 || c.Assistants.RunTimeout < 0 {
		return fmt.Errorf("assistants.poll_interval and assistants.run_timeout must be positive")
	}

	if c.Chat.SendRate < 0 || c.Chat.SendBurst < 0 {
		return fmt.Errorf("chat.send_rate and chat.send_burst must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"workflows.timeout", cfg.Workflows.TimeoutRaw, &cfg.Workflows.Timeout},
		{"assistants.poll_interval", cfg.Assistants.PollIntervalRaw, &cfg.Assistants.PollInterval},
		{"assistants.run_timeout", cfg.Assistants.RunTimeoutRaw, &cfg.Assistants.RunTimeout},
		{"assistants.request_timeout", cfg.Assistants.RequestTimeoutRaw, &cfg.Assistants.RequestTimeout},
		{"chat.session_ttl", cfg.Chat.SessionTTLRaw, &cfg.Chat.SessionTTL},
		{"chat.submit_dedupe_ttl", cfg.Chat.SubmitDedupeTTLRaw, &cfg.Chat.SubmitDedupeTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
