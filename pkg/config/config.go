// Package config loads, validates and hot-reloads the AgentShield runtime
// configuration. Precedence is defaults, then the YAML file, then SHIELD_*
// environment variables. Load returns a fully validated configuration;
// callers never have to re-check field values.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

// Config is the root of the runtime configuration.
type Config struct {
	Shield    ShieldConfig    `yaml:"shield"`
	Policy    PolicyConfig    `yaml:"policy"`
	Agent     AgentConfig     `yaml:"agent"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ShieldConfig controls the protection chain.
type ShieldConfig struct {
	// Domain selects the protection profile (general, healthcare, finance,
	// legal, or a registered custom profile).
	Domain string `yaml:"domain"`

	// BlockThreshold is the minimum threat level that blocks a run.
	BlockThreshold domain.ThreatLevel `yaml:"block_threshold"`

	SkipBoundary     bool `yaml:"skip_boundary"`
	SkipOutputFilter bool `yaml:"skip_output_filter"`
	SkipIncidentLog  bool `yaml:"skip_incident_log"`

	// AllowedTools is the tool-call allowlist for the tool validation
	// stage. Empty disables the allowlist check.
	AllowedTools []string `yaml:"allowed_tools"`
}

// PolicyConfig points the tool authorizer at a directory of rego modules.
// An empty dir leaves policy decisions disabled.
type PolicyConfig struct {
	Dir        string `yaml:"dir"`
	Entrypoint string `yaml:"entrypoint"`
}

// AgentConfig describes the downstream agent the shield wraps. An empty
// provider means no remote agent is configured; the simulate command then
// falls back to its built-in echo agent.
type AgentConfig struct {
	Provider     string `yaml:"provider"` // anthropic, openai or http
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"` // prefer SHIELD_AGENT_API_KEY over the file
	MaxTokens    int    `yaml:"max_tokens"`
	SystemPrompt string `yaml:"system_prompt"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration, zero when unset.
func (c AgentConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SimulatorConfig controls the red-team battery.
type SimulatorConfig struct {
	// MaxConcurrent bounds the number of trials in flight at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RateLimit caps agent invocations per second across all trials,
	// with Burst extra invocations admitted up front. Zero runs unpaced.
	RateLimit int `yaml:"rate_limit"`
	Burst     int `yaml:"burst"`

	// TrialsFile optionally replaces the built-in attack catalogue with a
	// YAML trial pack.
	TrialsFile string `yaml:"trials_file"`

	// Domains appends domain attack packs to the universal catalogue.
	Domains []string `yaml:"domains"`
}

// TelemetryConfig configures tracing and the metrics endpoint. An empty
// OTLP endpoint disables span export, an empty metrics address disables
// the Prometheus listener.
type TelemetryConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
	ServiceName    string `yaml:"service_name"`
	Environment    string `yaml:"environment"`
	MetricsAddress string `yaml:"metrics_address"`
}

// NotifyConfig configures the webhook event sink. An empty URL disables it.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the webhook post timeout as a duration.
func (c NotifyConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggingConfig controls the handler pkg/logging builds for the CLI.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present: full protection for the general
// domain, local-only telemetry, JSON logs.
func DefaultConfig() *Config {
	return &Config{
		Shield: ShieldConfig{
			Domain:         "general",
			BlockThreshold: domain.LevelMalicious,
		},
		Simulator: SimulatorConfig{
			MaxConcurrent: 5,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "agentshield",
		},
		Notify: NotifyConfig{
			TimeoutSeconds: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. An empty path skips the file and loads defaults
// plus overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		//nolint:gosec // the config file path is operator-controlled
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("SHIELD_DOMAIN"); val != "" {
		cfg.Shield.Domain = val
	}
	if val := os.Getenv("SHIELD_BLOCK_THRESHOLD"); val != "" {
		cfg.Shield.BlockThreshold = domain.ThreatLevel(val)
	}

	if val := os.Getenv("SHIELD_POLICY_DIR"); val != "" {
		cfg.Policy.Dir = val
	}

	if val := os.Getenv("SHIELD_AGENT_PROVIDER"); val != "" {
		cfg.Agent.Provider = val
	}
	if val := os.Getenv("SHIELD_AGENT_MODEL"); val != "" {
		cfg.Agent.Model = val
	}
	if val := os.Getenv("SHIELD_AGENT_BASE_URL"); val != "" {
		cfg.Agent.BaseURL = val
	}
	if val := os.Getenv("SHIELD_AGENT_API_KEY"); val != "" {
		cfg.Agent.APIKey = val
	}

	if val := os.Getenv("SHIELD_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Simulator.MaxConcurrent = n
		}
	}
	if val := os.Getenv("SHIELD_TRIALS_FILE"); val != "" {
		cfg.Simulator.TrialsFile = val
	}

	if val := os.Getenv("SHIELD_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("SHIELD_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("SHIELD_METRICS_ADDR"); val != "" {
		cfg.Telemetry.MetricsAddress = val
	}

	if val := os.Getenv("SHIELD_WEBHOOK_URL"); val != "" {
		cfg.Notify.WebhookURL = val
	}

	if val := os.Getenv("SHIELD_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("SHIELD_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}

// Validate checks every section, normalising defaults in place. All
// rejection errors wrap domain.ErrConfigInvalid.
func (c *Config) Validate() error {
	if err := c.Shield.Validate(); err != nil {
		return fmt.Errorf("shield configuration: %w", err)
	}
	if err := c.Agent.Validate(); err != nil {
		return fmt.Errorf("agent configuration: %w", err)
	}
	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator configuration: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry configuration: %w", err)
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify configuration: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	return nil
}

// Validate normalises the domain and block threshold.
func (c *ShieldConfig) Validate() error {
	c.Domain = strings.ToLower(strings.TrimSpace(c.Domain))
	if c.Domain == "" {
		c.Domain = "general"
	}

	level := domain.ThreatLevel(strings.ToLower(strings.TrimSpace(string(c.BlockThreshold))))
	if level == "" {
		level = domain.LevelMalicious
	}
	switch level {
	case domain.LevelSuspicious, domain.LevelMalicious, domain.LevelCritical:
		c.BlockThreshold = level
	default:
		return fmt.Errorf("%w: unknown block_threshold %q, supported levels: suspicious, malicious, critical",
			domain.ErrConfigInvalid, c.BlockThreshold)
	}
	return nil
}

// Validate checks the provider selection and its required fields.
func (c *AgentConfig) Validate() error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case "", "anthropic", "openai", "http":
	default:
		return fmt.Errorf("%w: unknown agent provider %q, supported providers: anthropic, openai, http",
			domain.ErrConfigInvalid, c.Provider)
	}
	if c.Provider == "" {
		return nil
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: agent provider %q requires a model", domain.ErrConfigInvalid, c.Provider)
	}
	if c.Provider == "http" && strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: agent provider http requires a base_url", domain.ErrConfigInvalid)
	}
	return nil
}

// Validate bounds concurrency and drops empty domain entries.
func (c *SimulatorConfig) Validate() error {
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must not be negative, got %d",
			domain.ErrConfigInvalid, c.MaxConcurrent)
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 5
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate_limit must not be negative, got %d",
			domain.ErrConfigInvalid, c.RateLimit)
	}

	domains := c.Domains[:0]
	for _, d := range c.Domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	c.Domains = domains
	return nil
}

// Validate fills in the service name.
func (c *TelemetryConfig) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "agentshield"
	}
	return nil
}

// Validate checks that the webhook URL, when set, is an absolute http(s) URL.
func (c *NotifyConfig) Validate() error {
	if c.WebhookURL == "" {
		return nil
	}
	u, err := url.Parse(c.WebhookURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: webhook_url %q must be an absolute http or https URL",
			domain.ErrConfigInvalid, c.WebhookURL)
	}
	return nil
}

// Validate normalises the log level and format.
func (c *LoggingConfig) Validate() error {
	c.Level = strings.ToLower(strings.TrimSpace(c.Level))
	if c.Level == "" {
		c.Level = "info"
	}
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: invalid log level %q, supported levels: debug, info, warn, error",
			domain.ErrConfigInvalid, c.Level)
	}

	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "json"
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: invalid log format %q, supported formats: json, text",
			domain.ErrConfigInvalid, c.Format)
	}
	return nil
}
