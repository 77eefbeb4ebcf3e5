// Package config loads the process configuration once at startup. Values are
// resolved from an optional YAML file, environment variables and defaults
// (priority: file > env > default) and then passed by value into backend
// constructors, so no adapter reads the environment on its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/modelmux/prompt"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath      = "MODELMUX_CONFIG"
	EnvLogLevel        = "MODELMUX_LOG_LEVEL"
	EnvLogFormat       = "MODELMUX_LOG_FORMAT"
	EnvTimeout         = "MODELMUX_TIMEOUT"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvOpenAIBaseURL   = "OPENAI_BASE_URL"
	EnvOpenAIModel     = "MODELMUX_OPENAI_MODEL"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvAnthropicURL    = "ANTHROPIC_BASE_URL"
	EnvAnthropicModel  = "MODELMUX_ANTHROPIC_MODEL"
)

// Default model identifiers.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

// Config is the complete process configuration.
type Config struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	Log       LogConfig      `yaml:"log"`
	Prompts   PromptConfig   `yaml:"prompts"`

	// Timeout bounds each backend run. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderConfig holds the settings for one hosted provider.
type ProviderConfig struct {
	// Disabled skips the provider even when an API key is present.
	Disabled    bool    `yaml:"disabled"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	// MaxRetries is passed to the SDK client. Zero disables SDK retries.
	MaxRetries int `yaml:"max_retries"`
}

// Active reports whether a backend should be constructed for the provider.
func (p ProviderConfig) Active() bool { return !p.Disabled && p.APIKey != "" }

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PromptConfig overrides the demo inputs.
type PromptConfig struct {
	System       string            `yaml:"system"`
	Question     string            `yaml:"question"`
	StreamPrompt string            `yaml:"stream_prompt"`
	Template     []MessageTemplate `yaml:"template"`
	Vars         map[string]any    `yaml:"vars"`
}

// MessageTemplate is one templated turn in the config file.
type MessageTemplate struct {
	Role string `yaml:"role"`
	Text string `yaml:"text"`
}

// BuildTemplate builds a prompt.Template from the configured turns. It returns
// (nil, nil) when no template is configured.
func (p PromptConfig) BuildTemplate() (*prompt.Template, error) {
	if len(p.Template) == 0 {
		return nil, nil
	}
	pairs := make([][2]string, len(p.Template))
	for i, m := range p.Template {
		pairs[i] = [2]string{m.Role, m.Text}
	}
	return prompt.FromPairs(pairs)
}

// Default returns the built-in defaults without consulting env or files.
func Default() *Config {
	return &Config{
		OpenAI: ProviderConfig{
			Model:       DefaultOpenAIModel,
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Anthropic: ProviderConfig{
			Model:       DefaultAnthropicModel,
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath returns ~/.config/modelmux/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "modelmux", "config.yaml"), nil
}

// Load merges the config file at path, environment variables and defaults.
// An empty path falls back to $MODELMUX_CONFIG and then DefaultPath; a
// missing file at a fallback location is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	cfg := Default()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if path != "" {
		if err := applyFile(cfg, path, explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	for name, p := range map[string]ProviderConfig{"openai": c.OpenAI, "anthropic": c.Anthropic} {
		if p.Temperature < 0 || p.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s: temperature %.2f out of range [0,2]", name, p.Temperature))
		}
		if p.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("%s: max_tokens must not be negative", name))
		}
		if p.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("%s: max_retries must not be negative", name))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.OpenAI.APIKey, EnvOpenAIAPIKey)
	setString(&cfg.OpenAI.BaseURL, EnvOpenAIBaseURL)
	setString(&cfg.OpenAI.Model, EnvOpenAIModel)
	setString(&cfg.Anthropic.APIKey, EnvAnthropicAPIKey)
	setString(&cfg.Anthropic.BaseURL, EnvAnthropicURL)
	setString(&cfg.Anthropic.Model, EnvAnthropicModel)
	setString(&cfg.Log.Level, EnvLogLevel)
	setString(&cfg.Log.Format, EnvLogFormat)

	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Timeout = d
	}

	return nil
}

// applyFile overlays non-zero values from the YAML file onto cfg.
func applyFile(cfg *Config, path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	mergeProvider(&cfg.OpenAI, fc.OpenAI)
	mergeProvider(&cfg.Anthropic, fc.Anthropic)
	cfg.Log.Level = resolve(fc.Log.Level, cfg.Log.Level)
	cfg.Log.Format = resolve(fc.Log.Format, cfg.Log.Format)
	if fc.Timeout != 0 {
		cfg.Timeout = fc.Timeout
	}
	cfg.Prompts = fc.Prompts

	return nil
}

// fileConfig maps to the YAML file structure. Pointers distinguish an
// explicit zero from an absent key.
type fileConfig struct {
	OpenAI    fileProvider  `yaml:"openai"`
	Anthropic fileProvider  `yaml:"anthropic"`
	Log       LogConfig     `yaml:"log"`
	Prompts   PromptConfig  `yaml:"prompts"`
	Timeout   time.Duration `yaml:"timeout"`
}

type fileProvider struct {
	Disabled    bool     `yaml:"disabled"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int64   `yaml:"max_tokens"`
	MaxRetries  *int     `yaml:"max_retries"`
}

func mergeProvider(dst *ProviderConfig, src fileProvider) {
	dst.Disabled = dst.Disabled || src.Disabled
	dst.APIKey = resolve(src.APIKey, dst.APIKey)
	dst.BaseURL = resolve(src.BaseURL, dst.BaseURL)
	dst.Model = resolve(src.Model, dst.Model)
	if src.Temperature != nil {
		dst.Temperature = *src.Temperature
	}
	if src.MaxTokens != nil {
		dst.MaxTokens = *src.MaxTokens
	}
	if src.MaxRetries != nil {
		dst.MaxRetries = *src.MaxRetries
	}
}

// resolve returns the first non-empty value from the provided strings.
func resolve(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// Redacted returns a copy with API keys masked, suitable for printing.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	cp.Anthropic.APIKey = mask(c.Anthropic.APIKey)
	return &cp
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
