// Package config loads SageBot settings from defaults, an optional config
// file, SAGEBOT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wilhg/sagebot/pkg/errmodel"
)

const (
	DefaultProvider         = "gemini"
	DefaultMaxTurns         = 10
	DefaultMaxCorrections   = 2
	DefaultOutputDir        = "."
	DefaultDatabaseURL      = "sqlite:file:sagebot.db?_pragma=busy_timeout(5000)"
	DefaultAddr             = ":8080"
	DefaultTimeout          = 3 * time.Minute
	DefaultToolOutputTokens = 2000
	DefaultLogLevel         = "info"
	EnvPrefix               = "SAGEBOT"
)

// Providers that need no API key.
var keyless = map[string]bool{"scripted": true}

// Config is the resolved application configuration.
type Config struct {
	Provider         string
	Model            string
	APIKey           string
	BaseURL          string
	Script           string // steps file for the scripted provider
	MaxTurns         int
	MaxCorrections   int
	OutputDir        string
	DatabaseURL      string
	Addr             string
	Timeout          time.Duration
	TraceStdout      bool
	ToolOutputTokens int
	PromptFile       string
	PromptVersion    int
	MCPCommand       string
	LogLevel         string
}

// New returns a viper instance with defaults and environment bindings.
// Env keys are SAGEBOT_<KEY>, e.g. SAGEBOT_MAX_TURNS.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("provider", DefaultProvider)
	v.SetDefault("max_turns", DefaultMaxTurns)
	v.SetDefault("max_corrections", DefaultMaxCorrections)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("database_url", DefaultDatabaseURL)
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("trace_stdout", false)
	v.SetDefault("tool_output_tokens", DefaultToolOutputTokens)
	v.SetDefault("prompt_version", 0)
	v.SetDefault("log_level", DefaultLogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// provider keys keep their conventional names
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	return v
}

// ReadFile merges a config file into v. An empty path searches ./sagebot.yaml
// and $HOME/.sagebot/sagebot.yaml; a missing file is not an error then.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}
		return nil
	}
	v.SetConfigName("sagebot")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join("$HOME", ".sagebot"))
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load resolves a Config from v. The provider key falls back to the
// provider's conventional environment variable.
func Load(v *viper.Viper) Config {
	c := Config{
		Provider:         strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Model:            v.GetString("model"),
		APIKey:           v.GetString("api_key"),
		BaseURL:          v.GetString("base_url"),
		Script:           v.GetString("script"),
		MaxTurns:         v.GetInt("max_turns"),
		MaxCorrections:   v.GetInt("max_corrections"),
		OutputDir:        v.GetString("output_dir"),
		DatabaseURL:      v.GetString("database_url"),
		Addr:             v.GetString("addr"),
		Timeout:          v.GetDuration("timeout"),
		TraceStdout:      v.GetBool("trace_stdout"),
		ToolOutputTokens: v.GetInt("tool_output_tokens"),
		PromptFile:       v.GetString("prompt_file"),
		PromptVersion:    v.GetInt("prompt_version"),
		MCPCommand:       v.GetString("mcp_command"),
		LogLevel:         v.GetString("log_level"),
	}
	if c.APIKey == "" {
		c.APIKey = v.GetString(c.Provider + "_api_key")
	}
	return c
}

// KeyEnv names the environment variable that holds the provider's key.
func KeyEnv(provider string) string {
	switch provider {
	case "gemini":
		return "GEMINI_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return EnvPrefix + "_API_KEY"
	}
}

// Validate fails fast on settings that would otherwise break a query midway.
func (c Config) Validate() error {
	if c.Provider == "" {
		return errmodel.Validation("bad_config", "provider is empty", nil)
	}
	if c.APIKey == "" && !keyless[c.Provider] {
		return errmodel.Policy(errmodel.CodeMissingAPIKey,
			fmt.Sprintf("%s is not set; export it or pass --api-key", KeyEnv(c.Provider)),
			map[string]any{"provider": c.Provider})
	}
	if c.MaxTurns < 1 {
		return errmodel.Validation("bad_config", "max_turns must be at least 1", map[string]any{"max_turns": c.MaxTurns})
	}
	if c.MaxCorrections < 0 {
		return errmodel.Validation("bad_config", "max_corrections must not be negative", map[string]any{"max_corrections": c.MaxCorrections})
	}
	if c.Timeout < 0 {
		return errmodel.Validation("bad_config", "timeout must not be negative", nil)
	}
	return nil
}
