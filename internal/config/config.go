// Package config handles configuration loading and management for crewboard.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for crewboard.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	TUI       TUIConfig       `mapstructure:"tui"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AnthropicConfig holds Anthropic API settings for claude workers.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the default model for claude workers.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes API calls through AWS Bedrock.
	UseAWSBedrock bool `mapstructure:"aws_bedrock"`
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values for plan execution.
type DefaultsConfig struct {
	// Mode is the driving protocol when a team declares none.
	Mode string `mapstructure:"mode"`
	// MaxRetries is how often a failed task is requeued.
	MaxRetries int `mapstructure:"max_retries"`
	// OnFailure is the action once retries are exhausted:
	// continue, cancel-dependents, or halt.
	OnFailure string `mapstructure:"on_failure"`
}

// WorkerConfig holds default worker adapter settings.
type WorkerConfig struct {
	// Command is the fallback command for command workers.
	Command string `mapstructure:"command"`
	// WorkDir is the working directory for command workers.
	WorkDir string `mapstructure:"work_dir"`
	// InboxRoot is the parent directory for inbox workers.
	InboxRoot string `mapstructure:"inbox_root"`
}

// TUIConfig holds watch view display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	// Debug enables the file-backed debug log.
	Debug bool `mapstructure:"debug"`
	// Dir is where the debug log is written. Defaults to .crewboard.
	Dir string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CREWBOARD_*)
// 2. Project config (.crewboard.yaml in current directory or parent)
// 3. User config (~/.config/crewboard/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("CREWBOARD")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("defaults.mode", "CREWBOARD_MODE")
	v.BindEnv("defaults.max_retries", "CREWBOARD_MAX_RETRIES")
	v.BindEnv("defaults.on_failure", "CREWBOARD_ON_FAILURE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("defaults.mode", cfg.Defaults.Mode)
	v.Set("defaults.max_retries", cfg.Defaults.MaxRetries)
	v.Set("defaults.on_failure", cfg.Defaults.OnFailure)
	v.Set("worker.command", cfg.Worker.Command)
	v.Set("worker.work_dir", cfg.Worker.WorkDir)
	v.Set("worker.inbox_root", cfg.Worker.InboxRoot)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("logging.debug", cfg.Logging.Debug)
	v.Set("logging.dir", cfg.Logging.Dir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.aws_bedrock", false)

	v.SetDefault("defaults.mode", "events")
	v.SetDefault("defaults.max_retries", 1)
	v.SetDefault("defaults.on_failure", "cancel-dependents")

	v.SetDefault("worker.command", "")
	v.SetDefault("worker.work_dir", "")
	v.SetDefault("worker.inbox_root", ".crewboard/inbox")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.dir", ".crewboard")
}

// getUserConfigDir returns the XDG config directory for crewboard.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "crewboard")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "crewboard")
	}
	return filepath.Join(home, ".config", "crewboard")
}

// findProjectConfig searches for .crewboard.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".crewboard.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Mode:       "events",
			MaxRetries: 1,
			OnFailure:  "cancel-dependents",
		},
		Worker: WorkerConfig{
			InboxRoot: ".crewboard/inbox",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Dir: ".crewboard",
		},
	}
}
