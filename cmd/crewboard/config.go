package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crewboard/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify crewboard configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/crewboard/config.yaml
Project-specific overrides can be placed in .crewboard.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", cfg.Anthropic.AWSRegion)
	fmt.Printf("anthropic.aws_profile: %s\n", cfg.Anthropic.AWSProfile)
	fmt.Printf("defaults.mode: %s\n", cfg.Defaults.Mode)
	fmt.Printf("defaults.max_retries: %d\n", cfg.Defaults.MaxRetries)
	fmt.Printf("defaults.on_failure: %s\n", cfg.Defaults.OnFailure)
	fmt.Printf("worker.command: %s\n", cfg.Worker.Command)
	fmt.Printf("worker.work_dir: %s\n", cfg.Worker.WorkDir)
	fmt.Printf("worker.inbox_root: %s\n", cfg.Worker.InboxRoot)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
	fmt.Printf("logging.debug: %t\n", cfg.Logging.Debug)
	fmt.Printf("logging.dir: %s\n", cfg.Logging.Dir)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s = %s\n", key, value)
}

func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "defaults.mode":
		return cfg.Defaults.Mode, nil
	case "defaults.max_retries":
		return strconv.Itoa(cfg.Defaults.MaxRetries), nil
	case "defaults.on_failure":
		return cfg.Defaults.OnFailure, nil
	case "worker.command":
		return cfg.Worker.Command, nil
	case "worker.work_dir":
		return cfg.Worker.WorkDir, nil
	case "worker.inbox_root":
		return cfg.Worker.InboxRoot, nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	case "logging.debug":
		return strconv.FormatBool(cfg.Logging.Debug), nil
	case "logging.dir":
		return cfg.Logging.Dir, nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "defaults.mode":
		if value != "events" && value != "manual" {
			return fmt.Errorf("invalid mode: %s (use events or manual)", value)
		}
		cfg.Defaults.Mode = value
	case "defaults.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid retry count: %s", value)
		}
		cfg.Defaults.MaxRetries = n
	case "defaults.on_failure":
		switch value {
		case "continue", "cancel-dependents", "halt":
		default:
			return fmt.Errorf("invalid failure action: %s (use continue, cancel-dependents, or halt)", value)
		}
		cfg.Defaults.OnFailure = value
	case "worker.command":
		cfg.Worker.Command = value
	case "worker.work_dir":
		cfg.Worker.WorkDir = value
	case "worker.inbox_root":
		cfg.Worker.InboxRoot = value
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.TUI.RefreshRate = d
	case "logging.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Logging.Debug = b
	case "logging.dir":
		cfg.Logging.Dir = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
