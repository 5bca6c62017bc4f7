package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

// DefaultSnapshotPath is used when neither snapshotPath nor postgresURL is
// configured.
const DefaultSnapshotPath = "chorewheel_state.json"

// Member defines one rotation member in the configuration.
type Member struct {
	ID          string `yaml:"id" validate:"required"`
	DisplayName string `yaml:"displayName" validate:"required"`
}

// Config represents the application configuration
type Config struct {
	// Members is the initial rotation, in order. Ignored once a snapshot
	// exists; the snapshot is the source of truth after first start.
	Members []Member `yaml:"members" validate:"required,min=1,unique=ID,dive"`

	// Aliases maps alternate caller ids (phone numbers, short handles) to
	// member display names.
	Aliases map[string]string `yaml:"aliases,omitempty"`

	AuthorizedCallers []string `yaml:"authorizedCallers,omitempty"`
	Admins            []string `yaml:"admins,omitempty"`
	MaxAuthorized     int      `yaml:"maxAuthorized,omitempty" validate:"omitempty,min=1"`
	MaxAdmins         int      `yaml:"maxAdmins,omitempty" validate:"omitempty,min=1"`

	RequirePunishmentReason bool `yaml:"requirePunishmentReason,omitempty"`
	PurgeAfterDays          int  `yaml:"purgeAfterDays,omitempty" validate:"omitempty,min=1"`

	// ReminderRule is an RFC 5545 recurrence rule for nudging the current
	// member, e.g. "FREQ=DAILY;BYHOUR=9;BYMINUTE=0".
	ReminderRule string `yaml:"reminderRule,omitempty"`

	// SnapshotPath and PostgresURL select the snapshot store. PostgresURL
	// wins when both are set.
	SnapshotPath string `yaml:"snapshotPath,omitempty"`
	PostgresURL  string `yaml:"postgresURL,omitempty"`

	// OperatorID is the caller identity used by the local chat session.
	OperatorID string `yaml:"operatorID,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from chorewheel_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads the environment-specific configuration file, e.g.
// chorewheel_config.test.yaml for env "test". An empty env uses the plain
// file name.
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(configFileName(env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate validates the configuration struct and checks the reminder rule syntax
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Validate recurrence rule syntax
	if cfg.ReminderRule != "" {
		if _, err := rrule.StrToRRule(cfg.ReminderRule); err != nil {
			return fmt.Errorf("invalid reminderRule: %w", err)
		}
	}

	// Alias targets must name configured members
	for id, name := range cfg.Aliases {
		if !memberNameExists(cfg.Members, name) {
			return fmt.Errorf("alias %q maps to unknown member %q", id, name)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.SnapshotPath == "" && cfg.PostgresURL == "" {
		cfg.SnapshotPath = DefaultSnapshotPath
	}
}

func memberNameExists(members []Member, name string) bool {
	for _, m := range members {
		if m.DisplayName == name {
			return true
		}
	}
	return false
}

func configFileName(env string) string {
	if env == "" {
		return "chorewheel_config.yaml"
	}
	return fmt.Sprintf("chorewheel_config.%s.yaml", env)
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(configFileName string) (string, error) {
	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
