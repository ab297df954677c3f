package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"trailmetrics/internal/enrich"
)

// Config represents the application configuration
type Config struct {
	Engine   enrich.Config `json:"engine" yaml:"engine"`
	Strava   StravaConfig  `json:"strava" yaml:"strava"`
	Store    StoreConfig   `json:"store" yaml:"store"`
	Output   OutputConfig  `json:"output" yaml:"output"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// StravaConfig holds Strava API credentials
type StravaConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	CallbackPort int    `json:"callback_port" yaml:"callback_port"`
	Limit        int    `json:"limit" yaml:"limit"` // most recent activities per sync, 0 = all
}

// StoreConfig holds database settings
type StoreConfig struct {
	Path string `json:"path" yaml:"path"` // empty = ~/.trailmetrics/data.db
}

// OutputConfig holds CSV output preferences
type OutputConfig struct {
	Precision int `json:"precision" yaml:"precision"` // decimals for derived values, -1 = exact
}

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// configNames are looked up in order in the config directory
var configNames = []string{"config.json", "config.yaml", "config.yml"}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Engine: enrich.DefaultConfig(),
		Strava: StravaConfig{
			CallbackPort: 8089,
		},
		Output: OutputConfig{
			Precision: -1,
		},
		LogLevel: "info",
	}
}

// Load reads the configuration from ~/.trailmetrics, trying config.json,
// config.yaml and config.yml in that order
func Load() (*Config, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	for _, name := range configNames {
		cfg, err := LoadFile(filepath.Join(dir, name))
		if errors.Is(err, ErrNoConfig) {
			continue
		}
		return cfg, err
	}
	return nil, ErrNoConfig
}

// LoadFile reads the configuration at path. The format follows the
// extension (.yaml/.yml, JSON otherwise). Keys missing from the file keep
// their default value.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNoConfig
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to ~/.trailmetrics/config.json
func Save(cfg *Config) error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

// SaveFile writes the configuration to path in the format its extension names
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	// the file holds the Strava client secret
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// CreateExample creates an example config file if none exists
func CreateExample() error {
	path, err := getConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		return nil // Config exists, don't overwrite
	}

	example := DefaultConfig()
	example.Strava.ClientID = "YOUR_CLIENT_ID"
	example.Strava.ClientSecret = "YOUR_CLIENT_SECRET"
	return Save(&example)
}

// Validate checks the engine tunables and output settings
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Output.Precision < -1 {
		return fmt.Errorf("output.precision must be >= -1, got %d", c.Output.Precision)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ValidateStrava checks that Strava credentials are set
func (c *Config) ValidateStrava() error {
	if c.Strava.ClientID == "" || c.Strava.ClientID == "YOUR_CLIENT_ID" {
		return errors.New("strava.client_id is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.ClientSecret == "" || c.Strava.ClientSecret == "YOUR_CLIENT_SECRET" {
		return errors.New("strava.client_secret is required - get it from https://www.strava.com/settings/api")
	}
	if c.Strava.CallbackPort < 0 || c.Strava.CallbackPort > 65535 {
		return fmt.Errorf("strava.callback_port out of range: %d", c.Strava.CallbackPort)
	}
	return nil
}

// SlogLevel parses LogLevel. Empty means info.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return level, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".trailmetrics"), nil
}
