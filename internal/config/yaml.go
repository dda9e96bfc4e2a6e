// Package config defines the YAML configuration file format and defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level tonbeats configuration file.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	TON      TONConfig      `yaml:"ton"`
	Storage  StorageConfig  `yaml:"storage"`
	Detector DetectorConfig `yaml:"detector"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	RatePerMinute   int        `yaml:"rate_per_minute"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// AuthConfig controls proof verification and credential issuance.
type AuthConfig struct {
	JWTSecret      string   `yaml:"jwt_secret"`
	AppDomain      string   `yaml:"app_domain"`
	AllowedDomains []string `yaml:"allowed_domains"`
	ProofSkew      string   `yaml:"proof_skew"`
	SignDataMaxAge string   `yaml:"sign_data_max_age"`
	SessionTTL     string   `yaml:"session_ttl"`
	APIKeyTTL      string   `yaml:"api_key_ttl"`
}

// TONConfig controls the lite-server connection used for on-chain key reads.
type TONConfig struct {
	ConfigURL string `yaml:"config_url"`
	Testnet   bool   `yaml:"testnet"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// DetectorConfig tunes the suspicious-activity thresholds. Zero values fall
// back to the built-in defaults.
type DetectorConfig struct {
	HourlyLimit int `yaml:"hourly_limit"`
	DailyLimit  int `yaml:"daily_limit"`
	PerNFTLimit int `yaml:"per_nft_limit"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	var cfg YAMLConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: "30s",
			RatePerMinute:   120,
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
		},
		Auth: AuthConfig{
			AppDomain:  "tonbeats.io",
			ProofSkew:  "15m",
			SessionTTL: "1h",
			APIKeyTTL:  "1h",
		},
		TON: TONConfig{
			ConfigURL: "https://ton.org/global.config.json",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
