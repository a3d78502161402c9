package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Data      DataConfig                `json:"data"`
	App       AppConfig                 `json:"app"`
}

// ProviderConfig represents per-provider connection defaults. Secrets never
// live here; they belong to the credential store.
type ProviderConfig struct {
	BaseURL      string  `json:"base_url,omitempty"`
	DefaultModel string  `json:"default_model,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// DataConfig represents data storage configuration
type DataConfig struct {
	DBPath string `json:"db_path"`
}

// AppConfig represents client-level settings
type AppConfig struct {
	DefaultProvider string `json:"default_provider"`
	Referer         string `json:"referer"`  // OpenRouter attribution
	AppTitle        string `json:"app_title"` // OpenRouter attribution
	SaveDebounceMs  int    `json:"save_debounce_ms"`
}

// LoadConfig loads configuration from file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Data.DBPath != "" {
		config.Data.DBPath = expandPath(config.Data.DBPath)
	}

	return &config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/default.json"
	}
	return filepath.Join(configDir, "charchat", "config.json")
}

// EnsureDefaultConfig creates a default config file if it doesn't exist
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	defaultConfig := &Config{
		Providers: map[string]ProviderConfig{
			"openai": {
				BaseURL:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
				MaxTokens:    4096,
				Temperature:  0.7,
			},
			"google-ai": {
				BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel: "gemini-1.5-flash",
				MaxTokens:    8192,
				Temperature:  0.7,
			},
			"ollama": {
				BaseURL:      "http://localhost:11434",
				DefaultModel: "llama3",
				Temperature:  0.7,
			},
			"openrouter": {
				BaseURL:      "https://openrouter.ai/api/v1",
				DefaultModel: "openai/gpt-4o-mini",
				MaxTokens:    4096,
				Temperature:  0.7,
			},
		},
		Data: DataConfig{
			DBPath: "./data/charchat.db",
		},
		App: AppConfig{
			DefaultProvider: "openai",
			Referer:         "https://github.com/charchat/charchat",
			AppTitle:        "charchat",
			SaveDebounceMs:  500,
		},
	}

	if err := SaveConfig(configPath, defaultConfig); err != nil {
		return "", err
	}

	return configPath, nil
}
