package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.staychat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	HubURL         string `toml:"hub_url"`
	APIBaseURL     string `toml:"api_base_url"`
	Retry          Retry  `toml:"retry"`
}

// Retry controls the application-level reconnect schedule.
type Retry struct {
	// DelaysMS is the per-attempt wait schedule in milliseconds. Attempts
	// past the end of the schedule reuse the last entry.
	DelaysMS   []int `toml:"delays_ms"`
	MaxRetries int   `toml:"max_retries"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		HubURL:         "wss://chat.staychat.app/hub",
		APIBaseURL:     "https://api.staychat.app",
		Retry: Retry{
			DelaysMS:   []int{2000, 5000, 10000},
			MaxRetries: 5,
		},
	}
}

// Delays converts the retry schedule to durations.
func (r Retry) Delays() []time.Duration {
	out := make([]time.Duration, 0, len(r.DelaysMS))
	for _, ms := range r.DelaysMS {
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}

// Load reads config from the given path and fills unset fields with
// defaults. Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault reads config from the given path, falling back to the
// built-in defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.HubURL == "" {
		cfg.HubURL = def.HubURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = def.APIBaseURL
	}
	if len(cfg.Retry.DelaysMS) == 0 {
		cfg.Retry.DelaysMS = def.Retry.DelaysMS
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = def.Retry.MaxRetries
	}
}
