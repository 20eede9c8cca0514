package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Journals Journals `yaml:"journals"`
	LLM      LLM      `yaml:"llm"`
	Pipeline Pipeline `yaml:"pipeline"`
	Cache    Cache    `yaml:"cache"`
	Output   Output   `yaml:"output"`
	Server   Server   `yaml:"server"`
	Logging  Logging  `yaml:"logging"`
}

// Journals describes where entry bytes and the manifest live.
type Journals struct {
	Backend     string `yaml:"backend"` // "dir" or "gcs"
	Dir         string `yaml:"dir"`
	GCS         GCS    `yaml:"gcs"`
	Prefix      string `yaml:"prefix"`
	ManifestKey string `yaml:"manifest_key"`
}

type GCS struct {
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

type LLM struct {
	BaseURL               string  `yaml:"base_url"`
	Model                 string  `yaml:"model"`
	APIKeyEnv             string  `yaml:"api_key_env"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	MaxRetries            int     `yaml:"max_retries"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	RequestsPerMinute     int     `yaml:"requests_per_minute"`
	DailyRequestCap       int     `yaml:"daily_request_cap"`
}

type Pipeline struct {
	ExtractWorkers    int    `yaml:"extract_workers"`
	AggregateWorkers  int    `yaml:"aggregate_workers"`
	JobTimeoutSeconds int    `yaml:"job_timeout_seconds"`
	MaxJobAttempts    int    `yaml:"max_job_attempts"`
	WeekStartDay      string `yaml:"week_start_day"`
}

type Cache struct {
	Dir      string `yaml:"dir"`
	TTLHours int    `yaml:"ttl_hours"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for lifelens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "lifelens")
}

// DataDir returns the XDG data directory for lifelens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "lifelens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/lifelens/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'lifelens init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Journals: Journals{
			Backend:     "dir",
			Prefix:      "journals/",
			ManifestKey: "manifest.json",
		},
		LLM: LLM{
			BaseURL:               "https://api.openai.com",
			Model:                 "gpt-4o-mini",
			APIKeyEnv:             "OPENAI_API_KEY",
			Temperature:           0.3,
			MaxTokens:             4096,
			MaxRetries:            3,
			RequestTimeoutSeconds: 45,
			RequestsPerMinute:     50,
			DailyRequestCap:       4000,
		},
		Pipeline: Pipeline{
			ExtractWorkers:    5,
			AggregateWorkers:  2,
			JobTimeoutSeconds: 60,
			MaxJobAttempts:    2,
			WeekStartDay:      "monday",
		},
		Cache:   Cache{TTLHours: 168},
		Server:  Server{Port: 8600},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetCacheDir returns the effective cache directory from config or a
// subdirectory of the data directory.
func (c *Config) GetCacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(c.GetDataDir(), "cache")
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.LLM.RequestTimeoutSeconds) * time.Second
}

func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Pipeline.JobTimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
