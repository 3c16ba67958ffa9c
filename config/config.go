package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// Config holds application settings. Endpoint settings live in the Lua
// profile it points to.
type Config struct {
	LogLines  int    `json:"log_lines"`
	LogsDir   string `json:"logs_dir"`
	RecentDir string `json:"recent_dir"`
	Profile   string `json:"profile"`
	SuitesDir string `json:"suites_dir"`
}

const envPrefix = "NETPROBE_"

var (
	defaultConfig *Config
	once          sync.Once
)

func Default() *Config {
	return &Config{
		LogLines:  1000,
		LogsDir:   "logs",
		RecentDir: "recent",
		Profile:   "netprobe.lua",
		SuitesDir: ".",
	}
}

// Load reads the JSON config at path, or the first default location that
// exists, then applies NETPROBE_* variables. The env file named by
// NETPROBE_ENV and then a .env file in the working directory are loaded
// first; variables already set are not overridden.
func Load(path string) (*Config, error) {
	if envFile := os.Getenv(envPrefix + "ENV"); envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, fmt.Errorf("env file %s: %w", envFile, err)
		}
	}
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}

	if path == "" {
		// Try default locations
		defaultPaths := []string{
			"netprobe.json",
			".netprobe.json",
			filepath.Join(os.Getenv("HOME"), ".config", "netprobe", "config.json"),
		}

		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// LoadEnvFile loads variables from an explicit env file without
// overriding ones already set.
func LoadEnvFile(path string) error {
	return godotenv.Load(path)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(envPrefix + "LOG_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LogLines = n
		}
	}
	if v := os.Getenv(envPrefix + "LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv(envPrefix + "RECENT_DIR"); v != "" {
		cfg.RecentDir = v
	}
	if v := os.Getenv(envPrefix + "PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv(envPrefix + "SUITES_DIR"); v != "" {
		cfg.SuitesDir = v
	}
}

// Apply defaults for any zero values
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.LogLines <= 0 {
		cfg.LogLines = def.LogLines
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = def.LogsDir
	}
	if cfg.RecentDir == "" {
		cfg.RecentDir = def.RecentDir
	}
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.SuitesDir == "" {
		cfg.SuitesDir = def.SuitesDir
	}
}

// LoadDefault loads the config once and caches it
func LoadDefault() (*Config, error) {
	var err error
	once.Do(func() {
		defaultConfig, err = Load("")
	})
	if err != nil || defaultConfig == nil {
		return Default(), err
	}
	return defaultConfig, nil
}
