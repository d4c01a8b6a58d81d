package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Script   ScriptConfig   `yaml:"script"`
	Feed     FeedConfig     `yaml:"feed"`

	// Environment variables (from .env)
	BybitAPIKey    string `yaml:"-"`
	BybitSecret    string `yaml:"-"`
	BybitTestnet   bool   `yaml:"-"`
	BitvavoAPIKey  string `yaml:"-"`
	BitvavoSecret  string `yaml:"-"`
	BitvavoTestnet bool   `yaml:"-"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ScriptConfig bounds script execution
type ScriptConfig struct {
	MaxIterations int           `yaml:"max_iterations"`
	MaxCallDepth  int           `yaml:"max_call_depth"`
	Timeout       time.Duration `yaml:"timeout"`
	Directory     string        `yaml:"directory"`
	ExtensionsDir string        `yaml:"extensions_dir"`
	Builtins      []string      `yaml:"builtins"`
	Workers       int           `yaml:"workers"`
	CacheSize     int           `yaml:"cache_size"`
}

// FeedConfig selects where bars come from when a request carries none
type FeedConfig struct {
	Exchange        string `yaml:"exchange"`
	DefaultInterval string `yaml:"default_interval"`
	DefaultLimit    int    `yaml:"default_limit"`
}

// Load loads configuration from environment and config.yaml
func Load() (*Config, error) {
	return LoadFrom("config.yaml")
}

// LoadFrom loads configuration from environment and the given YAML file.
// A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Path: getEnvOrDefault("DATABASE_PATH", "./tradescript.db"),
		},
		API: APIConfig{
			Port:    getEnvIntOrDefault("API_PORT", 8080),
			Timeout: time.Duration(getEnvIntOrDefault("API_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Logging: LoggingConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Script: ScriptConfig{
			MaxIterations: getEnvIntOrDefault("SCRIPT_MAX_ITERATIONS", 1_000_000),
			MaxCallDepth:  getEnvIntOrDefault("SCRIPT_MAX_CALL_DEPTH", 256),
			Timeout:       time.Duration(getEnvIntOrDefault("SCRIPT_TIMEOUT_SECONDS", 10)) * time.Second,
			Directory:     getEnvOrDefault("SCRIPT_DIRECTORY", "./scripts"),
			ExtensionsDir: getEnvOrDefault("SCRIPT_EXTENSIONS_DIR", "./extensions"),
			Builtins:      splitList(os.Getenv("SCRIPT_BUILTINS")),
			Workers:       getEnvIntOrDefault("SCRIPT_WORKERS", 4),
			CacheSize:     getEnvIntOrDefault("SCRIPT_CACHE_SIZE", 128),
		},
		Feed: FeedConfig{
			Exchange:        getEnvOrDefault("FEED_EXCHANGE", "bybit"),
			DefaultInterval: getEnvOrDefault("FEED_DEFAULT_INTERVAL", "1h"),
			DefaultLimit:    getEnvIntOrDefault("FEED_DEFAULT_LIMIT", 200),
		},
		BybitAPIKey:    os.Getenv("BYBIT_API_KEY"),
		BybitSecret:    os.Getenv("BYBIT_SECRET"),
		BybitTestnet:   getEnvOrDefault("BYBIT_TESTNET", "false") == "true",
		BitvavoAPIKey:  os.Getenv("BITVAVO_API_KEY"),
		BitvavoSecret:  os.Getenv("BITVAVO_SECRET"),
		BitvavoTestnet: getEnvOrDefault("BITVAVO_TESTNET", "false") == "true",
	}

	// Load YAML config if it exists
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	if config.Script.Workers < 1 {
		config.Script.Workers = 1
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := parseIntSafe(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIntSafe(s string) (int, error) {
	var result int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &parseError{s}
		}
		result = result*10 + int(c-'0')
	}
	return result, nil
}

type parseError struct {
	value string
}

func (e *parseError) Error() string {
	return "invalid integer: " + e.value
}
