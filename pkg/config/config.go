package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is the optional config file looked up in the working directory
const DefaultFile = "module-graph.toml"

// EnvPrefix is the prefix of environment overrides (e.g. MODULE_GRAPH_PORT=9090)
const EnvPrefix = "MODULE_GRAPH_"

// Config holds all configuration for the application
type Config struct {
	Root              string `koanf:"root"`
	Output            string `koanf:"output"`
	Web               bool   `koanf:"web"`
	Port              int    `koanf:"port"`
	Watch             bool   `koanf:"watch"`
	FailOnErrors      bool   `koanf:"fail-on-errors"`
	VersionConstraint string `koanf:"version-constraint"`
	CacheSize         int    `koanf:"cache-size"`
	Verbosity         string `koanf:"verbosity"`
	VerboseCnt        int    `koanf:"verbose"`
	LogFormat         string `koanf:"log-format"`
}

// Defaults returns the lowest priority configuration layer
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"root":               ".",
		"output":             "graph.dot",
		"web":                false,
		"port":               8080,
		"watch":              false,
		"fail-on-errors":     false,
		"version-constraint": "< 2.0.0",
		"cache-size":         512,
		"verbosity":          "",
		"verbose":            0,
		"log-format":         "text",
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > .env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(f, DefaultFile)
}

// LoadFile is Load with an explicit config file path
func LoadFile(f *pflag.FlagSet, path string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	_ = k.Load(file.Provider(path), toml.Parser())

	// 3. .env is merged into the process environment; existing vars win
	_ = godotenv.Load()

	// 4. Environment Variables
	// MODULE_GRAPH_FAIL_ON_ERRORS maps to fail-on-errors
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("invalid config: root must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid config: port %d out of range", c.Port)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid config: cache-size must not be negative")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: log-format %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
