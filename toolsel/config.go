package toolsel

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider is one entry in a capability pool.
type Provider struct {
	Name       string   `yaml:"name"`
	Priority   int      `yaml:"priority"`
	Conditions []string `yaml:"conditions,omitempty"`
}

// Pool is the ordered provider list for one capability.
type Pool struct {
	Providers []Provider `yaml:"providers"`
}

// Strategy controls how providers are picked.
type Strategy struct {
	DefaultMethod string `yaml:"default_method"`
	Fallback      bool   `yaml:"fallback"`
}

// Config is the on-disk tool pool configuration.
type Config struct {
	Pools    map[string]Pool `yaml:"tool_pools"`
	Strategy Strategy        `yaml:"selection_strategy"`
}

//go:embed tools.yaml
var defaultTools []byte

// DefaultConfig returns the built-in tool pool configuration.
func DefaultConfig() Config {
	cfg, err := parseConfig(defaultTools)
	if err != nil {
		panic(fmt.Sprintf("toolsel: embedded tools.yaml invalid: %v", err))
	}

	return cfg
}

// LoadConfig reads a tool pool configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("toolsel: read config: %w", err)
	}

	return parseConfig(data)
}

func parseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("toolsel: parse config: %w", err)
	}
	if len(cfg.Pools) == 0 {
		return Config{}, fmt.Errorf("toolsel: config has no tool_pools")
	}

	return cfg, nil
}
