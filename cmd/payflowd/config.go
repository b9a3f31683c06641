package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/payflow"
)

// Config is the payflowd server configuration. Values load from YAML
// and may be overridden by PAYFLOW_* environment variables.
type Config struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`

	Store struct {
		Backend  string `yaml:"backend"` // memory | postgres | redis | mongo
		DSN      string `yaml:"dsn"`     // postgres
		Addr     string `yaml:"addr"`    // redis
		URI      string `yaml:"uri"`     // mongo
		Database string `yaml:"database"`
	} `yaml:"store"`

	Tools struct {
		ConfigPath string `yaml:"config_path"` // empty means the built-in pools
	} `yaml:"tools"`

	Business struct {
		MatchThreshold       float64       `yaml:"match_threshold"`
		TolerancePct         float64       `yaml:"tolerance_pct"`
		AutoApproveThreshold float64       `yaml:"auto_approve_threshold"`
		ApproverRole         string        `yaml:"approver_role"`
		ReviewWindow         time.Duration `yaml:"review_window"`
	} `yaml:"business"`
}

func defaultServerConfig() Config {
	var cfg Config
	cfg.Listen = ":8080"
	cfg.LogLevel = "info"
	cfg.Store.Backend = "memory"
	cfg.Store.Database = "payflow"

	return cfg
}

// loadConfig reads the YAML file when path is non-empty, then applies
// environment overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Listen, "PAYFLOW_LISTEN")
	setFromEnv(&cfg.LogLevel, "PAYFLOW_LOG_LEVEL")
	setFromEnv(&cfg.Store.Backend, "PAYFLOW_STORE")
	setFromEnv(&cfg.Store.DSN, "PAYFLOW_POSTGRES_DSN")
	setFromEnv(&cfg.Store.Addr, "PAYFLOW_REDIS_ADDR")
	setFromEnv(&cfg.Store.URI, "PAYFLOW_MONGO_URI")
	setFromEnv(&cfg.Store.Database, "PAYFLOW_DATABASE")
	setFromEnv(&cfg.Tools.ConfigPath, "PAYFLOW_TOOLS_CONFIG")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// businessConfig folds the configured overrides onto the defaults.
// Zero values keep the default.
func (c Config) businessConfig() payflow.Config {
	cfg := payflow.DefaultConfig()

	if c.Business.MatchThreshold > 0 {
		cfg.MatchThreshold = c.Business.MatchThreshold
	}
	if c.Business.TolerancePct > 0 {
		cfg.TolerancePct = c.Business.TolerancePct
	}
	if c.Business.AutoApproveThreshold > 0 {
		cfg.AutoApproveThreshold = c.Business.AutoApproveThreshold
	}
	if c.Business.ApproverRole != "" {
		cfg.ApproverRole = c.Business.ApproverRole
	}
	if c.Business.ReviewWindow > 0 {
		cfg.ReviewWindow = c.Business.ReviewWindow
	}

	return cfg
}
