package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/logging"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
)

const (
	DefaultWebSocketListen = "127.0.0.1:8099"
	DefaultAutoHide        = 15 * time.Second
	DefaultStripHeight     = 62
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is LoadConfig, except a missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// SaveConfig writes the config to the specified path
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// AddRule appends an auto-group rule. Rules are matched in order.
func AddRule(cfg *Config, rule Rule) error {
	for _, r := range cfg.AutoGroup {
		if r.Name == rule.Name {
			return ErrRuleExists
		}
	}
	if _, err := regexp.Compile(rule.Pattern); err != nil {
		return fmt.Errorf("rule %s: %w", rule.Name, err)
	}
	cfg.AutoGroup = append(cfg.AutoGroup, rule)
	return nil
}

// DeleteRule removes a rule by name.
func DeleteRule(cfg *Config, name string) error {
	for i, r := range cfg.AutoGroup {
		if r.Name == name {
			cfg.AutoGroup = append(cfg.AutoGroup[:i], cfg.AutoGroup[i+1:]...)
			return nil
		}
	}
	return ErrRuleNotFound
}

// FindRule returns a pointer to the rule with the given name, or nil if not found
func FindRule(cfg *Config, name string) *Rule {
	for i := range cfg.AutoGroup {
		if cfg.AutoGroup[i].Name == name {
			return &cfg.AutoGroup[i]
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = HostMemory
	}
	if cfg.WebSocket.Listen == "" {
		cfg.WebSocket.Listen = DefaultWebSocketListen
	}
	if cfg.Drag.AutoHide <= 0 {
		cfg.Drag.AutoHide = DefaultAutoHide
	}
	if cfg.TabStrip.Height <= 0 {
		cfg.TabStrip.Height = DefaultStripHeight
	}
	for i := range cfg.TabClients {
		if cfg.TabClients[i].Height <= 0 {
			cfg.TabClients[i].Height = cfg.TabStrip.Height
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

func validate(cfg *Config) error {
	switch cfg.Host {
	case HostMemory, HostTmux:
	default:
		return fmt.Errorf("unknown host %q (want %s or %s)", cfg.Host, HostMemory, HostTmux)
	}
	for i, c := range cfg.TabClients {
		if c.Application == "" {
			return fmt.Errorf("tab_clients[%d]: application is required", i)
		}
		if c.URL == "" {
			return fmt.Errorf("tab_clients[%d] (%s): url is required", i, c.Application)
		}
	}
	for _, r := range cfg.AutoGroup {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("auto_group %s: %w", r.Name, err)
		}
	}
	return nil
}

// RegisterTabClients adds every tab_clients entry to reg and returns the
// applications that were new. Entries for applications already configured
// are skipped: descriptors are write-once.
func RegisterTabClients(ctx context.Context, cfg *Config, reg *appconfig.Registry) []string {
	var added []string
	for _, c := range cfg.TabClients {
		if err := reg.AddApplicationUIConfig(c.Application, c.Options()); err != nil {
			log := logging.FromContext(ctx)
			if errors.Is(err, appconfig.ErrAlreadySet) {
				log.Debug().Str("application", c.Application).Msg("tab client already configured")
			} else {
				log.Warn().Err(err).Str("application", c.Application).Msg("tab client not registered")
			}
			continue
		}
		added = append(added, c.Application)
	}
	return added
}
