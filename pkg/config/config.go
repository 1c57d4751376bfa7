package config

import (
	"time"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/paths"
)

// Host backends.
const (
	HostMemory = "memory"
	HostTmux   = "tmux"
)

type Config struct {
	Host       string      `yaml:"host"`   // memory or tmux (default: memory)
	Socket     string      `yaml:"socket"` // default: runtime dir
	WebSocket  WebSocket   `yaml:"websocket"`
	Drag       Drag        `yaml:"drag"`
	TabStrip   TabStrip    `yaml:"tab_strip"`
	TabClients []TabClient `yaml:"tab_clients"`
	Eject      Eject       `yaml:"eject"`
	AutoGroup  []Rule      `yaml:"auto_group"`
	Log        Log         `yaml:"log"`
	Telemetry  Telemetry   `yaml:"telemetry"`
}

type WebSocket struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // default: 127.0.0.1:8099
	Token   string `yaml:"token"`  // empty: generated into the state dir
}

type Drag struct {
	AutoHide time.Duration `yaml:"auto_hide"` // default: 15s
}

// TabStrip is the descriptor used when a client registers with --default.
type TabStrip struct {
	URL    string `yaml:"url"`
	Height int    `yaml:"height"`
}

func (s TabStrip) Options() appconfig.TabWindowOptions {
	return appconfig.TabWindowOptions{URL: s.URL, Height: s.Height}
}

// TabClient pre-registers an application's tab strip at startup.
type TabClient struct {
	Application string `yaml:"application"`
	URL         string `yaml:"url"`
	Height      int    `yaml:"height"`
}

func (c TabClient) Options() appconfig.TabWindowOptions {
	return appconfig.TabWindowOptions{URL: c.URL, Height: c.Height}
}

type Eject struct {
	// NewGroup puts an ejected window of a tab-client application into its
	// own group. Pointer so an absent key keeps the default.
	NewGroup *bool `yaml:"new_group"`
}

// NewGroupEnabled reports the effective setting (default: true).
func (e Eject) NewGroupEnabled() bool {
	return e.NewGroup == nil || *e.NewGroup
}

// Rule groups host windows whose name matches Pattern.
type Rule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

type Log struct {
	Level  string `yaml:"level"`  // default: info
	Format string `yaml:"format"` // console or json (default: console)
}

type Telemetry struct {
	Endpoint string `yaml:"endpoint"` // OTLP http endpoint; empty disables export
	Headers  string `yaml:"headers"`  // key=value,key=value
}

func DefaultConfigPath() string {
	return paths.ConfigPath()
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
