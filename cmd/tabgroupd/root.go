package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/b/tmux-tabgroups/pkg/config"
	"github.com/b/tmux-tabgroups/pkg/paths"
	"github.com/b/tmux-tabgroups/pkg/telemetry"
)

var version = "dev"

// settings is everything run needs after flags, env and file are merged.
type settings struct {
	ConfigPath string
	Session    string
	Config     *config.Config
}

func newRootCmd() *cobra.Command {
	cmd, _ := newCommand()
	return cmd
}

// newCommand also returns the viper instance the flags are bound to.
func newCommand() (*cobra.Command, *viper.Viper) {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "tabgroupd",
		Short: "Tab group daemon",
		Long: `tabgroupd groups windows into tab groups and keeps their tab strips in sync.

Clients (tabgroupctl, tab-strip pages) talk to it over a unix socket or,
when enabled, a loopback websocket. Settings come from flags, TABGROUPS_*
environment variables and the config file, in that order of precedence.`,
		Version:      version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(v)
			if err != nil {
				return err
			}
			telemetry.Version = version
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()
			return run(ctx, s)
		},
	}

	f := cmd.Flags()
	f.String("config", paths.ConfigPath(), "config file")
	f.String("socket", "", "unix socket path (default: runtime dir)")
	f.String("host", "", "window host: memory or tmux")
	f.String("session", "", "tmux session new windows are created in (default: current)")
	f.String("log-level", "", "log level: trace, debug, info, warn, error")
	f.String("log-format", "", "log format: console or json")
	f.Bool("websocket", false, "serve the websocket bridge")
	f.String("websocket-listen", "", "websocket listen address")
	f.String("otel-endpoint", "", "OTLP/HTTP endpoint for traces and metrics")

	bindings := map[string]string{
		"config":             "config",
		"socket":             "socket",
		"host":               "host",
		"session":            "session",
		"log.level":          "log-level",
		"log.format":         "log-format",
		"websocket.enabled":  "websocket",
		"websocket.listen":   "websocket-listen",
		"telemetry.endpoint": "otel-endpoint",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	v.SetEnvPrefix("TABGROUPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return cmd, v
}

// resolveSettings loads the config file and lays flag and env values over it.
func resolveSettings(v *viper.Viper) (settings, error) {
	path := v.GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return settings{}, err
	}
	applyOverrides(v, cfg)
	if cfg.Host != config.HostMemory && cfg.Host != config.HostTmux {
		return settings{}, fmt.Errorf("unknown host %q", cfg.Host)
	}
	if cfg.Socket == "" {
		cfg.Socket = paths.SocketPath()
	}
	return settings{ConfigPath: path, Session: v.GetString("session"), Config: cfg}, nil
}

// applyOverrides copies every key set by flag or environment into cfg.
func applyOverrides(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			if s := v.GetString(key); s != "" {
				*dst = s
			}
		}
	}
	str("socket", &cfg.Socket)
	str("host", &cfg.Host)
	str("log.level", &cfg.Log.Level)
	str("log.format", &cfg.Log.Format)
	str("websocket.listen", &cfg.WebSocket.Listen)
	str("telemetry.endpoint", &cfg.Telemetry.Endpoint)
	if v.IsSet("websocket.enabled") {
		cfg.WebSocket.Enabled = v.GetBool("websocket.enabled")
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_HEADERS") != "" && cfg.Telemetry.Headers == "" {
		cfg.Telemetry.Headers = os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")
	}
}
