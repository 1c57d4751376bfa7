package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/config"
	"github.com/b/tmux-tabgroups/pkg/daemon"
	"github.com/b/tmux-tabgroups/pkg/dispatch"
	"github.com/b/tmux-tabgroups/pkg/drag"
	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/paths"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/telemetry"
	"github.com/b/tmux-tabgroups/pkg/tmux"
	"github.com/b/tmux-tabgroups/pkg/window"
	"github.com/b/tmux-tabgroups/pkg/window/memhost"
)

const serviceApp = "tabgroupd"

func newHost(s settings) window.Host {
	if s.Config.Host == config.HostTmux {
		return tmux.NewHost(tmux.ExecRunner{}, s.Session)
	}
	return memhost.New()
}

func run(ctx context.Context, s settings) error {
	cfg := s.Config
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx = logging.WithContext(ctx, logger)
	log := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(ctx, "main", r)
			panic(r)
		}
	}()

	tel, err := telemetry.Init(ctx, telemetry.Config{Endpoint: cfg.Telemetry.Endpoint, Headers: cfg.Telemetry.Headers})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tel.Shutdown(shutdownCtx)
	}()

	if _, err := paths.EnsureRuntimeDir(); err != nil {
		return fmt.Errorf("runtime dir: %w", err)
	}

	events := openEventLog(ctx)
	defer events.Close()

	host := newHost(s)
	configs := appconfig.NewRegistry()
	if added := config.RegisterTabClients(ctx, cfg, configs); len(added) > 0 {
		log.Info().Strs("applications", added).Msg("tab clients registered from config")
	}

	var sinks fanout
	sinks.add(events.record)
	reg := tabgroup.NewRegistry(tabgroup.Options{
		Host:          host,
		Configs:       configs,
		Metrics:       tel.Metrics,
		Notify:        sinks.publish,
		ServiceApp:    serviceApp,
		StripHeight:   cfg.TabStrip.Height,
		EjectNewGroup: cfg.Eject.NewGroupEnabled(),
	})

	overlay, err := drag.New(ctx, host, drag.Options{
		ServiceApp: serviceApp,
		AutoHide:   cfg.Drag.AutoHide,
		Metrics:    tel.Metrics,
		OnTimeout: func(source window.Identifier) {
			events.note("drag from %s timed out", source)
		},
	})
	if err != nil {
		return err
	}

	d := dispatch.New(dispatch.Options{
		Registry: reg,
		Overlay:  overlay,
		Tracer:   tel.Tracer,
		Metrics:  tel.Metrics,
	})

	srv := daemon.NewServer(cfg.Socket, paths.PIDPath(), d)
	if err := srv.Start(ctx); err != nil {
		_ = overlay.Close(ctx)
		return err
	}
	sinks.add(srv.Broadcast)
	log.Info().Str("host", cfg.Host).Int("pid", os.Getpid()).Msg("tabgroupd started")
	events.note("daemon start pid=%d host=%s", os.Getpid(), cfg.Host)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WebSocket.Enabled {
		token := cfg.WebSocket.Token
		if token == "" {
			if token, err = daemon.LoadOrGenerateToken(daemon.DefaultTokenPath()); err != nil {
				srv.Stop()
				return fmt.Errorf("websocket token: %w", err)
			}
		}
		ws := daemon.NewWebSocketServer(daemon.WebSocketConfig{Listen: cfg.WebSocket.Listen, Token: token}, d)
		sinks.add(ws.Broadcast)
		g.Go(func() error { return ws.ListenAndServe(gctx) })
	}

	if _, err := os.Stat(s.ConfigPath); err == nil {
		g.Go(func() error {
			return config.Watch(gctx, s.ConfigPath, func(next *config.Config) {
				if added := config.RegisterTabClients(gctx, next, configs); len(added) > 0 {
					log.Info().Strs("applications", added).Msg("tab clients registered on reload")
				}
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		srv.Stop()
		return nil
	})

	runErr := g.Wait()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(logging.WithContext(context.Background(), logger), 5*time.Second)
	defer cancel()
	if err := overlay.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("close drag overlay")
	}
	if err := reg.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("release tab groups")
	}
	events.note("daemon stop pid=%d", os.Getpid())

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
