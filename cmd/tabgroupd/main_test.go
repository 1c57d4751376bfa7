package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/b/tmux-tabgroups/pkg/paths"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
)

func TestResolveSettingsPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TABGROUPS_RUNTIME_DIR", dir)
	paths.ResetForTest()
	t.Cleanup(paths.ResetForTest)

	cfgPath := filepath.Join(dir, "config.yaml")
	body := "host: tmux\nlog:\n  level: warn\n  format: json\nwebsocket:\n  listen: 127.0.0.1:9000\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TABGROUPS_LOG_LEVEL", "debug")

	cmd, v := newCommand()
	if err := cmd.ParseFlags([]string{"--config", cfgPath, "--host", "memory"}); err != nil {
		t.Fatal(err)
	}
	s, err := resolveSettings(v)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}

	cfg := s.Config
	if cfg.Host != "memory" {
		t.Errorf("flag should beat file: host = %q", cfg.Host)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env should beat file: level = %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("file should beat default: format = %q", cfg.Log.Format)
	}
	if cfg.WebSocket.Listen != "127.0.0.1:9000" {
		t.Errorf("listen = %q", cfg.WebSocket.Listen)
	}
	if cfg.Socket != filepath.Join(dir, "tabgroupd.sock") {
		t.Errorf("socket = %q", cfg.Socket)
	}
}

func TestResolveSettingsMissingConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TABGROUPS_RUNTIME_DIR", dir)
	paths.ResetForTest()
	t.Cleanup(paths.ResetForTest)

	cmd, v := newCommand()
	if err := cmd.ParseFlags([]string{"--config", filepath.Join(dir, "absent.yaml")}); err != nil {
		t.Fatal(err)
	}
	s, err := resolveSettings(v)
	if err != nil {
		t.Fatalf("resolveSettings: %v", err)
	}
	if s.Config.Host != "memory" || s.Config.WebSocket.Enabled {
		t.Errorf("unexpected defaults: %+v", s.Config)
	}
}

func TestResolveSettingsRejectsUnknownHost(t *testing.T) {
	dir := t.TempDir()
	cmd, v := newCommand()
	if err := cmd.ParseFlags([]string{"--config", filepath.Join(dir, "absent.yaml"), "--host", "wayland"}); err != nil {
		t.Fatal(err)
	}
	if _, err := resolveSettings(v); err == nil {
		t.Fatal("expected an error for an unknown host")
	}
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	var f fanout
	var a, b []tabgroup.EventType
	f.add(func(ev tabgroup.Event) { a = append(a, ev.Type) })
	f.publish(tabgroup.Event{Type: tabgroup.EventGroupCreated})
	f.add(func(ev tabgroup.Event) { b = append(b, ev.Type) })
	f.publish(tabgroup.Event{Type: tabgroup.EventTabAdded})

	if len(a) != 2 || len(b) != 1 || b[0] != tabgroup.EventTabAdded {
		t.Fatalf("a=%v b=%v", a, b)
	}
}
