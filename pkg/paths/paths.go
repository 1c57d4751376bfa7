// Package paths resolves where tabgroups keeps its config, state and sockets.
//
// Layout (XDG-style):
//
//	Config:  ~/.config/tabgroups/config.yaml      (override: TABGROUPS_CONFIG_DIR)
//	State:   ~/.local/state/tabgroups/            (override: TABGROUPS_STATE_DIR)
//	Runtime: $XDG_RUNTIME_DIR/tabgroups or /tmp/tabgroups-<uid>  (override: TABGROUPS_RUNTIME_DIR)
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	configDirOnce   sync.Once
	configDirCached string

	stateDirOnce   sync.Once
	stateDirCached string

	runtimeDirOnce   sync.Once
	runtimeDirCached string
)

// ConfigDir resolves the config directory.
// Priority: TABGROUPS_CONFIG_DIR env > ~/.config/tabgroups/
func ConfigDir() string {
	configDirOnce.Do(func() {
		configDirCached = homeDir("TABGROUPS_CONFIG_DIR", ".config")
	})
	return configDirCached
}

// StateDir resolves the state directory.
// Priority: TABGROUPS_STATE_DIR env > ~/.local/state/tabgroups/
func StateDir() string {
	stateDirOnce.Do(func() {
		stateDirCached = homeDir("TABGROUPS_STATE_DIR", filepath.Join(".local", "state"))
	})
	return stateDirCached
}

func homeDir(env, rel string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, rel, "tabgroups")
}

// RuntimeDir resolves the directory for the daemon socket and pid file.
// Priority: TABGROUPS_RUNTIME_DIR env > $XDG_RUNTIME_DIR/tabgroups > /tmp/tabgroups-<uid>
func RuntimeDir() string {
	runtimeDirOnce.Do(func() {
		switch {
		case os.Getenv("TABGROUPS_RUNTIME_DIR") != "":
			runtimeDirCached = os.Getenv("TABGROUPS_RUNTIME_DIR")
		case os.Getenv("XDG_RUNTIME_DIR") != "":
			runtimeDirCached = filepath.Join(os.Getenv("XDG_RUNTIME_DIR"), "tabgroups")
		default:
			runtimeDirCached = filepath.Join(os.TempDir(), fmt.Sprintf("tabgroups-%d", os.Getuid()))
		}
	})
	return runtimeDirCached
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StatePath returns the full path to a state file (e.g. "events.log").
func StatePath(filename string) string {
	return filepath.Join(StateDir(), filename)
}

// SocketPath is the default unix socket tabgroupd listens on.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "tabgroupd.sock")
}

// PIDPath is tabgroupd's pid file.
func PIDPath() string {
	return filepath.Join(RuntimeDir(), "tabgroupd.pid")
}

// EnsureConfigDir creates the config directory if it doesn't exist and returns its path.
func EnsureConfigDir() (string, error) {
	return ensure(ConfigDir(), 0o755)
}

// EnsureStateDir creates the state directory if it doesn't exist and returns its path.
func EnsureStateDir() (string, error) {
	return ensure(StateDir(), 0o755)
}

// EnsureRuntimeDir creates the runtime directory, private to the user.
func EnsureRuntimeDir() (string, error) {
	return ensure(RuntimeDir(), 0o700)
}

func ensure(dir string, perm os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, perm); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	configDirOnce = sync.Once{}
	configDirCached = ""
	stateDirOnce = sync.Once{}
	stateDirCached = ""
	runtimeDirOnce = sync.Once{}
	runtimeDirCached = ""
}
