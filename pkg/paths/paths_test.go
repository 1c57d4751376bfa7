package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestDirs(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("TABGROUPS_CONFIG_DIR", "")
	t.Setenv("TABGROUPS_STATE_DIR", "")
	t.Setenv("TABGROUPS_RUNTIME_DIR", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", tmp)
	ResetForTest()
	return tmp
}

func TestConfigDir_EnvOverride(t *testing.T) {
	tmp := setupTestDirs(t)
	override := filepath.Join(tmp, "custom-config")
	t.Setenv("TABGROUPS_CONFIG_DIR", override)
	ResetForTest()

	if got := ConfigDir(); got != override {
		t.Errorf("ConfigDir() = %q, want %q", got, override)
	}
}

func TestConfigDir_Default(t *testing.T) {
	tmp := setupTestDirs(t)
	want := filepath.Join(tmp, ".config", "tabgroups")
	if got := ConfigDir(); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestStateDir_EnvOverride(t *testing.T) {
	tmp := setupTestDirs(t)
	override := filepath.Join(tmp, "custom-state")
	t.Setenv("TABGROUPS_STATE_DIR", override)
	ResetForTest()

	if got := StateDir(); got != override {
		t.Errorf("StateDir() = %q, want %q", got, override)
	}
}

func TestStateDir_Default(t *testing.T) {
	tmp := setupTestDirs(t)
	want := filepath.Join(tmp, ".local", "state", "tabgroups")
	if got := StateDir(); got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
}

func TestRuntimeDir(t *testing.T) {
	tests := []struct {
		name    string
		runtime string
		xdg     string
		want    func(tmp string) string
	}{
		{
			name:    "explicit override",
			runtime: "rt",
			xdg:     "xdg",
			want:    func(tmp string) string { return filepath.Join(tmp, "rt") },
		},
		{
			name: "xdg runtime dir",
			xdg:  "xdg",
			want: func(tmp string) string { return filepath.Join(tmp, "xdg", "tabgroups") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := setupTestDirs(t)
			if tt.runtime != "" {
				t.Setenv("TABGROUPS_RUNTIME_DIR", filepath.Join(tmp, tt.runtime))
			}
			if tt.xdg != "" {
				t.Setenv("XDG_RUNTIME_DIR", filepath.Join(tmp, tt.xdg))
			}
			ResetForTest()
			if got := RuntimeDir(); got != tt.want(tmp) {
				t.Errorf("RuntimeDir() = %q, want %q", got, tt.want(tmp))
			}
		})
	}
}

func TestSocketAndPIDPaths(t *testing.T) {
	tmp := setupTestDirs(t)
	t.Setenv("TABGROUPS_RUNTIME_DIR", tmp)
	ResetForTest()

	if got, want := SocketPath(), filepath.Join(tmp, "tabgroupd.sock"); got != want {
		t.Errorf("SocketPath() = %q, want %q", got, want)
	}
	if got, want := PIDPath(), filepath.Join(tmp, "tabgroupd.pid"); got != want {
		t.Errorf("PIDPath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	tmp := setupTestDirs(t)
	want := filepath.Join(tmp, ".config", "tabgroups", "config.yaml")
	if got := ConfigPath(); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestStatePath(t *testing.T) {
	tmp := setupTestDirs(t)
	want := filepath.Join(tmp, ".local", "state", "tabgroups", "events.log")
	if got := StatePath("events.log"); got != want {
		t.Errorf("StatePath(\"events.log\") = %q, want %q", got, want)
	}
}

func TestEnsureDirs_Create(t *testing.T) {
	tmp := setupTestDirs(t)
	t.Setenv("TABGROUPS_RUNTIME_DIR", filepath.Join(tmp, "run"))
	ResetForTest()

	tests := []struct {
		name   string
		ensure func() (string, error)
		want   string
	}{
		{"config", EnsureConfigDir, filepath.Join(tmp, ".config", "tabgroups")},
		{"state", EnsureStateDir, filepath.Join(tmp, ".local", "state", "tabgroups")},
		{"runtime", EnsureRuntimeDir, filepath.Join(tmp, "run")},
	}
	for _, tt := range tests {
		dir, err := tt.ensure()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if dir != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, dir, tt.want)
		}
		info, err := os.Stat(tt.want)
		if err != nil || !info.IsDir() {
			t.Errorf("%s did not create directory %q", tt.name, tt.want)
		}
	}
}
