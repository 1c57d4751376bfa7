package tmux

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/b/tmux-tabgroups/pkg/window"
)

var _ window.Host = (*Host)(nil)

type fakeWindow struct {
	session string
	id      string
	index   int
	name    string
	active  bool
	opts    map[string]string
}

// fakeTmux understands the handful of commands the host issues.
type fakeTmux struct {
	windows  []*fakeWindow
	next     int
	commands []string
	width    string
	height   string
}

func newFakeTmux() *fakeTmux {
	return &fakeTmux{next: 10, width: "200", height: "50"}
}

func (f *fakeTmux) add(session, name string) window.Identifier {
	w := &fakeWindow{session: session, id: fmt.Sprintf("@%d", f.next), index: len(f.windows), name: name, opts: map[string]string{}}
	f.next++
	f.windows = append(f.windows, w)
	return window.Identifier{ApplicationID: session, Name: w.id}
}

func (f *fakeTmux) find(target string) *fakeWindow {
	for _, w := range f.windows {
		if w.id == target {
			return w
		}
	}
	return nil
}

func (f *fakeTmux) expand(w *fakeWindow, format string) string {
	r := strings.NewReplacer(
		"#{session_name}", w.session,
		"#{window_id}", w.id,
		"#{window_index}", fmt.Sprint(w.index),
		"#{window_name}", w.name,
		"#{window_active}", map[bool]string{true: "1", false: "0"}[w.active],
		"#{window_width}", "120",
		"#{window_height}", "40",
	)
	out := r.Replace(format)
	for k, v := range w.opts {
		out = strings.ReplaceAll(out, "#{"+k+"}", v)
	}
	// Unset options expand to nothing.
	for _, k := range []string{optParent, optState, optBounds, optHidden, optChrome, optURL} {
		out = strings.ReplaceAll(out, "#{"+k+"}", "")
	}
	return out
}

func (f *fakeTmux) Run(_ context.Context, args ...string) (string, error) {
	f.commands = append(f.commands, strings.Join(args, " "))
	flag := func(name string) string {
		for i := 0; i < len(args)-1; i++ {
			if args[i] == name {
				return args[i+1]
			}
		}
		return ""
	}
	lookup := func() (*fakeWindow, error) {
		if w := f.find(flag("-t")); w != nil {
			return w, nil
		}
		return nil, fmt.Errorf("tmux %s: can't find window: %s", args[0], flag("-t"))
	}

	switch args[0] {
	case "list-windows":
		var lines []string
		for _, w := range f.windows {
			lines = append(lines, f.expand(w, args[len(args)-1]))
		}
		return strings.Join(lines, "\n") + "\n", nil
	case "new-window":
		id := f.add("main", flag("-n"))
		return id.Name + "\n", nil
	case "set-option":
		w, err := lookup()
		if err != nil {
			return "", err
		}
		if args[2] == "-u" {
			delete(w.opts, args[len(args)-1])
		} else {
			w.opts[args[len(args)-2]] = args[len(args)-1]
		}
		return "", nil
	case "display-message":
		format := args[len(args)-1]
		if flag("-t") == "" {
			return strings.NewReplacer("#{client_width}", f.width, "#{client_height}", f.height).Replace(format) + "\n", nil
		}
		w, err := lookup()
		if err != nil {
			return "", err
		}
		return f.expand(w, format) + "\n", nil
	case "select-window":
		w, err := lookup()
		if err != nil {
			return "", err
		}
		for _, other := range f.windows {
			other.active = other == w
		}
		return "", nil
	case "kill-window":
		w, err := lookup()
		if err != nil {
			return "", err
		}
		for i, other := range f.windows {
			if other == w {
				f.windows = append(f.windows[:i], f.windows[i+1:]...)
				break
			}
		}
		return "", nil
	}
	return "", fmt.Errorf("unknown command %q", args[0])
}

func TestListWindows(t *testing.T) {
	f := newFakeTmux()
	f.add("work", "editor")
	f.add("work", "\x1b[1mlogs\x1b[0m")
	f.windows[1].opts[optParent] = "@10"

	windows, err := ListWindows(context.Background(), f)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[1].Name != "logs" {
		t.Errorf("ANSI not stripped: %q", windows[1].Name)
	}
	if windows[1].Parent != "@10" {
		t.Errorf("parent = %q", windows[1].Parent)
	}
	want := window.Identifier{ApplicationID: "work", Name: "@10"}
	if windows[0].Identifier() != want {
		t.Errorf("identifier = %v, want %v", windows[0].Identifier(), want)
	}
}

func TestCreateAndAddressChromeWindow(t *testing.T) {
	f := newFakeTmux()
	h := NewHost(f, "")
	ctx := context.Background()
	chrome := window.Identifier{ApplicationID: "tabgroupd", Name: "TabSet-1"}

	err := h.Create(ctx, window.Options{ID: chrome, URL: "https://tabs", Bounds: window.Bounds{Left: 1, Top: 2, Width: 30, Height: 4}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.Create(ctx, window.Options{ID: chrome}); err == nil {
		t.Fatal("second Create with the same identifier succeeded")
	}

	b, err := h.Bounds(ctx, chrome)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if b != (window.Bounds{Left: 1, Top: 2, Width: 30, Height: 4}) {
		t.Errorf("bounds = %+v", b)
	}

	w := f.windows[0]
	if w.opts[optHidden] != "1" {
		t.Error("window created without AutoShow should be hidden")
	}
	if err := h.Show(ctx, chrome); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if _, ok := w.opts[optHidden]; ok {
		t.Error("Show left the hidden flag set")
	}

	if err := h.Close(ctx, chrome); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.Bounds(ctx, chrome); !errors.Is(err, window.ErrNoWindow) {
		t.Errorf("closed window: err = %v", err)
	}
}

func TestBoundsFallsBackToWindowSize(t *testing.T) {
	f := newFakeTmux()
	id := f.add("work", "editor")
	b, err := NewHost(f, "").Bounds(context.Background(), id)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if b != (window.Bounds{Width: 120, Height: 40}) {
		t.Errorf("bounds = %+v", b)
	}
}

func TestGroupStateReachesChildren(t *testing.T) {
	f := newFakeTmux()
	h := NewHost(f, "")
	ctx := context.Background()
	parent := f.add("work", "chrome")
	child := f.add("work", "editor")
	loner := f.add("work", "shell")

	if err := h.Reparent(ctx, child, parent); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if err := h.MinimizeGroup(ctx, parent); err != nil {
		t.Fatalf("MinimizeGroup: %v", err)
	}
	for _, tc := range []struct {
		id   window.Identifier
		want window.State
	}{
		{parent, window.StateMinimized},
		{child, window.StateMinimized},
		{loner, window.StateNormal},
	} {
		got, err := h.State(ctx, tc.id)
		if err != nil {
			t.Fatalf("State(%v): %v", tc.id, err)
		}
		if got != tc.want {
			t.Errorf("State(%v) = %s, want %s", tc.id, got, tc.want)
		}
	}

	if err := h.Unparent(ctx, child); err != nil {
		t.Fatalf("Unparent: %v", err)
	}
	if err := h.RestoreGroup(ctx, parent); err != nil {
		t.Fatalf("RestoreGroup: %v", err)
	}
	if s, _ := h.State(ctx, child); s != window.StateMinimized {
		t.Errorf("unparented child followed the group: %s", s)
	}
}

func TestMissingWindowMapsToErrNoWindow(t *testing.T) {
	h := NewHost(newFakeTmux(), "")
	ctx := context.Background()

	if err := h.Focus(ctx, window.Identifier{ApplicationID: "work", Name: "@99"}); !errors.Is(err, window.ErrNoWindow) {
		t.Errorf("unknown tmux window: err = %v", err)
	}
	if err := h.Focus(ctx, window.Identifier{ApplicationID: "tabgroupd", Name: "TabSet-9"}); !errors.Is(err, window.ErrNoWindow) {
		t.Errorf("never created: err = %v", err)
	}
}

func TestScreen(t *testing.T) {
	f := newFakeTmux()
	h := NewHost(f, "")
	b, err := h.Screen(context.Background())
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if b != (window.Bounds{Width: 200, Height: 50}) {
		t.Errorf("screen = %+v", b)
	}

	f.width, f.height = "", ""
	b, _ = h.Screen(context.Background())
	if b != (window.Bounds{Width: 80, Height: 24}) {
		t.Errorf("detached screen = %+v", b)
	}
}

func TestFocusSelectsWindow(t *testing.T) {
	f := newFakeTmux()
	h := NewHost(f, "work")
	a := f.add("work", "a")
	f.add("work", "b")

	if err := h.Focus(context.Background(), a); err != nil {
		t.Fatalf("Focus: %v", err)
	}
	if !f.windows[0].active || f.windows[1].active {
		t.Error("select-window not applied")
	}
	if last := f.commands[len(f.commands)-1]; last != "select-window -t "+a.Name {
		t.Errorf("last command = %q", last)
	}
}
