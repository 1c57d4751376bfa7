// Package memhost is an in-memory window manager. tabgroupd uses it in
// headless mode and the tests use it as the host double.
package memhost

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/b/tmux-tabgroups/pkg/window"
)

// Window is a snapshot of one simulated window.
type Window struct {
	ID      window.Identifier
	URL     string
	Bounds  window.Bounds
	State   window.State
	Visible bool
	Parent  window.Identifier
	Closed  bool
}

// Host implements window.Host over a map of simulated windows.
type Host struct {
	mu      sync.Mutex
	windows map[window.Identifier]*Window
	screen  window.Bounds
	focus   []window.Identifier
	calls   []string

	// FailOn makes the named operation ("create", "reparent", ...) fail for
	// any window whose name matches the map value ("" matches every window).
	FailOn map[string]string
}

// New returns an empty host with a 1920x1080 desktop.
func New() *Host {
	return &Host{
		windows: make(map[window.Identifier]*Window),
		screen:  window.Bounds{Width: 1920, Height: 1080},
		FailOn:  make(map[string]string),
	}
}

// Open registers an application window that already exists on the desktop.
func (h *Host) Open(id window.Identifier, b window.Bounds) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[id] = &Window{ID: id, Bounds: b, State: window.StateNormal, Visible: true}
}

// Window returns a copy of the window's state.
func (h *Host) Window(id window.Identifier) (Window, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.windows[id]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Windows lists live windows sorted by identifier.
func (h *Host) Windows() []Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Window, 0, len(h.windows))
	for _, w := range h.windows {
		if !w.Closed {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Focused returns the most recently focused window.
func (h *Host) Focused() window.Identifier {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.focus) == 0 {
		return window.Identifier{}
	}
	return h.focus[len(h.focus)-1]
}

// Calls returns the operation log, one "op name" entry per host call.
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *Host) begin(ctx context.Context, op string, id window.Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.calls = append(h.calls, op+" "+id.Name)
	if match, ok := h.FailOn[op]; ok && (match == "" || match == id.Name) {
		return fmt.Errorf("%s %s: simulated failure", op, id)
	}
	return nil
}

func (h *Host) lookup(id window.Identifier) (*Window, error) {
	w, ok := h.windows[id]
	if !ok || w.Closed {
		return nil, fmt.Errorf("%s: %w", id, window.ErrNoWindow)
	}
	return w, nil
}

func (h *Host) Create(ctx context.Context, opts window.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(ctx, "create", opts.ID); err != nil {
		return err
	}
	if w, ok := h.windows[opts.ID]; ok && !w.Closed {
		return errors.New("window already exists")
	}
	h.windows[opts.ID] = &Window{
		ID:      opts.ID,
		URL:     opts.URL,
		Bounds:  opts.Bounds,
		State:   window.StateNormal,
		Visible: opts.AutoShow,
	}
	return nil
}

func (h *Host) update(ctx context.Context, op string, id window.Identifier, fn func(*Window)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(ctx, op, id); err != nil {
		return err
	}
	w, err := h.lookup(id)
	if err != nil {
		return err
	}
	fn(w)
	return nil
}

func (h *Host) Show(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "show", id, func(w *Window) { w.Visible = true })
}

func (h *Host) Hide(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "hide", id, func(w *Window) { w.Visible = false })
}

func (h *Host) Focus(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "focus", id, func(w *Window) { h.focus = append(h.focus, w.ID) })
}

func (h *Host) Close(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "close", id, func(w *Window) {
		w.Closed = true
		w.Visible = false
		for _, child := range h.windows {
			if child.Parent == w.ID {
				child.Parent = window.Identifier{}
			}
		}
	})
}

func (h *Host) Bounds(ctx context.Context, id window.Identifier) (window.Bounds, error) {
	var b window.Bounds
	err := h.update(ctx, "bounds", id, func(w *Window) { b = w.Bounds })
	return b, err
}

func (h *Host) SetBounds(ctx context.Context, id window.Identifier, b window.Bounds) error {
	return h.update(ctx, "setbounds", id, func(w *Window) { w.Bounds = b })
}

func (h *Host) State(ctx context.Context, id window.Identifier) (window.State, error) {
	var s window.State
	err := h.update(ctx, "state", id, func(w *Window) { s = w.State })
	return s, err
}

func (h *Host) Minimize(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "minimize", id, func(w *Window) { w.State = window.StateMinimized })
}

func (h *Host) Maximize(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "maximize", id, func(w *Window) { w.State = window.StateMaximized })
}

func (h *Host) Restore(ctx context.Context, id window.Identifier) error {
	return h.update(ctx, "restore", id, func(w *Window) { w.State = window.StateNormal })
}

func (h *Host) setGroupState(ctx context.Context, op string, id window.Identifier, s window.State) error {
	return h.update(ctx, op, id, func(w *Window) {
		w.State = s
		for _, child := range h.windows {
			if child.Parent == w.ID && !child.Closed {
				child.State = s
			}
		}
	})
}

func (h *Host) MinimizeGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, "minimizegroup", id, window.StateMinimized)
}

func (h *Host) MaximizeGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, "maximizegroup", id, window.StateMaximized)
}

func (h *Host) RestoreGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, "restoregroup", id, window.StateNormal)
}

func (h *Host) Reparent(ctx context.Context, child, parent window.Identifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(ctx, "reparent", child); err != nil {
		return err
	}
	if _, err := h.lookup(parent); err != nil {
		return err
	}
	w, err := h.lookup(child)
	if err != nil {
		return err
	}
	w.Parent = parent
	return nil
}

func (h *Host) Unparent(ctx context.Context, child window.Identifier) error {
	return h.update(ctx, "unparent", child, func(w *Window) { w.Parent = window.Identifier{} })
}

func (h *Host) Screen(ctx context.Context) (window.Bounds, error) {
	if err := ctx.Err(); err != nil {
		return window.Bounds{}, err
	}
	return h.screen, nil
}
