// Package window describes the window-manager operations the tab group core
// consumes, plus a thin Handle that binds a Host to one window.
package window

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoWindow is returned by hosts when the identifier does not name a live window.
var ErrNoWindow = errors.New("window does not exist")

// Identifier uniquely names one host window.
type Identifier struct {
	ApplicationID string `json:"uuid" yaml:"application"`
	Name          string `json:"name" yaml:"name"`
}

func (id Identifier) String() string {
	return id.ApplicationID + "/" + id.Name
}

// IsZero reports whether either half of the identifier is missing.
func (id Identifier) IsZero() bool {
	return id.ApplicationID == "" || id.Name == ""
}

// Bounds is a window rectangle in screen coordinates.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether the point lies inside the rectangle.
func (b Bounds) Contains(x, y int) bool {
	return x >= b.Left && x < b.Left+b.Width && y >= b.Top && y < b.Top+b.Height
}

// Point is a screen coordinate, typically a drop position.
type Point struct {
	X int `json:"screenX"`
	Y int `json:"screenY"`
}

// State is the visual state reported by the window manager.
type State string

const (
	StateNormal    State = "normal"
	StateMinimized State = "minimized"
	StateMaximized State = "maximized"
)

// Options describes a window the core asks the host to create.
type Options struct {
	ID          Identifier
	URL         string
	Bounds      Bounds
	Frame       bool
	Opacity     float64
	AutoShow    bool
	AlwaysOnTop bool
}

// Host is the window manager. Every call may block on the host and should
// honor ctx cancellation.
type Host interface {
	Create(ctx context.Context, opts Options) error
	Show(ctx context.Context, id Identifier) error
	Hide(ctx context.Context, id Identifier) error
	Focus(ctx context.Context, id Identifier) error
	Close(ctx context.Context, id Identifier) error
	Bounds(ctx context.Context, id Identifier) (Bounds, error)
	SetBounds(ctx context.Context, id Identifier, b Bounds) error
	State(ctx context.Context, id Identifier) (State, error)
	Minimize(ctx context.Context, id Identifier) error
	Maximize(ctx context.Context, id Identifier) error
	Restore(ctx context.Context, id Identifier) error

	// Group-aware variants act on the window and every window parented to it.
	MinimizeGroup(ctx context.Context, id Identifier) error
	MaximizeGroup(ctx context.Context, id Identifier) error
	RestoreGroup(ctx context.Context, id Identifier) error

	// Reparent stacks child under parent so group-aware calls on parent reach it.
	Reparent(ctx context.Context, child, parent Identifier) error
	Unparent(ctx context.Context, child Identifier) error

	// Screen returns the bounds of the desktop used for full-screen overlays.
	Screen(ctx context.Context) (Bounds, error)
}

// Handle wraps one host window. It has no knowledge of tab groups.
type Handle struct {
	host Host
	id   Identifier
}

// Wrap returns a handle for an existing window.
func Wrap(host Host, id Identifier) *Handle {
	return &Handle{host: host, id: id}
}

// Create asks the host for a new window and returns its handle.
func Create(ctx context.Context, host Host, opts Options) (*Handle, error) {
	if opts.ID.IsZero() {
		return nil, fmt.Errorf("create window: incomplete identifier %q", opts.ID)
	}
	if err := host.Create(ctx, opts); err != nil {
		return nil, fmt.Errorf("create window %s: %w", opts.ID, err)
	}
	return Wrap(host, opts.ID), nil
}

// ID is the identifier of the window the handle drives.
func (h *Handle) ID() Identifier { return h.id }

func (h *Handle) Show(ctx context.Context) error  { return h.host.Show(ctx, h.id) }
func (h *Handle) Hide(ctx context.Context) error  { return h.host.Hide(ctx, h.id) }
func (h *Handle) Focus(ctx context.Context) error { return h.host.Focus(ctx, h.id) }
func (h *Handle) Close(ctx context.Context) error { return h.host.Close(ctx, h.id) }

func (h *Handle) Bounds(ctx context.Context) (Bounds, error) { return h.host.Bounds(ctx, h.id) }

func (h *Handle) SetBounds(ctx context.Context, b Bounds) error {
	return h.host.SetBounds(ctx, h.id, b)
}

// MoveTo keeps the window size and moves its top-left corner.
func (h *Handle) MoveTo(ctx context.Context, left, top int) error {
	b, err := h.host.Bounds(ctx, h.id)
	if err != nil {
		return err
	}
	b.Left, b.Top = left, top
	return h.host.SetBounds(ctx, h.id, b)
}

func (h *Handle) State(ctx context.Context) (State, error) { return h.host.State(ctx, h.id) }

func (h *Handle) Minimize(ctx context.Context) error { return h.host.Minimize(ctx, h.id) }
func (h *Handle) Maximize(ctx context.Context) error { return h.host.Maximize(ctx, h.id) }
func (h *Handle) Restore(ctx context.Context) error  { return h.host.Restore(ctx, h.id) }

func (h *Handle) MinimizeGroup(ctx context.Context) error { return h.host.MinimizeGroup(ctx, h.id) }
func (h *Handle) MaximizeGroup(ctx context.Context) error { return h.host.MaximizeGroup(ctx, h.id) }
func (h *Handle) RestoreGroup(ctx context.Context) error  { return h.host.RestoreGroup(ctx, h.id) }

// Reparent stacks this window under parent.
func (h *Handle) Reparent(ctx context.Context, parent *Handle) error {
	return h.host.Reparent(ctx, h.id, parent.id)
}

func (h *Handle) Unparent(ctx context.Context) error { return h.host.Unparent(ctx, h.id) }
