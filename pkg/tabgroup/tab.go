package tabgroup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/b/tmux-tabgroups/pkg/window"
)

// Properties are the per-tab values the tab strip displays.
type Properties struct {
	Title      string          `json:"title,omitempty"`
	Icon       string          `json:"icon,omitempty"`
	CustomData json.RawMessage `json:"customData,omitempty"`
}

// merge overlays the non-empty fields of p onto base.
func (p Properties) merge(base Properties) Properties {
	if p.Title != "" {
		base.Title = p.Title
	}
	if p.Icon != "" {
		base.Icon = p.Icon
	}
	if len(p.CustomData) > 0 {
		base.CustomData = append(json.RawMessage(nil), p.CustomData...)
	}
	return base
}

// Tab is one window's membership record within a group.
type Tab struct {
	id       window.Identifier
	handle   *window.Handle
	original window.Bounds

	mu    sync.RWMutex
	props Properties
}

// newTab reads the window's current bounds so they can be restored on removal.
func newTab(ctx context.Context, host window.Host, id window.Identifier, props *Properties) (*Tab, error) {
	h := window.Wrap(host, id)
	b, err := h.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("init tab %s: %w", id, err)
	}
	t := &Tab{
		id:       id,
		handle:   h,
		original: b,
		props:    Properties{Title: id.Name},
	}
	if props != nil {
		t.props = props.merge(t.props)
	}
	return t, nil
}

// ID identifies the tab's window.
func (t *Tab) ID() window.Identifier { return t.id }

// Window is the handle used to drive the tab's window on the host.
func (t *Tab) Window() *window.Handle { return t.handle }

// OriginalBounds are the window bounds before it joined a group.
func (t *Tab) OriginalBounds() window.Bounds { return t.original }

// Properties returns the tab's current display properties.
func (t *Tab) Properties() Properties {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.props
}

// UpdateProperties merges the non-empty fields of p and returns the result.
func (t *Tab) UpdateProperties(p Properties) Properties {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.props = p.merge(t.props)
	return t.props
}
