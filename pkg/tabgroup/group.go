package tabgroup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// Lifecycle is the group's position in Forming -> Active -> Dissolving -> Dissolved.
// Minimized and maximized are host states of an Active group, see Group.State.
type Lifecycle int

const (
	Forming Lifecycle = iota
	Active
	Dissolving
	Dissolved
)

func (l Lifecycle) String() string {
	switch l {
	case Forming:
		return "forming"
	case Active:
		return "active"
	case Dissolving:
		return "dissolving"
	case Dissolved:
		return "dissolved"
	}
	return fmt.Sprintf("lifecycle(%d)", int(l))
}

// Group is an ordered set of tabs sharing one chrome window.
//
// opMu serializes every operation on the group, including the host calls it
// makes. mu guards the fields below it and is only held for in-memory
// commits, so readers never wait on the window manager. Membership changes
// go through Registry, which updates its reverse index under the same lock.
type Group struct {
	id     string
	reg    *Registry
	chrome *window.Handle
	ui     appconfig.TabWindowOptions

	opMu sync.Mutex

	mu        sync.RWMutex
	lifecycle Lifecycle
	tabs      []*Tab
	active    *Tab
	content   window.Bounds
}

// ID is the group id, which is also the chrome window's name.
func (g *Group) ID() string { return g.id }

// Chrome returns the group's composite window.
func (g *Group) Chrome() *window.Handle { return g.chrome }

// UIConfig is the tab-strip descriptor established when the group formed.
func (g *Group) UIConfig() appconfig.TabWindowOptions { return g.ui }

func (g *Group) Lifecycle() Lifecycle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lifecycle
}

// Tabs returns member identifiers in tab-strip order.
func (g *Group) Tabs() []window.Identifier {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tabIDsLocked()
}

func (g *Group) tabIDsLocked() []window.Identifier {
	ids := make([]window.Identifier, len(g.tabs))
	for i, t := range g.tabs {
		ids[i] = t.id
	}
	return ids
}

// Len returns the number of tabs.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tabs)
}

// ActiveTab returns the active tab's identifier, false if the group is empty.
func (g *Group) ActiveTab() (window.Identifier, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.active == nil {
		return window.Identifier{}, false
	}
	return g.active.id, true
}

// Tab returns the member tab for id.
func (g *Group) Tab(id window.Identifier) (*Tab, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, _ := g.findLocked(id)
	return t, t != nil
}

func (g *Group) findLocked(id window.Identifier) (*Tab, int) {
	for i, t := range g.tabs {
		if t.id == id {
			return t, i
		}
	}
	return nil, -1
}

// live fails once the group has started dissolving.
func (g *Group) live() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.lifecycle >= Dissolving {
		return fmt.Errorf("group %s: %w", g.id, ErrGroupDissolved)
	}
	return nil
}

// stripBounds splits a window rectangle into the chrome strip on top and the
// content area that tab windows occupy.
func stripBounds(seed window.Bounds, height int) (chrome, content window.Bounds) {
	chrome = window.Bounds{Left: seed.Left, Top: seed.Top, Width: seed.Width, Height: height}
	content = seed
	content.Top += height
	if content.Height > height {
		content.Height -= height
	}
	return chrome, content
}

// SwitchTab makes id the active tab and brings its window to the front.
// Switching to the already active tab succeeds without touching the host.
func (g *Group) SwitchTab(ctx context.Context, id window.Identifier) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if err := g.live(); err != nil {
		return err
	}

	g.mu.Lock()
	next, _ := g.findLocked(id)
	if next == nil {
		g.mu.Unlock()
		return fmt.Errorf("tab %s in group %s: %w", id, g.id, ErrNotFound)
	}
	prev := g.active
	if prev == next {
		g.mu.Unlock()
		return nil
	}
	g.active = next
	g.mu.Unlock()

	if err := g.present(ctx, next, prev); err != nil {
		g.mu.Lock()
		if g.active == next {
			g.active = prev
		}
		g.mu.Unlock()
		return err
	}

	logging.FromContext(ctx).Debug().Str("group_id", g.id).Str("tab", id.String()).Msg("tab activated")
	g.reg.emit(Event{Type: EventTabActivated, GroupID: g.id, Tab: id})
	return nil
}

// present shows and focuses next inside the chrome and hides prev.
func (g *Group) present(ctx context.Context, next, prev *Tab) error {
	if err := next.handle.Show(ctx); err != nil {
		return fmt.Errorf("show tab %s: %w", next.id, err)
	}
	if err := next.handle.Focus(ctx); err != nil {
		return fmt.Errorf("focus tab %s: %w", next.id, err)
	}
	if prev != nil && prev != next {
		if err := prev.handle.Hide(ctx); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("tab", prev.id.String()).Msg("hide previous tab")
		}
	}
	return nil
}

// ReOrderTabArray replaces the tab order with ordering. ordering must be a
// permutation of the current members; otherwise nothing changes. The active
// tab is kept by identity.
func (g *Group) ReOrderTabArray(ctx context.Context, ordering []window.Identifier) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if err := g.live(); err != nil {
		return err
	}

	g.mu.Lock()
	if len(ordering) != len(g.tabs) {
		n := len(g.tabs)
		g.mu.Unlock()
		return fmt.Errorf("group %s has %d tabs, ordering has %d: %w", g.id, n, len(ordering), ErrInvalidOrdering)
	}
	byID := make(map[window.Identifier]*Tab, len(g.tabs))
	for _, t := range g.tabs {
		byID[t.id] = t
	}
	next := make([]*Tab, 0, len(ordering))
	for _, id := range ordering {
		t, ok := byID[id]
		if !ok {
			g.mu.Unlock()
			return fmt.Errorf("tab %s is not a member or is repeated: %w", id, ErrInvalidOrdering)
		}
		delete(byID, id)
		next = append(next, t)
	}
	g.tabs = next
	order := g.tabIDsLocked()
	g.mu.Unlock()

	logging.FromContext(ctx).Debug().Str("group_id", g.id).Int("tabs", len(order)).Msg("tabs reordered")
	g.reg.emit(Event{Type: EventTabsReordered, GroupID: g.id, Tabs: order})
	return nil
}

// MinimizeGroup minimizes the chrome together with its member windows.
func (g *Group) MinimizeGroup(ctx context.Context) error {
	return g.proxy(ctx, "minimize", g.chrome.MinimizeGroup)
}

// MaximizeGroup maximizes the chrome together with its member windows.
func (g *Group) MaximizeGroup(ctx context.Context) error {
	return g.proxy(ctx, "maximize", g.chrome.MaximizeGroup)
}

// RestoreGroup returns the chrome and its member windows to normal.
func (g *Group) RestoreGroup(ctx context.Context) error {
	return g.proxy(ctx, "restore group", g.chrome.RestoreGroup)
}

// Restore brings a minimized group back: the chrome first, then its member
// windows.
func (g *Group) Restore(ctx context.Context) error {
	return g.proxy(ctx, "restore", func(ctx context.Context) error {
		if err := g.chrome.Restore(ctx); err != nil {
			return err
		}
		return g.chrome.RestoreGroup(ctx)
	})
}

// State reports the chrome's window state.
func (g *Group) State(ctx context.Context) (window.State, error) {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if err := g.live(); err != nil {
		return "", err
	}
	return g.chrome.State(ctx)
}

func (g *Group) proxy(ctx context.Context, what string, fn func(context.Context) error) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if err := g.live(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s group %s: %w", what, g.id, err)
	}
	return nil
}

// MoveTo moves the chrome and every member window so the strip's top-left
// corner lands on p.
func (g *Group) MoveTo(ctx context.Context, p window.Point) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	if err := g.live(); err != nil {
		return err
	}

	cb, err := g.chrome.Bounds(ctx)
	if err != nil {
		return fmt.Errorf("move group %s: %w", g.id, err)
	}
	dx, dy := p.X-cb.Left, p.Y-cb.Top

	g.mu.Lock()
	g.content.Left += dx
	g.content.Top += dy
	content := g.content
	tabs := append([]*Tab(nil), g.tabs...)
	g.mu.Unlock()

	cb.Left, cb.Top = p.X, p.Y
	var errs []error
	if err := g.chrome.SetBounds(ctx, cb); err != nil {
		errs = append(errs, err)
	}
	for _, t := range tabs {
		if err := t.handle.SetBounds(ctx, content); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// placeTab sizes t to the content area, parents it under the chrome and
// makes it the visible tab. The caller holds opMu and has already committed
// membership through the registry.
func (g *Group) placeTab(ctx context.Context, t, prev *Tab) error {
	g.mu.RLock()
	content := g.content
	g.mu.RUnlock()

	if err := t.handle.SetBounds(ctx, content); err != nil {
		return fmt.Errorf("resize tab %s: %w", t.id, err)
	}
	if err := t.handle.Reparent(ctx, g.chrome); err != nil {
		return fmt.Errorf("reparent tab %s: %w", t.id, err)
	}
	return g.present(ctx, t, prev)
}

// releaseTab detaches a removed tab's window, closing it or handing it back
// to the desktop.
func releaseTab(ctx context.Context, t *Tab, closeWindow, resizeToOriginal bool) error {
	if closeWindow {
		if err := t.handle.Close(ctx); err != nil {
			return fmt.Errorf("close tab %s: %w", t.id, err)
		}
		return nil
	}
	var errs []error
	if err := t.handle.Unparent(ctx); err != nil {
		errs = append(errs, fmt.Errorf("unparent tab %s: %w", t.id, err))
	}
	if resizeToOriginal {
		if err := t.handle.SetBounds(ctx, t.original); err != nil {
			errs = append(errs, fmt.Errorf("restore bounds of tab %s: %w", t.id, err))
		}
	}
	if err := t.handle.Show(ctx); err != nil {
		errs = append(errs, fmt.Errorf("show tab %s: %w", t.id, err))
	}
	return errors.Join(errs...)
}
