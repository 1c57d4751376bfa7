// Package tabgroup implements tab groups: ordered sets of windows that share
// one chrome window, and the registry that owns every group in the process.
package tabgroup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/telemetry"
	"github.com/b/tmux-tabgroups/pkg/window"
)

const (
	// DefaultServiceApp owns the chrome windows the registry creates.
	DefaultServiceApp = "tabgroups"
	// DefaultStripHeight is used when a descriptor does not set a height.
	DefaultStripHeight = 62
)

// Options configures a Registry. Host and Configs are required.
type Options struct {
	Host    window.Host
	Configs *appconfig.Registry
	Metrics *telemetry.Metrics

	// Notify receives every committed change, outside any lock.
	Notify func(Event)

	NewGroupID  func() string
	ServiceApp  string
	StripHeight int

	// EjectNewGroup makes an ejected window whose application has a tab
	// client start its own single-tab group.
	EjectNewGroup bool
}

// Registry is the process-wide directory of tab groups and the only writer
// of group membership. The reverse index from window to group is derived
// from the groups' tab lists and is updated under the same lock as them.
type Registry struct {
	host          window.Host
	configs       *appconfig.Registry
	metrics       *telemetry.Metrics
	notify        func(Event)
	newGroupID    func() string
	serviceApp    string
	stripHeight   int
	ejectNewGroup bool

	mu     sync.RWMutex
	groups map[string]*Group
	index  map[window.Identifier]*Group
}

// NewRegistry returns an empty registry that drives windows through
// opts.Host.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		host:          opts.Host,
		configs:       opts.Configs,
		metrics:       opts.Metrics,
		notify:        opts.Notify,
		newGroupID:    opts.NewGroupID,
		serviceApp:    opts.ServiceApp,
		stripHeight:   opts.StripHeight,
		ejectNewGroup: opts.EjectNewGroup,
		groups:        make(map[string]*Group),
		index:         make(map[window.Identifier]*Group),
	}
	if r.newGroupID == nil {
		r.newGroupID = func() string { return "TabSet-" + uuid.NewString() }
	}
	if r.serviceApp == "" {
		r.serviceApp = DefaultServiceApp
	}
	if r.stripHeight <= 0 {
		r.stripHeight = DefaultStripHeight
	}
	return r
}

// Configs returns the configuration registry the groups are checked against.
func (r *Registry) Configs() *appconfig.Registry { return r.configs }

func (r *Registry) emit(ev Event) {
	if r.notify != nil {
		r.notify(ev)
	}
}

// GetTabGroupByApp returns the group that contains the window.
func (r *Registry) GetTabGroupByApp(id window.Identifier) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.index[id]
	return g, ok
}

// GetTabGroup returns the group with the given id.
func (r *Registry) GetTabGroup(groupID string) (*Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[groupID]
	return g, ok
}

// GetTab resolves a window to its Tab through the owning group.
func (r *Registry) GetTab(id window.Identifier) (*Tab, bool) {
	g, ok := r.GetTabGroupByApp(id)
	if !ok {
		return nil, false
	}
	return g.Tab(id)
}

// Groups lists every registered group ordered by id.
func (r *Registry) Groups() []*Group {
	r.mu.RLock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// tabFor builds the Tab for id, carrying over properties and pre-group
// bounds when the window is currently a member of some group.
func (r *Registry) tabFor(ctx context.Context, id window.Identifier, props *Properties) (*Tab, error) {
	existing, grouped := r.GetTab(id)
	if grouped && props == nil {
		p := existing.Properties()
		props = &p
	}
	t, err := newTab(ctx, r.host, id, props)
	if err != nil {
		return nil, err
	}
	if grouped {
		t.original = existing.original
	}
	return t, nil
}

func validateIdentifiers(ids []window.Identifier) error {
	if len(ids) == 0 {
		return fmt.Errorf("no windows given: %w", ErrInvalidArgument)
	}
	seen := make(map[window.Identifier]bool, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			return fmt.Errorf("incomplete window identifier %q: %w", id, ErrInvalidArgument)
		}
		if seen[id] {
			return fmt.Errorf("window %s listed twice: %w", id, ErrInvalidArgument)
		}
		seen[id] = true
	}
	return nil
}

// CreateTabGroupWithTabs forms a new group from ids. Every pair of windows
// must have compatible tab-strip descriptors; the check runs before anything
// changes, so a rejected call leaves no group, tab or index entry behind.
// The first window's bounds seed the group's position and it becomes the
// active tab. Windows already in another group are moved out of it.
func (r *Registry) CreateTabGroupWithTabs(ctx context.Context, ids []window.Identifier) (*Group, error) {
	if err := validateIdentifiers(ids); err != nil {
		return nil, err
	}
	ui, ok := r.configs.Get(ids[0].ApplicationID)
	if !ok {
		return nil, fmt.Errorf("application %s has no tab client: %w", ids[0].ApplicationID, ErrIncompatibleConfiguration)
	}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if !r.configs.CompareConfigBetweenApplications(ids[i].ApplicationID, ids[j].ApplicationID) {
				return nil, fmt.Errorf("%s and %s: %w", ids[i], ids[j], ErrIncompatibleConfiguration)
			}
		}
	}

	tabs := make([]*Tab, 0, len(ids))
	for _, id := range ids {
		t, err := r.tabFor(ctx, id, nil)
		if err != nil {
			return nil, err
		}
		tabs = append(tabs, t)
	}

	height := ui.Height
	if height <= 0 {
		height = r.stripHeight
	}
	groupID := r.newGroupID()
	chromeBounds, content := stripBounds(tabs[0].original, height)
	chrome, err := window.Create(ctx, r.host, window.Options{
		ID:       window.Identifier{ApplicationID: r.serviceApp, Name: groupID},
		URL:      ui.URL,
		Bounds:   chromeBounds,
		AutoShow: true,
	})
	if err != nil {
		return nil, err
	}

	g := &Group{id: groupID, reg: r, chrome: chrome, ui: ui, lifecycle: Forming, content: content}
	g.opMu.Lock()
	defer g.opMu.Unlock()

	ctx = logging.WithGroupID(ctx, groupID)
	log := logging.FromContext(ctx)

	for _, t := range tabs {
		if _, grouped := r.GetTabGroupByApp(t.id); grouped {
			if _, err := r.RemoveTab(ctx, t.id, false, false); err != nil {
				log.Warn().Err(err).Str("tab", t.id.String()).Msg("leave previous group")
			}
		}
	}

	r.mu.Lock()
	g.mu.Lock()
	for _, t := range tabs {
		if other, taken := r.index[t.id]; taken {
			g.mu.Unlock()
			r.mu.Unlock()
			_ = chrome.Close(ctx)
			return nil, fmt.Errorf("window %s joined group %s meanwhile: %w", t.id, other.id, ErrInvalidArgument)
		}
	}
	g.tabs = tabs
	g.active = tabs[0]
	g.lifecycle = Active
	r.groups[g.id] = g
	for _, t := range tabs {
		r.index[t.id] = g
	}
	g.mu.Unlock()
	r.mu.Unlock()

	if err := r.placeAll(ctx, g, tabs); err != nil {
		r.rollbackCreate(ctx, g, tabs)
		return nil, err
	}

	log.Info().Int("tabs", len(tabs)).Msg("tab group created")
	r.metrics.GroupCreated(ctx)
	r.emit(Event{Type: EventGroupCreated, GroupID: g.id, Tabs: ids})
	return g, nil
}

func (r *Registry) placeAll(ctx context.Context, g *Group, tabs []*Tab) error {
	for i, t := range tabs {
		if err := t.handle.SetBounds(ctx, g.content); err != nil {
			return fmt.Errorf("resize tab %s: %w", t.id, err)
		}
		if err := t.handle.Reparent(ctx, g.chrome); err != nil {
			return fmt.Errorf("reparent tab %s: %w", t.id, err)
		}
		if i > 0 {
			if err := t.handle.Hide(ctx); err != nil {
				return fmt.Errorf("hide tab %s: %w", t.id, err)
			}
		}
	}
	return g.present(ctx, tabs[0], nil)
}

func (r *Registry) rollbackCreate(ctx context.Context, g *Group, tabs []*Tab) {
	r.mu.Lock()
	g.mu.Lock()
	delete(r.groups, g.id)
	for _, t := range tabs {
		if r.index[t.id] == g {
			delete(r.index, t.id)
		}
	}
	g.tabs = nil
	g.active = nil
	g.lifecycle = Dissolved
	g.mu.Unlock()
	r.mu.Unlock()

	for _, t := range tabs {
		_ = releaseTab(ctx, t, false, true)
	}
	_ = g.chrome.Close(ctx)
	logging.FromContext(ctx).Warn().Msg("tab group creation rolled back")
}

// AddTab appends the window to g and makes it the active tab. The window's
// application must share g's tab-strip descriptor. Adding a window that is
// already in g just activates it; a window in another group is moved.
// If the host refuses to place the window the membership change is undone.
func (r *Registry) AddTab(ctx context.Context, g *Group, id window.Identifier, props *Properties) error {
	if id.IsZero() {
		return fmt.Errorf("incomplete window identifier %q: %w", id, ErrInvalidArgument)
	}
	if cfg, ok := r.configs.Get(id.ApplicationID); !ok || !cfg.Equivalent(g.ui) {
		return fmt.Errorf("%s cannot join group %s: %w", id, g.id, ErrIncompatibleConfiguration)
	}
	if cur, ok := r.GetTabGroupByApp(id); ok && cur == g {
		return g.SwitchTab(ctx, id)
	}

	t, err := r.tabFor(ctx, id, props)
	if err != nil {
		return err
	}
	if cur, ok := r.GetTabGroupByApp(id); ok {
		if _, err := r.RemoveTab(ctx, id, false, false); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Str("group_id", cur.id).Msg("leave previous group")
		}
	}

	g.opMu.Lock()
	defer g.opMu.Unlock()

	r.mu.Lock()
	g.mu.Lock()
	if g.lifecycle >= Dissolving {
		g.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("group %s: %w", g.id, ErrGroupDissolved)
	}
	if other, taken := r.index[id]; taken {
		g.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("window %s joined group %s meanwhile: %w", id, other.id, ErrInvalidArgument)
	}
	prev := g.active
	g.tabs = append(g.tabs, t)
	g.active = t
	r.index[id] = g
	g.mu.Unlock()
	r.mu.Unlock()

	if err := g.placeTab(ctx, t, prev); err != nil {
		r.mu.Lock()
		g.mu.Lock()
		if _, idx := g.findLocked(id); idx >= 0 {
			g.tabs = append(g.tabs[:idx:idx], g.tabs[idx+1:]...)
		}
		if g.active == t {
			g.active = prev
		}
		if r.index[id] == g {
			delete(r.index, id)
		}
		g.mu.Unlock()
		r.mu.Unlock()

		_ = releaseTab(ctx, t, false, true)
		if prev != nil {
			_ = prev.handle.Show(ctx)
		}
		return err
	}

	logging.FromContext(ctx).Debug().Str("group_id", g.id).Str("tab", id.String()).Msg("tab added")
	r.emit(Event{Type: EventTabAdded, GroupID: g.id, Tab: id})
	return nil
}

// RemoveTab takes the window out of its group. A window that is in no group
// is reported as not removed. When the active tab leaves, the previous tab
// becomes active, or the new first tab if there is none. The group dissolves
// when its last tab leaves. With closeWindow the window is closed; otherwise
// it is un-parented and, with resizeToOriginal, returned to its pre-group bounds.
func (r *Registry) RemoveTab(ctx context.Context, id window.Identifier, closeWindow, resizeToOriginal bool) (bool, error) {
	g, ok := r.GetTabGroupByApp(id)
	if !ok {
		return false, nil
	}

	g.opMu.Lock()
	defer g.opMu.Unlock()

	r.mu.Lock()
	g.mu.Lock()
	t, idx := g.findLocked(id)
	if t == nil || r.index[id] != g {
		g.mu.Unlock()
		r.mu.Unlock()
		return false, nil
	}
	g.tabs = append(g.tabs[:idx:idx], g.tabs[idx+1:]...)
	delete(r.index, id)

	var next *Tab
	if g.active == t {
		switch {
		case len(g.tabs) == 0:
			g.active = nil
		case idx > 0:
			g.active = g.tabs[idx-1]
		default:
			g.active = g.tabs[0]
		}
		next = g.active
	}
	dissolve := len(g.tabs) == 0
	if dissolve {
		g.lifecycle = Dissolving
		delete(r.groups, g.id)
	}
	g.mu.Unlock()
	r.mu.Unlock()

	var errs []error
	if err := releaseTab(ctx, t, closeWindow, resizeToOriginal); err != nil {
		errs = append(errs, err)
	}
	if next != nil {
		if err := g.present(ctx, next, nil); err != nil {
			errs = append(errs, err)
		}
	}

	logging.FromContext(ctx).Debug().
		Str("group_id", g.id).
		Str("tab", id.String()).
		Bool("closed", closeWindow).
		Msg("tab removed")
	r.emit(Event{Type: EventTabRemoved, GroupID: g.id, Tab: id})
	if next != nil {
		r.emit(Event{Type: EventTabActivated, GroupID: g.id, Tab: next.id})
	}
	if dissolve {
		r.finishDissolve(ctx, g)
	}
	return true, errors.Join(errs...)
}

// finishDissolve closes the chrome of a group already removed from the
// registry and marks it terminal.
func (r *Registry) finishDissolve(ctx context.Context, g *Group) {
	if err := g.chrome.Close(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("group_id", g.id).Msg("close group chrome")
	}
	g.mu.Lock()
	g.lifecycle = Dissolved
	g.mu.Unlock()

	logging.FromContext(ctx).Info().Str("group_id", g.id).Msg("tab group dissolved")
	r.metrics.GroupDissolved(ctx)
	r.emit(Event{Type: EventGroupDissolved, GroupID: g.id})
}

// RemoveTabGroup deregisters the group and releases every member window,
// closing them when closeWindows is set.
func (r *Registry) RemoveTabGroup(ctx context.Context, groupID string, closeWindows bool) error {
	g, ok := r.GetTabGroup(groupID)
	if !ok {
		return fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}

	g.opMu.Lock()
	defer g.opMu.Unlock()

	r.mu.Lock()
	g.mu.Lock()
	if g.lifecycle >= Dissolving {
		g.mu.Unlock()
		r.mu.Unlock()
		return fmt.Errorf("group %s: %w", groupID, ErrGroupDissolved)
	}
	tabs := g.tabs
	g.tabs = nil
	g.active = nil
	g.lifecycle = Dissolving
	delete(r.groups, g.id)
	for _, t := range tabs {
		if r.index[t.id] == g {
			delete(r.index, t.id)
		}
	}
	g.mu.Unlock()
	r.mu.Unlock()

	var errs []error
	for _, t := range tabs {
		if err := releaseTab(ctx, t, closeWindows, true); err != nil {
			errs = append(errs, err)
		}
	}
	r.finishDissolve(ctx, g)
	return errors.Join(errs...)
}

// UpdateTabProperties merges props into the window's tab.
func (r *Registry) UpdateTabProperties(ctx context.Context, id window.Identifier, props Properties) (Properties, error) {
	g, ok := r.GetTabGroupByApp(id)
	if !ok {
		return Properties{}, fmt.Errorf("tab %s: %w", id, ErrNotFound)
	}
	t, ok := g.Tab(id)
	if !ok {
		return Properties{}, fmt.Errorf("tab %s: %w", id, ErrNotFound)
	}
	updated := t.UpdateProperties(props)
	r.emit(Event{Type: EventTabPropertiesChanged, GroupID: g.id, Tab: id, Properties: &updated})
	return updated, nil
}

// Close tears down every group without closing member windows. It is called
// when the hosting process shuts down.
func (r *Registry) Close(ctx context.Context) error {
	var eg errgroup.Group
	for _, g := range r.Groups() {
		id := g.id
		eg.Go(func() error {
			if err := r.RemoveTabGroup(ctx, id, false); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// CheckConsistency verifies that every group is non-empty, has an active
// member, holds no duplicate tabs, and that the reverse index maps exactly
// the members of registered groups to their group.
func (r *Registry) CheckConsistency() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := 0
	for id, g := range r.groups {
		g.mu.RLock()
		err := func() error {
			if g.id != id {
				return fmt.Errorf("group registered as %s has id %s", id, g.id)
			}
			if len(g.tabs) == 0 {
				return fmt.Errorf("group %s is empty", id)
			}
			if g.active == nil {
				return fmt.Errorf("group %s has no active tab", id)
			}
			activeFound := false
			seen := make(map[window.Identifier]bool, len(g.tabs))
			for _, t := range g.tabs {
				if seen[t.id] {
					return fmt.Errorf("group %s lists %s twice", id, t.id)
				}
				seen[t.id] = true
				if t == g.active {
					activeFound = true
				}
				if r.index[t.id] != g {
					return fmt.Errorf("index entry for %s does not point to group %s", t.id, id)
				}
			}
			if !activeFound {
				return fmt.Errorf("active tab of group %s is not a member", id)
			}
			return nil
		}()
		members += len(g.tabs)
		g.mu.RUnlock()
		if err != nil {
			return err
		}
	}
	if members != len(r.index) {
		return fmt.Errorf("index has %d entries for %d member tabs", len(r.index), members)
	}
	return nil
}
