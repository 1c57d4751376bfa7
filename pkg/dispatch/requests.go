package dispatch

import (
	"github.com/b/tmux-tabgroups/pkg/appconfig"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// Op names a request on the external surface.
type Op string

const (
	OpSetTabClient        Op = "setTabClient"
	OpDeregister          Op = "deregister"
	OpGetTabs             Op = "getTabs"
	OpCreateTabGroup      Op = "createTabGroup"
	OpAddTab              Op = "addTab"
	OpRemoveTab           Op = "removeTab"
	OpSetActiveTab        Op = "setActiveTab"
	OpCloseTab            Op = "closeTab"
	OpMinimizeTabGroup    Op = "minimizeTabGroup"
	OpMaximizeTabGroup    Op = "maximizeTabGroup"
	OpRestoreTabGroup     Op = "restoreTabGroup"
	OpCloseTabGroup       Op = "closeTabGroup"
	OpReorderTabs         Op = "reorderTabs"
	OpUpdateTabProperties Op = "updateTabProperties"
	OpGetTabProperties    Op = "getTabProperties"
	OpListGroups          Op = "listGroups"
	OpStartDrag           Op = "startDrag"
	OpEndDrag             Op = "endDrag"
)

// Ops lists every operation in the order they are documented.
var Ops = []Op{
	OpSetTabClient, OpDeregister, OpGetTabs, OpCreateTabGroup, OpAddTab,
	OpRemoveTab, OpSetActiveTab, OpCloseTab, OpMinimizeTabGroup,
	OpMaximizeTabGroup, OpRestoreTabGroup, OpCloseTabGroup, OpReorderTabs,
	OpUpdateTabProperties, OpGetTabProperties, OpListGroups, OpStartDrag, OpEndDrag,
}

// Request is implemented by every typed request.
type Request interface {
	Validate() error
}

func checkWindow(field string, id window.Identifier) error {
	if id.ApplicationID == "" {
		return invalid("%s: missing uuid", field)
	}
	if id.Name == "" {
		return invalid("%s: missing name", field)
	}
	return nil
}

// SetTabClientRequest registers an application's tab-strip descriptor.
type SetTabClientRequest struct {
	ApplicationID string                     `json:"uuid"`
	Config        appconfig.TabWindowOptions `json:"config"`
}

func (r SetTabClientRequest) Validate() error {
	if r.ApplicationID == "" {
		return invalid("missing uuid")
	}
	if r.Config.URL == "" {
		return invalid("config.url is required")
	}
	if r.Config.Height < 0 {
		return invalid("config.height must not be negative")
	}
	return nil
}

// WindowRequest carries a single window. It is the payload of every
// operation that only names the window it acts on.
type WindowRequest struct {
	Window window.Identifier `json:"window"`
}

func (r WindowRequest) Validate() error { return checkWindow("window", r.Window) }

// CreateTabGroupRequest lists the windows of a new group; the first seeds
// its position.
type CreateTabGroupRequest struct {
	Windows []window.Identifier `json:"windows"`
}

func (r CreateTabGroupRequest) Validate() error {
	if len(r.Windows) == 0 {
		return invalid("windows must not be empty")
	}
	seen := make(map[window.Identifier]bool, len(r.Windows))
	for _, id := range r.Windows {
		if err := checkWindow("windows[]", id); err != nil {
			return err
		}
		if seen[id] {
			return invalid("window %s listed twice", id)
		}
		seen[id] = true
	}
	return nil
}

// AddTabRequest adds Window to the group that contains Target.
type AddTabRequest struct {
	Target     window.Identifier    `json:"target"`
	Window     window.Identifier    `json:"window"`
	Properties *tabgroup.Properties `json:"properties,omitempty"`
}

func (r AddTabRequest) Validate() error {
	if err := checkWindow("target", r.Target); err != nil {
		return err
	}
	return checkWindow("window", r.Window)
}

// ReorderTabsRequest resolves its group from ID as a window first and then
// from ID.Name as a group id.
type ReorderTabsRequest struct {
	Ordering []window.Identifier `json:"ordering"`
	ID       window.Identifier   `json:"id"`
}

func (r ReorderTabsRequest) Validate() error {
	if r.ID.Name == "" {
		return invalid("id: missing name")
	}
	for _, id := range r.Ordering {
		if err := checkWindow("ordering[]", id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTabPropertiesRequest merges Properties into the window's tab.
type UpdateTabPropertiesRequest struct {
	Window     window.Identifier   `json:"window"`
	Properties tabgroup.Properties `json:"properties"`
}

func (r UpdateTabPropertiesRequest) Validate() error { return checkWindow("window", r.Window) }

// EndDragRequest finishes a drag of Window at Drop.
type EndDragRequest struct {
	Window window.Identifier `json:"window"`
	Drop   window.Point      `json:"event"`
}

func (r EndDragRequest) Validate() error { return checkWindow("window", r.Window) }

// GroupInfo describes one group in results.
type GroupInfo struct {
	ID     string              `json:"groupId"`
	Tabs   []window.Identifier `json:"tabs"`
	Active window.Identifier   `json:"active"`
	State  window.State        `json:"state,omitempty"`
}

// EndDragResult reports what the drop did.
type EndDragResult struct {
	Outcome tabgroup.EjectOutcome `json:"outcome"`
}
