package tabgroup

import "github.com/b/tmux-tabgroups/pkg/window"

// EventType names a change the tab strip must reflect.
type EventType string

const (
	EventGroupCreated         EventType = "group-created"
	EventGroupDissolved       EventType = "group-dissolved"
	EventTabAdded             EventType = "tab-added"
	EventTabRemoved           EventType = "tab-removed"
	EventTabActivated         EventType = "tab-activated"
	EventTabsReordered        EventType = "tabs-reordered"
	EventTabPropertiesChanged EventType = "tab-properties-updated"
)

// Event is delivered to the registry's Notify hook after the change commits.
type Event struct {
	Type       EventType           `json:"type"`
	GroupID    string              `json:"groupId"`
	Tab        window.Identifier   `json:"tab,omitempty"`
	Tabs       []window.Identifier `json:"tabs,omitempty"`
	Properties *Properties         `json:"properties,omitempty"`
}
