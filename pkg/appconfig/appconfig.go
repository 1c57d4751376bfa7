// Package appconfig stores the tab-strip UI descriptor each application
// registers and answers whether two applications may share a tab group.
package appconfig

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAlreadySet is returned when an application registers a second descriptor.
var ErrAlreadySet = errors.New("configuration already set")

// TabWindowOptions is the tab-strip UI descriptor: the page that renders the
// strip and the strip's layout.
type TabWindowOptions struct {
	URL    string `json:"url" yaml:"url"`
	Height int    `json:"height,omitempty" yaml:"height"`
}

// Equivalent reports whether two descriptors render the same tab strip.
func (o TabWindowOptions) Equivalent(other TabWindowOptions) bool {
	return o.URL == other.URL && o.Height == other.Height
}

// Registry holds descriptors for the life of the process. Entries are never removed.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]TabWindowOptions
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]TabWindowOptions)}
}

// AddApplicationUIConfig records the descriptor for an application. A second
// call for the same application fails with ErrAlreadySet and keeps the first.
func (r *Registry) AddApplicationUIConfig(applicationID string, cfg TabWindowOptions) error {
	if applicationID == "" {
		return fmt.Errorf("add ui config: empty application id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[applicationID]; ok {
		return fmt.Errorf("application %s: %w", applicationID, ErrAlreadySet)
	}
	r.configs[applicationID] = cfg
	return nil
}

// Exists reports whether the application has registered a descriptor.
func (r *Registry) Exists(applicationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.configs[applicationID]
	return ok
}

// Get returns the application's descriptor.
func (r *Registry) Get(applicationID string) (TabWindowOptions, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[applicationID]
	return cfg, ok
}

// CompareConfigBetweenApplications is true only when both applications have a
// descriptor and the descriptors are equivalent. Missing entries yield false.
func (r *Registry) CompareConfigBetweenApplications(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ca, okA := r.configs[a]
	cb, okB := r.configs[b]
	return okA && okB && ca.Equivalent(cb)
}

// Entry pairs an application with its descriptor.
type Entry struct {
	ApplicationID string
	Options       TabWindowOptions
}

// Snapshot lists every registered descriptor ordered by application id.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.configs))
	for id, cfg := range r.configs {
		out = append(out, Entry{ApplicationID: id, Options: cfg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID < out[j].ApplicationID })
	return out
}
