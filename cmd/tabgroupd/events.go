package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/paths"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// fanout delivers registry events to every sink added so far.
type fanout struct {
	mu    sync.RWMutex
	sinks []func(tabgroup.Event)
}

func (f *fanout) add(sink func(tabgroup.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *fanout) publish(ev tabgroup.Event) {
	f.mu.RLock()
	sinks := make([]func(tabgroup.Event), len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()
	for _, sink := range sinks {
		sink(ev)
	}
}

// eventLog records every committed change as one json line, so a session
// can be reconstructed after a crash.
type eventLog struct {
	log    zerolog.Logger
	closer io.Closer
}

func openEventLog(ctx context.Context) *eventLog {
	if _, err := paths.EnsureStateDir(); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("event log disabled")
		return &eventLog{log: zerolog.Nop()}
	}
	f, err := logging.OpenFile(paths.StatePath("events.log"))
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("event log disabled")
		return &eventLog{log: zerolog.Nop()}
	}
	return &eventLog{log: zerolog.New(f).With().Timestamp().Logger(), closer: f}
}

func (l *eventLog) record(ev tabgroup.Event) {
	e := l.log.Info().Str("type", string(ev.Type)).Str("group_id", ev.GroupID)
	if !ev.Tab.IsZero() {
		e = e.Str("tab", ev.Tab.String())
	}
	if len(ev.Tabs) > 0 {
		e = e.Strs("tabs", idStrings(ev.Tabs))
	}
	e.Msg("event")
}

func (l *eventLog) note(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *eventLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func idStrings(ids []window.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
