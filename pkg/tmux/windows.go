package tmux

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/b/tmux-tabgroups/pkg/window"
)

// ansiEscapeRegex matches ANSI escape sequences
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?(?:\x07|\x1b\\)`)

// stripANSI removes ANSI escape sequences from a string
func stripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// Window is one tmux window as seen by list-windows.
type Window struct {
	Session string
	ID      string // tmux window id, e.g. @3
	Index   int
	Name    string
	Active  bool
	Parent  string // @tabgroup_parent, empty when ungrouped
	Chrome  bool   // created by tabgroupd (group chrome or drag overlay)
}

// Identifier is the window's identity for the tab group core.
func (w Window) Identifier() window.Identifier {
	return window.Identifier{ApplicationID: w.Session, Name: w.ID}
}

const listFormat = "#{session_name}\x1f#{window_id}\x1f#{window_index}\x1f#{window_name}\x1f#{window_active}\x1f#{" +
	optParent + "}\x1f#{" + optChrome + "}"

// ListWindows returns every window in every session, ordered as tmux lists them.
func ListWindows(ctx context.Context, run Runner) ([]Window, error) {
	out, err := run.Run(ctx, "list-windows", "-a", "-F", listFormat)
	if err != nil {
		return nil, fmt.Errorf("tmux list-windows failed: %w", err)
	}

	var windows []Window
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\x1f")
		if len(parts) < 7 {
			continue
		}
		index, err := strconv.Atoi(parts[2])
		if err != nil {
			continue
		}
		windows = append(windows, Window{
			Session: parts[0],
			ID:      parts[1],
			Index:   index,
			Name:    stripANSI(parts[3]),
			Active:  parts[4] == "1",
			Parent:  parts[5],
			Chrome:  parts[6] != "",
		})
	}

	return windows, nil
}
