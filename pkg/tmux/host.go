// Package tmux implements window.Host on tmux windows. tmux has no window
// geometry or stacking of its own, so group membership, visual state and
// bounds are kept as window user options that other tools can read.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/b/tmux-tabgroups/pkg/window"
)

// Window user options written by the host.
const (
	optParent = "@tabgroup_parent"
	optState  = "@tabgroup_state"
	optBounds = "@tabgroup_bounds"
	optHidden = "@tabgroup_hidden"
	optChrome = "@tabgroup_chrome"
	optURL    = "@tabgroup_url"
)

// Runner executes one tmux command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// ExecRunner runs the tmux binary. Socket selects a server with -S.
type ExecRunner struct {
	Socket string
}

func (r ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	if r.Socket != "" {
		args = append([]string{"-S", r.Socket}, args...)
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("tmux %s: %s: %w", args[0], msg, err)
		}
		return "", fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return string(out), nil
}

// Host maps identifiers to tmux windows. Existing windows are named by
// their tmux window id (Identifier{session, "@3"}); windows the host creates
// keep the identifier they were created with.
type Host struct {
	run     Runner
	session string

	mu      sync.Mutex
	created map[window.Identifier]string
}

// NewHost returns a host that creates windows in session ("" means the
// current session).
func NewHost(run Runner, session string) *Host {
	return &Host{run: run, session: session, created: make(map[window.Identifier]string)}
}

func (h *Host) target(id window.Identifier) (string, error) {
	if strings.HasPrefix(id.Name, "@") {
		return id.Name, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.created[id]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%s: %w", id, window.ErrNoWindow)
}

func (h *Host) exec(ctx context.Context, args ...string) (string, error) {
	out, err := h.run.Run(ctx, args...)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "can't find window") || strings.Contains(msg, "no such window") {
			return "", fmt.Errorf("%w: %v", window.ErrNoWindow, err)
		}
		return "", err
	}
	return out, nil
}

func (h *Host) setOption(ctx context.Context, target, name, value string) error {
	_, err := h.exec(ctx, "set-option", "-w", "-t", target, name, value)
	return err
}

func (h *Host) unsetOption(ctx context.Context, target, name string) error {
	_, err := h.exec(ctx, "set-option", "-w", "-u", "-t", target, name)
	return err
}

func (h *Host) display(ctx context.Context, target, format string) (string, error) {
	args := []string{"display-message", "-p"}
	if target != "" {
		args = append(args, "-t", target)
	}
	out, err := h.exec(ctx, append(args, format)...)
	return strings.TrimRight(out, "\n"), err
}

func formatBounds(b window.Bounds) string {
	return fmt.Sprintf("%d,%d,%d,%d", b.Left, b.Top, b.Width, b.Height)
}

func parseBounds(s string) (window.Bounds, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return window.Bounds{}, false
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return window.Bounds{}, false
		}
		v[i] = n
	}
	return window.Bounds{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}, true
}

func (h *Host) Create(ctx context.Context, opts window.Options) error {
	h.mu.Lock()
	_, exists := h.created[opts.ID]
	h.mu.Unlock()
	if exists {
		return errors.New("window already exists")
	}

	args := []string{"new-window", "-d", "-P", "-F", "#{window_id}", "-n", opts.ID.Name}
	if h.session != "" {
		args = append(args, "-t", h.session+":")
	}
	out, err := h.exec(ctx, args...)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(out)
	if !strings.HasPrefix(target, "@") {
		return fmt.Errorf("new-window returned %q", target)
	}

	options := [][2]string{
		{optChrome, opts.ID.String()},
		{optURL, opts.URL},
		{optBounds, formatBounds(opts.Bounds)},
	}
	if !opts.AutoShow {
		options = append(options, [2]string{optHidden, "1"})
	}
	for _, o := range options {
		if err := h.setOption(ctx, target, o[0], o[1]); err != nil {
			_, _ = h.exec(ctx, "kill-window", "-t", target)
			return err
		}
	}

	h.mu.Lock()
	h.created[opts.ID] = target
	h.mu.Unlock()
	return nil
}

func (h *Host) Show(ctx context.Context, id window.Identifier) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	return h.unsetOption(ctx, t, optHidden)
}

func (h *Host) Hide(ctx context.Context, id window.Identifier) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	return h.setOption(ctx, t, optHidden, "1")
}

func (h *Host) Focus(ctx context.Context, id window.Identifier) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	_, err = h.exec(ctx, "select-window", "-t", t)
	return err
}

func (h *Host) Close(ctx context.Context, id window.Identifier) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	if _, err := h.exec(ctx, "kill-window", "-t", t); err != nil {
		return err
	}
	h.mu.Lock()
	delete(h.created, id)
	h.mu.Unlock()
	return nil
}

// Bounds returns the stored bounds, or the window size in cells at the
// origin when none were set.
func (h *Host) Bounds(ctx context.Context, id window.Identifier) (window.Bounds, error) {
	t, err := h.target(id)
	if err != nil {
		return window.Bounds{}, err
	}
	out, err := h.display(ctx, t, "#{"+optBounds+"}\x1f#{window_width}\x1f#{window_height}")
	if err != nil {
		return window.Bounds{}, err
	}
	parts := strings.Split(out, "\x1f")
	if b, ok := parseBounds(parts[0]); ok {
		return b, nil
	}
	if len(parts) < 3 {
		return window.Bounds{}, fmt.Errorf("unexpected display output %q", out)
	}
	w, _ := strconv.Atoi(parts[1])
	hgt, _ := strconv.Atoi(parts[2])
	return window.Bounds{Width: w, Height: hgt}, nil
}

func (h *Host) SetBounds(ctx context.Context, id window.Identifier, b window.Bounds) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	return h.setOption(ctx, t, optBounds, formatBounds(b))
}

func (h *Host) State(ctx context.Context, id window.Identifier) (window.State, error) {
	t, err := h.target(id)
	if err != nil {
		return "", err
	}
	out, err := h.display(ctx, t, "#{"+optState+"}")
	if err != nil {
		return "", err
	}
	switch s := window.State(strings.TrimSpace(out)); s {
	case window.StateMinimized, window.StateMaximized:
		return s, nil
	default:
		return window.StateNormal, nil
	}
}

func (h *Host) setState(ctx context.Context, id window.Identifier, s window.State) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	return h.setOption(ctx, t, optState, string(s))
}

func (h *Host) Minimize(ctx context.Context, id window.Identifier) error {
	return h.setState(ctx, id, window.StateMinimized)
}

func (h *Host) Maximize(ctx context.Context, id window.Identifier) error {
	return h.setState(ctx, id, window.StateMaximized)
}

func (h *Host) Restore(ctx context.Context, id window.Identifier) error {
	return h.setState(ctx, id, window.StateNormal)
}

// setGroupState applies s to the window and every window parented to it.
func (h *Host) setGroupState(ctx context.Context, id window.Identifier, s window.State) error {
	t, err := h.target(id)
	if err != nil {
		return err
	}
	if err := h.setOption(ctx, t, optState, string(s)); err != nil {
		return err
	}
	windows, err := ListWindows(ctx, h.run)
	if err != nil {
		return err
	}
	for _, w := range windows {
		if w.Parent != t {
			continue
		}
		if err := h.setOption(ctx, w.ID, optState, string(s)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) MinimizeGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, id, window.StateMinimized)
}

func (h *Host) MaximizeGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, id, window.StateMaximized)
}

func (h *Host) RestoreGroup(ctx context.Context, id window.Identifier) error {
	return h.setGroupState(ctx, id, window.StateNormal)
}

func (h *Host) Reparent(ctx context.Context, child, parent window.Identifier) error {
	ct, err := h.target(child)
	if err != nil {
		return err
	}
	pt, err := h.target(parent)
	if err != nil {
		return err
	}
	return h.setOption(ctx, ct, optParent, pt)
}

func (h *Host) Unparent(ctx context.Context, child window.Identifier) error {
	t, err := h.target(child)
	if err != nil {
		return err
	}
	return h.unsetOption(ctx, t, optParent)
}

// Screen is the attached client's size in cells, 80x24 when detached.
func (h *Host) Screen(ctx context.Context) (window.Bounds, error) {
	out, err := h.display(ctx, "", "#{client_width}\x1f#{client_height}")
	if err != nil {
		return window.Bounds{}, err
	}
	parts := strings.Split(out, "\x1f")
	if len(parts) == 2 {
		w, errW := strconv.Atoi(parts[0])
		hgt, errH := strconv.Atoi(parts[1])
		if errW == nil && errH == nil && w > 0 && hgt > 0 {
			return window.Bounds{Width: w, Height: hgt}, nil
		}
	}
	return window.Bounds{Width: 80, Height: 24}, nil
}
