// Package drag owns the transparent full-screen window shown while a tab is
// being dragged. It has no group logic; the dispatcher decides what a drop
// means.
package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/telemetry"
	"github.com/b/tmux-tabgroups/pkg/window"
)

const (
	// OverlayName is the overlay window's name under the service application.
	OverlayName = "TabbingDragWindow"
	// DefaultAutoHide bounds how long the overlay stays up without an endDrag.
	DefaultAutoHide = 15 * time.Second

	overlayOpacity = 0.01
)

// Options configures an Overlay.
type Options struct {
	ServiceApp string
	URL        string
	AutoHide   time.Duration
	Metrics    *telemetry.Metrics

	// OnTimeout runs after the safety timer has hidden the overlay.
	OnTimeout func(source window.Identifier)
}

// Overlay is the drag-capture window plus its auto-hide timer.
//
// Every Show and Hide bumps gen. A timer only acts if gen still has the value
// it was armed with, so a timer can never hide the overlay after Hide ran or
// after a later Show re-armed it.
type Overlay struct {
	host      window.Host
	handle    *window.Handle
	autoHide  time.Duration
	metrics   *telemetry.Metrics
	onTimeout func(window.Identifier)
	log       zerolog.Logger

	mu      sync.Mutex
	gen     uint64
	timer   *time.Timer
	source  window.Identifier
	visible bool
}

// New creates the overlay window, hidden and covering the whole screen.
// A creation failure is returned: without the overlay drags cannot work.
func New(ctx context.Context, host window.Host, opts Options) (*Overlay, error) {
	if opts.ServiceApp == "" {
		opts.ServiceApp = "tabgroups"
	}
	if opts.AutoHide <= 0 {
		opts.AutoHide = DefaultAutoHide
	}

	screen, err := host.Screen(ctx)
	if err != nil {
		return nil, fmt.Errorf("create drag overlay: query screen: %w", err)
	}
	handle, err := window.Create(ctx, host, window.Options{
		ID:          window.Identifier{ApplicationID: opts.ServiceApp, Name: OverlayName},
		URL:         opts.URL,
		Bounds:      screen,
		Frame:       false,
		Opacity:     overlayOpacity,
		AutoShow:    false,
		AlwaysOnTop: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create drag overlay: %w", err)
	}

	return &Overlay{
		host:      host,
		handle:    handle,
		autoHide:  opts.AutoHide,
		metrics:   opts.Metrics,
		onTimeout: opts.OnTimeout,
		log:       logging.FromContext(ctx).With().Str("component", "drag").Logger(),
	}, nil
}

// ID is the overlay window's identifier.
func (o *Overlay) ID() window.Identifier { return o.handle.ID() }

// Visible reports whether the overlay is currently shown.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Pending reports whether an auto-hide timer is armed.
func (o *Overlay) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.timer != nil
}

// Show displays the overlay, raises source above it and arms the auto-hide
// timer. Calling Show during a drag restarts the timer.
func (o *Overlay) Show(ctx context.Context, source window.Identifier) error {
	o.mu.Lock()
	o.gen++
	gen := o.gen
	o.stopLocked()
	o.source = source
	o.visible = true
	o.mu.Unlock()

	if err := o.handle.Show(ctx); err != nil {
		o.mu.Lock()
		if o.gen == gen {
			o.visible = false
		}
		o.mu.Unlock()
		return fmt.Errorf("show drag overlay: %w", err)
	}

	// A Hide, Close or timeout may have reached the host before this show did.
	o.mu.Lock()
	hidden := o.gen != gen && !o.visible
	o.mu.Unlock()
	if hidden {
		if err := o.handle.Hide(ctx); err != nil {
			o.log.Debug().Err(err).Msg("re-hide drag overlay")
		}
		return nil
	}

	var errs []error
	if err := o.handle.Focus(ctx); err != nil {
		errs = append(errs, fmt.Errorf("focus drag overlay: %w", err))
	}
	if err := window.Wrap(o.host, source).Focus(ctx); err != nil {
		errs = append(errs, fmt.Errorf("focus drag source %s: %w", source, err))
	}

	o.mu.Lock()
	if o.gen == gen {
		o.timer = time.AfterFunc(o.autoHide, func() { o.expire(gen) })
	}
	o.mu.Unlock()

	logging.FromContext(ctx).Debug().Str("source", source.String()).Msg("drag overlay shown")
	return errors.Join(errs...)
}

// Hide hides the overlay and cancels the pending timer. It is safe to call
// when nothing is shown.
func (o *Overlay) Hide(ctx context.Context) error {
	o.mu.Lock()
	o.gen++
	o.stopLocked()
	o.visible = false
	o.mu.Unlock()

	if err := o.handle.Hide(ctx); err != nil {
		return fmt.Errorf("hide drag overlay: %w", err)
	}
	return nil
}

// Close cancels the timer and destroys the overlay window.
func (o *Overlay) Close(ctx context.Context) error {
	o.mu.Lock()
	o.gen++
	o.stopLocked()
	o.visible = false
	o.mu.Unlock()
	return o.handle.Close(ctx)
}

func (o *Overlay) stopLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Overlay) expire(gen uint64) {
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.gen++
	o.timer = nil
	o.visible = false
	source := o.source
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = o.log.WithContext(ctx)

	if err := o.handle.Hide(ctx); err != nil {
		o.log.Warn().Err(err).Msg("auto-hide drag overlay")
	}
	o.log.Warn().Str("source", source.String()).Dur("after", o.autoHide).Msg("drag never finished, overlay hidden")
	o.metrics.RecordDragTimeout(ctx)
	if o.onTimeout != nil {
		o.onTimeout(source)
	}
}
