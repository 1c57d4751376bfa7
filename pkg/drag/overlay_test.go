package drag

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/b/tmux-tabgroups/pkg/window"
	"github.com/b/tmux-tabgroups/pkg/window/memhost"
)

var source = window.Identifier{ApplicationID: "app1", Name: "main"}

func newOverlay(t *testing.T, opts Options) (*Overlay, *memhost.Host) {
	t.Helper()
	host := memhost.New()
	host.Open(source, window.Bounds{Left: 10, Top: 10, Width: 400, Height: 300})
	o, err := New(context.Background(), host, opts)
	require.NoError(t, err)
	return o, host
}

func TestNewCreatesHiddenFullScreenOverlay(t *testing.T) {
	o, host := newOverlay(t, Options{})

	w, ok := host.Window(o.ID())
	require.True(t, ok)
	require.Equal(t, OverlayName, o.ID().Name)
	require.Equal(t, window.Bounds{Width: 1920, Height: 1080}, w.Bounds)
	require.False(t, w.Visible)
	require.False(t, o.Visible())
}

func TestNewSurfacesCreationFailure(t *testing.T) {
	host := memhost.New()
	host.FailOn["create"] = OverlayName

	o, err := New(context.Background(), host, Options{})
	require.Error(t, err)
	require.Nil(t, o)
}

func TestShowThenHide(t *testing.T) {
	o, host := newOverlay(t, Options{AutoHide: time.Minute})
	ctx := context.Background()

	require.NoError(t, o.Show(ctx, source))
	w, _ := host.Window(o.ID())
	require.True(t, w.Visible)
	require.True(t, o.Visible())
	require.True(t, o.Pending())
	require.Equal(t, source, host.Focused(), "source must be focused above the overlay")

	require.NoError(t, o.Hide(ctx))
	w, _ = host.Window(o.ID())
	require.False(t, w.Visible)
	require.False(t, o.Pending())
}

// hookHost runs beforeShow ahead of the host applying a show, as if another
// caller's request landed first.
type hookHost struct {
	*memhost.Host
	beforeShow func()
}

func (h *hookHost) Show(ctx context.Context, id window.Identifier) error {
	if h.beforeShow != nil {
		h.beforeShow()
	}
	return h.Host.Show(ctx, id)
}

func TestHideDuringShowLeavesOverlayHidden(t *testing.T) {
	mem := memhost.New()
	mem.Open(source, window.Bounds{Left: 10, Top: 10, Width: 400, Height: 300})
	host := &hookHost{Host: mem}
	o, err := New(context.Background(), host, Options{AutoHide: time.Minute})
	require.NoError(t, err)
	ctx := context.Background()

	host.beforeShow = func() {
		host.beforeShow = nil
		require.NoError(t, o.Hide(ctx))
	}
	require.NoError(t, o.Show(ctx, source))

	w, _ := mem.Window(o.ID())
	require.False(t, w.Visible, "overlay window must stay hidden after a concurrent Hide")
	require.False(t, o.Visible())
	require.False(t, o.Pending(), "no auto-hide timer once hidden")
}

func TestHideWithoutShowIsSafe(t *testing.T) {
	o, _ := newOverlay(t, Options{})
	require.NoError(t, o.Hide(context.Background()))
	require.NoError(t, o.Hide(context.Background()))
	require.False(t, o.Pending())
}

func TestAutoHideFires(t *testing.T) {
	fired := make(chan window.Identifier, 1)
	o, host := newOverlay(t, Options{
		AutoHide:  20 * time.Millisecond,
		OnTimeout: func(id window.Identifier) { fired <- id },
	})

	require.NoError(t, o.Show(context.Background(), source))

	select {
	case id := <-fired:
		require.Equal(t, source, id)
	case <-time.After(2 * time.Second):
		t.Fatal("auto-hide timer never fired")
	}
	w, _ := host.Window(o.ID())
	require.False(t, w.Visible)
	require.False(t, o.Visible())
	require.False(t, o.Pending())
}

func TestAutoHideDoesNotFireAfterHide(t *testing.T) {
	var fired atomic.Int32
	o, _ := newOverlay(t, Options{
		AutoHide:  20 * time.Millisecond,
		OnTimeout: func(window.Identifier) { fired.Add(1) },
	})
	ctx := context.Background()

	require.NoError(t, o.Show(ctx, source))
	require.NoError(t, o.Hide(ctx))
	time.Sleep(100 * time.Millisecond)
	require.Zero(t, fired.Load())
}

func TestShowRestartsTimer(t *testing.T) {
	var fired atomic.Int32
	o, _ := newOverlay(t, Options{
		AutoHide:  50 * time.Millisecond,
		OnTimeout: func(window.Identifier) { fired.Add(1) },
	})
	ctx := context.Background()

	require.NoError(t, o.Show(ctx, source))
	require.NoError(t, o.Show(ctx, source))
	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, fired.Load(), "superseded timer must not fire")
}
