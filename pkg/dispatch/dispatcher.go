// Package dispatch is the request surface of the tab group service. Every
// external call arrives as a typed request, is validated, resolved against
// the registry and answered with a result or a *Rejection.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/b/tmux-tabgroups/pkg/drag"
	"github.com/b/tmux-tabgroups/pkg/logging"
	"github.com/b/tmux-tabgroups/pkg/perf"
	"github.com/b/tmux-tabgroups/pkg/tabgroup"
	"github.com/b/tmux-tabgroups/pkg/telemetry"
	"github.com/b/tmux-tabgroups/pkg/window"
)

// Options wires a Dispatcher. Registry is required; a nil Overlay disables
// drag feedback but endDrag still ejects.
type Options struct {
	Registry *tabgroup.Registry
	Overlay  *drag.Overlay
	Tracer   trace.Tracer
	Metrics  *telemetry.Metrics
}

type Dispatcher struct {
	reg     *tabgroup.Registry
	overlay *drag.Overlay
	tracer  trace.Tracer
	metrics *telemetry.Metrics
}

// New returns a dispatcher serving requests against opts.Registry.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		reg:     opts.Registry,
		overlay: opts.Overlay,
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("tabgroupd")
	}
	return d
}

// Registry returns the registry requests are resolved against.
func (d *Dispatcher) Registry() *tabgroup.Registry { return d.reg }

// do validates req, runs fn and turns whatever comes back, including a
// panic, into a result or a *Rejection for op.
func do[T any](ctx context.Context, d *Dispatcher, op Op, req Request, fn func(context.Context) (T, error)) (res T, err error) {
	timer := perf.Start("dispatch." + string(op))
	ctx, span := d.tracer.Start(ctx, "dispatch."+string(op),
		trace.WithAttributes(attribute.String("request.op", string(op))))
	ctx = logging.WithComponent(ctx, "dispatch")

	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(ctx, string(op), r)
			var zero T
			res = zero
			err = &Rejection{Kind: KindInternal, Message: fmt.Sprint(r)}
		}
		outcome := "ok"
		if err != nil {
			rej := reject(op, err)
			err = rej
			outcome = string(rej.Kind)
			span.RecordError(rej)
			span.SetStatus(codes.Error, string(rej.Kind))

			log := logging.FromContext(ctx)
			ev := log.Debug()
			if rej.Kind == KindHostFailure || rej.Kind == KindInternal {
				ev = log.Warn()
			}
			ev.Str("op", string(op)).Str("kind", string(rej.Kind)).Str("reason", rej.Message).Msg("request rejected")
		}
		span.End()
		d.metrics.RecordRequest(ctx, string(op), outcome, timer.Done(outcome))
	}()

	if req != nil {
		if verr := req.Validate(); verr != nil {
			return res, verr
		}
	}
	return fn(ctx)
}

func (d *Dispatcher) groupOf(id window.Identifier) (*tabgroup.Group, error) {
	g, ok := d.reg.GetTabGroupByApp(id)
	if !ok {
		return nil, notFound("no group found for %s", id)
	}
	return g, nil
}

func (d *Dispatcher) info(ctx context.Context, g *tabgroup.Group) GroupInfo {
	gi := GroupInfo{ID: g.ID(), Tabs: g.Tabs()}
	gi.Active, _ = g.ActiveTab()
	if state, err := g.State(ctx); err == nil {
		gi.State = state
	}
	return gi
}

// SetTabClient registers the application's tab-strip descriptor. It is
// write-once per application.
func (d *Dispatcher) SetTabClient(ctx context.Context, req SetTabClientRequest) error {
	_, err := do(ctx, d, OpSetTabClient, req, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.reg.Configs().AddApplicationUIConfig(req.ApplicationID, req.Config)
	})
	return err
}

// Deregister takes the window out of its group and reports whether it was in one.
func (d *Dispatcher) Deregister(ctx context.Context, req WindowRequest) (bool, error) {
	return do(ctx, d, OpDeregister, req, func(ctx context.Context) (bool, error) {
		removed, err := d.reg.RemoveTab(ctx, req.Window, false, true)
		if err != nil && removed {
			logging.FromContext(ctx).Warn().Err(err).Str("window", req.Window.String()).Msg("deregister: release window")
			return true, nil
		}
		return removed, err
	})
}

// GetTabs returns the window's group in tab order, or nil if it is not grouped.
func (d *Dispatcher) GetTabs(ctx context.Context, req WindowRequest) ([]window.Identifier, error) {
	return do(ctx, d, OpGetTabs, req, func(ctx context.Context) ([]window.Identifier, error) {
		g, ok := d.reg.GetTabGroupByApp(req.Window)
		if !ok {
			return nil, nil
		}
		return g.Tabs(), nil
	})
}

func (d *Dispatcher) CreateTabGroup(ctx context.Context, req CreateTabGroupRequest) (GroupInfo, error) {
	return do(ctx, d, OpCreateTabGroup, req, func(ctx context.Context) (GroupInfo, error) {
		g, err := d.reg.CreateTabGroupWithTabs(ctx, req.Windows)
		if err != nil {
			return GroupInfo{}, err
		}
		return d.info(ctx, g), nil
	})
}

// AddTab adds req.Window to the group of req.Target.
func (d *Dispatcher) AddTab(ctx context.Context, req AddTabRequest) (GroupInfo, error) {
	return do(ctx, d, OpAddTab, req, func(ctx context.Context) (GroupInfo, error) {
		g, err := d.groupOf(req.Target)
		if err != nil {
			return GroupInfo{}, err
		}
		if err := d.reg.AddTab(ctx, g, req.Window, req.Properties); err != nil {
			return GroupInfo{}, err
		}
		return d.info(ctx, g), nil
	})
}

// RemoveTab ejects the window from its group without a drop position. A
// window that is not grouped is acknowledged.
func (d *Dispatcher) RemoveTab(ctx context.Context, req WindowRequest) error {
	_, err := do(ctx, d, OpRemoveTab, req, func(ctx context.Context) (struct{}, error) {
		if _, ok := d.reg.GetTabGroupByApp(req.Window); !ok {
			return struct{}{}, nil
		}
		_, err := d.reg.EjectTab(ctx, req.Window, nil)
		return struct{}{}, err
	})
	return err
}

func (d *Dispatcher) SetActiveTab(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpSetActiveTab, req, func(ctx context.Context, g *tabgroup.Group) error {
		return g.SwitchTab(ctx, req.Window)
	})
}

// CloseTab closes the window and removes its tab.
func (d *Dispatcher) CloseTab(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpCloseTab, req, func(ctx context.Context, g *tabgroup.Group) error {
		_, err := d.reg.RemoveTab(ctx, req.Window, true, true)
		return err
	})
}

func (d *Dispatcher) MinimizeTabGroup(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpMinimizeTabGroup, req, func(ctx context.Context, g *tabgroup.Group) error {
		return g.MinimizeGroup(ctx)
	})
}

func (d *Dispatcher) MaximizeTabGroup(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpMaximizeTabGroup, req, func(ctx context.Context, g *tabgroup.Group) error {
		return g.MaximizeGroup(ctx)
	})
}

// RestoreTabGroup brings a minimized group back, or un-maximizes it.
func (d *Dispatcher) RestoreTabGroup(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpRestoreTabGroup, req, func(ctx context.Context, g *tabgroup.Group) error {
		state, err := g.State(ctx)
		if err != nil {
			return err
		}
		if state == window.StateMinimized {
			return g.Restore(ctx)
		}
		return g.RestoreGroup(ctx)
	})
}

// CloseTabGroup removes the window's group and closes every member window.
func (d *Dispatcher) CloseTabGroup(ctx context.Context, req WindowRequest) error {
	return d.withGroup(ctx, OpCloseTabGroup, req, func(ctx context.Context, g *tabgroup.Group) error {
		return d.reg.RemoveTabGroup(ctx, g.ID(), true)
	})
}

func (d *Dispatcher) withGroup(ctx context.Context, op Op, req WindowRequest, fn func(context.Context, *tabgroup.Group) error) error {
	_, err := do(ctx, d, op, req, func(ctx context.Context) (struct{}, error) {
		g, err := d.groupOf(req.Window)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(logging.WithGroupID(ctx, g.ID()), g)
	})
	return err
}

// ReorderTabs replaces the tab order of the group named by req.ID.
func (d *Dispatcher) ReorderTabs(ctx context.Context, req ReorderTabsRequest) error {
	_, err := do(ctx, d, OpReorderTabs, req, func(ctx context.Context) (struct{}, error) {
		g, ok := d.reg.GetTabGroupByApp(req.ID)
		if !ok {
			g, ok = d.reg.GetTabGroup(req.ID.Name)
		}
		if !ok {
			return struct{}{}, notFound("no group found for %s", req.ID)
		}
		return struct{}{}, g.ReOrderTabArray(ctx, req.Ordering)
	})
	return err
}

func (d *Dispatcher) UpdateTabProperties(ctx context.Context, req UpdateTabPropertiesRequest) (tabgroup.Properties, error) {
	return do(ctx, d, OpUpdateTabProperties, req, func(ctx context.Context) (tabgroup.Properties, error) {
		if _, ok := d.reg.GetTab(req.Window); !ok {
			return tabgroup.Properties{}, notFound("no tab found for %s", req.Window)
		}
		return d.reg.UpdateTabProperties(ctx, req.Window, req.Properties)
	})
}

func (d *Dispatcher) GetTabProperties(ctx context.Context, req WindowRequest) (tabgroup.Properties, error) {
	return do(ctx, d, OpGetTabProperties, req, func(ctx context.Context) (tabgroup.Properties, error) {
		t, ok := d.reg.GetTab(req.Window)
		if !ok {
			return tabgroup.Properties{}, notFound("no tab found for %s", req.Window)
		}
		return t.Properties(), nil
	})
}

// ListGroups describes every registered group.
func (d *Dispatcher) ListGroups(ctx context.Context) ([]GroupInfo, error) {
	return do(ctx, d, OpListGroups, nil, func(ctx context.Context) ([]GroupInfo, error) {
		groups := d.reg.Groups()
		out := make([]GroupInfo, 0, len(groups))
		for _, g := range groups {
			out = append(out, d.info(ctx, g))
		}
		return out, nil
	})
}

// StartDrag shows the drag overlay for the window. It always succeeds; a
// failure to show the overlay only costs visual feedback.
func (d *Dispatcher) StartDrag(ctx context.Context, req WindowRequest) error {
	_, err := do(ctx, d, OpStartDrag, req, func(ctx context.Context) (struct{}, error) {
		if d.overlay == nil {
			return struct{}{}, nil
		}
		if err := d.overlay.Show(ctx, req.Window); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("show drag overlay")
		}
		return struct{}{}, nil
	})
	return err
}

// EndDrag hides the overlay, then ejects the window at the drop position.
// The overlay is hidden even when the window turns out not to be grouped.
func (d *Dispatcher) EndDrag(ctx context.Context, req EndDragRequest) (EndDragResult, error) {
	return do(ctx, d, OpEndDrag, req, func(ctx context.Context) (EndDragResult, error) {
		if d.overlay != nil {
			if err := d.overlay.Hide(ctx); err != nil {
				logging.FromContext(ctx).Warn().Err(err).Msg("hide drag overlay")
			}
		}
		if _, err := d.groupOf(req.Window); err != nil {
			return EndDragResult{}, err
		}
		drop := req.Drop
		out, err := d.reg.EjectTab(ctx, req.Window, &drop)
		if err != nil {
			return EndDragResult{}, err
		}
		return EndDragResult{Outcome: out}, nil
	})
}

// Handle decodes payload for op and runs it. It backs the wire transports.
func (d *Dispatcher) Handle(ctx context.Context, op Op, payload json.RawMessage) (any, error) {
	switch op {
	case OpSetTabClient:
		req, err := decode[SetTabClientRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.SetTabClient(ctx, req)
	case OpCreateTabGroup:
		req, err := decode[CreateTabGroupRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return d.CreateTabGroup(ctx, req)
	case OpAddTab:
		req, err := decode[AddTabRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return d.AddTab(ctx, req)
	case OpReorderTabs:
		req, err := decode[ReorderTabsRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return nil, d.ReorderTabs(ctx, req)
	case OpUpdateTabProperties:
		req, err := decode[UpdateTabPropertiesRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return d.UpdateTabProperties(ctx, req)
	case OpEndDrag:
		req, err := decode[EndDragRequest](op, payload)
		if err != nil {
			return nil, err
		}
		return d.EndDrag(ctx, req)
	case OpListGroups:
		return d.ListGroups(ctx)
	}

	handler, ok := d.windowOps()[op]
	if !ok {
		return nil, &Rejection{Op: op, Kind: KindInvalidRequest, Message: fmt.Sprintf("unknown operation %q", op)}
	}
	req, err := decode[WindowRequest](op, payload)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

// windowOps are the operations whose payload is a single window.
func (d *Dispatcher) windowOps() map[Op]func(context.Context, WindowRequest) (any, error) {
	ack := func(fn func(context.Context, WindowRequest) error) func(context.Context, WindowRequest) (any, error) {
		return func(ctx context.Context, req WindowRequest) (any, error) { return nil, fn(ctx, req) }
	}
	return map[Op]func(context.Context, WindowRequest) (any, error){
		OpDeregister: func(ctx context.Context, req WindowRequest) (any, error) { return d.Deregister(ctx, req) },
		OpGetTabs: func(ctx context.Context, req WindowRequest) (any, error) {
			tabs, err := d.GetTabs(ctx, req)
			if tabs == nil {
				return nil, err
			}
			return tabs, err
		},
		OpGetTabProperties: func(ctx context.Context, req WindowRequest) (any, error) { return d.GetTabProperties(ctx, req) },
		OpRemoveTab:        ack(d.RemoveTab),
		OpSetActiveTab:     ack(d.SetActiveTab),
		OpCloseTab:         ack(d.CloseTab),
		OpMinimizeTabGroup: ack(d.MinimizeTabGroup),
		OpMaximizeTabGroup: ack(d.MaximizeTabGroup),
		OpRestoreTabGroup:  ack(d.RestoreTabGroup),
		OpCloseTabGroup:    ack(d.CloseTabGroup),
		OpStartDrag:        ack(d.StartDrag),
	}
}

func decode[T any](op Op, payload json.RawMessage) (T, error) {
	var req T
	if len(payload) == 0 || string(payload) == "null" {
		return req, nil
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, &Rejection{Op: op, Kind: KindInvalidRequest, Message: "malformed payload: " + err.Error(), Err: err}
	}
	return req, nil
}
