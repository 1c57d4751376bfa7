package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tabgroupd"

// Metrics holds the instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests        metric.Int64Counter
	RequestDuration metric.Float64Histogram
	GroupsActive    metric.Int64UpDownCounter
	TabsMoved       metric.Int64Counter
	DragTimeouts    metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Requests, err = meter.Int64Counter("tabgroup.requests",
		metric.WithDescription("Dispatched requests partitioned by operation and outcome"))
	if err != nil {
		return nil, err
	}

	m.RequestDuration, err = meter.Float64Histogram("tabgroup.request.duration",
		metric.WithDescription("Time spent handling a request"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.GroupsActive, err = meter.Int64UpDownCounter("tabgroup.groups.active",
		metric.WithDescription("Tab groups currently registered"))
	if err != nil {
		return nil, err
	}

	m.TabsMoved, err = meter.Int64Counter("tabgroup.tabs.moved",
		metric.WithDescription("Tabs ejected from a group by drag, partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.DragTimeouts, err = meter.Int64Counter("tabgroup.drag.timeouts",
		metric.WithDescription("Drag overlays hidden by the auto-hide safety timer"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records one dispatched request. outcome is "ok" or a rejection kind.
func (m *Metrics) RecordRequest(ctx context.Context, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("request.op", op),
		attribute.String("request.outcome", outcome),
	)
	m.Requests.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// GroupCreated and GroupDissolved track the number of live groups.
func (m *Metrics) GroupCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.GroupsActive.Add(ctx, 1)
}

func (m *Metrics) GroupDissolved(ctx context.Context) {
	if m == nil {
		return
	}
	m.GroupsActive.Add(ctx, -1)
}

// RecordEject records where an ejected tab ended up.
func (m *Metrics) RecordEject(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.TabsMoved.Add(ctx, 1, metric.WithAttributes(attribute.String("eject.outcome", outcome)))
}

// RecordDragTimeout counts an overlay hidden by its safety timer.
func (m *Metrics) RecordDragTimeout(ctx context.Context) {
	if m == nil {
		return
	}
	m.DragTimeouts.Add(ctx, 1)
}
