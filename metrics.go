package lavago

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics is the bundle of OpenTelemetry instruments a Client reports to
// when configured via WithMetrics. A nil *Metrics is safe to call every
// method on: each call site in this package is a method on *Metrics
// rather than a guarded field read, so WithMetrics is strictly additive.
type Metrics struct {
	nodesConnected metric.Int64UpDownCounter
	linksActive    metric.Int64UpDownCounter
	migrations     metric.Int64Counter
	trackStarts    metric.Int64Counter
	trackEnds      metric.Int64Counter
	restRetries    metric.Int64Counter
}

// NewMetrics creates the instrument bundle against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.nodesConnected, err = meter.Int64UpDownCounter("lavago.nodes.connected",
		metric.WithDescription("nodes currently available for scheduling")); err != nil {
		return nil, err
	}
	if m.linksActive, err = meter.Int64UpDownCounter("lavago.links.active",
		metric.WithDescription("guild links currently connected")); err != nil {
		return nil, err
	}
	if m.migrations, err = meter.Int64Counter("lavago.links.migrations",
		metric.WithDescription("links migrated to a new node after a disconnect")); err != nil {
		return nil, err
	}
	if m.trackStarts, err = meter.Int64Counter("lavago.tracks.started",
		metric.WithDescription("TrackStart events observed")); err != nil {
		return nil, err
	}
	if m.trackEnds, err = meter.Int64Counter("lavago.tracks.ended",
		metric.WithDescription("TrackEnd events observed")); err != nil {
		return nil, err
	}
	if m.restRetries, err = meter.Int64Counter("lavago.rest.retries",
		metric.WithDescription("REST track-lookup retry attempts")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metrics) nodeConnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.nodesConnected.Add(ctx, 1)
}

func (m *Metrics) nodeDisconnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.nodesConnected.Add(ctx, -1)
}

func (m *Metrics) linkConnected(ctx context.Context) {
	if m == nil {
		return
	}
	m.linksActive.Add(ctx, 1)
}

func (m *Metrics) linkDestroyed(ctx context.Context) {
	if m == nil {
		return
	}
	m.linksActive.Add(ctx, -1)
}

func (m *Metrics) linkMigrated(ctx context.Context) {
	if m == nil {
		return
	}
	m.migrations.Add(ctx, 1)
}

func (m *Metrics) trackStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.trackStarts.Add(ctx, 1)
}

func (m *Metrics) trackEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.trackEnds.Add(ctx, 1)
}

func (m *Metrics) restRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.restRetries.Add(ctx, 1)
}
