package lavago

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetricsBuildsEveryInstrument(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("lavago-test"))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected a non-nil Metrics bundle")
	}
}

func TestNilMetricsIsSafeToCall(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	// None of these should panic on a nil receiver.
	m.nodeConnected(ctx)
	m.nodeDisconnected(ctx)
	m.linkConnected(ctx)
	m.linkDestroyed(ctx)
	m.linkMigrated(ctx)
	m.trackStarted(ctx)
	m.trackEnded(ctx)
	m.restRetried(ctx)
}
