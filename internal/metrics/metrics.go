// Package metrics defines the service's OpenTelemetry instruments.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "auraforce/backend"

// Metrics bundles the counters the workflow service increments.
type Metrics struct {
	WorkflowUploads metric.Int64Counter
	WorkflowLoads   metric.Int64Counter
	FavoriteToggles metric.Int64Counter
}

// New creates the instruments on the given provider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	uploads, err := meter.Int64Counter("workflow.uploads",
		metric.WithDescription("Workflow bundles deployed via upload"))
	if err != nil {
		return nil, err
	}
	loads, err := meter.Int64Counter("workflow.loads",
		metric.WithDescription("Workflow load operations"))
	if err != nil {
		return nil, err
	}
	favorites, err := meter.Int64Counter("workflow.favorite_toggles",
		metric.WithDescription("Favorite and unfavorite operations"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		WorkflowUploads: uploads,
		WorkflowLoads:   loads,
		FavoriteToggles: favorites,
	}, nil
}

// NewNop returns instruments bound to the global (no-op by default) provider.
// Used in tests.
func NewNop() *Metrics {
	m, err := New(otel.GetMeterProvider())
	if err != nil {
		// the no-op provider never fails instrument creation
		panic(err)
	}
	return m
}

// Add is a nil-safe increment helper.
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, n, metric.WithAttributes(attrs...))
	}
}
