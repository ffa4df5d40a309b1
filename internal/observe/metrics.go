// Package observe wires OpenTelemetry into termsub: the metric instruments
// of the replace pipeline and the terms store, span helpers, a logger that
// stamps trace identifiers onto records, and the HTTP middleware that opens
// one span per request.
//
// [InitProvider] installs SDK providers and a Prometheus bridge for the
// /metrics route. Without it every instrument falls back to the no-op
// global providers. All Record methods accept a nil *Metrics.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/termsub"

// Metrics is the set of termsub instruments. The zero value is unusable;
// create one with [NewMetrics] or use [DefaultMetrics].
type Metrics struct {
	// ReplaceDuration is the latency of one replace call, in seconds.
	ReplaceDuration metric.Float64Histogram

	// ReplaceChanges counts substitutions, attribute "kind".
	ReplaceChanges metric.Int64Counter

	// StoreMutations counts mutating store calls, attributes "action" and
	// "status" (ok or an error code).
	StoreMutations metric.Int64Counter

	// StoreReloads counts document reloads, attribute "status".
	StoreReloads metric.Int64Counter

	// StoreEntries is the entry count after the last load or mutation.
	StoreEntries metric.Int64Gauge

	// HTTPRequestDuration is the server-side request latency, attributes
	// "method", "path" (the route pattern) and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// replaceBuckets are histogram boundaries in seconds. Replacement is pure
// CPU work over short texts.
var replaceBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	var (
		m    Metrics
		errs [6]error
	)
	m.ReplaceDuration, errs[0] = meter.Float64Histogram("termsub.replace.duration",
		metric.WithDescription("Latency of term replacement over one text."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(replaceBuckets...),
	)
	m.ReplaceChanges, errs[1] = meter.Int64Counter("termsub.replace.changes",
		metric.WithDescription("Substitutions by match kind."),
	)
	m.StoreMutations, errs[2] = meter.Int64Counter("termsub.store.mutations",
		metric.WithDescription("Store mutations by action and status."),
	)
	m.StoreReloads, errs[3] = meter.Int64Counter("termsub.store.reloads",
		metric.WithDescription("Document reloads by status."),
	)
	m.StoreEntries, errs[4] = meter.Int64Gauge("termsub.store.entries",
		metric.WithDescription("Entries held by the store."),
	)
	m.HTTPRequestDuration, errs[5] = meter.Float64Histogram("termsub.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	)
	if err := errors.Join(errs[:]...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return &m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] built on the global meter
// provider at first use. Call it after [InitProvider] so the instruments
// reach the Prometheus bridge.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordReplace records the latency of one replace call and one counter
// increment per change kind.
func (m *Metrics) RecordReplace(ctx context.Context, elapsed time.Duration, changesByKind map[string]int) {
	if m == nil {
		return
	}
	m.ReplaceDuration.Record(ctx, elapsed.Seconds())
	for kind, n := range changesByKind {
		if n == 0 {
			continue
		}
		m.ReplaceChanges.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// RecordMutation records a store mutation with its outcome.
func (m *Metrics) RecordMutation(ctx context.Context, action, status string) {
	if m == nil {
		return
	}
	m.StoreMutations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordReload records a document reload with its outcome.
func (m *Metrics) RecordReload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.StoreReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordEntries sets the current entry count.
func (m *Metrics) RecordEntries(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.StoreEntries.Record(ctx, int64(n))
}
