package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// meteredFixture pairs a Metrics instance with the reader its provider
// exports to.
type meteredFixture struct {
	m      *Metrics
	reader *sdkmetric.ManualReader
}

func newMetered(t *testing.T) meteredFixture {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return meteredFixture{m: m, reader: reader}
}

func (f meteredFixture) snapshot(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric returns the named instrument's data, or nil.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterByAttr sums the named counter's points keyed by one attribute.
func counterByAttr(t *testing.T, rm metricdata.ResourceMetrics, name string, key attribute.Key) map[string]int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q has data %T, want Sum[int64]", name, met.Data)
	}
	out := make(map[string]int64, len(sum.DataPoints))
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(key)
		out[v.AsString()] += dp.Value
	}
	return out
}

// histogramSamples counts all observations of the named histogram.
func histogramSamples(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q has data %T, want Histogram[float64]", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordReplace(t *testing.T) {
	f := newMetered(t)
	ctx := context.Background()

	f.m.RecordReplace(ctx, 300*time.Microsecond, map[string]int{"exact": 2, "fuzzy": 1, "regex": 0})
	f.m.RecordReplace(ctx, 100*time.Microsecond, map[string]int{"exact": 1})
	f.m.RecordReplace(ctx, 50*time.Microsecond, nil)

	rm := f.snapshot(t)
	if got := histogramSamples(t, rm, "termsub.replace.duration"); got != 3 {
		t.Errorf("replace.duration samples = %d, want 3", got)
	}
	changes := counterByAttr(t, rm, "termsub.replace.changes", "kind")
	want := map[string]int64{"exact": 3, "fuzzy": 1}
	if len(changes) != len(want) {
		t.Errorf("replace.changes = %v, want %v (zero counts are not recorded)", changes, want)
	}
	for kind, n := range want {
		if changes[kind] != n {
			t.Errorf("replace.changes{kind=%s} = %d, want %d", kind, changes[kind], n)
		}
	}
}

func TestStoreCounters(t *testing.T) {
	tests := []struct {
		name   string
		record func(context.Context, *Metrics)
		metric string
		key    attribute.Key
		want   map[string]int64
	}{
		{
			name: "mutations by status",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordMutation(ctx, "add", "ok")
				m.RecordMutation(ctx, "delete", "ok")
				m.RecordMutation(ctx, "add", "TERMS_LIMIT")
			},
			metric: "termsub.store.mutations",
			key:    "status",
			want:   map[string]int64{"ok": 2, "TERMS_LIMIT": 1},
		},
		{
			name: "mutations by action",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordMutation(ctx, "import", "ok")
				m.RecordMutation(ctx, "import", "INVALID_TERM")
				m.RecordMutation(ctx, "update", "NOT_FOUND")
			},
			metric: "termsub.store.mutations",
			key:    "action",
			want:   map[string]int64{"import": 2, "update": 1},
		},
		{
			name: "reloads",
			record: func(ctx context.Context, m *Metrics) {
				m.RecordReload(ctx, "ok")
				m.RecordReload(ctx, "ok")
				m.RecordReload(ctx, "error")
			},
			metric: "termsub.store.reloads",
			key:    "status",
			want:   map[string]int64{"ok": 2, "error": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMetered(t)
			tt.record(context.Background(), f.m)

			got := counterByAttr(t, f.snapshot(t), tt.metric, tt.key)
			for k, n := range tt.want {
				if got[k] != n {
					t.Errorf("%s{%s=%s} = %d, want %d", tt.metric, tt.key, k, got[k], n)
				}
			}
		})
	}
}

func TestRecordEntries_KeepsLastValue(t *testing.T) {
	f := newMetered(t)
	ctx := context.Background()
	f.m.RecordEntries(ctx, 7)
	f.m.RecordEntries(ctx, 5)

	met := findMetric(f.snapshot(t), "termsub.store.entries")
	if met == nil {
		t.Fatal("termsub.store.entries not recorded")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("store.entries has data %T, want Gauge[int64]", met.Data)
	}
	if len(gauge.DataPoints) != 1 || gauge.DataPoints[0].Value != 5 {
		t.Errorf("store.entries points = %+v, want a single point of 5", gauge.DataPoints)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()

	// None of these may panic.
	m.RecordReplace(ctx, time.Millisecond, map[string]int{"exact": 1})
	m.RecordMutation(ctx, "add", "ok")
	m.RecordReload(ctx, "ok")
	m.RecordEntries(ctx, 1)
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
