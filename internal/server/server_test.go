package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/termsub/internal/health"
	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/server"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestServer opens a store with a few entries and returns a handler for
// it together with the store.
func newTestServer(t *testing.T, opts ...server.Option) (http.Handler, *terms.Store) {
	t.Helper()
	store, err := terms.Open(filepath.Join(t.TempDir(), "terms.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, p := range []terms.Payload{
		{"id": "k8s", "src": "k eight s", "dst": "k8s"},
		{"id": "pg", "src": `\bpost ?gres\b`, "dst": "PostgreSQL", "type": "regex"},
		{"id": "graf", "src": "Grafana", "dst": "Grafana", "active": false},
	} {
		if _, err := store.Add(p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	pipeline := transcript.NewPipeline(store)
	opts = append([]server.Option{server.WithMetricsHandler(http.NotFoundHandler())}, opts...)
	return server.New(store, pipeline, opts...).Handler(), store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestListTerms(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/terms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[struct {
		Entries []terms.Entry `json:"entries"`
	}](t, rec)
	if len(body.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(body.Entries))
	}
	if body.Entries[0].ID != "k8s" || body.Entries[2].Active {
		t.Errorf("entries = %+v", body.Entries)
	}
}

func TestTermStats(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/terms/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	st := decode[terms.Stats](t, rec)
	if st.Count != 3 || st.ActiveCount != 2 || st.RegexCount != 1 || !st.FuzzyEnabled {
		t.Errorf("stats = %+v", st)
	}
}

func TestGetTerm(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/v1/terms/pg", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if e := decode[terms.Entry](t, rec); e.Dst != "PostgreSQL" || e.Kind != terms.KindRegex {
		t.Errorf("entry = %+v", e)
	}

	rec = do(t, h, http.MethodGet, "/v1/terms/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if e := decode[errorBody](t, rec); e.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", e.Code)
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantText string
		wantN    int
	}{
		{"final", `{"text": "k eight s talks to post gres"}`, "k8s talks to PostgreSQL", 2},
		{"partial is untouched by default", `{"text": "k eight s talks to post gres", "partial": true}`, "k eight s talks to post gres", 0},
		{"inactive entries are ignored", `{"text": "grafana"}`, "grafana", 0},
		{"empty", `{"text": ""}`, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, http.MethodPost, "/v1/replace", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
			}
			res := decode[struct {
				Text    string             `json:"text"`
				Changes []terms.Change     `json:"changes"`
				Summary transcript.Summary `json:"summary"`
			}](t, rec)
			if res.Text != tt.wantText {
				t.Errorf("text = %q, want %q", res.Text, tt.wantText)
			}
			if len(res.Changes) != tt.wantN || res.Summary.Count != tt.wantN {
				t.Errorf("changes = %d, summary count = %d, want %d", len(res.Changes), res.Summary.Count, tt.wantN)
			}
		})
	}
}

func TestReplace_ChangesArrayIsNeverNull(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/v1/replace", `{"text": "nothing here"}`)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"changes":[]`)) {
		t.Errorf("body = %s, want an empty changes array", rec.Body.String())
	}
}

func TestReplace_BadRequests(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"not json", `text=hello`, http.StatusBadRequest},
		{"unknown field", `{"txt": "hello"}`, http.StatusBadRequest},
		{"wrong type", `{"text": 5}`, http.StatusBadRequest},
		{"too large", `{"text": "` + strings.Repeat("a", 1<<20) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := do(t, h, http.MethodPost, "/v1/replace", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if e := decode[errorBody](t, rec); e.Code != "INVALID_REQUEST" {
				t.Errorf("code = %q, want INVALID_REQUEST", e.Code)
			}
		})
	}
}

func TestTranscripts(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t)

	body := `{"segments": [
		{"id": 0, "start_sec": 0, "end_sec": 1.5, "text": " we use  post gres ."},
		{"id": 1, "start_sec": 1.5, "end_sec": 2, "text": "   "},
		{"id": 2, "start_sec": 2, "end_sec": 3, "text": "on k eight s"}
	]}`
	rec := do(t, h, http.MethodPost, "/v1/transcripts", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	res := decode[struct {
		transcript.Result
		Summary transcript.Summary `json:"summary"`
	}](t, rec)
	if want := "we use PostgreSQL. on k8s"; res.Text != want {
		t.Errorf("text = %q, want %q", res.Text, want)
	}
	if len(res.Segments) != 2 || res.Segments[1].ID != 2 {
		t.Errorf("segments = %+v", res.Segments)
	}
	if res.Summary.Count != 2 || len(res.Summary.Items) != 2 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	failing := health.Checker{Name: "broken", Check: func(context.Context) error { return errors.New("down") }}
	h, _ := newTestServer(t, server.WithCheckers(failing))

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status = %d, want 503", rec.Code)
	}
}

func TestReadyz_DocumentChecker(t *testing.T) {
	t.Parallel()

	store, err := terms.Open(filepath.Join(t.TempDir(), "terms.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h := server.New(store, transcript.NewPipeline(store),
		server.WithMetricsHandler(http.NotFoundHandler()),
		server.WithCheckers(health.DocumentChecker("terms", store)),
	).Handler()

	if rec := do(t, h, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	called := false
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = io.WriteString(w, "# metrics\n")
	})
	h, _ := newTestServer(t, server.WithMetricsHandler(metricsHandler))

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !called {
		t.Errorf("/metrics status = %d, handler called = %v", rec.Code, called)
	}
}

func TestRequestMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h, _ := newTestServer(t, server.WithMetrics(m))
	do(t, h, http.MethodGet, "/v1/terms/k8s", "")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "termsub.http.request.duration" {
				continue
			}
			hist := md.Data.(metricdata.Histogram[float64])
			for _, dp := range hist.DataPoints {
				if v, ok := dp.Attributes.Value("path"); ok && v.AsString() == "/v1/terms/{id}" {
					return
				}
			}
		}
	}
	t.Error("no request duration recorded for /v1/terms/{id}")
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	store, err := terms.Open(filepath.Join(t.TempDir(), "terms.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	srv := server.New(store, transcript.NewPipeline(store),
		server.WithMetricsHandler(http.NotFoundHandler()),
		server.WithShutdownTimeout(time.Second),
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
