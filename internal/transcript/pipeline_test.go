package transcript_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/MrWong99/termsub/internal/config"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/transcript"
)

// recordingReplacer upper-cases its input and remembers every call.
type recordingReplacer struct {
	mu    sync.Mutex
	calls []terms.ReplaceOptions
	texts []string
}

func (r *recordingReplacer) Replace(_ context.Context, text string, opts terms.ReplaceOptions) (string, []terms.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	r.texts = append(r.texts, text)
	return strings.ToUpper(text), []terms.Change{{ID: "x", Src: text, Dst: strings.ToUpper(text), Kind: terms.KindExact}}
}

func (r *recordingReplacer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var finalOpts = transcript.Options{
	EnableRegex:  true,
	EnableFuzzy:  true,
	FuzzyMaxDist: 2,
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default().Terms
	cfg.CaseSensitive = true
	cfg.FuzzyMaxDist = 3
	cfg.ApplyToPartials = true

	got := transcript.OptionsFromConfig(cfg)
	want := transcript.Options{
		CaseSensitive:   true,
		EnableRegex:     true,
		EnableFuzzy:     true,
		FuzzyMaxDist:    3,
		ApplyToPartials: true,
	}
	if got != want {
		t.Errorf("OptionsFromConfig = %+v, want %+v", got, want)
	}
}

func TestApply_ReplaceOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     transcript.Options
		partial  bool
		wantCall bool
		want     terms.ReplaceOptions
	}{
		{
			name:     "final uses every pass",
			opts:     finalOpts,
			wantCall: true,
			want:     terms.ReplaceOptions{EnableRegex: true, EnableFuzzy: true, FuzzyMaxDist: 2},
		},
		{
			name:     "fuzzy disabled zeroes the distance",
			opts:     transcript.Options{EnableRegex: true, FuzzyMaxDist: 2},
			wantCall: true,
			want:     terms.ReplaceOptions{EnableRegex: true},
		},
		{
			name:     "case sensitivity is passed through",
			opts:     transcript.Options{CaseSensitive: true},
			wantCall: true,
			want:     terms.ReplaceOptions{CaseSensitive: true},
		},
		{
			name:    "partial is skipped by default",
			opts:    finalOpts,
			partial: true,
		},
		{
			name: "partial runs exact only when enabled",
			opts: transcript.Options{
				CaseSensitive:   true,
				EnableRegex:     true,
				EnableFuzzy:     true,
				FuzzyMaxDist:    2,
				ApplyToPartials: true,
			},
			partial:  true,
			wantCall: true,
			want:     terms.ReplaceOptions{CaseSensitive: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &recordingReplacer{}
			p := transcript.NewPipeline(r, transcript.WithOptions(tt.opts))

			got, changes := p.Apply(context.Background(), "hello", tt.partial)
			if !tt.wantCall {
				if r.callCount() != 0 {
					t.Fatalf("Replace called %d times, want 0", r.callCount())
				}
				if got != "hello" {
					t.Errorf("text = %q, want unchanged", got)
				}
				if changes == nil || len(changes) != 0 {
					t.Errorf("changes = %#v, want empty non-nil slice", changes)
				}
				return
			}
			if r.callCount() != 1 {
				t.Fatalf("Replace called %d times, want 1", r.callCount())
			}
			if r.calls[0] != tt.want {
				t.Errorf("ReplaceOptions = %+v, want %+v", r.calls[0], tt.want)
			}
			if got != "HELLO" || len(changes) != 1 {
				t.Errorf("Apply = %q, %d changes; want HELLO, 1", got, len(changes))
			}
		})
	}
}

func TestApply_EmptyTextPassesThrough(t *testing.T) {
	t.Parallel()

	r := &recordingReplacer{}
	p := transcript.NewPipeline(r, transcript.WithOptions(finalOpts))
	got, changes := p.Apply(context.Background(), "", false)
	if got != "" || changes == nil || len(changes) != 0 {
		t.Errorf("Apply(\"\") = %q, %#v", got, changes)
	}
	if r.callCount() != 0 {
		t.Errorf("Replace called %d times, want 0", r.callCount())
	}
}

func TestNewPipeline_DefaultOptions(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(&recordingReplacer{})
	want := transcript.OptionsFromConfig(config.Default().Terms)
	if got := p.Options(); got != want {
		t.Errorf("Options() = %+v, want %+v", got, want)
	}
}

func TestSetOptions(t *testing.T) {
	t.Parallel()

	r := &recordingReplacer{}
	p := transcript.NewPipeline(r, transcript.WithOptions(finalOpts))
	p.SetOptions(transcript.Options{CaseSensitive: true})

	p.Apply(context.Background(), "text", false)
	if want := (terms.ReplaceOptions{CaseSensitive: true}); r.calls[0] != want {
		t.Errorf("ReplaceOptions = %+v, want %+v", r.calls[0], want)
	}
}

func TestSetOptions_Concurrent(t *testing.T) {
	t.Parallel()

	p := transcript.NewPipeline(&recordingReplacer{})
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.SetOptions(transcript.Options{FuzzyMaxDist: i % 3, EnableFuzzy: true})
		}()
		go func() {
			defer wg.Done()
			p.Apply(context.Background(), "text", false)
		}()
	}
	wg.Wait()
}

func TestPipeline_WithStore(t *testing.T) {
	t.Parallel()

	store, err := terms.Open(filepath.Join(t.TempDir(), "terms.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, p := range []terms.Payload{
		{"src": "cube control", "dst": "kubectl"},
		{"src": `\bk8s\b`, "dst": "Kubernetes", "type": "regex"},
		{"src": "Grafana", "dst": "Grafana"},
	} {
		if _, err := store.Add(p); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	opts := transcript.OptionsFromConfig(config.Default().Terms)
	opts.ApplyToPartials = true
	p := transcript.NewPipeline(store, transcript.WithOptions(opts))

	got, changes := p.Apply(context.Background(), "cube control or k8s on grafanna", false)
	if want := "kubectl or Kubernetes on Grafana"; got != want {
		t.Errorf("final = %q, want %q", got, want)
	}
	if len(changes) != 3 {
		t.Errorf("final changes = %d, want 3", len(changes))
	}

	got, changes = p.Apply(context.Background(), "cube control or k8s on grafanna", true)
	if want := "kubectl or k8s on grafanna"; got != want {
		t.Errorf("partial = %q, want %q", got, want)
	}
	if len(changes) != 1 || changes[0].Kind != terms.KindExact {
		t.Errorf("partial changes = %+v, want one exact change", changes)
	}
}
