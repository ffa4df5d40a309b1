// Package transcript applies the term store to speech-to-text output.
//
// Raw transcripts are normalized, passed through the store's replacement
// passes and normalized again. Partial (not yet final) transcripts are only
// rewritten when [Options.ApplyToPartials] is set, and then only by exact
// entries: regex and fuzzy matching are too unstable on text that is still
// changing.
package transcript

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/termsub/internal/config"
	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/terms"
)

// Replacer rewrites text using a set of term entries. [*terms.Store]
// satisfies it.
//
// Implementations must be safe for concurrent use.
type Replacer interface {
	Replace(ctx context.Context, text string, opts terms.ReplaceOptions) (string, []terms.Change)
}

var _ Replacer = (*terms.Store)(nil)

// Options controls how a [Pipeline] applies terms.
type Options struct {
	CaseSensitive   bool
	EnableRegex     bool
	EnableFuzzy     bool
	FuzzyMaxDist    int
	ApplyToPartials bool
}

// OptionsFromConfig copies the replacement settings out of cfg.
func OptionsFromConfig(cfg config.TermsConfig) Options {
	return Options{
		CaseSensitive:   cfg.CaseSensitive,
		EnableRegex:     cfg.EnableRegex,
		EnableFuzzy:     cfg.EnableFuzzy,
		FuzzyMaxDist:    cfg.FuzzyMaxDist,
		ApplyToPartials: cfg.ApplyToPartials,
	}
}

// replaceOptions derives the store options for one call.
func (o Options) replaceOptions(partial bool) terms.ReplaceOptions {
	ro := terms.ReplaceOptions{CaseSensitive: o.CaseSensitive}
	if partial {
		return ro
	}
	ro.EnableRegex = o.EnableRegex
	ro.EnableFuzzy = o.EnableFuzzy
	if o.EnableFuzzy {
		ro.FuzzyMaxDist = o.FuzzyMaxDist
	}
	return ro
}

// PipelineOption is a functional option for configuring a [Pipeline].
type PipelineOption func(*Pipeline)

// WithOptions sets the initial replacement options. Default: the options
// derived from [config.Default].
func WithOptions(o Options) PipelineOption {
	return func(p *Pipeline) {
		p.opts.Store(&o)
	}
}

// Pipeline applies a [Replacer] to transcripts.
//
// Pipeline is safe for concurrent use; [Pipeline.SetOptions] may be called
// while other goroutines are applying terms.
type Pipeline struct {
	r    Replacer
	opts atomic.Pointer[Options]
}

// NewPipeline constructs a [Pipeline] around r.
func NewPipeline(r Replacer, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{r: r}
	def := OptionsFromConfig(config.Default().Terms)
	p.opts.Store(&def)
	for _, o := range opts {
		o(p)
	}
	return p
}

// Options returns the options currently in effect.
func (p *Pipeline) Options() Options {
	return *p.opts.Load()
}

// SetOptions replaces the options for all subsequent calls.
func (p *Pipeline) SetOptions(o Options) {
	p.opts.Store(&o)
}

// Apply rewrites text with the configured entries and returns the new text
// together with the changes made.
//
// Empty text is returned as is. When partial is true and partials are not
// enabled, text is returned unchanged; when they are enabled only exact
// entries run. The returned slice is never nil.
func (p *Pipeline) Apply(ctx context.Context, text string, partial bool) (string, []terms.Change) {
	if text == "" {
		return text, []terms.Change{}
	}
	o := p.Options()
	if partial && !o.ApplyToPartials {
		return text, []terms.Change{}
	}

	ctx, span := observe.StartSpan(ctx, "transcript.apply",
		trace.WithAttributes(
			attribute.Bool("transcript.partial", partial),
			attribute.Int("transcript.length", len(text)),
		),
	)
	defer span.End()

	out, changes := p.r.Replace(ctx, text, o.replaceOptions(partial))
	if changes == nil {
		changes = []terms.Change{}
	}
	span.SetAttributes(attribute.Int("transcript.changes", len(changes)))
	return out, changes
}
