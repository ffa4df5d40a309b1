package transcript

import (
	"context"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/termsub/internal/observe"
	"github.com/MrWong99/termsub/internal/terms"
	"github.com/MrWong99/termsub/internal/textnorm"
)

// Segment is one timed piece of a transcript. Start and End are in seconds.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start_sec"`
	End   float64 `json:"end_sec"`
	Text  string  `json:"text"`
}

// Result is the output of [Pipeline.Process].
type Result struct {
	// Segments holds the non-empty input segments with their rewritten text.
	Segments []Segment `json:"segments"`

	// Text is the normalized concatenation of all segment texts.
	Text string `json:"text"`

	// Changes lists the substitutions of every segment, in segment order.
	Changes []terms.Change `json:"changes"`
}

// Process normalizes each segment, drops the ones left empty, applies terms
// to the rest and joins them into the final text. Segment times are rounded
// to milliseconds.
func (p *Pipeline) Process(ctx context.Context, segments []Segment, partial bool) Result {
	ctx, span := observe.StartSpan(ctx, "transcript.process",
		trace.WithAttributes(
			attribute.Bool("transcript.partial", partial),
			attribute.Int("transcript.segments", len(segments)),
		),
	)
	defer span.End()

	res := Result{
		Segments: make([]Segment, 0, len(segments)),
		Changes:  []terms.Change{},
	}
	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		raw := textnorm.Normalize(seg.Text)
		if raw == "" {
			continue
		}
		text, changes := p.Apply(ctx, raw, partial)
		res.Changes = append(res.Changes, changes...)
		texts = append(texts, text)
		res.Segments = append(res.Segments, Segment{
			ID:    seg.ID,
			Start: roundMillis(seg.Start),
			End:   roundMillis(seg.End),
			Text:  text,
		})
	}

	if combined := strings.TrimSpace(strings.Join(texts, " ")); combined != "" {
		res.Text = textnorm.Normalize(combined)
	}
	observe.Logger(ctx).Debug("transcript processed",
		"segments", len(res.Segments),
		"changes", len(res.Changes),
		"partial", partial,
	)
	return res
}

func roundMillis(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}
