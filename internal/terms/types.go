// Package terms implements the domain-term substitution engine: a persistent,
// hot-reloadable dictionary of source→destination rewrites applied to
// transcribed text before it is spoken or displayed.
//
// Three kinds of rewrite are supported:
//
//   - Exact entries match their source literally, delimited by Unicode word
//     boundaries.
//   - Regex entries match a user-supplied pattern.
//   - Fuzzy matching approximates single tokens against exact entries using a
//     bounded, accent-insensitive edit distance.
//
// Entries are applied in canonical order (priority descending, exact before
// regex, source ascending), so a higher-priority rule's output is what
// lower-priority rules see.
//
// The [Store] owns the entry list, persists it atomically to a single JSON
// document and rebuilds its lookup indexes after every mutation. All methods
// are safe for concurrent use.
package terms

import "time"

// Kind classifies a term entry or a change record.
type Kind string

const (
	// KindExact matches the source as a literal, word-boundary-delimited phrase.
	KindExact Kind = "exact"

	// KindRegex matches the source as a regular expression.
	KindRegex Kind = "regex"

	// KindFuzzy only appears on [Change] records produced by the fuzzy pass.
	// It is never a valid entry kind.
	KindFuzzy Kind = "fuzzy"
)

// IsValid reports whether k is a kind an entry may have.
func (k Kind) IsValid() bool {
	return k == KindExact || k == KindRegex
}

const (
	// DefaultPriority is assigned to entries that do not specify a priority.
	DefaultPriority = 100

	// MaxFieldLength is the maximum length, in characters, of src and dst.
	MaxFieldLength = 512
)

// Entry is one rewrite rule.
type Entry struct {
	// ID uniquely identifies the entry within a store.
	ID string `json:"id" yaml:"id"`

	// Src is the phrase or pattern to find.
	Src string `json:"src" yaml:"src"`

	// Dst is the literal replacement text.
	Dst string `json:"dst" yaml:"dst"`

	// Kind is [KindExact] or [KindRegex].
	Kind Kind `json:"type" yaml:"type"`

	// Priority orders entries; higher wins.
	Priority int `json:"priority" yaml:"priority"`

	// Notes is a free-text annotation that is never matched against.
	Notes string `json:"notes" yaml:"notes"`

	// Active entries take part in matching. Inactive ones are retained only.
	Active bool `json:"active" yaml:"active"`
}

// Payload is an untyped entry as received from an import file or an API
// request. [Validate] turns it into an [Entry].
type Payload map[string]any

// Payload returns e as a [Payload] carrying every field.
func (e Entry) Payload() Payload {
	return Payload{
		"id":       e.ID,
		"src":      e.Src,
		"dst":      e.Dst,
		"type":     string(e.Kind),
		"priority": e.Priority,
		"notes":    e.Notes,
		"active":   e.Active,
	}
}

// Change records a single substitution made by [Store.Replace].
type Change struct {
	ID  string `json:"id"`
	Src string `json:"src"`
	Dst string `json:"dst"`

	// Start and End are rune offsets of the replaced span in the text the
	// producing entry (or the fuzzy pass) operated on, i.e. after every
	// earlier entry's rewrites were applied.
	Start int `json:"start"`
	End   int `json:"end"`

	Kind Kind `json:"kind"`
}

// ReplaceOptions selects which passes [Store.Replace] runs.
type ReplaceOptions struct {
	// CaseSensitive disables case-insensitive matching for all passes.
	CaseSensitive bool

	// EnableRegex runs regex entries. When false they are skipped entirely.
	EnableRegex bool

	// EnableFuzzy runs the single-token fuzzy pass, provided FuzzyMaxDist > 0
	// and the store is below its fuzzy ceiling.
	EnableFuzzy bool

	// FuzzyMaxDist is the largest edit distance accepted as a fuzzy match.
	FuzzyMaxDist int
}

// ImportResult summarises a [Store.Import] call.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`

	// Skipped counts rows that failed validation or could not be appended
	// because the store was full.
	Skipped int `json:"skipped"`
}

// HistoryEvent is one entry of the store's audit ring buffer.
type HistoryEvent struct {
	At     time.Time      `json:"at"`
	Action string         `json:"action"`
	Info   map[string]any `json:"info,omitempty"`
}

// Stats is a point-in-time summary of a [Store].
type Stats struct {
	Count        int            `json:"count"`
	ActiveCount  int            `json:"active_count"`
	RegexCount   int            `json:"regex_count"`
	LoadedAt     time.Time      `json:"loaded_at"`
	FuzzyEnabled bool           `json:"fuzzy_enabled"`
	History      []HistoryEvent `json:"history"`
}
