package terms

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/termsub/internal/observe"
)

// DefaultMaxEntries is the entry ceiling used when [WithMaxEntries] is not
// given.
const DefaultMaxEntries = 10000

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithMaxEntries sets the maximum number of entries the store holds.
// Values below 1 are ignored. Default: 10000.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithFuzzyCeiling sets the entry count above which fuzzy matching is
// disabled. Default: 512.
func WithFuzzyCeiling(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.fuzzyCeiling = n
		}
	}
}

// WithHistorySize sets the capacity of the audit ring buffer. Default: 200.
func WithHistorySize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithMetrics attaches OpenTelemetry instruments. A nil value disables
// metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for load warnings and mutation logs.
// Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source used for history events and
// LoadedAt. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a persistent, indexed collection of term entries backed by a
// single JSON document.
type Store struct {
	path         string
	maxEntries   int
	fuzzyCeiling int
	historySize  int
	metrics      *observe.Metrics
	log          *slog.Logger
	now          func() time.Time

	mu       sync.RWMutex
	entries  []Entry
	idx      *index
	hist     *history
	loadedAt time.Time
	digest   [32]byte
}

// Open loads the document at path, creating it (and its parent directory)
// when it does not exist yet.
//
// A document that cannot be parsed yields an empty store and a warning; the
// file is left untouched until the next write. Entries that fail validation,
// repeat an earlier id, or exceed the entry ceiling are skipped with a
// warning.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("terms: open: path must not be empty")
	}
	s := &Store{
		path:         path,
		maxEntries:   DefaultMaxEntries,
		fuzzyCeiling: DefaultFuzzyCeiling,
		historySize:  DefaultHistorySize,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.hist = newHistory(s.historySize)
	s.idx = buildIndex(nil, s.fuzzyCeiling)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("terms: open: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the backing document.
func (s *Store) Path() string { return s.path }

// Digest returns the SHA-256 of the document bytes last read or written by
// the store.
func (s *Store) Digest() [32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digest
}

// List returns a copy of all entries in document order.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// Get returns the entry with the given id.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOfLocked(id)
	if i < 0 {
		return Entry{}, notFound(id)
	}
	return s.entries[i], nil
}

// Stats returns a summary of the store, including its audit history with
// the newest event first.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Count:        len(s.entries),
		LoadedAt:     s.loadedAt,
		FuzzyEnabled: s.idx.fuzzyEnabled,
		History:      s.hist.snapshot(),
	}
	for _, e := range s.entries {
		if e.Active {
			st.ActiveCount++
		}
		if e.Kind == KindRegex {
			st.RegexCount++
		}
	}
	return st
}

// Add validates p and appends it as a new entry.
func (s *Store) Add(p Payload) (Entry, error) {
	e, err := Validate(p, "")
	if err != nil {
		s.metrics.RecordMutation(context.Background(), "add", statusOf(err))
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOfLocked(e.ID) >= 0 {
		err := &ValidationError{Code: CodeInvalidTerm, Reason: fmt.Sprintf("id %q", e.ID), Err: ErrDuplicateID}
		s.metrics.RecordMutation(context.Background(), "add", statusOf(err))
		return Entry{}, err
	}
	if len(s.entries)+1 > s.maxEntries {
		err := &LimitError{Max: s.maxEntries}
		s.metrics.RecordMutation(context.Background(), "add", statusOf(err))
		return Entry{}, err
	}

	next := append(slices.Clone(s.entries), e)
	if err := s.commitLocked(next, "add", map[string]any{"id": e.ID, "src": e.Src}); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Update merges p over the stored entry id and revalidates the result. The
// entry keeps its id and position.
func (s *Store) Update(id string, p Payload) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		err := notFound(id)
		s.metrics.RecordMutation(context.Background(), "update", statusOf(err))
		return Entry{}, err
	}

	merged := s.entries[i].Payload()
	maps.Copy(merged, p)
	e, err := Validate(merged, id)
	if err != nil {
		s.metrics.RecordMutation(context.Background(), "update", statusOf(err))
		return Entry{}, err
	}

	next := slices.Clone(s.entries)
	next[i] = e
	if err := s.commitLocked(next, "update", map[string]any{"id": e.ID, "src": e.Src}); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Delete removes the entry with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOfLocked(id)
	if i < 0 {
		err := notFound(id)
		s.metrics.RecordMutation(context.Background(), "delete", statusOf(err))
		return err
	}
	removed := s.entries[i]
	next := slices.Delete(slices.Clone(s.entries), i, i+1)
	return s.commitLocked(next, "delete", map[string]any{"id": removed.ID, "src": removed.Src})
}

// Import merges payloads into the store. Rows are matched to stored entries
// by their accent-folded, lower-cased source:
//
//   - a match is replaced when the incoming priority is at least the stored
//     one; without an explicit id the stored id is kept, and an explicit id
//     already used by a different entry is swapped for a fresh one.
//   - an unmatched row is appended, unless the store is full, in which case
//     it is skipped.
//   - rows that fail validation are skipped with a warning.
//
// The whole batch is written once.
func (s *Store) Import(payloads []Payload) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.entries)
	bySrc := make(map[string]int, len(next))
	byID := make(map[string]int, len(next))
	for i, e := range next {
		bySrc[foldKey(e.Src)] = i
		byID[e.ID] = i
	}

	var res ImportResult
	for n, raw := range payloads {
		e, err := Validate(raw, "")
		if err != nil {
			s.log.Warn("terms: import row skipped", "row", n, "err", err)
			res.Skipped++
			continue
		}
		explicitID := strings.TrimSpace(stringField(raw["id"])) != ""
		key := foldKey(e.Src)

		if i, ok := bySrc[key]; ok {
			cur := next[i]
			if e.Priority < cur.Priority {
				continue
			}
			if !explicitID {
				e.ID = cur.ID
			} else if j, taken := byID[e.ID]; taken && j != i {
				e.ID = uuid.NewString()
			}
			delete(byID, cur.ID)
			byID[e.ID] = i
			next[i] = e
			res.Updated++
			continue
		}

		if len(next) >= s.maxEntries {
			s.log.Warn("terms: import row skipped, store is full", "row", n, "max_entries", s.maxEntries)
			res.Skipped++
			continue
		}
		if _, taken := byID[e.ID]; taken {
			e.ID = uuid.NewString()
		}
		next = append(next, e)
		bySrc[key] = len(next) - 1
		byID[e.ID] = len(next) - 1
		res.Added++
	}

	info := map[string]any{"added": res.Added, "updated": res.Updated, "skipped": res.Skipped}
	if err := s.commitLocked(next, "import", info); err != nil {
		return ImportResult{}, err
	}
	s.log.Info("terms: import finished", "added", res.Added, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}

// Reload discards the in-memory state and reads the document again.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	if err := s.loadLocked(); err != nil {
		s.metrics.RecordReload(ctx, "error")
		return err
	}
	s.hist.add(HistoryEvent{At: s.now(), Action: "reload", Info: map[string]any{"entries": len(s.entries)}})
	s.metrics.RecordReload(ctx, "ok")
	return nil
}

// Save writes the current entries to the document.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(s.entries, "save", map[string]any{"entries": len(s.entries)})
}

// Replace applies the active entries to text and returns the rewritten text
// together with one [Change] per substitution. It never fails: entries whose
// pattern cannot be compiled are skipped.
func (s *Store) Replace(ctx context.Context, text string, opts ReplaceOptions) (string, []Change) {
	s.mu.RLock()
	idx := s.idx
	s.mu.RUnlock()

	start := time.Now()
	out, changes := idx.replace(text, opts)

	if s.metrics != nil {
		byKind := make(map[string]int, 3)
		for _, c := range changes {
			byKind[string(c.Kind)]++
		}
		s.metrics.RecordReplace(ctx, time.Since(start), byKind)
	}
	return out, changes
}

// loadLocked reads the document and replaces the in-memory state.
// s.mu must be held for writing.
func (s *Store) loadLocked() error {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data, err = encodeDocument(nil)
		if err != nil {
			return fmt.Errorf("terms: load: %w", err)
		}
		if err := writeFileAtomic(s.path, data); err != nil {
			return fmt.Errorf("terms: load: %w", err)
		}
		s.log.Info("terms: created empty document", "path", s.path)
	case err != nil:
		return fmt.Errorf("terms: load: %w", err)
	}

	raws, err := decodeDocument(data)
	if err != nil {
		s.log.Warn("terms: document is malformed, starting empty", "path", s.path, "err", err)
		raws = nil
	}

	entries := make([]Entry, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for n, raw := range raws {
		e, err := Validate(raw, strings.TrimSpace(stringField(raw["id"])))
		if err != nil {
			s.log.Warn("terms: skipping invalid entry", "path", s.path, "row", n, "err", err)
			continue
		}
		if _, dup := seen[e.ID]; dup {
			s.log.Warn("terms: skipping entry with repeated id", "path", s.path, "row", n, "id", e.ID)
			continue
		}
		if len(entries) >= s.maxEntries {
			s.log.Warn("terms: entry ceiling reached, dropping remaining entries",
				"path", s.path, "max_entries", s.maxEntries, "dropped", len(raws)-n)
			break
		}
		seen[e.ID] = struct{}{}
		entries = append(entries, e)
	}

	s.entries = entries
	s.idx = buildIndex(entries, s.fuzzyCeiling)
	s.digest = digest(data)
	s.loadedAt = s.now().UTC()
	s.metrics.RecordEntries(context.Background(), len(entries))

	s.log.Info("terms: loaded",
		"path", s.path,
		"entries", len(entries),
		"regex", countKind(entries, KindRegex),
		"fuzzy_enabled", s.idx.fuzzyEnabled,
	)
	return nil
}

// commitLocked persists next and, only once the write succeeded, swaps it in
// together with a fresh index and records the event. s.mu must be held for
// writing.
func (s *Store) commitLocked(next []Entry, action string, info map[string]any) error {
	ctx := context.Background()

	if len(next) > s.maxEntries {
		err := &LimitError{Max: s.maxEntries}
		s.metrics.RecordMutation(ctx, action, statusOf(err))
		return err
	}

	data, err := encodeDocument(next)
	if err == nil {
		err = writeFileAtomic(s.path, data)
	}
	if err != nil {
		s.metrics.RecordMutation(ctx, action, "error")
		return fmt.Errorf("terms: %s: %w", action, err)
	}

	s.entries = next
	s.idx = buildIndex(next, s.fuzzyCeiling)
	s.digest = digest(data)
	s.hist.add(HistoryEvent{At: s.now().UTC(), Action: action, Info: info})

	s.metrics.RecordMutation(ctx, action, "ok")
	s.metrics.RecordEntries(ctx, len(next))
	s.log.Debug("terms: document written", "action", action, "path", s.path, "entries", len(next))
	return nil
}

func (s *Store) indexOfLocked(id string) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id })
}

func countKind(entries []Entry, k Kind) int {
	n := 0
	for _, e := range entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// statusOf maps a mutation error to a low-cardinality metric label.
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	if c := CodeOf(err); c != "" {
		return string(c)
	}
	return "error"
}
