package terms

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// DefaultFuzzyCeiling is the entry count above which fuzzy matching is
// switched off to bound per-call latency.
const DefaultFuzzyCeiling = 512

// index holds the lookup structures derived from the entry list. It is
// immutable after buildIndex returns, apart from the pattern cache which
// guards itself; the store swaps in a fresh index on every mutation.
type index struct {
	// ordered is every entry in canonical order.
	ordered []Entry

	// exact buckets exact entry ids by folded lower-case first rune and then
	// by source length in runes. It is a prefilter only.
	exact map[rune]map[int][]string

	// folded maps entry id to the folded lower-case source.
	folded map[string]string

	// fuzzy lists active exact entries in canonical order.
	fuzzy        []fuzzyCandidate
	fuzzyEnabled bool

	patterns patternCache
}

type fuzzyCandidate struct {
	entry Entry
	form  string
	runes int
}

// compareEntries is the canonical order: priority descending, exact before
// regex, then source ascending.
func compareEntries(a, b Entry) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if a.Kind != b.Kind {
		if a.Kind == KindExact {
			return -1
		}
		if b.Kind == KindExact {
			return 1
		}
	}
	return strings.Compare(a.Src, b.Src)
}

// buildIndex derives a fresh index from entries. The input slice is not
// modified.
func buildIndex(entries []Entry, fuzzyCeiling int) *index {
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, compareEntries)

	idx := &index{
		ordered:      ordered,
		exact:        make(map[rune]map[int][]string),
		folded:       make(map[string]string, len(ordered)),
		fuzzyEnabled: len(ordered) <= fuzzyCeiling,
		patterns:     patternCache{m: make(map[patternKey]*regexp.Regexp)},
	}

	for _, e := range ordered {
		form := foldKey(e.Src)
		idx.folded[e.ID] = form
		if e.Kind != KindExact {
			continue
		}
		if e.Active {
			idx.fuzzy = append(idx.fuzzy, fuzzyCandidate{
				entry: e,
				form:  form,
				runes: utf8.RuneCountInString(form),
			})
		}

		first := bucketRune(e.Src, form)
		byLen, ok := idx.exact[first]
		if !ok {
			byLen = make(map[int][]string)
			idx.exact[first] = byLen
		}
		n := utf8.RuneCountInString(e.Src)
		byLen[n] = append(byLen[n], e.ID)
	}
	return idx
}

// bucketRune picks the prefilter key of a source. The folded form normally
// supplies it; a source made only of combining marks folds to nothing and
// falls back to its raw lower-case first rune.
func bucketRune(src, form string) rune {
	if form != "" {
		r, _ := utf8.DecodeRuneInString(form)
		return r
	}
	r, _ := utf8.DecodeRuneInString(strings.ToLower(src))
	return r
}

// allowedExact returns the ids of exact entries whose first character and
// length could possibly occur in text. Every rune of text contributes its
// whole case-folding orbit, lower-cased and accent-folded, so a
// case-insensitive literal occurrence is never filtered out.
func (idx *index) allowedExact(text string) map[string]struct{} {
	textLen := utf8.RuneCountInString(text)

	seen := make(map[rune]struct{})
	chars := make(map[rune]struct{})
	add := func(r rune) {
		lr := unicode.ToLower(r)
		chars[lr] = struct{}{}
		if lr < utf8.RuneSelf {
			return
		}
		for _, fr := range Fold(string(lr)) {
			chars[fr] = struct{}{}
		}
	}
	for _, r := range text {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		add(r)
		for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
			add(f)
		}
	}

	allowed := make(map[string]struct{})
	for r := range chars {
		for n, ids := range idx.exact[r] {
			if n > textLen {
				continue
			}
			for _, id := range ids {
				allowed[id] = struct{}{}
			}
		}
	}
	return allowed
}

type patternKey struct {
	id            string
	caseSensitive bool
}

// patternCache holds compiled patterns for one index generation. It is
// discarded together with the index on every rebuild.
type patternCache struct {
	mu sync.Mutex
	m  map[patternKey]*regexp.Regexp
}

// get returns the compiled pattern for e, or nil when it cannot be compiled.
// Failures are cached too so a bad pattern is only tried once per generation.
func (c *patternCache) get(e Entry, caseSensitive bool) *regexp.Regexp {
	key := patternKey{id: e.ID, caseSensitive: caseSensitive}

	c.mu.Lock()
	defer c.mu.Unlock()

	if re, ok := c.m[key]; ok {
		return re
	}

	expr := e.Src
	if e.Kind == KindExact {
		expr = regexp.QuoteMeta(e.Src)
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	c.m[key] = re
	return re
}
