package terms

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// replace runs the exact/regex main pass and then the optional fuzzy pass
// over text.
//
//  1. The candidate prefilter narrows exact entries to those whose first
//     character and length fit the input.
//  2. Entries are applied in canonical order, each against the text already
//     rewritten by the entries before it.
//  3. When enabled, every remaining word token is compared against the
//     active exact entries and replaced by the closest one within
//     FuzzyMaxDist.
func (idx *index) replace(text string, opts ReplaceOptions) (string, []Change) {
	changes := make([]Change, 0)
	if text == "" {
		return text, changes
	}

	allowed := idx.allowedExact(text)
	working := text

	for _, e := range idx.ordered {
		if !e.Active {
			continue
		}

		var spans [][]int
		switch e.Kind {
		case KindExact:
			if _, ok := allowed[e.ID]; !ok {
				continue
			}
			re := idx.patterns.get(e, opts.CaseSensitive)
			if re == nil {
				continue
			}
			spans = exactSpans(re, working)
		case KindRegex:
			if !opts.EnableRegex {
				continue
			}
			re := idx.patterns.get(e, opts.CaseSensitive)
			if re == nil {
				continue
			}
			spans = regexSpans(re, working)
		}
		if len(spans) == 0 {
			continue
		}
		working, changes = substitute(working, spans, func(int) Entry { return e }, e.Kind, changes)
	}

	if opts.EnableFuzzy && opts.FuzzyMaxDist > 0 && idx.fuzzyEnabled && len(idx.fuzzy) > 0 {
		working, changes = idx.replaceFuzzy(working, opts, changes)
	}
	return working, changes
}

// exactSpans finds the non-overlapping literal matches of re in text that sit
// on word boundaries at both ends. A candidate that fails the boundary check
// does not consume text; scanning resumes one rune after its start.
func exactSpans(re *regexp.Regexp, text string) [][]int {
	var spans [][]int
	for pos := 0; pos < len(text); {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && wordBoundary(text, start) && wordBoundary(text, end) {
			spans = append(spans, []int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return spans
}

// regexSpans returns the non-empty matches of re in text.
func regexSpans(re *regexp.Regexp, text string) [][]int {
	all := re.FindAllStringIndex(text, -1)
	spans := all[:0]
	for _, loc := range all {
		if loc[1] > loc[0] {
			spans = append(spans, loc)
		}
	}
	return spans
}

// wordBoundary reports whether byte offset i of text separates a word rune
// from a non-word rune (or the text edge).
func wordBoundary(text string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:i])
		before = isWordRune(r)
	}
	if i < len(text) {
		r, _ := utf8.DecodeRuneInString(text[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

// substitute replaces byte span i of text with the Dst of entryAt(i) and
// appends one change per span, with rune offsets relative to text.
func substitute(text string, spans [][]int, entryAt func(int) Entry, kind Kind, changes []Change) (string, []Change) {
	var b strings.Builder
	b.Grow(len(text))

	last, runePos := 0, 0
	for i, sp := range spans {
		e := entryAt(i)
		runePos += utf8.RuneCountInString(text[last:sp[0]])
		start := runePos
		runePos += utf8.RuneCountInString(text[sp[0]:sp[1]])

		b.WriteString(text[last:sp[0]])
		b.WriteString(e.Dst)
		changes = append(changes, Change{
			ID:    e.ID,
			Src:   e.Src,
			Dst:   e.Dst,
			Start: start,
			End:   runePos,
			Kind:  kind,
		})
		last = sp[1]
	}
	b.WriteString(text[last:])
	return b.String(), changes
}

// replaceFuzzy compares each word token of text against the fuzzy
// candidates. The winner is the first candidate, in canonical order, with
// the smallest distance within opts.FuzzyMaxDist; an exact hit stops the scan.
func (idx *index) replaceFuzzy(text string, opts ReplaceOptions, changes []Change) (string, []Change) {
	maxDist := opts.FuzzyMaxDist

	var spans [][]int
	var winners []Entry
	for _, tok := range wordTokens(text) {
		token := text[tok[0]:tok[1]]
		if !opts.CaseSensitive {
			token = strings.ToLower(token)
		}
		key := Fold(token)
		keyRunes := utf8.RuneCountInString(key)

		best, bestDist := -1, maxDist+1
		for i, c := range idx.fuzzy {
			if abs(c.runes-keyRunes) > maxDist {
				continue
			}
			d := BoundedDistance(key, c.form, maxDist)
			if d <= maxDist && d < bestDist {
				best, bestDist = i, d
				if d == 0 {
					break
				}
			}
		}
		if best < 0 {
			continue
		}
		spans = append(spans, tok)
		winners = append(winners, idx.fuzzy[best].entry)
	}
	if len(spans) == 0 {
		return text, changes
	}
	return substitute(text, spans, func(i int) Entry { return winners[i] }, KindFuzzy, changes)
}

// wordTokens returns the byte spans of the maximal runs of word runes in text.
func wordTokens(text string) [][]int {
	var tokens [][]int
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, []int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, []int{start, len(text)})
	}
	return tokens
}
