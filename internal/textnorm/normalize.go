// Package textnorm cleans up the surface form of transcribed text before and
// after term substitution.
//
// [Normalize] is applied twice per utterance (once on each raw segment and
// once on the joined result), so it is idempotent:
// Normalize(Normalize(x)) == Normalize(x) for every x.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	// separatorRe matches a decimal or thousands separator with a space on
	// both sides, e.g. "3 . 5" or "1 , 000".
	separatorRe = regexp.MustCompile(`(\d) ([.,]) (\d)`)

	spaceBeforePunctRe = regexp.MustCompile(` ([,.;:!?])`)
	spaceAfterParenRe  = regexp.MustCompile(`\( `)
	spaceBeforeParenRe = regexp.MustCompile(` \)`)
	ellipsisRe         = regexp.MustCompile(`\.{3,}`)
	repeatedBangRe     = regexp.MustCompile(`!{2,}`)
	repeatedQuestionRe = regexp.MustCompile(`\?{2,}`)
)

// Normalize returns text with whitespace collapsed, spaced-out numeric
// separators repaired, stray spaces around punctuation and parentheses
// removed, dot runs folded to "..." and repeated "!" or "?" collapsed.
// Whitespace-only input yields the empty string.
func Normalize(text string) string {
	// strings.Fields splits on unicode.IsSpace, so NBSP and friends collapse too.
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return ""
	}

	// The separator pattern consumes the trailing digit, so chained numbers
	// like "3 . 5 . 7" need more than one pass.
	for {
		next := separatorRe.ReplaceAllString(cleaned, "$1$2$3")
		if next == cleaned {
			break
		}
		cleaned = next
	}

	// Removing one space can expose another (" ( ." -> " (."), but after the
	// collapse above there is never more than one space in a row.
	cleaned = spaceAfterParenRe.ReplaceAllString(cleaned, "(")
	cleaned = spaceBeforeParenRe.ReplaceAllString(cleaned, ")")
	cleaned = spaceBeforePunctRe.ReplaceAllString(cleaned, "$1")

	cleaned = ellipsisRe.ReplaceAllString(cleaned, "...")
	cleaned = repeatedBangRe.ReplaceAllString(cleaned, "!")
	cleaned = repeatedQuestionRe.ReplaceAllString(cleaned, "?")

	return strings.TrimSpace(cleaned)
}
