package terms

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// turkishFold covers letters that have no canonical decomposition (ı) or
// whose decomposition would keep a non-ASCII base.
var turkishFold = strings.NewReplacer(
	"ı", "i", "İ", "i",
	"ş", "s", "Ş", "s",
	"ğ", "g", "Ğ", "g",
	"ü", "u", "Ü", "u",
	"ö", "o", "Ö", "o",
	"ç", "c", "Ç", "c",
)

// Fold maps accented characters to their closest unaccented form. It is
// used for comparison only, never for output. Case is left alone except for
// the explicitly mapped letters; callers lower-case first when they want a
// case-insensitive key.
func Fold(s string) string {
	if isASCII(s) {
		return s
	}
	s = turkishFold.Replace(s)
	// A transform.Transformer carries state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// foldKey is the accent-folded lower-case form used by indexes and import
// de-duplication.
func foldKey(s string) string {
	return Fold(strings.ToLower(s))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
