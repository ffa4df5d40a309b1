package transcript

import "github.com/MrWong99/termsub/internal/terms"

// DefaultSummaryLimit is the number of items [Summarize] keeps when called
// with a non-positive limit.
const DefaultSummaryLimit = 5

// summaryFieldRunes caps the length of src and dst in a summary item.
const summaryFieldRunes = 24

// Summary is a compact report of the changes made to a transcript.
type Summary struct {
	Count int           `json:"count"`
	Items []SummaryItem `json:"items"`
}

// SummaryItem describes one change with shortened src and dst.
type SummaryItem struct {
	ID   string     `json:"id"`
	Src  string     `json:"src"`
	Dst  string     `json:"dst"`
	Kind terms.Kind `json:"kind"`
}

// Summarize reports the total number of changes and the first limit of them.
func Summarize(changes []terms.Change, limit int) Summary {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	s := Summary{Count: len(changes), Items: []SummaryItem{}}
	for _, c := range changes[:min(limit, len(changes))] {
		s.Items = append(s.Items, SummaryItem{
			ID:   c.ID,
			Src:  truncateRunes(c.Src, summaryFieldRunes),
			Dst:  truncateRunes(c.Dst, summaryFieldRunes),
			Kind: c.Kind,
		})
	}
	return s
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
