package terms

// BoundedDistance returns the Levenshtein distance between a and b (unit
// costs, compared rune by rune) when it is at most maxDist. Any result
// greater than maxDist only means "no usable match"; it is not necessarily
// the true distance.
//
// Work is cut short as soon as a whole DP row exceeds maxDist, so the cost is
// bounded by the threshold rather than by len(a)*len(b) in the common
// no-match case.
func BoundedDistance(a, b string, maxDist int) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > maxDist {
		return maxDist + 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1
		rowMin := curr[0]
		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}
			v := min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
			curr[j+1] = v
			rowMin = min(rowMin, v)
		}
		if rowMin > maxDist {
			return maxDist + 1
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
