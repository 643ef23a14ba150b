package text

// Levenshtein returns the edit distance between a and b measured in code
// points, with unit cost for insert, delete, and substitute.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// NearDuplicate reports whether two utterances are close enough to be
// treated as the same user turn. Empty strings never match: a first
// utterance has nothing to duplicate.
func NearDuplicate(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || Levenshtein(a, b) < 3
}
