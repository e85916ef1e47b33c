package service

// Match is the outcome of Nearest.
type Match struct {
	Value    string
	Index    int
	Distance int
}

// EditDistance returns the Levenshtein distance between a and b, counting
// insertions, deletions and substitutions as one edit each. It compares
// runes, not bytes.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	// matrix[i][j] is the distance between rb[:i] and ra[:j].
	matrix := make([][]int, len(rb)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(ra)+1)
		matrix[i][0] = i
	}
	for j := 0; j <= len(ra); j++ {
		matrix[0][j] = j
	}

	for i := 1; i <= len(rb); i++ {
		for j := 1; j <= len(ra); j++ {
			if rb[i-1] == ra[j-1] {
				matrix[i][j] = matrix[i-1][j-1]
				continue
			}
			matrix[i][j] = 1 + min(
				matrix[i-1][j-1],
				matrix[i][j-1],
				matrix[i-1][j],
			)
		}
	}

	return matrix[len(rb)][len(ra)]
}

// Nearest returns the candidate closest to target. On a tie the earliest
// candidate wins. An empty candidate list is an error, never an empty match.
func Nearest(target string, candidates []string) (Match, error) {
	if len(candidates) == 0 {
		return Match{}, ErrNoCandidates
	}

	best := Match{Index: -1}
	for i, c := range candidates {
		d := EditDistance(target, c)
		if best.Index < 0 || d < best.Distance {
			best = Match{Value: c, Index: i, Distance: d}
		}
	}
	return best, nil
}
