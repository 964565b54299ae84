package verify

import "strings"

// Similarity returns the normalized edit-distance similarity of two strings
// as a percentage in [0,100]. Comparison is case-insensitive over runes.
//
// When both strings are empty the similarity is 0, not 100: the classifier
// detects the both-empty case from string presence before scoring, so this
// value is defined but never drives a status.
func Similarity(a, b string) float64 {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}

	dist := levenshtein(ra, rb)
	return (float64(maxLen-dist) / float64(maxLen)) * 100
}

// levenshtein computes the edit distance between two rune slices with
// unit-cost insertions, deletions, and substitutions. Two-row DP, so
// O(len(a)*len(b)) time and O(min-row) space.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
