package ui

import (
	"sort"
	"strings"

	"oasplay/internal/model"
)

type scoredIdx struct {
	idx   int
	score int
}

// fuzzyMatchScore returns (score, ok). Lower score is better.
// Matching is a simple case-insensitive subsequence match.
func fuzzyMatchScore(needle, haystack string) (int, bool) {
	needle = strings.ToLower(needle)
	haystack = strings.ToLower(haystack)
	if needle == "" {
		return 0, true
	}

	score := 0
	j := 0
	for i := 0; i < len(haystack) && j < len(needle); i++ {
		if haystack[i] == needle[j] {
			score += i
			j++
		}
	}
	if j != len(needle) {
		return 0, false
	}
	return score, true
}

// filterOperations returns indexes into ops matching needle, best first.
// An empty needle keeps document order.
func filterOperations(ops []model.OperationRef, needle string) []int {
	needle = strings.TrimSpace(needle)
	out := make([]int, 0, len(ops))
	if needle == "" {
		for i := range ops {
			out = append(out, i)
		}
		return out
	}

	var scored []scoredIdx
	for i, ref := range ops {
		cand := ref.Key.Method.Upper() + " " + ref.Key.Path + " " + firstNonEmpty(ref.Operation.Summary, ref.Operation.OperationID)
		if s, ok := fuzzyMatchScore(needle, cand); ok {
			scored = append(scored, scoredIdx{idx: i, score: s})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})
	for _, s := range scored {
		out = append(out, s.idx)
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
