package weightlearn

import "sort"

// minCohortSize is the minimum number of items a (label, scope) cohort
// must contain before rank-based z-scores are computed; smaller cohorts
// fall back to raw EMA values as their z-score.
const minCohortSize = 3

// cohortKey groups candidate items into their statistical reference frame.
type cohortKey struct {
	Label string
	Scope string
}

// groupByCohort partitions items by (Label, Scope), preserving each
// cohort's original item order.
func groupByCohort(items []Item) map[cohortKey][]int {
	cohorts := make(map[cohortKey][]int)
	for i, it := range items {
		k := cohortKey{Label: it.Label, Scope: it.Scope}
		cohorts[k] = append(cohorts[k], i)
	}
	return cohorts
}

// rankScores returns, for each value in vs, its average-tie rank in
// [1, len(vs)] (ascending order, ties share the mean of their rank range).
func rankScores(vs []float64) []float64 {
	n := len(vs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return vs[order[a]] < vs[order[b]] })

	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && vs[order[j+1]] == vs[order[i]] {
			j++
		}
		// Ranks i..j (0-indexed) share the mean of positions i+1..j+1.
		avgRank := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[order[k]] = avgRank
		}
		i = j + 1
	}
	return ranks
}
