package weightlearn

import "gonum.org/v1/gonum/stat/distuv"

// standardNormal is the N(0,1) distribution used for the van der Waerden
// rank transform.
var standardNormal = distuv.Normal{Mu: 0, Sigma: 1}

// vanDerWaerdenScores converts raw values into rank-based normal scores:
// each value's rank (1..N, average-tie) is mapped through the inverse
// standard normal CDF at rank/(N+1). Cohorts smaller than
// [minCohortSize] should not call this — callers fall back to the raw
// values themselves as z-scores instead.
func vanDerWaerdenScores(values []float64) []float64 {
	n := len(values)
	ranks := rankScores(values)
	scores := make([]float64, n)
	for i, rank := range ranks {
		p := rank / float64(n+1)
		scores[i] = standardNormal.Quantile(p)
	}
	return scores
}
