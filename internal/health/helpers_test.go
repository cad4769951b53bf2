package health

import "testing"

func TestJudge_InnerBandIsGreen(t *testing.T) {
	b := Bands{Q10: 0, Q20: 0.2, Q80: 0.8, Q90: 1}
	if got := judge(0.5, b, false); got != StatusGreen {
		t.Errorf("judge(0.5) = %v, want GREEN", got)
	}
	if got := judge(0.1, b, false); got != StatusAmber {
		t.Errorf("judge(0.1) = %v, want AMBER", got)
	}
	if got := judge(-1, b, false); got != StatusRed {
		t.Errorf("judge(-1) = %v, want RED", got)
	}
}

func TestJudge_Inverted(t *testing.T) {
	// Orphan ratio: smaller is better, so the band test flips.
	b := Bands{Q10: 0, Q20: 0.1, Q80: 0.3, Q90: 0.5}
	if got := judge(0.05, b, true); got != StatusGreen {
		t.Errorf("judge(0.05, inverted) = %v, want GREEN", got)
	}
	if got := judge(0.2, b, true); got != StatusAmber {
		t.Errorf("judge(0.2, inverted) = %v, want AMBER", got)
	}
	if got := judge(0.9, b, true); got != StatusRed {
		t.Errorf("judge(0.9, inverted) = %v, want RED", got)
	}
}

func TestWorstOf(t *testing.T) {
	if got := worstOf(StatusGreen, StatusGreen); got != StatusGreen {
		t.Errorf("worstOf(green, green) = %v, want GREEN", got)
	}
	if got := worstOf(StatusGreen, StatusAmber); got != StatusAmber {
		t.Errorf("worstOf(green, amber) = %v, want AMBER", got)
	}
	if got := worstOf(StatusAmber, StatusRed, StatusGreen); got != StatusRed {
		t.Errorf("worstOf(amber, red, green) = %v, want RED", got)
	}
}

func TestGiniCoefficient_PerfectEquality(t *testing.T) {
	sizes := []float64{5, 5, 5, 5}
	if got := giniCoefficient(sizes); got > 1e-9 {
		t.Errorf("gini of equal sizes = %v, want ~0", got)
	}
}

func TestGiniCoefficient_Concentration(t *testing.T) {
	// one sub-entity owns almost everything
	sizes := []float64{1, 1, 1, 97}
	if got := giniCoefficient(sizes); got < 0.5 {
		t.Errorf("gini of concentrated sizes = %v, want > 0.5", got)
	}
}

func TestJaccard(t *testing.T) {
	a := toSet([]string{"n1", "n2", "n3"})
	b := toSet([]string{"n2", "n3", "n4"})
	if got := jaccard(a, b); got != 0.5 {
		t.Errorf("jaccard = %v, want 0.5", got)
	}
	if got := jaccard(toSet(nil), toSet(nil)); got != 0 {
		t.Errorf("jaccard of two empty sets = %v, want 0", got)
	}
}

func TestPercentileOf(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}
	if got := percentileOf(sorted, 0.5); got != 3 {
		t.Errorf("median = %v, want 3", got)
	}
	if got := percentileOf(sorted, 0); got != 1 {
		t.Errorf("p0 = %v, want 1", got)
	}
	if got := percentileOf(sorted, 1); got != 5 {
		t.Errorf("p100 = %v, want 5", got)
	}
	if got := percentileOf(nil, 0.5); got != 0 {
		t.Errorf("percentileOf(nil) = %v, want 0", got)
	}
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 || got > 1.001 {
		t.Errorf("cosine of identical vectors = %v, want ~1", got)
	}
}

func TestCosineSimilarity_OrthogonalIsZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := cosineSimilarity(a, b); got != 0 {
		t.Errorf("cosine of orthogonal vectors = %v, want 0", got)
	}
}

func TestMeanPairwiseCosine_FewerThanTwoIsZero(t *testing.T) {
	if got := meanPairwiseCosine(nil); got != 0 {
		t.Errorf("meanPairwiseCosine(nil) = %v, want 0", got)
	}
	if got := meanPairwiseCosine([][]float32{{1, 2}}); got != 0 {
		t.Errorf("meanPairwiseCosine(single) = %v, want 0", got)
	}
}

func TestComputeWMHealth_EmptyFramesIsZeroValue(t *testing.T) {
	got := computeWMHealth(nil)
	if got.WindowFrames != 0 || got.MeanSelected != 0 {
		t.Errorf("computeWMHealth(nil) = %+v, want zero value", got)
	}
}

func TestComputeWMHealth_AveragesMatchesAndVitality(t *testing.T) {
	frames := []frameObservation{
		{matches: 2, meanVitality: 0.4, crossings: 1},
		{matches: 4, meanVitality: 0.6, crossings: 0},
	}
	got := computeWMHealth(frames)
	if got.WindowFrames != 2 {
		t.Errorf("WindowFrames = %d, want 2", got.WindowFrames)
	}
	if got.MeanSelected != 3 {
		t.Errorf("MeanSelected = %v, want 3", got.MeanSelected)
	}
	if diff := got.MeanVitality - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MeanVitality = %v, want 0.5", got.MeanVitality)
	}
	if got.FlipRate != 0.5 {
		t.Errorf("FlipRate = %v, want 0.5", got.FlipRate)
	}
}

func TestComputeReconstruction_EmptyFramesIsZeroValue(t *testing.T) {
	got := computeReconstruction(nil)
	if got.WindowFrames != 0 || got.MeanLatencyMs != 0 {
		t.Errorf("computeReconstruction(nil) = %+v, want zero value", got)
	}
}

func TestComputeReconstruction_AveragesLatencyAndSimilarity(t *testing.T) {
	frames := []frameObservation{
		{durationMs: 10, similarity: 0.8},
		{durationMs: 30, similarity: 0.6},
	}
	got := computeReconstruction(frames)
	if got.MeanLatencyMs != 20 {
		t.Errorf("MeanLatencyMs = %v, want 20", got.MeanLatencyMs)
	}
	if diff := got.MeanSimilarity - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MeanSimilarity = %v, want 0.7", got.MeanSimilarity)
	}
}
