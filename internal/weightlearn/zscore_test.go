package weightlearn

import "testing"

func TestRankScores_NoTies(t *testing.T) {
	ranks := rankScores([]float64{30, 10, 20})
	want := []float64{3, 1, 2}
	for i := range want {
		if ranks[i] != want[i] {
			t.Errorf("rank[%d]: want %v, got %v", i, want[i], ranks[i])
		}
	}
}

func TestRankScores_Ties(t *testing.T) {
	ranks := rankScores([]float64{10, 10, 20})
	if ranks[0] != 1.5 || ranks[1] != 1.5 {
		t.Errorf("tied ranks: want 1.5 each, got %v %v", ranks[0], ranks[1])
	}
	if ranks[2] != 3 {
		t.Errorf("untied rank: want 3, got %v", ranks[2])
	}
}

func TestVanDerWaerdenScores_Monotone(t *testing.T) {
	scores := vanDerWaerdenScores([]float64{5, 1, 3, 9})
	// Ascending input value should map to ascending score.
	if !(scores[1] < scores[2] && scores[2] < scores[0] && scores[0] < scores[3]) {
		t.Errorf("expected scores monotone with input order, got %v", scores)
	}
}
