package trace_test

import (
	"testing"

	"github.com/hearthgraph/substrate/internal/trace"
)

func TestApportion_Empty(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	seats := agg.Apportion(nil)
	if len(seats) != 0 {
		t.Errorf("want empty seats, got %v", seats)
	}
}

func TestApportion_SingleVeryUseful(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	grades := map[string]trace.Grade{"n1": trace.GradeVeryUseful}
	seats := agg.Apportion(grades)
	// seats_total = clamp(round(4.0), 0, 32) = 4; single entry gets it all.
	if seats["n1"] != 4 {
		t.Errorf("n1: want 4 seats, got %d", seats["n1"])
	}
}

func TestApportion_SignInheritsFromQuota(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	grades := map[string]trace.Grade{"n1": trace.GradeMisleading}
	seats := agg.Apportion(grades)
	if seats["n1"] >= 0 {
		t.Errorf("n1: want negative seats for misleading, got %d", seats["n1"])
	}
}

func TestApportion_TotalSeatsNeverExceedsSum(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	grades := map[string]trace.Grade{
		"n1": trace.GradeVeryUseful,
		"n2": trace.GradeUseful,
		"n3": trace.GradeSomewhatUseful,
	}
	seats := agg.Apportion(grades)
	var sum int
	for _, s := range seats {
		if s < 0 {
			sum -= s
		} else {
			sum += s
		}
	}
	// sum(|quota|) = 4+2+1 = 7, so seats_total = 7.
	if sum != 7 {
		t.Errorf("want total absolute seats 7, got %d (%v)", sum, seats)
	}
}

func TestApportion_RemainderGoesToLargestFractionThenLexicographic(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	// Three equally-weighted "useful" mentions: quota 2.0 each, sum=6,
	// seats_total=6, each gets an exact integer share with no remainder.
	grades := map[string]trace.Grade{
		"a": trace.GradeUseful,
		"b": trace.GradeUseful,
		"c": trace.GradeUseful,
	}
	seats := agg.Apportion(grades)
	if seats["a"] != 2 || seats["b"] != 2 || seats["c"] != 2 {
		t.Errorf("want 2 seats each, got %v", seats)
	}

	// Quotas 4, 2, 2 clamped to 5 seats: shares 2.5, 1.25, 1.25. Floors give
	// 4 seats; the one remaining seat goes to the largest fraction (a).
	capped := trace.ReinforcementAggregator{MaxSeats: 5}
	seats = capped.Apportion(map[string]trace.Grade{
		"a": trace.GradeVeryUseful,
		"b": trace.GradeUseful,
		"c": trace.GradeUseful,
	})
	if seats["a"] != 3 || seats["b"] != 1 || seats["c"] != 1 {
		t.Errorf("want a=3 b=1 c=1, got %v", seats)
	}

	// Three equal quotas clamped to 2 seats: shares 0.667 each with equal
	// fractions, so the two remaining seats go to a and b lexicographically.
	tied := trace.ReinforcementAggregator{MaxSeats: 2}
	seats = tied.Apportion(grades)
	if seats["a"] != 1 || seats["b"] != 1 || seats["c"] != 0 {
		t.Errorf("want a=1 b=1 c=0, got %v", seats)
	}
}

func TestApportion_SeatsClampedToMax(t *testing.T) {
	agg := trace.ReinforcementAggregator{MaxSeats: 5}
	grades := map[string]trace.Grade{
		"a": trace.GradeVeryUseful,
		"b": trace.GradeVeryUseful,
		"c": trace.GradeVeryUseful,
	}
	seats := agg.Apportion(grades)
	var sum int
	for _, s := range seats {
		sum += s
	}
	if sum > 5 {
		t.Errorf("want total seats clamped to 5, got %d", sum)
	}
}

func TestApportion_UnknownGradeIgnored(t *testing.T) {
	agg := trace.ReinforcementAggregator{}
	grades := map[string]trace.Grade{"n1": trace.Grade("unrecognized")}
	seats := agg.Apportion(grades)
	if len(seats) != 0 {
		t.Errorf("want unknown grade to be dropped, got %v", seats)
	}
}
