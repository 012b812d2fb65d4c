package bias

import (
	"math"
	"testing"
	"time"

	"mnemo/internal/config"
)

func testSystem() *System {
	return New(config.Default().Bias)
}

func TestApplyFear(t *testing.T) {
	s := testSystem()

	if got := s.ApplyFear(0.4); got != 0.4 {
		t.Errorf("positive value changed: %v", got)
	}
	if got := s.ApplyFear(0); got != 0 {
		t.Errorf("zero changed: %v", got)
	}
	if got := s.ApplyFear(-0.4); math.Abs(got-(-1.0)) > 1e-9 {
		t.Errorf("ApplyFear(-0.4) = %v, want -1.0", got)
	}
}

func TestLossAversionRatio(t *testing.T) {
	s := testSystem()

	tests := []struct {
		name   string
		deltas []float64
		want   float64
	}{
		{"no history", nil, 1.0},
		{"only positives", []float64{0.5, 0.2}, 1.0},
		{"mild losses", []float64{-0.1, -0.2, 0.5}, 1.0},
		{"moderate losses", []float64{-0.35, -0.4}, 1.2},
		{"severe losses", []float64{-0.9, -0.6}, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hist []Outcome
			for _, d := range tt.deltas {
				hist = append(hist, Outcome{Timestamp: time.Now(), Delta: d})
			}
			if got := s.LossAversionRatio(hist); got != tt.want {
				t.Errorf("ratio = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeDiscount(t *testing.T) {
	s := testSystem()

	if got := s.ApplyTimeDiscount(1.0, 0); got != 1.0 {
		t.Errorf("zero delay = %v, want 1", got)
	}
	if got := s.ApplyTimeDiscount(1.0, -5); got != 1.0 {
		t.Errorf("negative delay = %v, want 1", got)
	}
	// rate 0.1, delay 10: 1/(1+1) = 0.5
	if got := s.ApplyTimeDiscount(1.0, 10); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("delay 10 = %v, want 0.5", got)
	}

	// Hyperbolic discounts less harshly at long delays.
	exp := s.ApplyTimeDiscount(1.0, 100)
	hyp := s.ApplyHyperbolicDiscount(1.0, 100)
	if hyp <= exp {
		t.Errorf("hyperbolic (%v) should exceed exponential (%v) at long delay", hyp, exp)
	}
}

func TestPossibilityWeight(t *testing.T) {
	s := testSystem()

	if got := s.PossibilityWeight(nil); got != 0.5 {
		t.Errorf("empty history = %v, want 0.5", got)
	}

	one := []Outcome{{Timestamp: time.Now(), Achieved: true, Effectiveness: 0.8}}
	if got := s.PossibilityWeight(one); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("one outcome = %v, want 0.4", got)
	}
	two := append(one, Outcome{Timestamp: time.Now(), Achieved: true, Effectiveness: 0.8})
	if got := s.PossibilityWeight(two); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("two outcomes = %v, want 0.5 cap", got)
	}

	// A consistent, always-successful history scores high.
	var strong []Outcome
	for i := 0; i < 6; i++ {
		strong = append(strong, Outcome{Timestamp: time.Now(), Achieved: true, Effectiveness: 0.8})
	}
	got := s.PossibilityWeight(strong)
	if got < 0.9 || got > 1 {
		t.Errorf("consistent success = %v, want near 1", got)
	}

	// All failures with scattered effectiveness score low.
	weak := []Outcome{
		{Timestamp: time.Now(), Effectiveness: 0.1},
		{Timestamp: time.Now(), Effectiveness: 0.9},
		{Timestamp: time.Now(), Effectiveness: 0.3},
		{Timestamp: time.Now(), Effectiveness: 0.7},
	}
	if got := s.PossibilityWeight(weak); got >= 0.5 {
		t.Errorf("inconsistent failure = %v, want below 0.5", got)
	}
}

func TestPossibilityWeightFavorsRecentSuccess(t *testing.T) {
	s := testSystem()
	now := time.Now()

	// Old failures, recent successes.
	improving := []Outcome{
		{Timestamp: now.Add(-3 * time.Hour), Effectiveness: 0.5},
		{Timestamp: now.Add(-2 * time.Hour), Effectiveness: 0.5},
		{Timestamp: now.Add(-10 * time.Minute), Achieved: true, Effectiveness: 0.5},
		{Timestamp: now.Add(-5 * time.Minute), Achieved: true, Effectiveness: 0.5},
	}
	declining := []Outcome{
		{Timestamp: now.Add(-3 * time.Hour), Achieved: true, Effectiveness: 0.5},
		{Timestamp: now.Add(-2 * time.Hour), Achieved: true, Effectiveness: 0.5},
		{Timestamp: now.Add(-10 * time.Minute), Effectiveness: 0.5},
		{Timestamp: now.Add(-5 * time.Minute), Effectiveness: 0.5},
	}
	if s.PossibilityWeight(improving) <= s.PossibilityWeight(declining) {
		t.Error("recent success should outweigh old success")
	}
}

func TestApplyOwningConservesMass(t *testing.T) {
	s := testSystem()

	weights := map[string]float64{
		"existing":      0.40,
		"power":         0.20,
		"understanding": 0.25,
		"information":   0.15,
	}
	// understanding is easy, power is hard.
	ach := map[string]float64{
		"existing":      0.5,
		"power":         0.1,
		"understanding": 0.9,
		"information":   0.5,
	}

	out := s.ApplyOwning(weights, ach)

	sum := 0.0
	for _, w := range out {
		if w < 0 {
			t.Fatalf("negative weight in %v", out)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("weights sum to %v, want 1", sum)
	}

	if out["understanding"] >= weights["understanding"] {
		t.Errorf("easy desire should lose weight: %v -> %v", weights["understanding"], out["understanding"])
	}
	if out["power"] <= weights["power"] {
		t.Errorf("hard desire should gain weight: %v -> %v", weights["power"], out["power"])
	}

	// Input map untouched.
	if weights["power"] != 0.20 {
		t.Error("ApplyOwning mutated its input")
	}
}

func TestApplyOwningUniformAchievabilityIsIdentity(t *testing.T) {
	s := testSystem()
	weights := map[string]float64{"existing": 0.6, "power": 0.4}
	ach := map[string]float64{"existing": 0.5, "power": 0.5}

	out := s.ApplyOwning(weights, ach)
	for name, w := range weights {
		if math.Abs(out[name]-w) > 1e-9 {
			t.Errorf("%s: %v -> %v, want unchanged", name, w, out[name])
		}
	}
}

func TestApplyAllOrder(t *testing.T) {
	s := testSystem()

	// Negative prediction with no history: 0.5 possibility, static
	// fear 2.5, discount 1/(1+0.1*10)=0.5.
	got := s.ApplyAll(-0.4, nil, 10, false)
	want := -0.4 * 0.5 * 2.5 * 0.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ApplyAll = %v, want %v", got, want)
	}

	// Positive prediction never touched by fear.
	got = s.ApplyAll(0.4, nil, 0, false)
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("ApplyAll positive = %v, want 0.2", got)
	}
}

func TestCompareActions(t *testing.T) {
	s := testSystem()

	var good []Outcome
	for i := 0; i < 5; i++ {
		good = append(good, Outcome{Timestamp: time.Now(), Achieved: true, Effectiveness: 0.8, Delta: 0.5})
	}

	ranked := s.CompareActions(map[string]Candidate{
		"proven":    {Predicted: 0.5, History: good},
		"untested":  {Predicted: 0.5},
		"risky":     {Predicted: -0.2},
		"far_payoff": {Predicted: 0.5, History: good, Delay: 100},
	}, false)

	if len(ranked) != 4 {
		t.Fatalf("got %d ranked, want 4", len(ranked))
	}
	if ranked[0].Name != "proven" {
		t.Errorf("best = %q, want proven (history beats no history)", ranked[0].Name)
	}
	if ranked[len(ranked)-1].Name != "risky" {
		t.Errorf("worst = %q, want risky (fear-amplified negative)", ranked[len(ranked)-1].Name)
	}
	for i := 0; i+1 < len(ranked); i++ {
		if ranked[i].Adjusted < ranked[i+1].Adjusted {
			t.Fatalf("not sorted: %+v", ranked)
		}
	}
}
