package engine

import (
	"math"
	"testing"
)

func TestScoreScenarios(t *testing.T) {
	tests := []struct {
		name     string
		times    []float32
		perfects uint32
		want     GameResult
	}{
		{
			name:  "empty session",
			times: nil,
			want:  GameResult{AvgReaction: 0, IQScore: 70, Consistency: 0, Rounds: 0},
		},
		{
			name:     "single perfect round",
			times:    []float32{200},
			perfects: 1,
			want:     GameResult{AvgReaction: 200, IQScore: 180, Consistency: 100, Rounds: 1},
		},
		{
			name:  "three steady rounds",
			times: []float32{300, 300, 300},
			want:  GameResult{AvgReaction: 300, IQScore: 180, Consistency: 100, Rounds: 3},
		},
		{
			name:  "slow player",
			times: []float32{650, 650},
			want:  GameResult{AvgReaction: 650, IQScore: 120, Consistency: 100, Rounds: 2},
		},
		{
			name:  "very slow player",
			times: []float32{2000},
			want:  GameResult{AvgReaction: 2000, IQScore: 120, Consistency: 100, Rounds: 1},
		},
		{
			name:     "mixed session with perfects",
			times:    []float32{200, 400},
			perfects: 3,
			want:     GameResult{AvgReaction: 300, IQScore: 180, Consistency: 66, Rounds: 2},
		},
		{
			name:  "unclamped slow pair",
			times: []float32{1000, 1500},
			want:  GameResult{AvgReaction: 1250, IQScore: 112, Consistency: 80, Rounds: 2},
		},
		{
			name:  "unclamped mid pair",
			times: []float32{400, 600},
			want:  GameResult{AvgReaction: 500, IQScore: 142, Consistency: 80, Rounds: 2},
		},
		{
			name:     "rounds up from .8",
			times:    []float32{520, 700, 610},
			perfects: 1,
			want:     GameResult{AvgReaction: 610, IQScore: 125, Consistency: 87, Rounds: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(GameInputs{ReactionTimes: tt.times, TotalPerfects: tt.perfects})
			if got != tt.want {
				t.Errorf("Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExplainComponents(t *testing.T) {
	tests := []struct {
		name     string
		times    []float32
		perfects uint32
		want     Breakdown
	}{
		{
			name:     "single perfect round",
			times:    []float32{200},
			perfects: 1,
			want: Breakdown{
				Avg: 200, StdDev: 0, Consistency: 100,
				SpeedComponent: 90, ConsistencyComponent: 40, PerfectsComponent: 2,
				BaseIQ: 212, IQScore: 180,
			},
		},
		{
			name:  "three steady rounds",
			times: []float32{300, 300, 300},
			want: Breakdown{
				Avg: 300, StdDev: 0, Consistency: 100,
				SpeedComponent: 70, ConsistencyComponent: 40, PerfectsComponent: 0,
				BaseIQ: 190, IQScore: 180,
			},
		},
		{
			name:  "slow player",
			times: []float32{650, 650},
			want: Breakdown{
				Avg: 650, StdDev: 0, Consistency: 100,
				SpeedComponent: 0, ConsistencyComponent: 40, PerfectsComponent: 0,
				BaseIQ: 120, IQScore: 120,
			},
		},
		{
			name:     "mixed session with perfects",
			times:    []float32{200, 400},
			perfects: 3,
			want: Breakdown{
				Avg: 300, StdDev: 100, Consistency: 66,
				SpeedComponent: 70, ConsistencyComponent: 26.4, PerfectsComponent: 6,
				BaseIQ: 182.4, IQScore: 180,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Explain(GameInputs{ReactionTimes: tt.times, TotalPerfects: tt.perfects})
			if !ok {
				t.Fatal("Explain() reported an empty session")
			}
			if got != tt.want {
				t.Errorf("Explain() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, ok := Explain(GameInputs{}); ok {
		t.Error("Explain() on empty input should report ok=false")
	}
}

func TestConsistency(t *testing.T) {
	tests := []struct {
		name   string
		avg    float32
		stdDev float32
		want   uint32
	}{
		{"zero avg", 0, 10, 0},
		{"negative avg", -5, 1, 0},
		{"nan avg", float32(math.NaN()), 1, 0},
		{"no spread", 250, 0, 100},
		{"one third spread truncates", 300, 100, 66},
		{"spread beyond mean", 100, 150, 0},
		{"nan spread", 100, float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Consistency(tt.avg, tt.stdDev); got != tt.want {
				t.Errorf("Consistency(%v, %v) = %d, want %d", tt.avg, tt.stdDev, got, tt.want)
			}
		})
	}
}

func TestIQBounds(t *testing.T) {
	avgs := []float32{0, 1, 50, 150, 151.5, 300, 649.9, 650, 900, 5000, 1e9, float32(math.Inf(1))}
	perfects := []uint32{0, 1, 5, 50, math.MaxUint32}

	for _, avg := range avgs {
		for c := uint32(0); c <= MaxConsistency; c += 5 {
			for _, p := range perfects {
				got := IQ(avg, c, p)
				if got < MinIQ || got > MaxIQ {
					t.Fatalf("IQ(%v, %d, %d) = %d, outside [%d, %d]", avg, c, p, got, MinIQ, MaxIQ)
				}
			}
		}
	}
}

func TestIQMonotonicInPerfects(t *testing.T) {
	for _, avg := range []float32{300, 650, 1250, 2000} {
		prev := IQ(avg, 50, 0)
		for p := uint32(1); p <= 100; p++ {
			got := IQ(avg, 50, p)
			if got < prev {
				t.Fatalf("IQ decreased at avg=%v perfects=%d: %d < %d", avg, p, got, prev)
			}
			prev = got
		}
		if prev != MaxIQ {
			t.Errorf("IQ at avg=%v did not saturate at %d, got %d", avg, MaxIQ, prev)
		}
	}
}

func TestConsistencyScaleInvariance(t *testing.T) {
	sessions := [][]float32{
		{200, 400},
		{250, 310, 275, 290},
		{180, 220, 260},
		{520, 700, 610},
	}
	for _, base := range sessions {
		want := Score(GameInputs{ReactionTimes: base}).Consistency
		for _, k := range []float32{0.5, 2, 4} {
			scaled := make([]float32, len(base))
			for i, v := range base {
				scaled[i] = v * k
			}
			if got := Score(GameInputs{ReactionTimes: scaled}).Consistency; got != want {
				t.Errorf("consistency of %v scaled by %v = %d, want %d", base, k, got, want)
			}
		}
	}
}

func TestConstantSequenceIsFullyConsistent(t *testing.T) {
	for _, v := range []float32{0.5, 1, 123.25, 300, 999} {
		for n := 1; n <= 12; n++ {
			times := make([]float32, n)
			for i := range times {
				times[i] = v
			}
			if got := Score(GameInputs{ReactionTimes: times}).Consistency; got != 100 {
				t.Errorf("constant %v x%d: consistency = %d, want 100", v, n, got)
			}
		}
	}
}

func TestClampIQ(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{69, 70},
		{70, 70},
		{125, 125},
		{180, 180},
		{212, 180},
		{float32(math.Inf(1)), 180},
		{float32(math.Inf(-1)), 70},
		{float32(math.NaN()), 70},
	}
	for _, tt := range tests {
		if got := clampIQ(tt.in); got != tt.want {
			t.Errorf("clampIQ(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundHalfAway(t *testing.T) {
	tests := []struct {
		in   float32
		want float32
	}{
		{124.5, 125},
		{124.49, 124},
		{182.4, 182},
		{-2.5, -3},
		{0.5, 1},
	}
	for _, tt := range tests {
		if got := roundHalfAway(tt.in); got != tt.want {
			t.Errorf("roundHalfAway(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTruncU32(t *testing.T) {
	tests := []struct {
		in   float32
		want uint32
	}{
		{99.9, 99},
		{100, 100},
		{0.99, 0},
		{-3, 0},
		{float32(math.NaN()), 0},
		{1e12, math.MaxUint32},
	}
	for _, tt := range tests {
		if got := truncU32(tt.in); got != tt.want {
			t.Errorf("truncU32(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
