package memory

import (
	"math"
	"testing"
	"time"

	"github.com/nidhogg/ghostkg/internal/simtime"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func reviewAt(t time.Time) simtime.SimulationTime {
	return simtime.FromTime(t)
}

func TestNewCardSeedsFromWeights(t *testing.T) {
	s := NewScheduler()
	for _, rating := range []Rating{Again, Hard, Good, Easy} {
		next := s.Next(NewState(), rating, reviewAt(t0))
		if next.Stability != DefaultWeights[rating-1] {
			t.Errorf("rating %d: expected stability %v, got %v",
				rating, DefaultWeights[rating-1], next.Stability)
		}
		if next.Difficulty < 1 || next.Difficulty > 10 {
			t.Errorf("rating %d: difficulty %v outside [1, 10]", rating, next.Difficulty)
		}
		if next.Reps != 1 {
			t.Errorf("rating %d: expected reps 1, got %d", rating, next.Reps)
		}
		if next.CardState != StateLearning {
			t.Errorf("rating %d: expected Learning, got %v", rating, next.CardState)
		}
		if next.LastReview == nil || !next.LastReview.Equal(t0) {
			t.Errorf("rating %d: expected last review %v, got %v", rating, t0, next.LastReview)
		}
	}
}

func TestNewCardDifficultyOrdering(t *testing.T) {
	s := NewScheduler()
	prev := math.Inf(1)
	// Harder ratings seed harder (higher) difficulty.
	for _, rating := range []Rating{Again, Hard, Good, Easy} {
		d := s.Next(NewState(), rating, reviewAt(t0)).Difficulty
		if d >= prev {
			t.Errorf("difficulty should decrease with easier ratings: rating %d got %v (prev %v)", rating, d, prev)
		}
		prev = d
	}
}

func TestMultiDayReviewGrowsStability(t *testing.T) {
	s := NewScheduler()
	state := s.Next(NewState(), Good, reviewAt(t0))
	grown := s.Next(state, Good, reviewAt(t0.AddDate(0, 0, 3)))

	if grown.Stability <= state.Stability {
		t.Errorf("successful review should grow stability: %v -> %v", state.Stability, grown.Stability)
	}
	if grown.Reps != 2 {
		t.Errorf("expected reps 2, got %d", grown.Reps)
	}
	if grown.CardState != StateReview {
		t.Errorf("expected Review, got %v", grown.CardState)
	}
}

func TestEasyOutgrowsHard(t *testing.T) {
	s := NewScheduler()
	state := s.Next(NewState(), Good, reviewAt(t0))
	later := reviewAt(t0.AddDate(0, 0, 5))

	hard := s.Next(state, Hard, later)
	good := s.Next(state, Good, later)
	easy := s.Next(state, Easy, later)

	if !(hard.Stability < good.Stability && good.Stability < easy.Stability) {
		t.Errorf("expected hard < good < easy, got %v, %v, %v",
			hard.Stability, good.Stability, easy.Stability)
	}
}

func TestLapseShrinksStabilityAndDemotes(t *testing.T) {
	s := NewScheduler()
	state := s.Next(NewState(), Easy, reviewAt(t0))
	for i := 1; i <= 3; i++ {
		state = s.Next(state, Easy, reviewAt(t0.AddDate(0, 0, i*7)))
	}

	lapsed := s.Next(state, Again, reviewAt(t0.AddDate(0, 0, 40)))
	if lapsed.Stability >= state.Stability {
		t.Errorf("lapse should shrink stability: %v -> %v", state.Stability, lapsed.Stability)
	}
	if lapsed.CardState != StateLearning {
		t.Errorf("lapse should demote to Learning, got %v", lapsed.CardState)
	}
	if lapsed.Stability < 0.1 {
		t.Errorf("stability floor violated: %v", lapsed.Stability)
	}
}

func TestSameDayReviewUsesShortTermBranch(t *testing.T) {
	s := NewScheduler()
	state := s.Next(NewState(), Good, reviewAt(t0))

	// Two hours later, same day: short-term formula, not the multi-day one.
	sameDay := s.Next(state, Good, reviewAt(t0.Add(2*time.Hour)))
	want := state.Stability *
		math.Exp(DefaultWeights[17]*(0+DefaultWeights[18])) *
		math.Pow(state.Stability, -DefaultWeights[19])
	if math.Abs(sameDay.Stability-want) > 1e-9 {
		t.Errorf("same-day stability: expected %v, got %v", want, sameDay.Stability)
	}
}

func TestRoundModeReviewKeepsLastReview(t *testing.T) {
	s := NewScheduler()
	calState := s.Next(NewState(), Good, reviewAt(t0))

	rnd, err := simtime.FromRound(10, 8)
	if err != nil {
		t.Fatalf("FromRound: %v", err)
	}

	// New card in round mode: no review timestamp is recorded.
	fresh := s.Next(NewState(), Good, rnd)
	if fresh.LastReview != nil {
		t.Errorf("round-mode new card should have nil LastReview, got %v", fresh.LastReview)
	}

	// Existing card reviewed in round mode keeps the old timestamp.
	next := s.Next(calState, Good, rnd)
	if next.LastReview == nil || !next.LastReview.Equal(t0) {
		t.Errorf("round-mode review should keep old LastReview %v, got %v", t0, next.LastReview)
	}
}

func TestDifficultyStaysClamped(t *testing.T) {
	s := NewScheduler()
	state := s.Next(NewState(), Again, reviewAt(t0))
	for i := 1; i <= 20; i++ {
		state = s.Next(state, Again, reviewAt(t0.AddDate(0, 0, i)))
		if state.Difficulty < 1 || state.Difficulty > 10 {
			t.Fatalf("difficulty %v escaped [1, 10] after %d lapses", state.Difficulty, i)
		}
	}
}

func TestRetrievabilityAtReviewInstant(t *testing.T) {
	if got := Retrievability(5.0, &t0, reviewAt(t0)); got != 1.0 {
		t.Errorf("expected 1.0 at the review instant, got %v", got)
	}
}

func TestRetrievabilityStrictlyDecreases(t *testing.T) {
	prev := 1.0
	for days := 1; days <= 400; days *= 2 {
		now := reviewAt(t0.AddDate(0, 0, days))
		r := Retrievability(5.0, &t0, now)
		if r >= prev {
			t.Errorf("retrievability should strictly decrease: day %d got %v (prev %v)", days, r, prev)
		}
		prev = r
	}
}

func TestRetrievabilityKnownPoint(t *testing.T) {
	// S=5, t=200: 1/(1 + 200/45) ≈ 0.1837, below the forgotten cutoff.
	now := reviewAt(t0.AddDate(0, 0, 200))
	r := Retrievability(5.0, &t0, now)
	if math.Abs(r-45.0/245.0) > 1e-9 {
		t.Errorf("expected %v, got %v", 45.0/245.0, r)
	}
	if r >= 0.2 {
		t.Errorf("expected retrievability below 0.2, got %v", r)
	}
}

func TestRetrievabilityWithoutReview(t *testing.T) {
	if got := Retrievability(5.0, nil, reviewAt(t0)); got != 0 {
		t.Errorf("expected 0 without a review on record, got %v", got)
	}
	if got := Retrievability(0, &t0, reviewAt(t0)); got != 0 {
		t.Errorf("expected 0 with zero stability, got %v", got)
	}
}

func TestCustomWeights(t *testing.T) {
	w := DefaultWeights
	w[0] = 0.5
	s := NewSchedulerWithWeights(w)
	next := s.Next(NewState(), Again, reviewAt(t0))
	if next.Stability != 0.5 {
		t.Errorf("expected custom seed stability 0.5, got %v", next.Stability)
	}
}
