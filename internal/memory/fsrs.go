package memory

import (
	"math"
	"time"

	"github.com/nidhogg/ghostkg/internal/simtime"
)

// DefaultWeights is the FSRS-6 parameter vector w[0..20]. These exact
// values are load-bearing: downstream behavior (initial stabilities,
// difficulty seeding, decay shape) is defined in terms of them.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956, 6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835, 0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658, 0.1542,
}

// minStability is the floor applied to every computed stability.
const minStability = 0.1

// Scheduler computes the next memory state after a review using the
// FSRS-6 algorithm (Free Spaced Repetition Scheduler, 21 parameters).
//
// Next is a pure function of (state, rating, now); the scheduler itself
// holds only the weight vector and is safe for concurrent use.
type Scheduler struct {
	w [21]float64
}

// NewScheduler returns a scheduler with the default FSRS-6 weights.
func NewScheduler() *Scheduler {
	return &Scheduler{w: DefaultWeights}
}

// NewSchedulerWithWeights returns a scheduler with a custom weight vector,
// for callers that train their own parameters.
func NewSchedulerWithWeights(w [21]float64) *Scheduler {
	return &Scheduler{w: w}
}

// initialDifficulty is D_0(G) = w4 - e^(w5*(G-1)) + 1, clamped to [1, 10].
func (s *Scheduler) initialDifficulty(rating Rating) float64 {
	d := s.w[4] - math.Exp(s.w[5]*float64(rating-1)) + 1
	return clamp(d, 1, 10)
}

// Next computes the memory state after reviewing a concept with the given
// rating at the given simulated time.
//
// New cards are seeded directly from the weights: stability w[G-1],
// difficulty D_0(G). Existing cards update difficulty with linear damping
// and mean reversion to D_0(Easy), then update stability along one of
// three branches: lapse (Again), same-day success, or multi-day success.
//
// In round mode the elapsed time since the last review is not computable;
// the scheduler falls back to 0 elapsed days (a same-day review). This is
// a documented conservative approximation, and LastReview is only advanced
// when now carries a calendar timestamp.
func (s *Scheduler) Next(current State, rating Rating, now simtime.SimulationTime) State {
	var lastReview *time.Time
	if t, ok := now.Time(); ok {
		lastReview = &t
	}

	// New cards.
	if current.CardState == StateNew {
		return State{
			Stability:  s.w[rating-1],
			Difficulty: s.initialDifficulty(rating),
			LastReview: lastReview,
			Reps:       1,
			CardState:  StateLearning,
		}
	}

	stability := current.Stability
	difficulty := current.Difficulty

	// Retrievability with the trainable FSRS-6 decay w20. The factor is
	// chosen so that R(t=S) = 0.9. A card with no recorded review keeps
	// full retrievability, matching the reference behavior.
	elapsedDays := 0.0
	retrievability := 1.0
	if current.LastReview != nil {
		elapsedDays = now.ElapsedDays(*current.LastReview)
		factor := math.Pow(0.9, -1/s.w[20]) - 1
		retrievability = math.Pow(1+factor*elapsedDays/stability, -s.w[20])
	}

	// Difficulty: linear damping ΔD = -w6*(G-3), then mean reversion
	// toward D_0(Easy).
	deltaD := -s.w[6] * float64(rating-3)
	dPrime := difficulty + deltaD*(10-difficulty)/9
	nextD := clamp(s.w[7]*s.initialDifficulty(Easy)+(1-s.w[7])*dPrime, 1, 10)

	var nextS float64
	nextCard := StateReview
	switch {
	case rating == Again:
		// Post-lapse stability; the card drops back to Learning.
		nextS = s.w[11] *
			math.Pow(nextD, -s.w[12]) *
			(math.Pow(stability+1, s.w[13]) - 1) *
			math.Exp((1-retrievability)*s.w[14])
		nextCard = StateLearning
	case elapsedDays < 1:
		// Same-day success: S' = S * e^(w17*(G-3+w18)) * S^(-w19).
		nextS = stability *
			math.Exp(s.w[17]*(float64(rating-3)+s.w[18])) *
			math.Pow(stability, -s.w[19])
	default:
		hardPenalty := 1.0
		if rating == Hard {
			hardPenalty = s.w[15]
		}
		easyBonus := 1.0
		if rating == Easy {
			easyBonus = s.w[16]
		}
		nextS = stability * (1 +
			math.Exp(s.w[8])*
				(11-nextD)*
				math.Pow(stability, -s.w[9])*
				(math.Exp((1-retrievability)*s.w[10])-1)*
				hardPenalty*
				easyBonus)
	}

	if nextS < minStability {
		nextS = minStability
	}
	if lastReview == nil {
		lastReview = current.LastReview
	}

	return State{
		Stability:  nextS,
		Difficulty: nextD,
		LastReview: lastReview,
		Reps:       current.Reps + 1,
		CardState:  nextCard,
	}
}

// Retrievability estimates recall probability on the read path using the
// legacy single-parameter forgetting curve (1 + t/(9S))^-1.
//
// This deliberately differs from the w20-parameterized decay the write
// path uses inside Next: the forgotten gate in context assembly was tuned
// against this curve, and the two formulas are kept divergent on purpose
// rather than reconciled. Returns 0 when there is no review on record or
// stability is zero; returns 1 the instant of a review.
func Retrievability(stability float64, lastReview *time.Time, now simtime.SimulationTime) float64 {
	if lastReview == nil || stability == 0 {
		return 0
	}
	elapsedDays := now.ElapsedDays(*lastReview)
	return 1 / (1 + elapsedDays/(9*stability))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
