// Package memory implements the spaced-repetition scheduler that tracks
// how strongly an agent remembers each concept in its knowledge graph.
package memory

import "time"

// Rating grades the quality of a review event.
type Rating int

const (
	Again Rating = 1 // complete failure to recall
	Hard  Rating = 2 // recalled with significant effort
	Good  Rating = 3 // normal recall
	Easy  Rating = 4 // effortless recall
)

// Valid reports whether r is one of the four defined ratings.
func (r Rating) Valid() bool { return r >= Again && r <= Easy }

// CardState is the scheduler's phase for a concept. It only ever advances
// New → Learning → Review; an Again rating resets a Review card to Learning.
type CardState int

const (
	StateNew      CardState = 0
	StateLearning CardState = 1
	StateReview   CardState = 2
)

// State is the per-(owner, concept) memory record the scheduler reads and
// produces. Created implicitly on a concept's first mention, mutated on
// every review, never deleted by this package.
type State struct {
	Stability  float64    // expected days until retrievability drops to ~90%
	Difficulty float64    // intrinsic recall difficulty, 1 (easiest) to 10
	LastReview *time.Time // nil before the first calendar-mode review
	Reps       int
	CardState  CardState
}

// NewState returns the state of a never-reviewed concept.
func NewState() State {
	return State{}
}
