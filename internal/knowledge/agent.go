// Package knowledge implements the per-agent knowledge graph core: triplet
// admission, memory-strength tracking, and temporal context assembly.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

// Agent is an autonomous knowledge agent: a name, a simulation clock, and
// a private graph of subject-relation-object facts whose recall strength
// decays over simulated time.
type Agent struct {
	name      string
	store     GraphStore
	scheduler *memory.Scheduler
	logger    *zap.Logger

	mu  sync.RWMutex // guards now
	now simtime.SimulationTime
}

// NewAgent creates an agent, seeds its clock with wall-clock time, and
// registers its self node in the store.
func NewAgent(ctx context.Context, name string, store GraphStore, logger *zap.Logger) (*Agent, error) {
	if name == "" {
		return nil, kgerr.Validationf("agent name must be a non-empty string")
	}
	a := &Agent{
		name:      name,
		store:     store,
		scheduler: memory.NewScheduler(),
		logger:    logger,
		now:       simtime.Now(),
	}
	if err := store.UpsertNode(ctx, name, Self, nil, a.now); err != nil {
		return nil, fmt.Errorf("register agent %s: %w", name, err)
	}
	return a, nil
}

// Name returns the agent's identity, which is also its storage owner key.
func (a *Agent) Name() string { return a.name }

// SetTime updates the agent's simulation clock. Accepts a time.Time, a
// [2]int (day, hour) pair, or a simtime.SimulationTime.
func (a *Agent) SetTime(input any) error {
	t, err := simtime.Parse(input)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.now = t
	a.mu.Unlock()
	return nil
}

// Now returns the agent's current simulated time.
func (a *Agent) Now() simtime.SimulationTime {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.now
}

// UpdateMemory runs one FSRS review of a concept at the agent's current
// time and persists the resulting state. Unknown or unreviewed concepts
// are treated as new cards.
func (a *Agent) UpdateMemory(ctx context.Context, concept string, rating memory.Rating) error {
	norm := Normalize(a.name, concept)
	if norm == "" {
		return nil
	}
	now := a.Now()

	current := memory.NewState()
	rec, err := a.store.GetNode(ctx, a.name, norm)
	if err != nil {
		return fmt.Errorf("get node %s: %w", norm, err)
	}
	// A node without a recorded review (including one written during a
	// round-mode simulation) schedules as a new card.
	if rec != nil && rec.State.LastReview != nil {
		current = rec.State
	}

	next := a.scheduler.Next(current, rating, now)
	if err := a.store.UpsertNode(ctx, a.name, norm, &next, now); err != nil {
		return fmt.Errorf("upsert node %s: %w", norm, err)
	}
	return nil
}

// LearnTriplet admits one fact into the agent's graph. The triple is
// normalized and passed through the semantic gatekeeper; inadmissible
// triples are dropped silently, so callers must not assume every call
// persists data. Admitted triples update the target's memory state with
// the given rating (source too, at Good, unless the source is the agent
// itself) and upsert the edge with its sentiment.
//
// A zero rating defaults to Good.
func (a *Agent) LearnTriplet(ctx context.Context, source, relation, target string, rating memory.Rating, sentiment float64) error {
	if rating == 0 {
		rating = memory.Good
	}
	if !rating.Valid() {
		return kgerr.Validationf("rating must be 1-4, got %d", rating)
	}

	nSource := Normalize(a.name, source)
	nRelation := Normalize(a.name, relation)
	nTarget := Normalize(a.name, target)

	if !Admissible(nSource, nRelation, nTarget) {
		a.logger.Debug("gatekeeper dropped triple",
			zap.String("agent", a.name),
			zap.String("source", nSource),
			zap.String("relation", nRelation),
			zap.String("target", nTarget))
		return nil
	}

	if err := a.UpdateMemory(ctx, nTarget, rating); err != nil {
		return err
	}
	if nSource != Self {
		if err := a.UpdateMemory(ctx, nSource, memory.Good); err != nil {
			return err
		}
	}

	if err := a.store.AddRelation(ctx, a.name, nSource, nRelation, nTarget, sentiment, a.Now()); err != nil {
		return fmt.Errorf("add relation %s -%s-> %s: %w", nSource, nRelation, nTarget, err)
	}
	return nil
}
