package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func calAt(t time.Time) simtime.SimulationTime { return simtime.FromTime(t) }

func roundAt(t *testing.T, day, hour int) simtime.SimulationTime {
	t.Helper()
	st, err := simtime.FromRound(day, hour)
	if err != nil {
		t.Fatalf("FromRound(%d, %d): %v", day, hour, err)
	}
	return st
}

func TestUpsertNodeIdentityVsState(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	// Identity-only upsert creates the node with zero memory state.
	if err := s.UpsertNode(ctx, "alice", "solar", nil, calAt(baseTime)); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	rec, err := s.GetNode(ctx, "alice", "solar")
	if err != nil || rec == nil {
		t.Fatalf("GetNode: (%v, %v)", rec, err)
	}
	if rec.State.Reps != 0 {
		t.Errorf("identity upsert must not set state, got %+v", rec.State)
	}

	// State upsert overwrites memory fields.
	lr := baseTime
	state := &memory.State{Stability: 2.5, Difficulty: 4.0, LastReview: &lr, Reps: 1, CardState: memory.StateLearning}
	if err := s.UpsertNode(ctx, "alice", "solar", state, calAt(baseTime)); err != nil {
		t.Fatalf("UpsertNode(state): %v", err)
	}
	rec, _ = s.GetNode(ctx, "alice", "solar")
	if rec.State.Stability != 2.5 || rec.State.Reps != 1 {
		t.Errorf("state upsert not applied: %+v", rec.State)
	}

	// A later identity upsert must not clobber the state.
	if err := s.UpsertNode(ctx, "alice", "solar", nil, calAt(baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("UpsertNode(nil): %v", err)
	}
	rec, _ = s.GetNode(ctx, "alice", "solar")
	if rec.State.Stability != 2.5 {
		t.Errorf("identity upsert clobbered state: %+v", rec.State)
	}
}

func TestGetNodeAbsent(t *testing.T) {
	s := NewMemStore(false)
	rec, err := s.GetNode(context.Background(), "alice", "nothing")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for absent node, got %+v", rec)
	}
}

func TestNodesAreOwnerScoped(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()
	if err := s.UpsertNode(ctx, "alice", "solar", nil, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.GetNode(ctx, "bob", "solar")
	if rec != nil {
		t.Error("node must not leak across owners")
	}
}

func TestAddRelationValidatesSentiment(t *testing.T) {
	s := NewMemStore(false)
	err := s.AddRelation(context.Background(), "alice", "climate", "causes", "drought", 1.5, calAt(baseTime))
	var ve *kgerr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAddRelationCreatesEndpointsAndOverwrites(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	if err := s.AddRelation(ctx, "alice", "climate", "causes", "drought", -0.2, calAt(baseTime)); err != nil {
		t.Fatalf("AddRelation: %v", err)
	}
	for _, id := range []string{"climate", "drought"} {
		rec, _ := s.GetNode(ctx, "alice", id)
		if rec == nil {
			t.Fatalf("endpoint node %q missing", id)
		}
	}

	// Same key again: sentiment and timestamp update, no duplicate row.
	if err := s.AddRelation(ctx, "alice", "climate", "causes", "drought", -0.8, calAt(baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("AddRelation (overwrite): %v", err)
	}
	edges, err := s.GetWorldKnowledge(ctx, "alice", "drought", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge after overwrite, got %d", len(edges))
	}
	if edges[0].Sentiment != -0.8 {
		t.Errorf("expected updated sentiment -0.8, got %v", edges[0].Sentiment)
	}
}

func TestStanceQueryFiltersAndOrders(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	// Owner's beliefs at different ages.
	if err := s.AddRelation(ctx, "alice", "I", "supports", "solar power", 0.5, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRelation(ctx, "alice", "alice", "opposes", "solar subsidies", -0.4, calAt(baseTime.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	// Third-party edge: excluded from stance regardless of topic.
	if err := s.AddRelation(ctx, "alice", "bob", "supports", "solar power", 0.6, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}

	now := calAt(baseTime.Add(2 * time.Hour))
	edges, err := s.GetAgentStance(ctx, "alice", "solar", now, 8)
	if err != nil {
		t.Fatalf("GetAgentStance: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 stance edges, got %d: %+v", len(edges), edges)
	}
	// Newest first.
	if edges[0].Relation != "opposes" || edges[1].Relation != "supports" {
		t.Errorf("expected newest-first ordering, got %+v", edges)
	}
}

func TestStanceRecencyWindowCalendar(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	// No topic match, but created within the last 60 minutes: current stance.
	if err := s.AddRelation(ctx, "alice", "I", "wants", "coffee", 0.2, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}

	recent, err := s.GetAgentStance(ctx, "alice", "solar", calAt(baseTime.Add(30*time.Minute)), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("expected recent edge in stance, got %d", len(recent))
	}

	stale, err := s.GetAgentStance(ctx, "alice", "solar", calAt(baseTime.Add(2*time.Hour)), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("expected stale off-topic edge excluded, got %+v", stale)
	}
}

func TestStanceRecencyWindowRoundMode(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	if err := s.AddRelation(ctx, "alice", "I", "wants", "coffee", 0.2, roundAt(t, 3, 10)); err != nil {
		t.Fatal(err)
	}

	sameHour, err := s.GetAgentStance(ctx, "alice", "solar", roundAt(t, 3, 10), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(sameHour) != 1 {
		t.Errorf("expected same-hour edge in stance, got %d", len(sameHour))
	}

	laterHour, err := s.GetAgentStance(ctx, "alice", "solar", roundAt(t, 3, 12), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(laterHour) != 0 {
		t.Errorf("expected off-topic edge excluded two hours later, got %+v", laterHour)
	}
}

func TestStanceLimit(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()
	topics := []string{"solar a", "solar b", "solar c"}
	for i, topic := range topics {
		if err := s.AddRelation(ctx, "alice", "I", "supports", topic, 0.1, calAt(baseTime.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	edges, err := s.GetAgentStance(ctx, "alice", "solar", calAt(baseTime.Add(time.Hour)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Errorf("expected limit 2, got %d", len(edges))
	}
}

func TestWorldKnowledgeExcludesSelfAndOwner(t *testing.T) {
	s := NewMemStore(false)
	ctx := context.Background()

	if err := s.AddRelation(ctx, "alice", "I", "supports", "solar power", 0.5, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRelation(ctx, "alice", "alice", "likes", "solar power", 0.5, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddRelation(ctx, "alice", "bob", "opposes", "solar power", -0.5, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}
	// Source-side topic match.
	if err := s.AddRelation(ctx, "alice", "solar power", "reduces", "emissions", 0, calAt(baseTime)); err != nil {
		t.Fatal(err)
	}

	edges, err := s.GetWorldKnowledge(ctx, "alice", "solar", 10)
	if err != nil {
		t.Fatalf("GetWorldKnowledge: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 world edges, got %d: %+v", len(edges), edges)
	}
	for _, e := range edges {
		if e.Source == "I" || e.Source == "alice" {
			t.Errorf("world knowledge must exclude the owner's own edges: %+v", e)
		}
	}
}

func TestLogInteractionContentRef(t *testing.T) {
	ctx := context.Background()

	// Content not stored: a reference is generated.
	private := NewMemStore(false)
	ref, err := private.LogInteraction(ctx, "alice", "READ", "secret text", map[string]any{"author": "bob"}, calAt(baseTime))
	if err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}
	if ref == "" {
		t.Error("expected a content reference when content is not stored")
	}

	// Content stored: no reference.
	open := NewMemStore(true)
	ref, err = open.LogInteraction(ctx, "alice", "WRITE", "public text", nil, roundAt(t, 1, 0))
	if err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}
	if ref != "" {
		t.Errorf("expected empty reference when content is stored, got %q", ref)
	}

	if got := open.LogCount("alice"); got != 1 {
		t.Errorf("expected 1 log, got %d", got)
	}
}

func TestLogInteractionValidation(t *testing.T) {
	s := NewMemStore(false)
	_, err := s.LogInteraction(context.Background(), "", "READ", "x", nil, calAt(baseTime))
	var ve *kgerr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
