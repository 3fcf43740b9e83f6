// Package store provides the GraphStore backends: an in-memory store for
// tests and embedded use, SQLite, PostgreSQL, and Neo4j.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

// logRecord is one interaction-log row.
type logRecord struct {
	Agent       string
	ActionType  string
	Content     string
	ContentUUID string
	Annotations string
	Timestamp   time.Time
	SimDay      *int
	SimHour     *int
}

// MemStore is an in-memory GraphStore. One mutex covers everything;
// queries return copies.
type MemStore struct {
	storeLogContent bool

	mu    sync.Mutex
	nodes map[string]map[string]knowledge.NodeRecord // owner -> node id -> record
	edges []knowledge.Edge
	logs  []logRecord
}

// NewMemStore creates an empty in-memory store. When storeLogContent is
// false, LogInteraction records a content reference instead of the raw
// content.
func NewMemStore(storeLogContent bool) *MemStore {
	return &MemStore{
		storeLogContent: storeLogContent,
		nodes:           make(map[string]map[string]knowledge.NodeRecord),
	}
}

// timestampFields splits a SimulationTime into the persisted columns:
// calendar timestamp (wall clock when only round time is known) plus the
// optional sim_day/sim_hour pair.
func timestampFields(ts simtime.SimulationTime) (time.Time, *int, *int) {
	if day, hour, ok := ts.Round(); ok {
		d, h := day, hour
		return time.Now().UTC(), &d, &h
	}
	if t, ok := ts.Time(); ok {
		return t, nil, nil
	}
	return time.Now().UTC(), nil, nil
}

func (s *MemStore) UpsertNode(ctx context.Context, owner, nodeID string, state *memory.State, ts simtime.SimulationTime) error {
	if owner == "" || nodeID == "" {
		return kgerr.Validationf("owner and node id are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)

	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.nodes[owner]
	if !ok {
		byID = make(map[string]knowledge.NodeRecord)
		s.nodes[owner] = byID
	}

	rec, exists := byID[nodeID]
	if !exists {
		rec = knowledge.NodeRecord{Owner: owner, ID: nodeID, CreatedAt: createdAt, SimDay: simDay, SimHour: simHour}
	}
	if state != nil {
		rec.State = *state
		rec.SimDay = simDay
		rec.SimHour = simHour
	}
	byID[nodeID] = rec
	return nil
}

func (s *MemStore) GetNode(ctx context.Context, owner, nodeID string) (*knowledge.NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nodes[owner][nodeID]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemStore) AddRelation(ctx context.Context, owner, source, relation, target string, sentiment float64, ts simtime.SimulationTime) error {
	if owner == "" || source == "" || relation == "" || target == "" {
		return kgerr.Validationf("owner, source, relation, and target are required")
	}
	if err := knowledge.ValidateSentiment(sentiment); err != nil {
		return err
	}
	if err := s.UpsertNode(ctx, owner, source, nil, ts); err != nil {
		return err
	}
	if err := s.UpsertNode(ctx, owner, target, nil, ts); err != nil {
		return err
	}
	createdAt, simDay, simHour := timestampFields(ts)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.edges {
		e := &s.edges[i]
		if e.Owner == owner && e.Source == source && e.Relation == relation && e.Target == target {
			e.Sentiment = sentiment
			e.CreatedAt = createdAt
			e.SimDay = simDay
			e.SimHour = simHour
			return nil
		}
	}
	s.edges = append(s.edges, knowledge.Edge{
		Owner: owner, Source: source, Relation: relation, Target: target,
		Weight: 1.0, Sentiment: sentiment,
		CreatedAt: createdAt, SimDay: simDay, SimHour: simHour,
	})
	return nil
}

func (s *MemStore) GetAgentStance(ctx context.Context, owner, topic string, now simtime.SimulationTime, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 8
	}
	nowDay, nowHour, roundMode := now.Round()
	var threshold time.Time
	if t, ok := now.Time(); ok {
		threshold = t.Add(-knowledge.StanceWindow)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []knowledge.Edge
	for _, e := range s.edges {
		if e.Owner != owner {
			continue
		}
		if e.Source != knowledge.Self && e.Source != owner {
			continue
		}
		recent := false
		if roundMode {
			// Hour granularity: only the same simulated hour is provably
			// within the 60-minute window.
			recent = e.SimDay != nil && e.SimHour != nil && *e.SimDay == nowDay && *e.SimHour == nowHour
		} else if !threshold.IsZero() {
			recent = !e.CreatedAt.Before(threshold)
		}
		if strings.Contains(e.Target, topic) || recent {
			out = append(out, e)
		}
	}
	sortEdgesNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) GetWorldKnowledge(ctx context.Context, owner, topic string, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []knowledge.Edge
	for _, e := range s.edges {
		if e.Owner != owner || e.Source == knowledge.Self || e.Source == owner {
			continue
		}
		if strings.Contains(e.Source, topic) || strings.Contains(e.Target, topic) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) LogInteraction(ctx context.Context, agent, actionType, content string, annotations map[string]any, ts simtime.SimulationTime) (string, error) {
	if agent == "" || actionType == "" {
		return "", kgerr.Validationf("agent and action type are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)
	annJSON, err := json.Marshal(annotations)
	if err != nil {
		return "", kgerr.Validationf("annotations are not JSON-encodable: %v", err)
	}

	rec := logRecord{
		Agent:       agent,
		ActionType:  actionType,
		Annotations: string(annJSON),
		Timestamp:   createdAt,
		SimDay:      simDay,
		SimHour:     simHour,
	}
	ref := ""
	if s.storeLogContent {
		rec.Content = content
	} else {
		ref = uuid.NewString()
		rec.ContentUUID = ref
	}

	s.mu.Lock()
	s.logs = append(s.logs, rec)
	s.mu.Unlock()
	return ref, nil
}

// LogCount reports how many interactions were recorded for an agent.
func (s *MemStore) LogCount(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.logs {
		if l.Agent == agent {
			n++
		}
	}
	return n
}

// sortEdgesNewestFirst orders by simulated round when both sides carry
// one, falling back to the calendar timestamp.
func sortEdgesNewestFirst(edges []knowledge.Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.SimDay != nil && b.SimDay != nil {
			if *a.SimDay != *b.SimDay {
				return *a.SimDay > *b.SimDay
			}
			if a.SimHour != nil && b.SimHour != nil && *a.SimHour != *b.SimHour {
				return *a.SimHour > *b.SimHour
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
