package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

// Neo4jStore is a GraphStore on a native graph database. Nodes become
// :Concept nodes keyed by (owner, id); relations become :RELATES edges
// carrying the verb as a property so arbitrary relation strings work.
type Neo4jStore struct {
	driver          neo4j.DriverWithContext
	logger          *zap.Logger
	storeLogContent bool
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(uri, user, password string, storeLogContent bool, logger *zap.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(context.Background()); err != nil {
		driver.Close(context.Background())
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	logger.Info("Neo4j connected")
	return &Neo4jStore{driver: driver, logger: logger, storeLogContent: storeLogContent}, nil
}

// Close shuts down the Neo4j driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func simParams(ts simtime.SimulationTime) (time.Time, any, any) {
	createdAt, simDay, simHour := timestampFields(ts)
	var day, hour any
	if simDay != nil {
		day = *simDay
	}
	if simHour != nil {
		hour = *simHour
	}
	return createdAt, day, hour
}

func (s *Neo4jStore) UpsertNode(ctx context.Context, owner, nodeID string, state *memory.State, ts simtime.SimulationTime) error {
	if owner == "" || nodeID == "" {
		return kgerr.Validationf("owner and node id are required")
	}
	createdAt, day, hour := simParams(ts)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	if state == nil {
		_, err := session.Run(ctx,
			`MERGE (c:Concept {owner: $owner, id: $id})
			 ON CREATE SET c.stability = 0.0, c.difficulty = 0.0,
				c.reps = 0, c.state = 0,
				c.created_at = $createdAt, c.sim_day = $simDay, c.sim_hour = $simHour`,
			map[string]any{
				"owner": owner, "id": nodeID,
				"createdAt": createdAt, "simDay": day, "simHour": hour,
			})
		if err != nil {
			return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
		}
		return nil
	}

	var lastReview any
	if state.LastReview != nil {
		lastReview = *state.LastReview
	}
	_, err := session.Run(ctx,
		`MERGE (c:Concept {owner: $owner, id: $id})
		 ON CREATE SET c.created_at = $createdAt
		 SET c.stability = $stability, c.difficulty = $difficulty,
			c.last_review = $lastReview, c.reps = $reps, c.state = $state,
			c.sim_day = $simDay, c.sim_hour = $simHour`,
		map[string]any{
			"owner": owner, "id": nodeID,
			"stability": state.Stability, "difficulty": state.Difficulty,
			"lastReview": lastReview, "reps": state.Reps, "state": int(state.CardState),
			"createdAt": createdAt, "simDay": day, "simHour": hour,
		})
	if err != nil {
		return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
	}
	return nil
}

func (s *Neo4jStore) GetNode(ctx context.Context, owner, nodeID string) (*knowledge.NodeRecord, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (c:Concept {owner: $owner, id: $id})
		 RETURN c.stability, c.difficulty, c.last_review, c.reps, c.state,
			c.created_at, c.sim_day, c.sim_hour`,
		map[string]any{"owner": owner, "id": nodeID})
	if err != nil {
		return nil, fmt.Errorf("get node %s/%s: %w", owner, nodeID, err)
	}
	if !result.Next(ctx) {
		return nil, result.Err()
	}
	rec := result.Record()

	node := knowledge.NodeRecord{Owner: owner, ID: nodeID}
	if v, _ := rec.Get("c.stability"); v != nil {
		node.State.Stability = v.(float64)
	}
	if v, _ := rec.Get("c.difficulty"); v != nil {
		node.State.Difficulty = v.(float64)
	}
	if v, _ := rec.Get("c.last_review"); v != nil {
		if t, ok := v.(time.Time); ok {
			node.State.LastReview = &t
		}
	}
	if v, _ := rec.Get("c.reps"); v != nil {
		node.State.Reps = int(v.(int64))
	}
	if v, _ := rec.Get("c.state"); v != nil {
		node.State.CardState = memory.CardState(v.(int64))
	}
	if v, _ := rec.Get("c.created_at"); v != nil {
		if t, ok := v.(time.Time); ok {
			node.CreatedAt = t
		}
	}
	if v, _ := rec.Get("c.sim_day"); v != nil {
		d := int(v.(int64))
		node.SimDay = &d
	}
	if v, _ := rec.Get("c.sim_hour"); v != nil {
		h := int(v.(int64))
		node.SimHour = &h
	}
	return &node, nil
}

func (s *Neo4jStore) AddRelation(ctx context.Context, owner, source, relation, target string, sentiment float64, ts simtime.SimulationTime) error {
	if owner == "" || source == "" || relation == "" || target == "" {
		return kgerr.Validationf("owner, source, relation, and target are required")
	}
	if err := knowledge.ValidateSentiment(sentiment); err != nil {
		return err
	}
	createdAt, day, hour := simParams(ts)

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (src:Concept {owner: $owner, id: $source})
		 ON CREATE SET src.created_at = $createdAt
		 MERGE (tgt:Concept {owner: $owner, id: $target})
		 ON CREATE SET tgt.created_at = $createdAt
		 MERGE (src)-[r:RELATES {owner: $owner, relation: $relation}]->(tgt)
		 SET r.weight = 1.0, r.sentiment = $sentiment,
			r.created_at = $createdAt, r.sim_day = $simDay, r.sim_hour = $simHour`,
		map[string]any{
			"owner": owner, "source": source, "relation": relation, "target": target,
			"sentiment": sentiment, "createdAt": createdAt, "simDay": day, "simHour": hour,
		})
	if err != nil {
		return fmt.Errorf("add relation %s-[%s]->%s: %w", source, relation, target, err)
	}
	return nil
}

func (s *Neo4jStore) GetAgentStance(ctx context.Context, owner, topic string, now simtime.SimulationTime, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 8
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	var result neo4j.ResultWithContext
	var err error
	if day, hour, ok := now.Round(); ok {
		result, err = session.Run(ctx,
			`MATCH (src:Concept)-[r:RELATES {owner: $owner}]->(tgt:Concept)
			 WHERE src.id IN ['I', $owner]
			   AND (tgt.id CONTAINS $topic OR (r.sim_day = $simDay AND r.sim_hour = $simHour))
			 RETURN src.id, r.relation, tgt.id, r.weight, r.sentiment,
				r.created_at, r.sim_day, r.sim_hour
			 ORDER BY r.sim_day DESC, r.sim_hour DESC, r.created_at DESC
			 LIMIT $limit`,
			map[string]any{"owner": owner, "topic": topic, "simDay": day, "simHour": hour, "limit": limit})
	} else {
		threshold := time.Now().UTC().Add(-knowledge.StanceWindow)
		if t, ok := now.Time(); ok {
			threshold = t.Add(-knowledge.StanceWindow)
		}
		result, err = session.Run(ctx,
			`MATCH (src:Concept)-[r:RELATES {owner: $owner}]->(tgt:Concept)
			 WHERE src.id IN ['I', $owner]
			   AND (tgt.id CONTAINS $topic OR r.created_at >= $threshold)
			 RETURN src.id, r.relation, tgt.id, r.weight, r.sentiment,
				r.created_at, r.sim_day, r.sim_hour
			 ORDER BY r.created_at DESC
			 LIMIT $limit`,
			map[string]any{"owner": owner, "topic": topic, "threshold": threshold, "limit": limit})
	}
	if err != nil {
		return nil, fmt.Errorf("query stance for %s: %w", owner, err)
	}
	return collectEdges(ctx, result, owner)
}

func (s *Neo4jStore) GetWorldKnowledge(ctx context.Context, owner, topic string, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (src:Concept)-[r:RELATES {owner: $owner}]->(tgt:Concept)
		 WHERE NOT src.id IN ['I', $owner]
		   AND (src.id CONTAINS $topic OR tgt.id CONTAINS $topic)
		 RETURN src.id, r.relation, tgt.id, r.weight, r.sentiment,
			r.created_at, r.sim_day, r.sim_hour
		 ORDER BY r.created_at DESC
		 LIMIT $limit`,
		map[string]any{"owner": owner, "topic": topic, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("query world knowledge for %s: %w", owner, err)
	}
	return collectEdges(ctx, result, owner)
}

func (s *Neo4jStore) LogInteraction(ctx context.Context, agent, actionType, content string, annotations map[string]any, ts simtime.SimulationTime) (string, error) {
	if agent == "" || actionType == "" {
		return "", kgerr.Validationf("agent and action type are required")
	}
	createdAt, day, hour := simParams(ts)
	annJSON, err := json.Marshal(annotations)
	if err != nil {
		return "", kgerr.Validationf("annotations are not JSON-encodable: %v", err)
	}

	var storedContent, contentUUID any
	ref := ""
	if s.storeLogContent {
		storedContent = content
	} else {
		ref = uuid.NewString()
		contentUUID = ref
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err = session.Run(ctx,
		`CREATE (l:InteractionLog {
			agent_name: $agent, action_type: $actionType,
			content: $content, content_uuid: $contentUUID,
			annotations: $annotations, ts: $ts,
			sim_day: $simDay, sim_hour: $simHour
		})`,
		map[string]any{
			"agent": agent, "actionType": actionType,
			"content": storedContent, "contentUUID": contentUUID,
			"annotations": string(annJSON), "ts": createdAt,
			"simDay": day, "simHour": hour,
		})
	if err != nil {
		return "", fmt.Errorf("log interaction for %s: %w", agent, err)
	}
	return ref, nil
}

func collectEdges(ctx context.Context, result neo4j.ResultWithContext, owner string) ([]knowledge.Edge, error) {
	var out []knowledge.Edge
	for result.Next(ctx) {
		rec := result.Record()
		e := knowledge.Edge{Owner: owner, Weight: 1.0}
		if v, _ := rec.Get("src.id"); v != nil {
			e.Source = v.(string)
		}
		if v, _ := rec.Get("r.relation"); v != nil {
			e.Relation = v.(string)
		}
		if v, _ := rec.Get("tgt.id"); v != nil {
			e.Target = v.(string)
		}
		if v, _ := rec.Get("r.weight"); v != nil {
			e.Weight = v.(float64)
		}
		if v, _ := rec.Get("r.sentiment"); v != nil {
			e.Sentiment = v.(float64)
		}
		if v, _ := rec.Get("r.created_at"); v != nil {
			if t, ok := v.(time.Time); ok {
				e.CreatedAt = t
			}
		}
		if v, _ := rec.Get("r.sim_day"); v != nil {
			d := int(v.(int64))
			e.SimDay = &d
		}
		if v, _ := rec.Get("r.sim_hour"); v != nil {
			h := int(v.(int64))
			e.SimHour = &h
		}
		out = append(out, e)
	}
	return out, result.Err()
}
