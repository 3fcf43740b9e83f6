package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	owner_id    TEXT NOT NULL,
	id          TEXT NOT NULL,
	stability   REAL NOT NULL DEFAULT 0,
	difficulty  REAL NOT NULL DEFAULT 0,
	last_review TIMESTAMP,
	reps        INTEGER NOT NULL DEFAULT 0,
	state       INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	sim_day     INTEGER,
	sim_hour    INTEGER,
	PRIMARY KEY (owner_id, id)
);
CREATE TABLE IF NOT EXISTS edges (
	owner_id   TEXT NOT NULL,
	source     TEXT NOT NULL,
	relation   TEXT NOT NULL,
	target     TEXT NOT NULL,
	weight     REAL NOT NULL DEFAULT 1.0,
	sentiment  REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	sim_day    INTEGER,
	sim_hour   INTEGER,
	PRIMARY KEY (owner_id, source, relation, target)
);
CREATE INDEX IF NOT EXISTS idx_edges_owner_source ON edges (owner_id, source);
CREATE TABLE IF NOT EXISTS interaction_logs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_name   TEXT NOT NULL,
	action_type  TEXT NOT NULL,
	content      TEXT,
	content_uuid TEXT,
	annotations  TEXT NOT NULL DEFAULT '{}',
	ts           TIMESTAMP NOT NULL,
	sim_day      INTEGER,
	sim_hour     INTEGER
);
`

// SQLiteStore is a single-file GraphStore for embedded deployments.
type SQLiteStore struct {
	db              *sql.DB
	storeLogContent bool
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema. ":memory:" works for tests.
func NewSQLiteStore(path string, storeLogContent bool) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	// modernc's driver serializes through a single connection; more would
	// trip SQLITE_BUSY under write contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, storeLogContent: storeLogContent}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) UpsertNode(ctx context.Context, owner, nodeID string, state *memory.State, ts simtime.SimulationTime) error {
	if owner == "" || nodeID == "" {
		return kgerr.Validationf("owner and node id are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)

	if state == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO nodes (owner_id, id, created_at, sim_day, sim_hour)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, id) DO NOTHING`,
			owner, nodeID, createdAt, simDay, simHour)
		if err != nil {
			return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (owner_id, id, stability, difficulty, last_review, reps, state, created_at, sim_day, sim_hour)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			last_review = excluded.last_review,
			reps = excluded.reps,
			state = excluded.state,
			sim_day = excluded.sim_day,
			sim_hour = excluded.sim_hour`,
		owner, nodeID, state.Stability, state.Difficulty, state.LastReview,
		state.Reps, int(state.CardState), createdAt, simDay, simHour)
	if err != nil {
		return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
	}
	return nil
}

func (s *SQLiteStore) GetNode(ctx context.Context, owner, nodeID string) (*knowledge.NodeRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT stability, difficulty, last_review, reps, state, created_at, sim_day, sim_hour
		FROM nodes WHERE owner_id = ? AND id = ?`, owner, nodeID)

	rec := knowledge.NodeRecord{Owner: owner, ID: nodeID}
	var lastReview sql.NullTime
	var cardState int
	var simDay, simHour sql.NullInt64
	err := row.Scan(&rec.State.Stability, &rec.State.Difficulty, &lastReview,
		&rec.State.Reps, &cardState, &rec.CreatedAt, &simDay, &simHour)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s/%s: %w", owner, nodeID, err)
	}
	rec.State.CardState = memory.CardState(cardState)
	if lastReview.Valid {
		t := lastReview.Time
		rec.State.LastReview = &t
	}
	if simDay.Valid {
		d := int(simDay.Int64)
		rec.SimDay = &d
	}
	if simHour.Valid {
		h := int(simHour.Int64)
		rec.SimHour = &h
	}
	return &rec, nil
}

func (s *SQLiteStore) AddRelation(ctx context.Context, owner, source, relation, target string, sentiment float64, ts simtime.SimulationTime) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (owner_id, source, relation, target, weight, sentiment, created_at, sim_day, sim_hour)
		VALUES (?, ?, ?, ?, 1.0, ?, ?, ?, ?)
		ON CONFLICT (owner_id, source, relation, target) DO UPDATE SET
			sentiment = excluded.sentiment,
			created_at = excluded.created_at,
			sim_day = excluded.sim_day,
			sim_hour = excluded.sim_hour`,
		owner, source, relation, target, sentiment, createdAt, simDay, simHour)
	if err != nil {
		return fmt.Errorf("add relation %s-[%s]->%s: %w", source, relation, target, err)
	}
	return nil
}

func (s *SQLiteStore) GetAgentStance(ctx context.Context, owner, topic string, now simtime.SimulationTime, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 8
	}

	var rows *sql.Rows
	var err error
	if day, hour, ok := now.Round(); ok {
		rows, err = s.db.QueryContext(ctx, `
			SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
			FROM edges
			WHERE owner_id = ? AND source IN ('I', ?)
			  AND (instr(target, ?) > 0 OR (sim_day = ? AND sim_hour = ?))
			ORDER BY sim_day DESC, sim_hour DESC, created_at DESC
			LIMIT ?`,
			owner, owner, topic, day, hour, limit)
	} else {
		threshold := time.Now().UTC().Add(-knowledge.StanceWindow)
		if t, ok := now.Time(); ok {
			threshold = t.Add(-knowledge.StanceWindow)
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
			FROM edges
			WHERE owner_id = ? AND source IN ('I', ?)
			  AND (instr(target, ?) > 0 OR created_at >= ?)
			ORDER BY created_at DESC
			LIMIT ?`,
			owner, owner, topic, threshold, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query stance for %s: %w", owner, err)
	}
	defer rows.Close()
	return scanEdges(rows, owner)
}

func (s *SQLiteStore) GetWorldKnowledge(ctx context.Context, owner, topic string, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
		FROM edges
		WHERE owner_id = ? AND source NOT IN ('I', ?)
		  AND (instr(source, ?) > 0 OR instr(target, ?) > 0)
		ORDER BY created_at DESC
		LIMIT ?`,
		owner, owner, topic, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query world knowledge for %s: %w", owner, err)
	}
	defer rows.Close()
	return scanEdges(rows, owner)
}

func (s *SQLiteStore) LogInteraction(ctx context.Context, agent, actionType, content string, annotations map[string]any, ts simtime.SimulationTime) (string, error) {
	if agent == "" || actionType == "" {
		return "", kgerr.Validationf("agent and action type are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interaction_logs (agent_name, action_type, content, content_uuid, annotations, ts, sim_day, sim_hour)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agent, actionType, storedContent, contentUUID, string(annJSON), createdAt, simDay, simHour)
	if err != nil {
		return "", fmt.Errorf("log interaction for %s: %w", agent, err)
	}
	return ref, nil
}

// scanEdges reads the shared edge column set.
func scanEdges(rows *sql.Rows, owner string) ([]knowledge.Edge, error) {
	var out []knowledge.Edge
	for rows.Next() {
		e := knowledge.Edge{Owner: owner}
		var simDay, simHour sql.NullInt64
		if err := rows.Scan(&e.Source, &e.Relation, &e.Target, &e.Weight,
			&e.Sentiment, &e.CreatedAt, &simDay, &simHour); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if simDay.Valid {
			d := int(simDay.Int64)
			e.SimDay = &d
		}
		if simHour.Valid {
			h := int(simHour.Int64)
			e.SimHour = &h
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
