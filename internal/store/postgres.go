package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

// PostgresStore is a GraphStore backed by a pgx connection pool.
type PostgresStore struct {
	db              *pgxpool.Pool
	logger          *zap.Logger
	storeLogContent bool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(dsn string, storeLogContent bool, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &PostgresStore{db: pool, logger: logger, storeLogContent: storeLogContent}, nil
}

// Migrate reads and executes all .up.sql files from the migrations directory.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// Close shuts down the connection pool.
func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) UpsertNode(ctx context.Context, owner, nodeID string, state *memory.State, ts simtime.SimulationTime) error {
	if owner == "" || nodeID == "" {
		return kgerr.Validationf("owner and node id are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)

	if state == nil {
		_, err := s.db.Exec(ctx, `
			INSERT INTO nodes (owner_id, id, created_at, sim_day, sim_hour)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id, id) DO NOTHING`,
			owner, nodeID, createdAt, simDay, simHour)
		if err != nil {
			return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
		}
		return nil
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO nodes (owner_id, id, stability, difficulty, last_review, reps, state, created_at, sim_day, sim_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			stability = EXCLUDED.stability,
			difficulty = EXCLUDED.difficulty,
			last_review = EXCLUDED.last_review,
			reps = EXCLUDED.reps,
			state = EXCLUDED.state,
			sim_day = EXCLUDED.sim_day,
			sim_hour = EXCLUDED.sim_hour`,
		owner, nodeID, state.Stability, state.Difficulty, state.LastReview,
		state.Reps, int(state.CardState), createdAt, simDay, simHour)
	if err != nil {
		return fmt.Errorf("upsert node %s/%s: %w", owner, nodeID, err)
	}
	return nil
}

func (s *PostgresStore) GetNode(ctx context.Context, owner, nodeID string) (*knowledge.NodeRecord, error) {
	rec := knowledge.NodeRecord{Owner: owner, ID: nodeID}
	var lastReview *time.Time
	var cardState int
	err := s.db.QueryRow(ctx, `
		SELECT stability, difficulty, last_review, reps, state, created_at, sim_day, sim_hour
		FROM nodes WHERE owner_id = $1 AND id = $2`, owner, nodeID).Scan(
		&rec.State.Stability, &rec.State.Difficulty, &lastReview,
		&rec.State.Reps, &cardState, &rec.CreatedAt, &rec.SimDay, &rec.SimHour)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s/%s: %w", owner, nodeID, err)
	}
	rec.State.CardState = memory.CardState(cardState)
	rec.State.LastReview = lastReview
	return &rec, nil
}

func (s *PostgresStore) AddRelation(ctx context.Context, owner, source, relation, target string, sentiment float64, ts simtime.SimulationTime) error {
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

	_, err := s.db.Exec(ctx, `
		INSERT INTO edges (owner_id, source, relation, target, weight, sentiment, created_at, sim_day, sim_hour)
		VALUES ($1, $2, $3, $4, 1.0, $5, $6, $7, $8)
		ON CONFLICT (owner_id, source, relation, target) DO UPDATE SET
			sentiment = EXCLUDED.sentiment,
			created_at = EXCLUDED.created_at,
			sim_day = EXCLUDED.sim_day,
			sim_hour = EXCLUDED.sim_hour`,
		owner, source, relation, target, sentiment, createdAt, simDay, simHour)
	if err != nil {
		return fmt.Errorf("add relation %s-[%s]->%s: %w", source, relation, target, err)
	}
	return nil
}

func (s *PostgresStore) GetAgentStance(ctx context.Context, owner, topic string, now simtime.SimulationTime, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 8
	}

	var rows pgx.Rows
	var err error
	if day, hour, ok := now.Round(); ok {
		rows, err = s.db.Query(ctx, `
			SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
			FROM edges
			WHERE owner_id = $1 AND source IN ('I', $1)
			  AND (target LIKE '%' || $2 || '%' OR (sim_day = $3 AND sim_hour = $4))
			ORDER BY sim_day DESC NULLS LAST, sim_hour DESC NULLS LAST, created_at DESC
			LIMIT $5`,
			owner, topic, day, hour, limit)
	} else {
		threshold := time.Now().UTC().Add(-knowledge.StanceWindow)
		if t, ok := now.Time(); ok {
			threshold = t.Add(-knowledge.StanceWindow)
		}
		rows, err = s.db.Query(ctx, `
			SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
			FROM edges
			WHERE owner_id = $1 AND source IN ('I', $1)
			  AND (target LIKE '%' || $2 || '%' OR created_at >= $3)
			ORDER BY created_at DESC
			LIMIT $4`,
			owner, topic, threshold, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query stance for %s: %w", owner, err)
	}
	defer rows.Close()
	return scanPgxEdges(rows, owner)
}

func (s *PostgresStore) GetWorldKnowledge(ctx context.Context, owner, topic string, limit int) ([]knowledge.Edge, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
		SELECT source, relation, target, weight, sentiment, created_at, sim_day, sim_hour
		FROM edges
		WHERE owner_id = $1 AND source NOT IN ('I', $1)
		  AND (source LIKE '%' || $2 || '%' OR target LIKE '%' || $2 || '%')
		ORDER BY created_at DESC
		LIMIT $3`,
		owner, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("query world knowledge for %s: %w", owner, err)
	}
	defer rows.Close()
	return scanPgxEdges(rows, owner)
}

func (s *PostgresStore) LogInteraction(ctx context.Context, agent, actionType, content string, annotations map[string]any, ts simtime.SimulationTime) (string, error) {
	if agent == "" || actionType == "" {
		return "", kgerr.Validationf("agent and action type are required")
	}
	createdAt, simDay, simHour := timestampFields(ts)
	annJSON, err := json.Marshal(annotations)
	if err != nil {
		return "", kgerr.Validationf("annotations are not JSON-encodable: %v", err)
	}

	var storedContent, contentUUID *string
	ref := ""
	if s.storeLogContent {
		storedContent = &content
	} else {
		ref = uuid.NewString()
		contentUUID = &ref
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO interaction_logs (agent_name, action_type, content, content_uuid, annotations, ts, sim_day, sim_hour)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		agent, actionType, storedContent, contentUUID, string(annJSON), createdAt, simDay, simHour)
	if err != nil {
		return "", fmt.Errorf("log interaction for %s: %w", agent, err)
	}
	return ref, nil
}

func scanPgxEdges(rows pgx.Rows, owner string) ([]knowledge.Edge, error) {
	var out []knowledge.Edge
	for rows.Next() {
		e := knowledge.Edge{Owner: owner}
		if err := rows.Scan(&e.Source, &e.Relation, &e.Target, &e.Weight,
			&e.Sentiment, &e.CreatedAt, &e.SimDay, &e.SimHour); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
