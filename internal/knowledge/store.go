package knowledge

import (
	"context"
	"time"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/memory"
	"github.com/nidhogg/ghostkg/internal/simtime"
)

// NodeRecord is a persisted knowledge node scoped to an owner. SimDay and
// SimHour are populated only when the owning agent's clock was in round
// mode at write time.
type NodeRecord struct {
	Owner     string
	ID        string
	State     memory.State
	CreatedAt time.Time
	SimDay    *int
	SimHour   *int
}

// Edge is a persisted fact: an owner-scoped (source, relation, target)
// triple with sentiment. Re-adding the same key overwrites sentiment and
// timestamp rather than accumulating.
type Edge struct {
	Owner     string
	Source    string
	Relation  string
	Target    string
	Weight    float64
	Sentiment float64
	CreatedAt time.Time
	SimDay    *int
	SimHour   *int
}

// GraphStore is the persistence boundary the core calls into. Backends
// live in internal/store; the core never sees SQL dialects or drivers.
//
// Upsert semantics are last-write-wins; concurrent writers to the same
// (owner, concept) pair serialize through the backend.
type GraphStore interface {
	// UpsertNode creates or updates a node. A nil state leaves existing
	// memory fields untouched (identity-only upsert).
	UpsertNode(ctx context.Context, owner, nodeID string, state *memory.State, ts simtime.SimulationTime) error

	// GetNode returns the node or nil when absent.
	GetNode(ctx context.Context, owner, nodeID string) (*NodeRecord, error)

	// AddRelation upserts an edge, creating endpoint nodes as needed.
	// Fails with a ValidationError when sentiment is outside [-1, 1].
	AddRelation(ctx context.Context, owner, source, relation, target string, sentiment float64, ts simtime.SimulationTime) error

	// GetAgentStance returns the owner's own beliefs: edges whose source
	// is "I" or the owner's name, and whose target matches the topic
	// substring or which were created within the last 60 simulated
	// minutes. Newest first, at most limit rows.
	GetAgentStance(ctx context.Context, owner, topic string, now simtime.SimulationTime, limit int) ([]Edge, error)

	// GetWorldKnowledge returns edges from third parties: source is
	// neither "I" nor the owner, and source or target matches the topic
	// substring. At most limit rows.
	GetWorldKnowledge(ctx context.Context, owner, topic string, limit int) ([]Edge, error)

	// LogInteraction records an agent action. When the backend is
	// configured not to store raw content it returns a generated content
	// reference instead; otherwise the reference is empty.
	LogInteraction(ctx context.Context, agent, actionType, content string, annotations map[string]any, ts simtime.SimulationTime) (string, error)
}

// StanceWindow is the simulated recency window for stance retrieval:
// edges created within the last 60 simulated minutes count as current
// stance regardless of topic match.
const StanceWindow = 60 * time.Minute

// ValidateSentiment rejects out-of-range sentiment before it reaches a
// backend. Shared by all GraphStore implementations.
func ValidateSentiment(sentiment float64) error {
	if sentiment < -1.0 || sentiment > 1.0 {
		return kgerr.Validationf("sentiment must be between -1.0 and 1.0, got %v", sentiment)
	}
	return nil
}
