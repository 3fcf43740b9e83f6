package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/cache"
	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/memory"
)

// Triplet is one candidate fact handed to the graph: identifiers plus the
// emotional valence and the review rating to learn it with.
type Triplet struct {
	Source    string        `json:"source"`
	Relation  string        `json:"relation"`
	Target    string        `json:"target"`
	Sentiment float64       `json:"sentiment"`
	Rating    memory.Rating `json:"rating"`
}

// ResponseTriplet is a fact extracted from the agent's own response; the
// source is always the agent itself.
type ResponseTriplet struct {
	Relation  string  `json:"relation"`
	Target    string  `json:"target"`
	Sentiment float64 `json:"sentiment"`
}

// Extractor derives triplets from free text when the caller does not
// supply its own extraction. Implemented in internal/extract.
type Extractor interface {
	Extract(ctx context.Context, text, author, agentName string) ([]Triplet, error)
}

// KnowledgeView is the structured (non-rendered) view of an agent's graph
// around a topic.
type KnowledgeView struct {
	AgentBeliefs   []Edge `json:"agent_beliefs"`
	WorldKnowledge []Edge `json:"world_knowledge"`
}

// Manager is the external-facing API over a set of agents sharing one
// graph store. It owns the result cache: reads consult it first, and
// every write (or clock change, which shifts what is recallable)
// invalidates the written agent.
type Manager struct {
	store     GraphStore
	cache     cache.Cache
	extractor Extractor
	logger    *zap.Logger

	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewManager creates a manager. A nil cache gets a disabled local cache
// so callers never branch on caching being off.
func NewManager(store GraphStore, c cache.Cache, logger *zap.Logger) *Manager {
	if c == nil {
		c = cache.New(0, false)
	}
	return &Manager{
		store:  store,
		cache:  c,
		logger: logger,
		agents: make(map[string]*Agent),
	}
}

// SetExtractor configures the optional extraction collaborator used when
// AbsorbContent is called without caller-provided triplets.
func (m *Manager) SetExtractor(e Extractor) { m.extractor = e }

// CreateAgent creates or returns the agent with the given name.
func (m *Manager) CreateAgent(ctx context.Context, name string) (*Agent, error) {
	if name == "" {
		return nil, kgerr.Validationf("agent name must be a non-empty string")
	}
	m.mu.RLock()
	a, ok := m.agents[name]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.agents[name]; ok {
		return a, nil
	}
	a, err := NewAgent(ctx, name, m.store, m.logger)
	if err != nil {
		return nil, err
	}
	m.agents[name] = a
	m.logger.Info("agent created", zap.String("agent", name))
	return a, nil
}

// Agent returns an existing agent.
func (m *Manager) Agent(name string) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[name]
	return a, ok
}

func (m *Manager) agentOrErr(name string) (*Agent, error) {
	a, ok := m.Agent(name)
	if !ok {
		return nil, &kgerr.AgentNotFoundError{Agent: name}
	}
	return a, nil
}

// SetAgentTime moves an agent's simulation clock. Accepts a time.Time, a
// [2]int (day, hour) pair, or a simtime.SimulationTime.
func (m *Manager) SetAgentTime(name string, input any) error {
	a, err := m.agentOrErr(name)
	if err != nil {
		return err
	}
	if err := a.SetTime(input); err != nil {
		return err
	}
	m.cache.InvalidateAgent(name)
	return nil
}

// LearnTriplet adds one fact directly to an agent's graph.
func (m *Manager) LearnTriplet(ctx context.Context, name string, t Triplet) error {
	a, err := m.agentOrErr(name)
	if err != nil {
		return err
	}
	if err := a.LearnTriplet(ctx, t.Source, t.Relation, t.Target, t.Rating, t.Sentiment); err != nil {
		return err
	}
	m.cache.InvalidateAgent(name)
	return nil
}

// AbsorbContent updates an agent's graph with content it is replying to.
// Callers either provide their own extraction via triplets, or leave it
// nil to use the configured extraction collaborator. The interaction is
// recorded in the store's log.
func (m *Manager) AbsorbContent(ctx context.Context, name, content, author string, triplets []Triplet) error {
	if content == "" {
		return kgerr.Validationf("content must be a non-empty string")
	}
	if author == "" {
		return kgerr.Validationf("author must be a non-empty string")
	}
	a, err := m.agentOrErr(name)
	if err != nil {
		return err
	}

	external := true
	if len(triplets) == 0 {
		if m.extractor == nil {
			return &kgerr.ExtractionError{Msg: "no triplets provided and no extractor configured"}
		}
		extracted, err := m.extractor.Extract(ctx, content, author, name)
		if err != nil {
			return fmt.Errorf("extract from %s: %w", author, err)
		}
		triplets = extracted
		external = false
	}

	for _, t := range triplets {
		if err := a.LearnTriplet(ctx, t.Source, t.Relation, t.Target, t.Rating, t.Sentiment); err != nil {
			return err
		}
	}

	annotations := map[string]any{
		"author":         author,
		"triplets_count": len(triplets),
		"external":       external,
	}
	if _, err := m.store.LogInteraction(ctx, name, "READ", content, annotations, a.Now()); err != nil {
		return fmt.Errorf("log READ for %s: %w", name, err)
	}
	m.cache.InvalidateAgent(name)
	return nil
}

// UpdateWithResponse records facts from a response the agent itself
// generated. The source of every triplet is forced to the agent ("I") and
// learned at Easy — the agent just said it, recall is effortless.
func (m *Manager) UpdateWithResponse(ctx context.Context, name, response string, triplets []ResponseTriplet, contextUsed string) error {
	if response == "" {
		return kgerr.Validationf("response must be a non-empty string")
	}
	a, err := m.agentOrErr(name)
	if err != nil {
		return err
	}

	for _, t := range triplets {
		if err := a.LearnTriplet(ctx, Self, t.Relation, t.Target, memory.Easy, t.Sentiment); err != nil {
			return err
		}
	}

	annotations := map[string]any{
		"triplets_count": len(triplets),
		"external":       true,
	}
	if contextUsed != "" {
		annotations["context_used"] = contextUsed
	}
	if _, err := m.store.LogInteraction(ctx, name, "WRITE", response, annotations, a.Now()); err != nil {
		return fmt.Errorf("log WRITE for %s: %w", name, err)
	}
	m.cache.InvalidateAgent(name)
	return nil
}

// GetContext returns the assembled context an agent should use when
// replying on a topic, consulting the result cache first.
func (m *Manager) GetContext(ctx context.Context, name, topic string) (string, error) {
	if topic == "" {
		return "", kgerr.Validationf("topic must be a non-empty string")
	}
	a, err := m.agentOrErr(name)
	if err != nil {
		return "", err
	}

	if cached, ok := m.cache.GetContext(name, topic); ok {
		return cached, nil
	}
	view, err := a.MemoryView(ctx, topic)
	if err != nil {
		return "", err
	}
	m.cache.PutContext(name, topic, view)
	return view, nil
}

// ProcessAndGetContext absorbs content and returns the refreshed context
// for the topic in one call — the common reply workflow.
func (m *Manager) ProcessAndGetContext(ctx context.Context, name, topic, text, author string, triplets []Triplet) (string, error) {
	if err := m.AbsorbContent(ctx, name, text, author, triplets); err != nil {
		return "", err
	}
	return m.GetContext(ctx, name, topic)
}

// AgentKnowledge returns the structured stance/world split for a topic,
// cached as a memory view.
func (m *Manager) AgentKnowledge(ctx context.Context, name, topic string) (*KnowledgeView, error) {
	if topic == "" {
		return nil, kgerr.Validationf("topic must be a non-empty string")
	}
	a, err := m.agentOrErr(name)
	if err != nil {
		return nil, err
	}

	if data, ok := m.cache.GetMemoryView(name, topic, ""); ok {
		var view KnowledgeView
		if err := json.Unmarshal(data, &view); err == nil {
			return &view, nil
		}
		// Corrupt cache payloads fall through to a fresh read.
	}

	nTopic := Normalize(name, topic)
	if nTopic == "" {
		return nil, kgerr.Validationf("topic %q is empty after normalization", topic)
	}
	beliefs, err := a.store.GetAgentStance(ctx, name, nTopic, a.Now(), stanceLimit)
	if err != nil {
		return nil, fmt.Errorf("get stance for %s: %w", nTopic, err)
	}
	world, err := a.store.GetWorldKnowledge(ctx, name, nTopic, 20)
	if err != nil {
		return nil, fmt.Errorf("get world knowledge for %s: %w", nTopic, err)
	}

	view := &KnowledgeView{AgentBeliefs: beliefs, WorldKnowledge: world}
	if data, err := json.Marshal(view); err == nil {
		m.cache.PutMemoryView(name, topic, "", data)
	}
	return view, nil
}
