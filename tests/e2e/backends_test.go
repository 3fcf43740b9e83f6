package e2e

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/cache"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/store"
)

// exerciseGraphStore runs the full agent lifecycle against a backend:
// create, learn, assemble context, decay, forget.
func exerciseGraphStore(t *testing.T, gs knowledge.GraphStore) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	manager := knowledge.NewManager(gs, cache.New(64, true), logger)
	if _, err := manager.CreateAgent(ctx, "Alice"); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if err := manager.SetAgentTime("Alice", t0); err != nil {
		t.Fatalf("SetAgentTime: %v", err)
	}

	if err := manager.LearnTriplet(ctx, "Alice", knowledge.Triplet{
		Source: "I", Relation: "supports", Target: "solar power", Sentiment: 0.7,
	}); err != nil {
		t.Fatalf("LearnTriplet: %v", err)
	}
	if err := manager.LearnTriplet(ctx, "Alice", knowledge.Triplet{
		Source: "bob", Relation: "opposes", Target: "solar power", Sentiment: -0.5,
	}); err != nil {
		t.Fatalf("LearnTriplet: %v", err)
	}

	view, err := manager.GetContext(ctx, "Alice", "solar power")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if !strings.Contains(view, "I supports solar power (very positively)") {
		t.Errorf("stance missing from context: %q", view)
	}
	if !strings.Contains(view, "bob opposes solar power") {
		t.Errorf("world knowledge missing from context: %q", view)
	}

	// 200 simulated days later the topic has decayed past the gate.
	if err := manager.SetAgentTime("Alice", t0.AddDate(0, 0, 200)); err != nil {
		t.Fatalf("SetAgentTime: %v", err)
	}
	view, err = manager.GetContext(ctx, "Alice", "solar power")
	if err != nil {
		t.Fatalf("GetContext (decayed): %v", err)
	}
	if !strings.Contains(view, "forgotten") {
		t.Errorf("expected forgotten marker after decay: %q", view)
	}
}

func TestPostgresBackend(t *testing.T) {
	skipUnlessE2E(t)
	ctx := context.Background()

	dsn, cleanup, err := startPostgres(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer cleanup()

	pg, err := store.NewPostgresStore(dsn, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	exerciseGraphStore(t, pg)
}

func TestNeo4jBackend(t *testing.T) {
	skipUnlessE2E(t)
	ctx := context.Background()

	uri, cleanup, err := startNeo4j(ctx)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}
	defer cleanup()

	n4j, err := store.NewNeo4jStore(uri, "", "", false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewNeo4jStore: %v", err)
	}
	defer n4j.Close(ctx)

	exerciseGraphStore(t, n4j)
}

func TestSharedCacheBackend(t *testing.T) {
	skipUnlessE2E(t)
	ctx := context.Background()

	url, cleanup, err := startRedis(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer cleanup()

	shared, err := cache.NewShared(url, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewShared: %v", err)
	}
	defer shared.Close()

	shared.PutContext("alice", "solar", "STANCE: pro")
	got, ok := shared.GetContext("alice", "solar")
	if !ok || got != "STANCE: pro" {
		t.Fatalf("expected shared hit, got (%q, %v)", got, ok)
	}

	if n := shared.InvalidateAgent("alice"); n != 1 {
		t.Errorf("expected 1 invalidated key, got %d", n)
	}
	if _, ok := shared.GetContext("alice", "solar"); ok {
		t.Error("expected miss after invalidation")
	}

	// A manager on Redis serves repeated reads without recomputation.
	manager := knowledge.NewManager(store.NewMemStore(false), shared, zap.NewNop())
	if _, err := manager.CreateAgent(ctx, "Alice"); err != nil {
		t.Fatal(err)
	}
	first, err := manager.GetContext(ctx, "Alice", "anything")
	if err != nil {
		t.Fatal(err)
	}
	second, err := manager.GetContext(ctx, "Alice", "anything")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("shared cache read diverged: %q vs %q", first, second)
	}
}
