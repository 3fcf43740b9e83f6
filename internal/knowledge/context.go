package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/ghostkg/internal/memory"
)

const (
	stanceLimit = 8
	worldLimit  = 8
	factsMax    = 5
	beliefsMax  = 3

	// forgottenThreshold is the hard retrievability cutoff below which a
	// topic yields the forgotten marker instead of assembled context.
	forgottenThreshold = 0.2
)

// beliefRelations classifies a world-knowledge edge as another agent's
// belief rather than an objective fact.
var beliefRelations = map[string]bool{
	"said": true, "thinks": true, "believes": true, "wants": true,
	"supports": true, "opposes": true, "likes": true, "dislikes": true,
	"advocates": true, "criticizes": true,
	"strongly supports": true, "strongly opposes": true,
}

// MemoryView assembles what the agent currently believes, knows, and
// remembers others saying about a topic, bounded and rendered as one
// string. Read-only: cache population is the caller's concern.
//
// An unrecognizable topic yields a deterministic confused marker and a
// decayed one a forgotten marker; neither is an error.
func (a *Agent) MemoryView(ctx context.Context, topic string) (string, error) {
	nTopic := Normalize(a.name, topic)
	if nTopic == "" {
		return "(I am confused)", nil
	}
	now := a.Now()

	rec, err := a.store.GetNode(ctx, a.name, nTopic)
	if err != nil {
		return "", fmt.Errorf("get node %s: %w", nTopic, err)
	}
	if rec != nil {
		// Read path uses the legacy forgetting curve, not the FSRS-6 one.
		r := memory.Retrievability(rec.State.Stability, rec.State.LastReview, now)
		if r < forgottenThreshold {
			return fmt.Sprintf("(I have forgotten the details about %s)", topic), nil
		}
	}

	stanceRows, err := a.store.GetAgentStance(ctx, a.name, nTopic, now, stanceLimit)
	if err != nil {
		return "", fmt.Errorf("get stance for %s: %w", nTopic, err)
	}
	worldRows, err := a.store.GetWorldKnowledge(ctx, a.name, nTopic, worldLimit)
	if err != nil {
		return "", fmt.Errorf("get world knowledge for %s: %w", nTopic, err)
	}

	// Insertion-ordered sets: duplicates collapse to their first rendering.
	var myBeliefs, worldFacts, othersBeliefs orderedSet

	for _, row := range stanceRows {
		myBeliefs.add("I " + row.Relation + " " + row.Target + sentimentQualifier(row.Sentiment))
	}

	for _, row := range worldRows {
		qualifier := ""
		if row.Sentiment != 0 {
			qualifier = sentimentQualifier(row.Sentiment)
		}
		rendered := row.Source + " " + row.Relation + " " + row.Target + qualifier
		if beliefRelations[row.Relation] {
			othersBeliefs.add(rendered)
		} else {
			worldFacts.add(rendered)
		}
	}

	var parts []string
	if len(myBeliefs.items) > 0 {
		parts = append(parts, "MY CURRENT STANCE: "+strings.Join(myBeliefs.items, "; ")+".")
	} else {
		parts = append(parts, "MY CURRENT STANCE: (I have no strong opinion yet).")
	}
	if len(worldFacts.items) > 0 {
		parts = append(parts, "KNOWN FACTS: "+strings.Join(worldFacts.truncated(factsMax), "; ")+".")
	}
	if len(othersBeliefs.items) > 0 {
		parts = append(parts, "WHAT OTHERS THINK: "+strings.Join(othersBeliefs.truncated(beliefsMax), "; ")+".")
	}

	return strings.Join(parts, " "), nil
}

// sentimentQualifier maps sentiment to a short parenthetical. Values with
// |sentiment| < 0.1 render nothing.
func sentimentQualifier(sentiment float64) string {
	switch {
	case sentiment > 0.6:
		return " (very positively)"
	case sentiment > 0.3:
		return " (positively)"
	case sentiment > 0.1:
		return " (somewhat positively)"
	case sentiment < -0.6:
		return " (very negatively)"
	case sentiment < -0.3:
		return " (negatively)"
	case sentiment < -0.1:
		return " (somewhat negatively)"
	}
	return ""
}

// orderedSet keeps first-insertion order and drops duplicates.
type orderedSet struct {
	items []string
	seen  map[string]bool
}

func (s *orderedSet) add(v string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[v] {
		return
	}
	s.seen[v] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) truncated(n int) []string {
	if len(s.items) <= n {
		return s.items
	}
	return s.items[:n]
}
