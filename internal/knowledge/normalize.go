package knowledge

import "strings"

// Self is the canonical token for an agent's self-references. "I", "me",
// "myself", and the agent's own name all normalize to it.
const Self = "I"

// stopwords are never admitted as a source or target.
var stopwords = map[string]bool{
	"it": true, "is": true, "the": true, "a": true, "an": true,
	"this": true, "that": true,
}

// bannedNodes are generic placeholders that extraction pipelines emit when
// they fail to identify a real entity.
var bannedNodes = map[string]bool{
	"text": true, "entity": true, "author": true, "none": true,
	"unknown": true, "wikipedia": true, "general knowledge": true,
	"source": true, "target": true, "adjective": true, "noun": true,
}

// bannedRelations are grammatical or meta labels. Upstream extraction
// (LLM or heuristic) frequently emits grammar tags instead of meaning;
// a triple whose relation is one of these carries no semantics.
var bannedRelations = map[string]bool{
	"noun": true, "verb": true, "adjective": true, "adverb": true,
	"preposition": true, "conjunction": true, "pronoun": true,
	"phrase": true, "clause": true, "sentence": true, "statement": true,
	"text": true, "topic": true, "concept": true, "word": true,
	"term": true, "rating": true, "evaluation": true, "opinion": true,
}

// Normalize canonicalizes raw text for the knowledge graph: lowercase,
// strip everything outside [a-z0-9\s], trim, and map self-references
// (ownerName, "i", "me", "myself") to Self. Returns "" for input that is
// empty after cleaning.
func Normalize(ownerName, text string) string {
	if text == "" {
		return ""
	}
	clean := strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' || r == '\t' || r == '\n' {
			b.WriteRune(r)
		}
	}
	clean = strings.TrimSpace(b.String())

	switch clean {
	case "i", "me", "myself":
		return Self
	}
	if clean == strings.ToLower(ownerName) {
		return Self
	}
	return clean
}

// Admissible is the semantic gatekeeper: it decides whether a normalized
// triple is meaningful enough to enter the graph. Rejections are silent
// and intentional — they are filtering, not validation failure.
func Admissible(source, relation, target string) bool {
	if source == "" || relation == "" || target == "" {
		return false
	}
	if len(source) < 2 && source != Self {
		return false
	}
	if len(target) < 2 && target != Self {
		return false
	}
	if stopwords[source] || stopwords[target] {
		return false
	}
	if bannedNodes[source] || bannedNodes[target] {
		return false
	}
	if bannedRelations[relation] {
		return false
	}
	return true
}
