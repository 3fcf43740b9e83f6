// Package extract is the optional extraction collaborator: it derives
// knowledge triplets from free text using entity heuristics and a
// lexicon-based sentiment model, for callers that do not run their own
// extraction pipeline. The semantic gatekeeper downstream still filters
// whatever comes out of here.
package extract

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/nidhogg/ghostkg/internal/kgerr"
	"github.com/nidhogg/ghostkg/internal/knowledge"
	"github.com/nidhogg/ghostkg/internal/memory"
)

const (
	minEntityLen  = 3
	entityWindow  = 50 // chars of context on each side for entity sentiment
	negationSpan  = 3  // tokens a negator reaches forward
	dampingFactor = 0.5
)

// Heuristic extracts triplets without an LLM: capitalized spans and
// acronyms become entities, lexicon valence becomes sentiment, and an
// intensity-aware verb table turns sentiment into relations.
type Heuristic struct {
	logger *zap.Logger
}

// NewHeuristic creates the heuristic extractor.
func NewHeuristic(logger *zap.Logger) *Heuristic {
	return &Heuristic{logger: logger}
}

// Extract implements knowledge.Extractor. For every entity it emits a
// partner-stance triple (author's position), a world-fact triple, and the
// agent's own reaction with dampened sentiment.
func (h *Heuristic) Extract(ctx context.Context, text, author, agentName string) ([]knowledge.Triplet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &kgerr.ExtractionError{Msg: "empty text"}
	}

	entities := findEntities(text)
	overall, intensity := scoreSentiment(text)

	var triplets []knowledge.Triplet
	for _, entity := range entities {
		entitySentiment, _ := scoreSentiment(entityContext(text, entity))
		sentiment := overall
		if math.Abs(entitySentiment-overall) > 0.2 {
			sentiment = entitySentiment
		}

		relation := relationFor(sentiment, intensity)
		triplets = append(triplets,
			knowledge.Triplet{
				Source: author, Relation: relation, Target: entity,
				Sentiment: sentiment, Rating: memory.Good,
			},
			knowledge.Triplet{
				Source: entity, Relation: "is", Target: "discussed",
				Rating: memory.Good,
			},
			knowledge.Triplet{
				Source: knowledge.Self, Relation: reactionFor(sentiment), Target: entity,
				Sentiment: clamp1(sentiment * dampingFactor), Rating: memory.Good,
			},
		)
	}

	h.logger.Debug("heuristic extraction",
		zap.String("agent", agentName),
		zap.String("author", author),
		zap.Int("entities", len(entities)),
		zap.Float64("sentiment", overall))
	return triplets, nil
}

// findEntities returns capitalized spans that are not sentence-initial,
// plus all-caps acronyms, in order of first appearance.
func findEntities(text string) []string {
	var entities []string
	seen := make(map[string]bool)
	sentenceStart := true

	words := strings.Fields(text)
	for i := 0; i < len(words); i++ {
		w := strings.TrimFunc(words[i], func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if w == "" {
			sentenceStart = endsSentence(words[i])
			continue
		}

		isAcronym := len(w) >= 2 && w == strings.ToUpper(w) && hasLetter(w)
		isCapital := unicode.IsUpper([]rune(w)[0])

		if isAcronym || (isCapital && !sentenceStart) {
			// Greedily absorb following capitalized words into one span.
			span := w
			for i+1 < len(words) {
				next := strings.TrimFunc(words[i+1], func(r rune) bool {
					return !unicode.IsLetter(r) && !unicode.IsDigit(r)
				})
				if next == "" || !unicode.IsUpper([]rune(next)[0]) || endsSentence(words[i]) {
					break
				}
				span += " " + next
				i++
			}
			if (len(span) >= minEntityLen || isAcronym) && !seen[strings.ToLower(span)] {
				seen[strings.ToLower(span)] = true
				entities = append(entities, span)
			}
		}
		sentenceStart = endsSentence(words[i])
	}
	return entities
}

func endsSentence(word string) bool {
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// entityContext cuts a character window around the entity's first
// occurrence, or the full text when it is not found literally.
func entityContext(text, entity string) string {
	lower := strings.ToLower(text)
	pos := strings.Index(lower, strings.ToLower(entity))
	if pos == -1 {
		return text
	}
	start := pos - entityWindow
	if start < 0 {
		start = 0
	}
	end := pos + len(entity) + entityWindow
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}

// scoreSentiment returns a compound valence in [-1, 1] and an intensity
// in [0, 1] (how much of the text carries sentiment at all).
func scoreSentiment(text string) (compound, intensity float64) {
	lex := sentimentLexicon()

	tokens := strings.Fields(strings.ToLower(text))
	var sum float64
	var hits int
	for i, tok := range tokens {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && r != '\''
		})
		v, ok := lex[tok]
		if !ok {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-negationSpan; j-- {
			prev := strings.TrimFunc(tokens[j], func(r rune) bool {
				return !unicode.IsLetter(r) && r != '\''
			})
			if negators[prev] {
				v = -v * 0.74
				break
			}
			if b, ok := boosters[prev]; ok && j == i-1 {
				if v > 0 {
					v += b
				} else {
					v -= b
				}
			}
		}
		sum += v
		hits++
	}

	if len(tokens) == 0 || hits == 0 {
		return 0, 0
	}
	// Same normalization shape the reference lexicon model uses.
	compound = clamp1(sum / math.Sqrt(sum*sum+15))
	intensity = math.Min(1, float64(hits)/math.Max(1, float64(len(tokens))/4))
	return compound, intensity
}

// relationFor maps sentiment and intensity onto a stance verb.
func relationFor(sentiment, intensity float64) string {
	if intensity > 0.5 {
		switch {
		case sentiment > 0.5:
			return "strongly supports"
		case sentiment > 0.2:
			return "advocates"
		case sentiment < -0.5:
			return "strongly opposes"
		case sentiment < -0.2:
			return "criticizes"
		}
	}
	switch {
	case sentiment > 0.3:
		return "supports"
	case sentiment > 0.1:
		return "likes"
	case sentiment < -0.3:
		return "opposes"
	case sentiment < -0.1:
		return "dislikes"
	}
	return "discusses"
}

// reactionFor is the agent's own verb for having encountered the entity.
func reactionFor(sentiment float64) string {
	switch {
	case math.Abs(sentiment) < 0.1:
		return "heard about"
	case sentiment > 0:
		return "interested in"
	default:
		return "concerned about"
	}
}

func clamp1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// payload is the JSON shape upstream extraction pipelines (LLM or
// otherwise) hand back.
type payload struct {
	WorldFacts    []payloadTriple `json:"world_facts"`
	PartnerStance []payloadTriple `json:"partner_stance"`
	MyReaction    []payloadTriple `json:"my_reaction"`
}

type payloadTriple struct {
	Source    string   `json:"source"`
	Relation  string   `json:"relation"`
	Target    string   `json:"target"`
	Sentiment *float64 `json:"sentiment"`
	Rating    int      `json:"rating"`
}

// ParsePayload decodes an extraction payload into triplets. A payload
// that is not valid JSON is an ExtractionError; individual triples with
// missing identifiers or out-of-range sentiment are skipped with a
// warning and the rest of the batch survives.
func ParsePayload(data []byte, logger *zap.Logger) ([]knowledge.Triplet, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &kgerr.ExtractionError{Msg: "malformed extraction payload", Err: err}
	}

	var triplets []knowledge.Triplet
	appendGroup := func(group []payloadTriple, defaultRating memory.Rating) {
		for _, t := range group {
			if t.Source == "" || t.Relation == "" || t.Target == "" {
				logger.Warn("skipping malformed triple",
					zap.String("source", t.Source),
					zap.String("relation", t.Relation),
					zap.String("target", t.Target))
				continue
			}
			sentiment := 0.0
			if t.Sentiment != nil {
				sentiment = *t.Sentiment
			}
			if sentiment < -1 || sentiment > 1 {
				logger.Warn("skipping triple with out-of-range sentiment",
					zap.String("target", t.Target),
					zap.Float64("sentiment", sentiment))
				continue
			}
			rating := defaultRating
			if r := memory.Rating(t.Rating); r.Valid() {
				rating = r
			}
			triplets = append(triplets, knowledge.Triplet{
				Source: t.Source, Relation: t.Relation, Target: t.Target,
				Sentiment: sentiment, Rating: rating,
			})
		}
	}

	appendGroup(p.WorldFacts, memory.Good)
	appendGroup(p.PartnerStance, memory.Good)
	appendGroup(p.MyReaction, memory.Good)
	return triplets, nil
}
