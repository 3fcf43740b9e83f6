package extract

import "sync"

// The sentiment lexicon is a process-wide shared resource, loaded lazily
// on first use. Construction is guarded with double-checked locking so
// concurrent first access never builds it twice.
var (
	lexiconMu sync.RWMutex
	lexicon   map[string]float64
)

func sentimentLexicon() map[string]float64 {
	lexiconMu.RLock()
	l := lexicon
	lexiconMu.RUnlock()
	if l != nil {
		return l
	}

	lexiconMu.Lock()
	defer lexiconMu.Unlock()
	if lexicon == nil {
		lexicon = buildLexicon()
	}
	return lexicon
}

// buildLexicon returns valence scores in [-4, 4], the scale the compound
// normalization expects.
func buildLexicon() map[string]float64 {
	return map[string]float64{
		// Positive.
		"good": 1.9, "great": 3.1, "excellent": 2.7, "amazing": 2.8,
		"wonderful": 2.7, "fantastic": 2.6, "love": 3.2, "loves": 3.2,
		"like": 1.5, "likes": 1.5, "support": 1.7, "supports": 1.7,
		"benefit": 1.9, "benefits": 1.9, "helpful": 1.8, "important": 1.2,
		"urgent": 0.8, "agree": 1.5, "agrees": 1.5, "best": 3.2,
		"better": 1.9, "positive": 2.3, "promising": 1.8, "hope": 1.9,
		"hopeful": 2.0, "succeed": 2.2, "success": 2.7, "improve": 1.9,
		"improves": 1.9, "effective": 2.1, "strong": 1.3, "strongly": 1.1,
		"essential": 1.7, "win": 2.8, "right": 1.6, "safe": 1.8,
		"trust": 2.1, "trusts": 2.1, "fair": 1.8, "clean": 1.6,
		// Negative.
		"bad": -2.5, "terrible": -3.0, "awful": -2.9, "horrible": -2.9,
		"hate": -3.2, "hates": -3.2, "dislike": -1.9, "dislikes": -1.9,
		"oppose": -1.7, "opposes": -1.7, "against": -1.1, "harm": -2.4,
		"harmful": -2.4, "danger": -2.4, "dangerous": -2.4, "crisis": -2.3,
		"threat": -2.2, "fail": -2.3, "failure": -2.5, "wrong": -2.1,
		"worse": -2.1, "worst": -3.1, "negative": -2.0, "fear": -2.2,
		"afraid": -2.0, "worried": -1.8, "worry": -1.8, "problem": -1.6,
		"problems": -1.6, "risk": -1.3, "risky": -1.6, "waste": -2.0,
		"expensive": -1.0, "unfair": -2.0, "dirty": -1.8, "destroy": -2.9,
		"destroys": -2.9, "lose": -2.0, "loss": -2.1, "poverty": -2.2,
	}
}

// negators flip the valence of the word that follows within a short
// window.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "dont": true, "don't": true,
	"doesnt": true, "doesn't": true, "isnt": true, "isn't": true,
	"wont": true, "won't": true, "cant": true, "can't": true,
	"without": true,
}

// boosters scale the valence of the word that follows.
var boosters = map[string]float64{
	"very": 0.3, "really": 0.3, "extremely": 0.4, "absolutely": 0.4,
	"incredibly": 0.4, "so": 0.2, "quite": 0.15, "strongly": 0.3,
	"slightly": -0.2, "somewhat": -0.15, "barely": -0.3,
}
