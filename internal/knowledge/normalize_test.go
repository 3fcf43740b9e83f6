package knowledge

import "testing"

func TestNormalizeSelfReferences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"I", Self},
		{"me", Self},
		{"Myself", Self},
		{"Alice", Self},
		{"  alice  ", Self},
		{"ALICE", Self},
	}
	for _, c := range cases {
		if got := Normalize("Alice", c.in); got != c.want {
			t.Errorf("Normalize(Alice, %q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeCleaning(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Climate Change!", "climate change"},
		{"  Solar   Power  ", "solar   power"},
		{"CO2-emissions", "co2emissions"},
		{"", ""},
		{"!!!", ""},
		{"日本語", ""},
	}
	for _, c := range cases {
		if got := Normalize("Alice", c.in); got != c.want {
			t.Errorf("Normalize(Alice, %q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeOtherAgentNamesSurvive(t *testing.T) {
	if got := Normalize("Alice", "Bob"); got != "bob" {
		t.Errorf("expected bob, got %q", got)
	}
}

func TestGatekeeperRejectsStopwordTriples(t *testing.T) {
	if Admissible("it", "is", "the") {
		t.Error("(it, is, the) must not be admissible")
	}
	if Admissible("a", "noun", "text") {
		t.Error("(a, noun, text) must not be admissible")
	}
}

func TestGatekeeperRejectsShortAndEmpty(t *testing.T) {
	if Admissible("", "causes", "drought") {
		t.Error("empty source must not be admissible")
	}
	if Admissible("x", "causes", "drought") {
		t.Error("single-char source must not be admissible")
	}
	if Admissible("climate", "causes", "y") {
		t.Error("single-char target must not be admissible")
	}
}

func TestGatekeeperSelfException(t *testing.T) {
	// "I" is one char but is always a legal endpoint.
	if !Admissible(Self, "supports", "solar power") {
		t.Error("Self as source must be admissible")
	}
	if !Admissible("bob", "trusts", Self) {
		t.Error("Self as target must be admissible")
	}
}

func TestGatekeeperRejectsBannedNodes(t *testing.T) {
	for _, banned := range []string{"entity", "unknown", "general knowledge", "wikipedia"} {
		if Admissible(banned, "causes", "drought") {
			t.Errorf("banned node %q as source must not be admissible", banned)
		}
		if Admissible("climate", "causes", banned) {
			t.Errorf("banned node %q as target must not be admissible", banned)
		}
	}
}

func TestGatekeeperRejectsGrammarRelations(t *testing.T) {
	for _, rel := range []string{"noun", "verb", "opinion", "statement"} {
		if Admissible("climate", rel, "drought") {
			t.Errorf("relation %q must not be admissible", rel)
		}
	}
}

func TestGatekeeperAdmitsMeaningfulTriples(t *testing.T) {
	cases := [][3]string{
		{"climate", "causes", "drought"},
		{"bob", "supports", "solar power"},
		{Self, "opposes", "coal"},
	}
	for _, c := range cases {
		if !Admissible(c[0], c[1], c[2]) {
			t.Errorf("(%s, %s, %s) should be admissible", c[0], c[1], c[2])
		}
	}
}
