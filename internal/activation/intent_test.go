package activation

import "testing"

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"hey india", true},
		{"Hey India", true},
		{"please hey india now", true},
		{"hey, india!", true},
		{"hey indiana", false},
		{"hey india's camera", true},
		{"hey india’s camera", true},
		{"hey indias", false},
		{"hey indiana's", false},
		{"they india", false},
		{"india hey", false},
		{"hey", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ContainsPhrase(tt.text, "hey india"); got != tt.want {
				t.Errorf("ContainsPhrase(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestContainsPhraseEmptyPhrase(t *testing.T) {
	if ContainsPhrase("anything", "  ") {
		t.Error("blank phrase must never match")
	}
}

func TestRulesClassify(t *testing.T) {
	rules := DefaultConfig().Rules()
	tests := []struct {
		cmd  string
		want Intent
	}{
		{"what is in front of me", IntentKeyword},
		{"  Describe My Surroundings ", IntentKeyword},
		{"could you look around", IntentKeyword},
		{"", IntentImplicit},
		{"a", IntentImplicit},
		{"anything in front", IntentFallback},
		{"what now", IntentFallback},
		{"play some music", IntentNone},
		{"turn on the lamp", IntentNone},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			if got := rules.Classify(tt.cmd); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestRulesKeywordsWinOverLength(t *testing.T) {
	r := Rules{Keywords: []string{"go"}, MinRunes: 5}
	if got := r.Classify("go"); got != IntentKeyword {
		t.Errorf("Classify = %v, want keyword", got)
	}
}
