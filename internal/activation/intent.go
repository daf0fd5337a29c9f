package activation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Intent is the outcome of command classification.
type Intent int

const (
	IntentNone     Intent = iota
	IntentKeyword         // a command keyword phrase
	IntentImplicit        // empty or too short, taken as "describe"
	IntentFallback        // a fallback token
	IntentModel           // accepted by the IntentMatcher
)

func (i Intent) String() string {
	switch i {
	case IntentKeyword:
		return "keyword"
	case IntentImplicit:
		return "implicit"
	case IntentFallback:
		return "fallback"
	case IntentModel:
		return "model"
	default:
		return "none"
	}
}

// Rules classifies commands heard in the command window.
type Rules struct {
	Keywords []string
	Fallback []string
	MinRunes int
}

// Classify applies keyword, length and fallback rules in that order.
func (r Rules) Classify(command string) Intent {
	cmd := strings.ToLower(strings.TrimSpace(command))
	for _, k := range r.Keywords {
		if k != "" && strings.Contains(cmd, strings.ToLower(k)) {
			return IntentKeyword
		}
	}
	if utf8.RuneCountInString(cmd) < r.MinRunes {
		return IntentImplicit
	}
	for _, f := range r.Fallback {
		if f != "" && strings.Contains(cmd, strings.ToLower(f)) {
			return IntentFallback
		}
	}
	return IntentNone
}

// ContainsPhrase reports whether phrase occurs in text as a run of whole
// words, ignoring case and punctuation. A possessive "'s" on a heard word
// still matches, so "hey india's camera" contains "hey india".
func ContainsPhrase(text, phrase string) bool {
	want := words(phrase)
	if len(want) == 0 {
		return false
	}
	have := words(text)
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j, w := range want {
			if have[i+j] != w && strings.TrimSuffix(have[i+j], "'s") != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		// apostrophes stay so "what's" is one word
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
