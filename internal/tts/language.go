package tts

import "strings"

// voiceCandidates maps a BCP 47 locale to espeak-ng language names, most
// specific first: "en-IN" gives ["en-in", "en"].
func voiceCandidates(locale string) []string {
	tag := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if tag == "" {
		return []string{"en"}
	}
	out := []string{tag}
	if i := strings.IndexByte(tag, '-'); i > 0 {
		out = append(out, tag[:i])
	}
	return out
}
