package recognizer

import (
	"encoding/json"
	"strings"
)

// Transcript is one line of recognizer output.
type Transcript struct {
	Text  string
	Final bool
}

type lineEvent struct {
	Type       string          `json:"type"`
	Event      string          `json:"event"`
	Text       string          `json:"text"`
	Transcript string          `json:"transcript"`
	Utterance  string          `json:"utterance"`
	Final      *bool           `json:"final"`
	Payload    json.RawMessage `json:"payload"`
}

type linePayload struct {
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Utterance  string `json:"utterance"`
}

// ParseLine reads one line of recognizer output: either plain text or a
// JSON event carrying text, transcript or utterance, directly or under
// payload. Events typed as partial, or with final=false, are not final.
func ParseLine(line string) (Transcript, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Transcript{}, false
	}
	if strings.HasPrefix(line, "{") {
		var evt lineEvent
		if err := json.Unmarshal([]byte(line), &evt); err == nil {
			text := firstNonBlank(evt.Text, evt.Transcript, evt.Utterance)
			if text == "" && len(evt.Payload) > 0 {
				var p linePayload
				if err := json.Unmarshal(evt.Payload, &p); err == nil {
					text = firstNonBlank(p.Text, p.Transcript, p.Utterance)
				}
			}
			if text == "" {
				return Transcript{}, false
			}
			final := evt.Final == nil || *evt.Final
			if strings.Contains(strings.ToLower(evt.Type), "partial") || strings.Contains(strings.ToLower(evt.Event), "partial") {
				final = false
			}
			return Transcript{Text: text, Final: final}, true
		}
	}
	return Transcript{Text: line, Final: true}, true
}

func firstNonBlank(parts ...string) string {
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			return s
		}
	}
	return ""
}
