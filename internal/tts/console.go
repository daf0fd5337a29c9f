package tts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Console writes utterances to w instead of playing them. With a non-zero
// WordPace it also holds each utterance for that long per word, so callers
// waiting on speech behave as with a real voice.
type Console struct {
	WordPace time.Duration

	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console backend writing to w.
func NewConsole(w io.Writer, pace time.Duration) *Console {
	return &Console{w: w, WordPace: pace}
}

// Speak implements Synth.
func (c *Console) Speak(ctx context.Context, text string) error {
	c.mu.Lock()
	_, err := fmt.Fprintf(c.w, "[say] %s\n", text)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("tts console: %w", err)
	}

	d := time.Duration(len(strings.Fields(text))) * c.WordPace
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
