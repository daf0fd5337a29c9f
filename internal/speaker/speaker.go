// Package speaker serializes spoken output and applies the overlap policy.
package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vista/internal/tts"
)

// Policy decides what happens when Say is called while speaking.
type Policy int

const (
	// PolicyInterrupt cancels the current utterance and speaks the new one.
	PolicyInterrupt Policy = iota
	// PolicySuppress drops repeats of the last text and anything said
	// within the cooldown.
	PolicySuppress
)

func (p Policy) String() string {
	if p == PolicySuppress {
		return "suppress"
	}
	return "interrupt"
}

// ParsePolicy parses "interrupt" or "suppress".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "interrupt":
		return PolicyInterrupt, nil
	case "suppress":
		return PolicySuppress, nil
	}
	return 0, fmt.Errorf("unknown speech policy %q", s)
}

// DefaultCooldown is the suppress-policy gap between utterances.
const DefaultCooldown = 2500 * time.Millisecond

// Options configures a Speaker.
type Options struct {
	Policy   Policy
	Cooldown time.Duration
	Now      func() time.Time
}

// Speaker plays one utterance at a time through a tts.Synth.
type Speaker struct {
	synth  tts.Synth
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   string
	lastAt time.Time
}

// New returns a speaker over synth.
func New(synth tts.Synth, opts Options, logger *slog.Logger) *Speaker {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{
		synth:  synth,
		opts:   opts,
		logger: logger.With("component", "speaker", "policy", opts.Policy),
	}
}

// Say starts speaking text in the background and reports whether it was
// accepted. The utterance is not tied to ctx cancellation; use Cancel.
func (s *Speaker) Say(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	s.mu.Lock()
	now := s.opts.Now()
	if s.opts.Policy == PolicySuppress && s.suppressedLocked(text, now) {
		s.mu.Unlock()
		s.logger.Debug("utterance suppressed", "text", text)
		return false
	}
	if s.cancel != nil {
		s.cancel()
	}
	prev := s.done
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.last, s.lastAt = text, now
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if uctx.Err() != nil {
			return
		}
		s.logger.Info("speaking", "text", text)
		if err := s.synth.Speak(uctx, text); err != nil && uctx.Err() == nil {
			s.logger.Warn("speak failed", "err", err)
		}
	}()
	return true
}

func (s *Speaker) suppressedLocked(text string, now time.Time) bool {
	if s.lastAt.IsZero() {
		return false
	}
	return text == s.last || now.Sub(s.lastAt) < s.opts.Cooldown
}

// Wait blocks until the most recent utterance has finished.
func (s *Speaker) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the current utterance.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// Close cancels speech and waits for the backend to return.
func (s *Speaker) Close() error {
	s.Cancel()
	return s.Wait(context.Background())
}
