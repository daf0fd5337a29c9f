// Package tts holds the speech synthesis backends.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnavailable is returned when a backend cannot run on this host.
	ErrUnavailable = errors.New("tts: backend unavailable")

	// ErrNoBackends is returned by NewChain without backends.
	ErrNoBackends = errors.New("tts: no backends")
)

// Synth speaks text and returns when playback has finished or ctx is done.
type Synth interface {
	Speak(ctx context.Context, text string) error
}

// Chain tries backends in order until one speaks the text.
type Chain struct {
	backends []Synth
	logger   *slog.Logger
}

// NewChain returns a chain over backends.
func NewChain(logger *slog.Logger, backends ...Synth) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		backends: backends,
		logger:   logger.With("component", "tts.chain"),
	}, nil
}

// Speak implements Synth.
func (c *Chain) Speak(ctx context.Context, text string) error {
	var errs []error
	for i, b := range c.backends {
		err := b.Speak(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback backend spoke", "backend_index", i)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("backend failed, trying next", "backend_index", i, "err", err)
	}
	return fmt.Errorf("tts: all backends failed: %w", errors.Join(errs...))
}
