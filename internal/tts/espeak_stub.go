//go:build !cgo

package tts

import (
	"context"
	"fmt"
	"log/slog"
)

// Espeak is unavailable in builds without cgo.
type Espeak struct{}

// NewEspeak always fails without cgo.
func NewEspeak(locale string, _ *slog.Logger) (*Espeak, error) {
	return nil, fmt.Errorf("%w: espeak-ng needs cgo (locale %q)", ErrUnavailable, locale)
}

// Speak implements Synth.
func (*Espeak) Speak(context.Context, string) error { return ErrUnavailable }
