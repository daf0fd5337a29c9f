package notify

import (
	"context"
	"log/slog"
	"time"

	"vista/pkg/audioconv"
)

// Ticks renders vibration patterns as low clicks for hosts without a
// vibration motor. Even entries of a pattern sound, odd entries are pauses.
type Ticks struct {
	logger *slog.Logger
}

// NewTicks returns a tick renderer on the shared speaker.
func NewTicks(logger *slog.Logger) (*Ticks, error) {
	if err := initSpeaker(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ticks{logger: logger.With("component", "notify.ticks")}, nil
}

// Vibrate plays the pattern asynchronously.
func (t *Ticks) Vibrate(pattern ...time.Duration) {
	clip := Pattern(pattern)
	if len(clip.Samples) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := play(ctx, clip); err != nil {
			t.logger.Debug("tick playback", "err", err)
		}
	}()
}

// Pattern builds the audio for a vibration pattern.
func Pattern(pattern []time.Duration) audioconv.Clip {
	rate := int(SampleRate)
	var out []float32
	for i, d := range pattern {
		if d <= 0 {
			continue
		}
		if i%2 == 0 {
			out = append(out, audioconv.Tone(180, d, rate, 0.4).Samples...)
		} else {
			out = append(out, make([]float32, int(d.Seconds()*float64(rate)))...)
		}
	}
	return audioconv.Clip{Samples: out, Rate: rate}
}
