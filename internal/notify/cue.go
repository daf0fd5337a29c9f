// Package notify plays short audio cues through the system speaker.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"

	"vista/pkg/audioconv"
)

// SampleRate is the output rate of the cue speaker.
const SampleRate = beep.SampleRate(44100)

var output struct {
	once sync.Once
	err  error
	mu   sync.Mutex // one cue at a time
}

func initSpeaker() error {
	output.once.Do(func() {
		output.err = speaker.Init(SampleRate, SampleRate.N(time.Second/10))
	})
	return output.err
}

// Cue is a preloaded sound.
type Cue struct {
	clip   audioconv.Clip
	logger *slog.Logger
}

// NewCue loads the cue at path, or synthesizes a two-note chime when path
// is empty.
func NewCue(ctx context.Context, path string, logger *slog.Logger) (*Cue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify.cue")

	var clip audioconv.Clip
	if path == "" {
		clip = Chime()
	} else {
		var err error
		clip, err = audioconv.DecodeFile(ctx, path, audioconv.Options{
			Rate:        int(SampleRate),
			MaxDuration: 3 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("load cue: %w", err)
		}
	}
	if err := initSpeaker(); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	logger.Debug("cue loaded", "path", path, "duration", clip.Duration())
	return &Cue{clip: clip, logger: logger}, nil
}

// Chime returns the default wake confirmation sound.
func Chime() audioconv.Clip {
	rate := int(SampleRate)
	a := audioconv.Tone(880, 90*time.Millisecond, rate, 0.25)
	b := audioconv.Tone(1320, 120*time.Millisecond, rate, 0.25)
	return audioconv.Clip{Samples: append(a.Samples, b.Samples...), Rate: rate}
}

// Play blocks until the cue has played or ctx is done.
func (c *Cue) Play(ctx context.Context) error {
	return play(ctx, c.clip)
}

func play(ctx context.Context, clip audioconv.Clip) error {
	output.mu.Lock()
	defer output.mu.Unlock()

	done := make(chan struct{})
	speaker.Play(beep.Seq(clip.Streamer(), beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
