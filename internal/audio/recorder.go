// Package audio captures microphone input and manages other applications'
// volume while the daemon speaks.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"vista/pkg/audioconv"
)

// ErrNoInput is returned when no capture device is available.
var ErrNoInput = errors.New("audio: no input device")

// VADConfig tunes the energy-based utterance detector.
type VADConfig struct {
	SampleRate      int
	FrameSize       int           // samples per frame
	Threshold       float64       // RMS above which a frame is voiced
	TrailingSilence time.Duration // silence that ends an utterance
	MaxUtterance    time.Duration
	IdleTimeout     time.Duration // give up when nothing is voiced; 0 waits forever
}

// DefaultVADConfig returns 20 ms frames at 16 kHz.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SampleRate:      audioconv.WhisperRate,
		FrameSize:       320,
		Threshold:       0.015,
		TrailingSilence: 600 * time.Millisecond,
		MaxUtterance:    10 * time.Second,
	}
}

// Segmenter cuts one utterance out of a frame sequence.
type Segmenter struct {
	cfg      VADConfig
	frameDur time.Duration

	out      []float32
	speaking bool
	silence  time.Duration
	idle     time.Duration
	voiced   time.Duration
}

// NewSegmenter returns a segmenter for cfg.
func NewSegmenter(cfg VADConfig) *Segmenter {
	return &Segmenter{
		cfg:      cfg,
		frameDur: time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate),
	}
}

// Push feeds one frame and reports whether the utterance is complete.
func (s *Segmenter) Push(frame []float32) bool {
	if audioconv.RMS(frame) > s.cfg.Threshold {
		s.speaking = true
		s.silence = 0
		s.out = append(s.out, frame...)
	} else if s.speaking {
		s.silence += s.frameDur
		if s.silence >= s.cfg.TrailingSilence {
			return true
		}
		s.out = append(s.out, frame...)
	} else {
		s.idle += s.frameDur
		return s.cfg.IdleTimeout > 0 && s.idle >= s.cfg.IdleTimeout
	}

	s.voiced += s.frameDur
	return s.cfg.MaxUtterance > 0 && s.voiced >= s.cfg.MaxUtterance
}

// Samples returns the captured utterance, nil if nothing was voiced.
func (s *Segmenter) Samples() []float32 {
	if !s.speaking {
		return nil
	}
	return s.out
}

// Recorder reads the default input device through portaudio.
type Recorder struct {
	cfg VADConfig

	mu   sync.Mutex
	init bool

	// held shared by each recording so Close waits for them to end
	use sync.RWMutex
}

// NewRecorder returns a recorder. Call Init before recording.
func NewRecorder(cfg VADConfig) *Recorder {
	return &Recorder{cfg: cfg}
}

// Init initializes portaudio and checks for an input device.
func (r *Recorder) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.init {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoInput, err)
	}
	r.init = true
	return nil
}

// Close releases portaudio once running recordings have returned.
func (r *Recorder) Close() error {
	r.use.Lock()
	defer r.use.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.init {
		return nil
	}
	r.init = false
	return portaudio.Terminate()
}

// Utterance records until a voiced segment is followed by silence, idle
// passes without speech, or ctx is done. A zero idle waits for speech
// indefinitely. It returns nil samples when nothing was said.
func (r *Recorder) Utterance(ctx context.Context, idle time.Duration) ([]float32, error) {
	r.use.RLock()
	defer r.use.RUnlock()

	buf := make([]float32, r.cfg.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(r.cfg.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input: %w", err)
	}
	defer stream.Stop()

	cfg := r.cfg
	cfg.IdleTimeout = idle
	seg := NewSegmenter(cfg)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		if seg.Push(buf) {
			return seg.Samples(), nil
		}
	}
}
