package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vista/internal/audio"
	"vista/pkg/speech"
	"vista/pkg/stt"
)

// Mic records utterances from the default input device and transcribes
// them with whisper.
type Mic struct {
	Recorder    *audio.Recorder
	Transcriber Transcriber
	ModelPath   string
	Language    string

	// CommandIdle ends a non-continuous stream when nothing is said.
	CommandIdle time.Duration
}

// Name implements Backend.
func (m *Mic) Name() string { return "mic" }

// Available implements Backend.
func (m *Mic) Available() error {
	if m.Transcriber == nil {
		if err := stt.CheckModel(m.ModelPath); err != nil {
			return fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
		}
		return fmt.Errorf("%w: whisper model not loaded", speech.ErrUnsupported)
	}
	if err := m.Recorder.Init(); err != nil {
		if errors.Is(err, audio.ErrNoInput) {
			return fmt.Errorf("%w: %v", speech.ErrPermission, err)
		}
		return fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
	}
	return nil
}

// Open implements Backend.
func (m *Mic) Open(_ context.Context, opts speech.Options) (Source, error) {
	if m.Transcriber == nil {
		return nil, fmt.Errorf("%w: whisper model not loaded", speech.ErrUnsupported)
	}
	idle := time.Duration(0)
	if !opts.Continuous {
		idle = m.CommandIdle
	}
	return &micSource{mic: m, idle: idle}, nil
}

// Release closes the input device. Available opens it again.
func (m *Mic) Release() error { return m.Recorder.Close() }

type micSource struct {
	mic  *Mic
	idle time.Duration
}

func (s *micSource) Next(ctx context.Context) (string, error) {
	pcm, err := s.mic.Recorder.Utterance(ctx, s.idle)
	if err != nil {
		return "", err
	}
	if len(pcm) == 0 {
		return "", nil
	}
	res, err := s.mic.Transcriber.Transcribe(ctx, pcm, stt.Options{Language: s.mic.Language})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return stt.CleanText(res.Text), nil
}

func (s *micSource) Close() error { return nil }
