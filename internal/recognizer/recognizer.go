// Package recognizer implements speech.Recognizer on local backends: the
// microphone with whisper, an external recognizer process, or a directory
// of recorded clips.
package recognizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"vista/pkg/speech"
	"vista/pkg/stt"
)

// Source yields utterances for one stream.
type Source interface {
	// Next blocks for the next utterance. "" means a stretch without
	// speech; io.EOF means the source is exhausted.
	Next(ctx context.Context) (string, error)
	Close() error
}

// Backend opens sources.
type Backend interface {
	Name() string
	Available() error
	Open(ctx context.Context, opts speech.Options) (Source, error)
}

// Transcriber turns 16 kHz mono PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

// Recognizer adapts a Backend to speech.Recognizer.
type Recognizer struct {
	backend Backend
	logger  *slog.Logger
}

// New returns a recognizer over backend.
func New(backend Backend, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		backend: backend,
		logger:  logger.With("component", "recognizer", "backend", backend.Name()),
	}
}

// Available implements speech.Recognizer.
func (r *Recognizer) Available() error { return r.backend.Available() }

// Release implements speech.Releaser for backends that hold resources
// between streams.
func (r *Recognizer) Release() error {
	rel, ok := r.backend.(speech.Releaser)
	if !ok {
		return nil
	}
	r.logger.Debug("releasing backend")
	return rel.Release()
}

// NewStream implements speech.Recognizer.
func (r *Recognizer) NewStream() (speech.Stream, error) {
	return &Stream{backend: r.backend, logger: r.logger}, nil
}

// Stream pulls utterances from a Source on its own goroutine and reports
// them to the attached handlers. Handlers must not call Stop.
type Stream struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.Mutex
	h       speech.Handlers
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Attach implements speech.Stream.
func (s *Stream) Attach(h speech.Handlers) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

// Detach implements speech.Stream.
func (s *Stream) Detach() {
	s.mu.Lock()
	s.h = speech.Handlers{}
	s.mu.Unlock()
}

func (s *Stream) handlers() speech.Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// Start implements speech.Stream.
func (s *Stream) Start(opts speech.Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return speech.ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running, s.cancel, s.done = true, cancel, done
	s.mu.Unlock()

	src, err := s.backend.Open(ctx, opts)
	if err != nil {
		cancel()
		close(done)
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	if h := s.handlers(); h.OnStart != nil {
		h.OnStart()
	}
	go s.loop(ctx, src, opts, done)
	return nil
}

// Stop implements speech.Stream. It returns after the loop has exited.
func (s *Stream) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Stream) loop(ctx context.Context, src Source, opts speech.Options, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Debug("close source", "err", err)
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if h := s.handlers(); h.OnEnd != nil {
			h.OnEnd()
		}
	}()

	for {
		text, err := src.Next(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("recognition failed", "err", err)
				if h := s.handlers(); h.OnError != nil {
					h.OnError(err)
				}
			}
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			if !opts.Continuous {
				return
			}
			continue
		}
		s.logger.Debug("transcript", "text", text)
		if h := s.handlers(); h.OnResult != nil {
			h.OnResult(text)
		}
		if !opts.Continuous {
			return
		}
	}
}

var (
	_ speech.Recognizer = (*Recognizer)(nil)
	_ speech.Releaser   = (*Recognizer)(nil)
	_ speech.Stream     = (*Stream)(nil)
)
