package recognizer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"vista/pkg/audioconv"
	"vista/pkg/speech"
	"vista/pkg/stt"
)

// Replay feeds recorded utterances from a directory, one file per
// utterance in lexical order. Audio clips are transcribed; .txt files are
// taken as the transcript itself. The cursor is shared by all streams, so
// a directory scripts a whole session.
type Replay struct {
	Dir         string
	Transcriber Transcriber
	Language    string
	Gap         time.Duration // pause before each utterance

	mu     sync.Mutex
	files  []string
	loaded bool
	next   int
}

var replayExts = []string{".txt", ".wav", ".mp3", ".ogg", ".oga", ".opus"}

// Name implements Backend.
func (r *Replay) Name() string { return "replay" }

// Available implements Backend.
func (r *Replay) Available() error {
	files, err := r.load()
	if err != nil {
		return fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no clips in %s", speech.ErrUnsupported, r.Dir)
	}
	if r.Transcriber == nil {
		for _, f := range files {
			if filepath.Ext(f) != ".txt" {
				return fmt.Errorf("%w: %s needs a whisper model", speech.ErrUnsupported, filepath.Base(f))
			}
		}
	}
	return nil
}

func (r *Replay) load() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.files, nil
	}
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(replayExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		r.files = append(r.files, filepath.Join(r.Dir, e.Name()))
	}
	slices.Sort(r.files)
	r.loaded = true
	return r.files, nil
}

// Open implements Backend.
func (r *Replay) Open(_ context.Context, _ speech.Options) (Source, error) {
	if _, err := r.load(); err != nil {
		return nil, err
	}
	return &replaySource{r: r}, nil
}

// Remaining reports how many clips are left.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files) - r.next
}

func (r *Replay) take() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.files) {
		return "", false
	}
	f := r.files[r.next]
	r.next++
	return f, true
}

type replaySource struct {
	r *Replay
}

func (s *replaySource) Next(ctx context.Context) (string, error) {
	if s.r.Gap > 0 {
		t := time.NewTimer(s.r.Gap)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	path, ok := s.r.take()
	if !ok {
		return "", io.EOF
	}
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	clip, err := audioconv.DecodeFile(ctx, path, audioconv.Options{Rate: audioconv.WhisperRate, MaxDuration: 30 * time.Second})
	if err != nil {
		return "", err
	}
	res, err := s.r.Transcriber.Transcribe(ctx, clip.Samples, stt.Options{Language: s.r.Language})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}
	return stt.CleanText(res.Text), nil
}

func (s *replaySource) Close() error { return nil }
