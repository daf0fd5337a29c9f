// Package stt transcribes 16 kHz mono PCM with whisper.cpp.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var (
	// ErrModelNotFound is returned when the model file is missing.
	ErrModelNotFound = errors.New("stt: whisper model not found")

	// ErrNoAudio is returned for empty input.
	ErrNoAudio = errors.New("stt: no audio samples")
)

// Options tunes a transcription.
type Options struct {
	Language      string // whisper language code, "auto" to detect
	Threads       int    // <=0 uses NumCPU
	InitialPrompt string
	BeamSize      int // 0 keeps greedy decoding
}

// Segment is one decoded span.
type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

// Result is a finished transcription.
type Result struct {
	Text     string
	Segments []Segment
	Language string
}

// Transcriber owns a loaded model. Calls are serialized.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

// CheckModel reports ErrModelNotFound when path does not exist.
func CheckModel(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrModelNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	return nil
}

// NewTranscriber loads the model at modelPath.
func NewTranscriber(modelPath string) (*Transcriber, error) {
	if err := CheckModel(modelPath); err != nil {
		return nil, err
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m}, nil
}

// Close frees the model.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Transcribe decodes pcm16k, mono float32 at 16 kHz.
func (t *Transcriber) Transcribe(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, ErrNoAudio
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return Result{}, errors.New("stt: transcriber closed")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language %q: %w", opt.Language, err)
	}
	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{Text: s.Text, StartSec: s.Start.Seconds(), EndSec: s.End.Seconds()})
		if text := CleanText(s.Text); text != "" {
			parts = append(parts, text)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}
	return Result{Text: strings.Join(parts, " "), Segments: segs, Language: lang}, nil
}

// nonSpeech matches annotations whisper emits for silence and noise, such
// as "[BLANK_AUDIO]" or "(music)".
var nonSpeech = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// CleanText strips non-speech annotations and collapses whitespace.
func CleanText(s string) string {
	return strings.Join(strings.Fields(nonSpeech.ReplaceAllString(s, " ")), " ")
}

// LanguageFromLocale maps a BCP 47 locale to a whisper language code:
// "en-IN" gives "en". Empty input gives "auto".
func LanguageFromLocale(locale string) string {
	tag := strings.ToLower(strings.TrimSpace(locale))
	if tag == "" {
		return "auto"
	}
	lang, _, _ := strings.Cut(strings.ReplaceAll(tag, "_", "-"), "-")
	return lang
}
