package recognizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"vista/pkg/speech"
	"vista/pkg/stt"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// scripted returns queued results, then blocks until ctx is done.
type scripted struct {
	mu      sync.Mutex
	steps   []step
	openErr error
	closed  int
}

type step struct {
	text string
	err  error
}

func (s *scripted) Name() string     { return "scripted" }
func (s *scripted) Available() error { return nil }

func (s *scripted) Open(context.Context, speech.Options) (Source, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s, nil
}

func (s *scripted) Next(ctx context.Context) (string, error) {
	s.mu.Lock()
	if len(s.steps) > 0 {
		st := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return st.text, st.err
	}
	s.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *scripted) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// events records handler calls.
type events struct {
	mu   sync.Mutex
	log  []string
	ends chan struct{}
}

func newEvents() *events { return &events{ends: make(chan struct{}, 4)} }

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) handlers() speech.Handlers {
	return speech.Handlers{
		OnStart:  func() { e.add("start") },
		OnResult: func(text string) { e.add("result:" + text) },
		OnError:  func(err error) { e.add("error:" + err.Error()) },
		OnEnd: func() {
			e.add("end")
			e.ends <- struct{}{}
		},
	}
}

func (e *events) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-e.ends:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never ended")
	}
}

func (e *events) got() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.log)
}

func startStream(t *testing.T, b Backend, opts speech.Options) (speech.Stream, *events) {
	t.Helper()
	s, err := New(b, quiet()).NewStream()
	if err != nil {
		t.Fatal(err)
	}
	ev := newEvents()
	s.Attach(ev.handlers())
	if err := s.Start(opts); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s, ev
}

func TestStreamContinuous(t *testing.T) {
	b := &scripted{steps: []step{{text: "hello"}, {text: "  "}, {text: "hey india"}, {err: io.EOF}}}
	_, ev := startStream(t, b, speech.DefaultOptions("en-IN"))
	ev.waitEnd(t)

	want := []string{"start", "result:hello", "result:hey india", "end"}
	if got := ev.got(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if b.closed != 1 {
		t.Errorf("source closed %d times", b.closed)
	}
}

func TestStreamOneShot(t *testing.T) {
	tests := []struct {
		name  string
		steps []step
		want  []string
	}{
		{"result", []step{{text: "describe"}, {text: "ignored"}}, []string{"start", "result:describe", "end"}},
		{"silence", []step{{text: ""}, {text: "ignored"}}, []string{"start", "end"}},
		{"error", []step{{err: errors.New("boom")}}, []string{"start", "error:boom", "end"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := speech.DefaultOptions("en-IN")
			opts.Continuous = false
			_, ev := startStream(t, &scripted{steps: tt.steps}, opts)
			ev.waitEnd(t)
			if got := ev.got(); !slices.Equal(got, tt.want) {
				t.Errorf("events = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStreamStop(t *testing.T) {
	s, ev := startStream(t, &scripted{}, speech.DefaultOptions("en-IN"))
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	ev.waitEnd(t)
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if got := ev.got(); !slices.Equal(got, []string{"start", "end"}) {
		t.Errorf("events = %v", got)
	}
}

func TestStreamDetachSilencesEvents(t *testing.T) {
	s, ev := startStream(t, &scripted{}, speech.DefaultOptions("en-IN"))
	s.Detach()
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if got := ev.got(); !slices.Equal(got, []string{"start"}) {
		t.Errorf("events = %v, want only start", got)
	}
}

func TestStreamStartTwice(t *testing.T) {
	s, _ := startStream(t, &scripted{}, speech.DefaultOptions("en-IN"))
	if err := s.Start(speech.DefaultOptions("en-IN")); !errors.Is(err, speech.ErrAlreadyStarted) {
		t.Errorf("Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStreamOpenError(t *testing.T) {
	s, _ := New(&scripted{openErr: speech.ErrPermission}, quiet()).NewStream()
	if err := s.Start(speech.DefaultOptions("en-IN")); !errors.Is(err, speech.ErrPermission) {
		t.Errorf("Start = %v, want ErrPermission", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestListenOnceOverStream(t *testing.T) {
	rec := New(&scripted{steps: []step{{text: "What is in front of me"}}}, quiet())
	got, err := speech.ListenOnce(context.Background(), rec, speech.DefaultOptions("en-IN"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got != "what is in front of me" {
		t.Errorf("ListenOnce = %q", got)
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestReplayScriptsSession(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"02.txt":    "what is in front of me\n",
		"01.txt":    "hey india",
		"notes.md":  "skipped",
		"03.txt":    "hey india",
		"README":    "skipped",
		"04.TXT":    "describe",
		"zz.ignore": "skipped",
	})
	r := &Replay{Dir: dir}
	if err := r.Available(); err != nil {
		t.Fatalf("Available: %v", err)
	}

	_, ev := startStream(t, r, speech.DefaultOptions("en-IN"))
	ev.waitEnd(t)

	want := []string{"start", "result:hey india", "result:what is in front of me", "result:hey india", "result:describe", "end"}
	if got := ev.got(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining = %d", r.Remaining())
	}
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(_ context.Context, pcm []float32, _ stt.Options) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, stt.ErrNoAudio
	}
	return stt.Result{Text: f.text}, nil
}

func TestReplayAvailability(t *testing.T) {
	if err := (&Replay{Dir: filepath.Join(t.TempDir(), "missing")}).Available(); !errors.Is(err, speech.ErrUnsupported) {
		t.Errorf("missing dir: %v", err)
	}
	if err := (&Replay{Dir: t.TempDir()}).Available(); !errors.Is(err, speech.ErrUnsupported) {
		t.Errorf("empty dir: %v", err)
	}

	dir := writeFiles(t, map[string]string{"01.wav": "RIFF"})
	if err := (&Replay{Dir: dir}).Available(); !errors.Is(err, speech.ErrUnsupported) {
		t.Errorf("audio without model: %v", err)
	}
	if err := (&Replay{Dir: dir, Transcriber: fakeTranscriber{}}).Available(); err != nil {
		t.Errorf("audio with model: %v", err)
	}
}

func TestProcessBackend(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args: []string{"-c", `sleep 0.1
echo '{"type":"partial","text":"hey"}'
echo '{"event":"transcript","payload":{"transcript":"hey india"}}'
echo 'describe'`},
	}, quiet())
	defer p.Close()

	if err := p.Available(); err != nil {
		t.Fatalf("Available: %v", err)
	}
	_, ev := startStream(t, p, speech.DefaultOptions("en-IN"))
	ev.waitEnd(t)

	want := []string{"start", "result:hey india", "result:describe", "end"}
	if got := ev.got(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestProcessUnavailable(t *testing.T) {
	for _, cmd := range []string{"", "definitely-not-a-recognizer-binary"} {
		if err := NewProcess(ProcessConfig{Command: cmd}, quiet()).Available(); !errors.Is(err, speech.ErrUnsupported) {
			t.Errorf("Available(%q) = %v, want ErrUnsupported", cmd, err)
		}
	}
}

func TestProcessReleaseEndsChild(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", "echo 'hey india'; exec sleep 30"},
	}, quiet())
	defer p.Close()

	rec := New(p, quiet())
	s, err := rec.NewStream()
	if err != nil {
		t.Fatal(err)
	}
	ev := newEvents()
	s.Attach(ev.handlers())
	if err := s.Start(speech.DefaultOptions("en-IN")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for !slices.Contains(ev.got(), "result:hey india") {
		if time.Now().After(deadline) {
			t.Fatalf("no transcript, events = %v", ev.got())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := rec.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// the child is gone, so its output closes and the stream ends
	ev.waitEnd(t)

	p.mu.Lock()
	running := p.lines != nil
	p.mu.Unlock()
	if running {
		t.Error("process still registered after Release")
	}
}

func TestReleaseWithoutResources(t *testing.T) {
	if err := New(&scripted{}, quiet()).Release(); err != nil {
		t.Errorf("Release = %v, want nil for a backend without resources", err)
	}
}
