package speaker

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"
)

// blockingSynth speaks until released or cancelled.
type blockingSynth struct {
	mu        sync.Mutex
	started   []string
	cancelled []string
	finished  []string
	release   chan struct{}
}

func newBlockingSynth() *blockingSynth {
	return &blockingSynth{release: make(chan struct{})}
}

func (b *blockingSynth) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	b.started = append(b.started, text)
	b.mu.Unlock()

	select {
	case <-b.release:
		b.mu.Lock()
		b.finished = append(b.finished, text)
		b.mu.Unlock()
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		b.cancelled = append(b.cancelled, text)
		b.mu.Unlock()
		return ctx.Err()
	}
}

func (b *blockingSynth) snapshot() (started, cancelled, finished []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.started), slices.Clone(b.cancelled), slices.Clone(b.finished)
}

type instantSynth struct {
	mu   sync.Mutex
	said []string
}

func (s *instantSynth) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
	return nil
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestInterruptCancelsCurrentUtterance(t *testing.T) {
	synth := newBlockingSynth()
	sp := New(synth, Options{Policy: PolicyInterrupt}, quiet())
	ctx := context.Background()

	if !sp.Say(ctx, "first") {
		t.Fatal("first utterance rejected")
	}
	waitUntil(t, "first utterance", func() bool {
		started, _, _ := synth.snapshot()
		return len(started) == 1
	})

	if !sp.Say(ctx, "second") {
		t.Fatal("second utterance rejected")
	}
	waitUntil(t, "second utterance", func() bool {
		started, _, _ := synth.snapshot()
		return len(started) == 2
	})
	close(synth.release)
	if err := sp.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	started, cancelled, finished := synth.snapshot()
	if !slices.Equal(started, []string{"first", "second"}) {
		t.Errorf("started = %v", started)
	}
	if !slices.Equal(cancelled, []string{"first"}) {
		t.Errorf("cancelled = %v", cancelled)
	}
	if !slices.Equal(finished, []string{"second"}) {
		t.Errorf("finished = %v", finished)
	}
}

func TestSuppressDropsRepeatsAndCooldown(t *testing.T) {
	now := time.Unix(1000, 0)
	synth := &instantSynth{}
	sp := New(synth, Options{
		Policy:   PolicySuppress,
		Cooldown: 2500 * time.Millisecond,
		Now:      func() time.Time { return now },
	}, quiet())
	ctx := context.Background()

	steps := []struct {
		advance time.Duration
		text    string
		want    bool
	}{
		{0, "I see a person.", true},
		{time.Second, "I see a dog.", false},
		{3 * time.Second, "I see a person.", false},
		{0, "I see a dog.", true},
		{3 * time.Second, "I see a cat.", true},
	}
	for i, st := range steps {
		now = now.Add(st.advance)
		if got := sp.Say(ctx, st.text); got != st.want {
			t.Errorf("step %d: Say(%q) = %v, want %v", i, st.text, got, st.want)
		}
		_ = sp.Wait(ctx)
	}

	synth.mu.Lock()
	defer synth.mu.Unlock()
	if want := []string{"I see a person.", "I see a dog.", "I see a cat."}; !slices.Equal(synth.said, want) {
		t.Errorf("said = %v, want %v", synth.said, want)
	}
}

func TestSayRejectsBlank(t *testing.T) {
	sp := New(&instantSynth{}, Options{}, quiet())
	if sp.Say(context.Background(), "   ") {
		t.Error("blank text accepted")
	}
	if err := sp.Wait(context.Background()); err != nil {
		t.Errorf("Wait with nothing spoken: %v", err)
	}
}

func TestUtteranceOutlivesCallerContext(t *testing.T) {
	synth := newBlockingSynth()
	sp := New(synth, Options{}, quiet())

	ctx, cancel := context.WithCancel(context.Background())
	sp.Say(ctx, "hello")
	cancel()
	close(synth.release)

	if err := sp.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if _, cancelled, finished := synth.snapshot(); len(cancelled) != 0 || len(finished) != 1 {
		t.Errorf("cancelled = %v finished = %v", cancelled, finished)
	}
}

func TestCloseCancels(t *testing.T) {
	synth := newBlockingSynth()
	sp := New(synth, Options{}, quiet())
	sp.Say(context.Background(), "long story")

	if err := sp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// the utterance may be cancelled before or after the backend saw it
	if _, _, finished := synth.snapshot(); len(finished) != 0 {
		t.Errorf("finished = %v, want none", finished)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyInterrupt, "interrupt": PolicyInterrupt, " Suppress ": PolicySuppress} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("shout"); err == nil {
		t.Error("expected error")
	}
}
