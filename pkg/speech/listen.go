package speech

import (
	"context"
	"fmt"
	"time"
)

// stopGrace bounds how long ListenOnce waits for a stream to stop. A
// backend busy finishing an utterance keeps stopping in the background.
const stopGrace = 100 * time.Millisecond

// ListenOnce opens a non-continuous stream and waits for a single utterance.
//
// It returns the normalized transcript, "" when the stream ends without speech
// or the timeout fires first, and an error when recognition fails. The stream
// is always detached before ListenOnce returns, so a late result never
// reaches the caller. Stopping is waited for only up to stopGrace, which
// keeps the window bounded by timeout even when the backend is slow to stop.
func ListenOnce(ctx context.Context, rec Recognizer, opts Options, timeout time.Duration) (string, error) {
	stream, err := rec.NewStream()
	if err != nil {
		return "", fmt.Errorf("new stream: %w", err)
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	settle := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	stream.Attach(Handlers{
		OnResult: func(text string) { settle(outcome{text: Normalize(text)}) },
		OnError:  func(err error) { settle(outcome{err: err}) },
		OnEnd:    func() { settle(outcome{}) },
	})
	defer func() {
		stream.Detach()
		stopWithin(stream, stopGrace)
	}()

	opts.Continuous = false
	opts.MaxAlternatives = 1
	opts.InterimResults = false
	if err := stream.Start(opts); err != nil {
		return "", fmt.Errorf("start stream: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.text, o.err
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// stopWithin stops s and waits up to grace for it. Handlers are already
// detached, so a late stop delivers nothing.
func stopWithin(s Stream, grace time.Duration) {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = s.Stop()
	}()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-stopped:
	case <-t.C:
	}
}
