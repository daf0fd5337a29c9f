package speech

import (
	"sync"
)

// MockRecognizer implements Recognizer for tests. Every NewStream call
// returns a fresh MockStream that is also recorded in Streams.
type MockRecognizer struct {
	// AvailableErr is returned by Available.
	AvailableErr error

	// NewStreamErr is returned by NewStream when set.
	NewStreamErr error

	// OnStart is invoked after a stream starts successfully.
	OnStart func(s *MockStream, opts Options)

	mu       sync.Mutex
	streams  []*MockStream
	releases int
}

// NewMockRecognizer returns a recognizer that always succeeds.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{}
}

// Available returns AvailableErr.
func (m *MockRecognizer) Available() error { return m.AvailableErr }

// NewStream creates and records a new MockStream.
func (m *MockRecognizer) NewStream() (Stream, error) {
	if m.NewStreamErr != nil {
		return nil, m.NewStreamErr
	}
	s := &MockStream{owner: m}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Release records the call.
func (m *MockRecognizer) Release() error {
	m.mu.Lock()
	m.releases++
	m.mu.Unlock()
	return nil
}

// Releases returns how often Release was called.
func (m *MockRecognizer) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Streams returns every stream created so far.
func (m *MockRecognizer) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// Last returns the most recently created stream, or nil.
func (m *MockRecognizer) Last() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

// LastContinuous returns the most recent stream started in continuous mode.
func (m *MockRecognizer) LastContinuous() *MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.streams) - 1; i >= 0; i-- {
		s := m.streams[i]
		if opts, ok := s.Options(); ok && opts.Continuous {
			return s
		}
	}
	return nil
}

// MockStream implements Stream. Emit* methods deliver events the way a
// platform recognizer would.
type MockStream struct {
	owner *MockRecognizer

	// StartErr is returned by Start when set.
	StartErr error

	mu       sync.Mutex
	handlers Handlers
	stale    Handlers
	attached bool
	running  bool
	started  bool
	opts     Options
	calls    []string
}

// Attach installs handlers.
func (s *MockStream) Attach(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.stale = h
	s.attached = true
	s.calls = append(s.calls, "Attach")
	s.mu.Unlock()
}

// Detach removes handlers.
func (s *MockStream) Detach() {
	s.mu.Lock()
	s.handlers = Handlers{}
	s.attached = false
	s.calls = append(s.calls, "Detach")
	s.mu.Unlock()
}

// Start marks the stream running and fires OnStart.
func (s *MockStream) Start(opts Options) error {
	s.mu.Lock()
	s.calls = append(s.calls, "Start")
	if s.StartErr != nil {
		err := s.StartErr
		s.mu.Unlock()
		return err
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.running = true
	s.started = true
	s.opts = opts
	h := s.handlers
	s.mu.Unlock()

	if h.OnStart != nil {
		h.OnStart()
	}
	if s.owner != nil && s.owner.OnStart != nil {
		s.owner.OnStart(s, opts)
	}
	return nil
}

// Stop ends the stream and fires OnEnd on the attached handlers.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	s.calls = append(s.calls, "Stop")
	wasRunning := s.running
	s.running = false
	h := s.handlers
	s.mu.Unlock()

	if wasRunning && h.OnEnd != nil {
		h.OnEnd()
	}
	return nil
}

// Emit delivers a recognition result.
func (s *MockStream) Emit(text string) {
	if h := s.current(); h.OnResult != nil {
		h.OnResult(text)
	}
}

// EmitError delivers a recognition error.
func (s *MockStream) EmitError(err error) {
	if h := s.current(); h.OnError != nil {
		h.OnError(err)
	}
}

// EmitEnd ends the stream spontaneously.
func (s *MockStream) EmitEnd() {
	s.mu.Lock()
	s.running = false
	h := s.handlers
	s.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// EmitStale delivers a result through the handlers from the last Attach even
// if they were detached since, like a platform event already in flight.
func (s *MockStream) EmitStale(text string) {
	s.mu.Lock()
	h := s.stale
	s.mu.Unlock()
	if h.OnResult != nil {
		h.OnResult(text)
	}
}

// EmitStaleEnd is EmitStale for the end event.
func (s *MockStream) EmitStaleEnd() {
	s.mu.Lock()
	h := s.stale
	s.mu.Unlock()
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// Running reports whether the stream is started and not stopped.
func (s *MockStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Attached reports whether handlers are installed.
func (s *MockStream) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Options returns the options passed to Start.
func (s *MockStream) Options() (Options, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts, s.started
}

// Calls returns the method calls in order.
func (s *MockStream) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *MockStream) current() Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

var (
	_ Recognizer = (*MockRecognizer)(nil)
	_ Releaser   = (*MockRecognizer)(nil)
	_ Stream     = (*MockStream)(nil)
)
