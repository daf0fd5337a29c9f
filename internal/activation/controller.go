// Package activation runs the wake-phrase loop: listen for the wake phrase,
// take one command, capture and describe a frame, speak, and listen again.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vista/internal/scene"
	"vista/pkg/detect"
	"vista/pkg/speech"
)

// ErrBusy is returned by Trigger while a cycle is in progress.
var ErrBusy = errors.New("activation: session busy")

// FrameSource yields JPEG frames from a camera.
type FrameSource interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Detector finds objects in a JPEG frame.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]detect.Detection, error)
}

// Warmer is implemented by detectors that load their model lazily.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Speaker speaks text. Say reports whether the text was accepted; Wait
// blocks until the current utterance has finished.
type Speaker interface {
	Say(ctx context.Context, text string) bool
	Wait(ctx context.Context) error
}

// Cue plays the wake confirmation sound.
type Cue interface {
	Play(ctx context.Context) error
}

// Haptics vibrates with alternating on/off durations.
type Haptics interface {
	Vibrate(pattern ...time.Duration)
}

// IntentMatcher decides commands the built-in rules reject.
type IntentMatcher interface {
	Match(ctx context.Context, command string) (bool, error)
}

// Deps are the collaborators of a Controller. Recognizer, Frames, Detector
// and Speaker are required.
type Deps struct {
	Recognizer speech.Recognizer
	Frames     FrameSource
	Detector   Detector
	Speaker    Speaker
	Describer  scene.Describer
	Cue        Cue
	Haptics    Haptics
	Matcher    IntentMatcher
	Observer   Observer
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	State      State
	Running    bool
	Continuous bool
	Status     string
	LastSpoken string
}

type eventKind int

const (
	evWake eventKind = iota
	evEnd
	evError
	evRestart
	evToggle
)

type event struct {
	kind   eventKind
	gen    uint64
	text   string
	err    error
	manual bool
}

// Controller owns one activation session. Stream callbacks only enqueue
// events; a single worker goroutine runs every cycle, so a wake heard while
// a cycle is in progress is dropped rather than queued.
//
// Each stream is tagged with a generation. Tearing a stream down bumps the
// generation, and events carrying an older one are discarded.
type Controller struct {
	cfg    Config
	rules  Rules
	deps   Deps
	obs    Observer
	logger *slog.Logger

	lifecycle sync.Mutex // serializes Start and Stop

	mu         sync.Mutex
	state      State
	running    bool
	continuous bool
	gen        uint64
	stream     speech.Stream
	cameraOpen bool
	events     chan event
	ctx        context.Context
	cancel     context.CancelFunc
	restart    *time.Timer
	status     string
	lastSpoken string

	wg sync.WaitGroup
}

// New validates cfg and returns an idle controller.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("activation config: %w", err)
	}
	switch {
	case deps.Recognizer == nil:
		return nil, errors.New("activation: recognizer is required")
	case deps.Frames == nil:
		return nil, errors.New("activation: frame source is required")
	case deps.Detector == nil:
		return nil, errors.New("activation: detector is required")
	case deps.Speaker == nil:
		return nil, errors.New("activation: speaker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	obs := deps.Observer
	if obs == nil {
		obs = Observers(nil)
	}
	return &Controller{
		cfg:        cfg,
		rules:      cfg.Rules(),
		deps:       deps,
		obs:        obs,
		logger:     logger.With("component", "activation"),
		continuous: cfg.Continuous,
		status:     StatusIdle,
	}, nil
}

// Start opens the camera, warms the detector and starts listening for the
// wake phrase. It returns a *PermissionError when the camera or microphone
// cannot be used and an *UnsupportedError when recognition is missing.
// Starting a running session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.Running() {
		return nil
	}
	// a session that went idle on its own may still be unwinding
	c.wg.Wait()

	c.setStatus(StatusInitializing)

	if err := c.deps.Frames.Open(ctx); err != nil {
		c.setStatus(StatusCameraDenied)
		c.say(ctx, MsgCameraUnavailable)
		return &PermissionError{Device: "camera", Err: err}
	}
	c.mu.Lock()
	c.cameraOpen = true
	c.mu.Unlock()

	if w, ok := c.deps.Detector.(Warmer); ok {
		c.setStatus(StatusLoadingModel)
		if err := w.Warmup(ctx); err != nil {
			c.closeCamera()
			c.setStatus(StatusIdle)
			return fmt.Errorf("activation: load detector: %w", err)
		}
		c.setStatus(StatusModelReady)
	}

	if err := c.deps.Recognizer.Available(); err != nil {
		c.closeCamera()
		return c.startFailure(ctx, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	events := make(chan event, 16)
	c.mu.Lock()
	c.running = true
	c.ctx, c.cancel = sctx, cancel
	c.events = events
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(sctx, events)

	if err := c.openStream(); err != nil {
		c.halt()
		c.wg.Wait()
		c.releaseRecognizer()
		c.closeCamera()
		return c.startFailure(ctx, err)
	}

	c.logger.Info("session started", "wake", c.cfg.WakePhrase, "locale", c.cfg.Locale, "continuous", c.Continuous())
	return nil
}

// Stop ends the session: stream callbacks are detached before the stream is
// stopped, in-flight work is cancelled, and the camera and recognizer are
// released. Stop is idempotent. It must not be called from an Observer.
func (c *Controller) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.halt()
	c.wg.Wait()
	relErr := c.releaseRecognizer()
	if err := c.closeCamera(); err != nil {
		return fmt.Errorf("activation: close camera: %w", err)
	}
	if relErr != nil {
		return fmt.Errorf("activation: release recognizer: %w", relErr)
	}
	return nil
}

// SetContinuousMode switches continuous recognition. A listening session
// tears its stream down and reopens it with the new mode.
func (c *Controller) SetContinuousMode(on bool) {
	c.mu.Lock()
	changed := c.continuous != on
	c.continuous = on
	if !changed || !c.running || c.state != Listening {
		c.mu.Unlock()
		return
	}
	ev := event{kind: evToggle, gen: c.gen}
	events, done := c.events, c.ctx.Done()
	c.mu.Unlock()

	c.logger.Info("continuous mode changed", "continuous", on)
	enqueue(events, done, ev)
}

// Trigger acts as if the wake phrase was heard. It returns ErrNotRunning
// when the session is stopped and ErrBusy outside the Listening state.
func (c *Controller) Trigger() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if c.state != Listening {
		c.mu.Unlock()
		return ErrBusy
	}
	c.acceptWakeLocked(event{kind: evWake, gen: c.gen, manual: true})
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Continuous reports whether continuous mode is on.
func (c *Controller) Continuous() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.continuous
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		Running:    c.running,
		Continuous: c.continuous,
		Status:     c.status,
		LastSpoken: c.lastSpoken,
	}
}

func (c *Controller) startFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, speech.ErrUnsupported):
		c.setStatus(StatusUnsupported)
		c.say(ctx, MsgUnsupported)
		return &UnsupportedError{Capability: "speech recognition", Err: err}
	case errors.Is(err, speech.ErrPermission):
		c.setStatus(StatusMicrophoneDenied)
		c.say(ctx, MsgMicrophoneDenied)
		return &PermissionError{Device: "microphone", Err: err}
	}
	c.setStatus(StatusIdle)
	return fmt.Errorf("activation: start recognition: %w", err)
}

// openStream starts a wake-phrase stream and moves to Listening.
func (c *Controller) openStream() error {
	s, err := c.deps.Recognizer.NewStream()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.gen++
	gen := c.gen
	c.stream = s
	opts := speech.DefaultOptions(c.cfg.Locale)
	opts.Continuous = c.continuous
	from := c.setStateLocked(Listening)
	c.mu.Unlock()
	c.notifyState(from, Listening)

	s.Attach(c.handlers(gen))
	if err := s.Start(opts); err != nil {
		c.mu.Lock()
		current := c.stream == s
		if current {
			c.stream = nil
			c.gen++
		}
		c.mu.Unlock()
		s.Detach()
		if !current {
			return nil
		}
		return err
	}

	// Stop, or a wake accepted by an observer, may have replaced the
	// stream while it was starting.
	c.mu.Lock()
	orphan := c.stream != s
	c.mu.Unlock()
	if orphan {
		s.Detach()
		_ = s.Stop()
	}
	return nil
}

// closeStream detaches and stops the wake-phrase stream, if any.
func (c *Controller) closeStream() {
	c.mu.Lock()
	s := c.stream
	c.stream = nil
	c.gen++
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.Detach()
	if err := s.Stop(); err != nil {
		c.logger.Debug("stop stream", "err", err)
	}
}

func (c *Controller) handlers(gen uint64) speech.Handlers {
	return speech.Handlers{
		OnStart: func() {
			if c.current(gen) {
				c.setStatus(StatusListening)
			}
		},
		OnResult: func(text string) { c.heard(gen, text) },
		OnError:  func(err error) { c.post(event{kind: evError, gen: gen, err: err}) },
		OnEnd:    func() { c.post(event{kind: evEnd, gen: gen}) },
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && gen == c.gen
}

// heard handles a final transcript from the wake-phrase stream.
func (c *Controller) heard(gen uint64, text string) {
	norm := speech.Normalize(text)

	c.mu.Lock()
	if !c.running || gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("late result dropped", "text", norm)
		return
	}
	if c.state != Listening {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("result ignored", "text", norm, "state", state)
		return
	}
	if !ContainsPhrase(norm, c.cfg.WakePhrase) {
		c.mu.Unlock()
		c.logger.Debug("heard", "text", norm)
		return
	}
	c.acceptWakeLocked(event{kind: evWake, gen: gen, text: norm})
}

// acceptWakeLocked moves to CommandWindow and hands the cycle to the worker.
// Called with c.mu held; returns with it released.
func (c *Controller) acceptWakeLocked(ev event) {
	from := c.setStateLocked(CommandWindow)
	events, done := c.events, c.ctx.Done()
	c.mu.Unlock()

	c.notifyState(from, CommandWindow)
	enqueue(events, done, ev)
}

func (c *Controller) post(ev event) {
	c.mu.Lock()
	if !c.running || ev.gen != c.gen {
		c.mu.Unlock()
		return
	}
	events, done := c.events, c.ctx.Done()
	c.mu.Unlock()
	enqueue(events, done, ev)
}

func enqueue(events chan<- event, done <-chan struct{}, ev event) {
	select {
	case events <- ev:
	case <-done:
	}
}

func (c *Controller) run(ctx context.Context, events <-chan event) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evWake:
		if c.valid(ev, CommandWindow) {
			c.cycle(ctx, ev)
		}
	case evEnd:
		if c.valid(ev, Listening) {
			c.logger.Info("recognition ended")
			c.closeStream()
			c.setStatus(StatusStoppedListening)
			c.recoverStream(ctx, nil)
		}
	case evError:
		if c.valid(ev, Listening) {
			c.logger.Warn("recognition error", "err", &RecognitionError{Err: ev.err})
			c.closeStream()
			c.recoverStream(ctx, ev.err)
		}
	case evRestart:
		if c.valid(ev, Restarting) {
			c.logger.Debug("restarting recognition")
			c.resume(ctx)
		}
	case evToggle:
		if c.valid(ev, Listening) {
			c.closeStream()
			c.scheduleRestart(c.cfg.ToggleDelay)
		}
	}
}

func (c *Controller) valid(ev event, want State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && ev.gen == c.gen && c.state == want
}

// cycle runs one wake → command → describe → speak round.
func (c *Controller) cycle(ctx context.Context, ev event) {
	c.logger.Info("wake phrase heard", "text", ev.text, "manual", ev.manual)
	c.closeStream()

	c.setStatus(StatusWakeHeard)
	if c.deps.Cue != nil {
		if err := c.deps.Cue.Play(ctx); err != nil {
			c.logger.Debug("play cue", "err", err)
		}
	}
	c.vibrate(PatternWake)

	c.setStatus(StatusListeningCommand)
	cmd, err := speech.ListenOnce(ctx, c.deps.Recognizer, speech.DefaultOptions(c.cfg.Locale), c.cfg.CommandTimeout)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Warn("command capture failed", "err", &RecognitionError{Err: err})
		c.setStatus(StatusCommandError)
		if errors.Is(err, speech.ErrPermission) {
			c.fatal(ctx)
			return
		}
		c.say(ctx, MsgCommandNotHeard)
		c.resume(ctx)
		return
	}

	intent := c.classify(ctx, cmd)
	c.logger.Info("command", "text", cmd, "intent", intent)
	if intent == IntentNone {
		c.setStatus(StatusNotRecognized)
		c.say(ctx, MsgCommandNotRecognized)
		c.resume(ctx)
		return
	}

	if !c.transition(Capturing) {
		return
	}
	if intent == IntentKeyword || intent == IntentImplicit {
		c.setStatus(StatusCapturing)
	} else {
		c.setStatus(StatusCapturingFallback)
	}
	c.analyze(ctx)
	c.resume(ctx)
}

func (c *Controller) classify(ctx context.Context, cmd string) Intent {
	intent := c.rules.Classify(cmd)
	if intent != IntentNone || c.deps.Matcher == nil {
		return intent
	}
	mctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()
	ok, err := c.deps.Matcher.Match(mctx, cmd)
	if err != nil {
		c.logger.Warn("intent matcher failed", "err", err)
		return IntentNone
	}
	if ok {
		return IntentModel
	}
	return IntentNone
}

func (c *Controller) analyze(ctx context.Context) {
	sentence, err := c.describe(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Error("scene analysis failed", "err", err)
		c.setStatus(StatusAnalysisError)
		c.say(ctx, MsgAnalysisFailed)
		return
	}
	if !c.transition(Speaking) {
		return
	}
	c.say(ctx, sentence)
}

func (c *Controller) describe(ctx context.Context) (sentence string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetectionError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	c.setStatus(StatusProcessing)
	c.vibrate(PatternProcessing)

	frame, err := c.deps.Frames.Capture(ctx)
	if err != nil {
		return "", &CaptureError{Err: err}
	}
	dets, err := c.deps.Detector.Detect(ctx, frame)
	if err != nil {
		return "", &DetectionError{Err: err}
	}
	c.obs.Detected(dets)
	c.logger.Info("detections", "count", len(dets), "labels", detect.Labels(dets))

	if len(dets) == 0 {
		c.setStatus(StatusNoObjects)
	} else {
		c.setStatus(StatusDone)
	}
	c.vibrate(PatternDone)
	return c.deps.Describer.Describe(dets), nil
}

// resume reopens the wake-phrase stream after a cycle or a restart delay.
func (c *Controller) resume(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := c.openStream(); err != nil {
		c.recoverStream(ctx, err)
	}
}

// recoverStream applies the restart policy after the stream was lost.
func (c *Controller) recoverStream(ctx context.Context, err error) {
	if errors.Is(err, ErrNotRunning) {
		return
	}
	if errors.Is(err, speech.ErrPermission) {
		c.fatal(ctx)
		return
	}
	if err != nil {
		c.logger.Warn("recognition stream lost", "err", err)
	}
	if !c.Continuous() {
		c.setStatus(StatusStoppedListening)
		c.halt()
		c.releaseRecognizer()
		c.closeCamera()
		return
	}
	c.scheduleRestart(c.cfg.RestartDelay)
}

func (c *Controller) scheduleRestart(delay time.Duration) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	from := c.setStateLocked(Restarting)
	if c.restart != nil {
		c.restart.Stop()
	}
	c.restart = time.AfterFunc(delay, func() {
		c.post(event{kind: evRestart, gen: gen})
	})
	c.mu.Unlock()

	c.notifyState(from, Restarting)
}

// fatal ends the session after the microphone became unusable.
func (c *Controller) fatal(ctx context.Context) {
	c.logger.Error("microphone unavailable, stopping session")
	c.setStatus(StatusMicrophoneDenied)
	c.say(ctx, MsgMicrophoneDenied)
	c.halt()
	c.releaseRecognizer()
	c.closeCamera()
}

// halt moves to Idle and cancels the session. It does not wait for the
// worker, so the worker may call it.
func (c *Controller) halt() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.gen++
	s := c.stream
	c.stream = nil
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
	cancel := c.cancel
	from := c.setStateLocked(Idle)
	c.mu.Unlock()

	if s != nil {
		s.Detach()
		if err := s.Stop(); err != nil {
			c.logger.Debug("stop stream", "err", err)
		}
	}
	cancel()

	c.notifyState(from, Idle)
	c.setStatus(StatusIdle)
	c.logger.Info("session stopped")
}

// releaseRecognizer frees a device or helper process the recognizer keeps
// between streams. Start acquires it again.
func (c *Controller) releaseRecognizer() error {
	rel, ok := c.deps.Recognizer.(speech.Releaser)
	if !ok {
		return nil
	}
	if err := rel.Release(); err != nil {
		c.logger.Warn("release recognizer", "err", err)
		return err
	}
	return nil
}

func (c *Controller) closeCamera() error {
	c.mu.Lock()
	open := c.cameraOpen
	c.cameraOpen = false
	c.mu.Unlock()
	if !open {
		return nil
	}
	return c.deps.Frames.Close()
}

// transition moves a running session to the given state.
func (c *Controller) transition(to State) bool {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return false
	}
	from := c.setStateLocked(to)
	c.mu.Unlock()
	c.notifyState(from, to)
	return true
}

func (c *Controller) setStateLocked(to State) State {
	from := c.state
	c.state = to
	return from
}

func (c *Controller) notifyState(from, to State) {
	if from == to {
		return
	}
	c.logger.Debug("state", "from", from, "to", to)
	c.obs.StateChanged(from, to)
}

func (c *Controller) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.logger.Info("status", "status", status)
	c.obs.StatusChanged(status)
}

func (c *Controller) say(ctx context.Context, text string) {
	if !c.deps.Speaker.Say(ctx, text) {
		c.logger.Debug("speech suppressed", "text", text)
		return
	}
	c.mu.Lock()
	c.lastSpoken = text
	c.mu.Unlock()
	c.obs.Spoke(text)

	if !c.cfg.AwaitSpeech {
		return
	}
	if err := c.deps.Speaker.Wait(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("wait for speech", "err", err)
	}
}

func (c *Controller) vibrate(pattern []time.Duration) {
	if c.deps.Haptics != nil {
		c.deps.Haptics.Vibrate(pattern...)
	}
}
