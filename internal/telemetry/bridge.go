// Package telemetry connects a session to the hub: state changes are
// broadcast and hub commands are applied to the session.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vista/internal/activation"
	"vista/pkg/detect"
	"vista/pkg/protocol"
)

// Session is the part of activation.Controller driven from the hub.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	Trigger() error
	SetContinuousMode(on bool)
	Snapshot() activation.Snapshot
}

// Publisher sends frames to the hub.
type Publisher interface {
	Transmit(v any) error
}

// Frame nouns and verbs understood by the bridge.
const (
	VerbState   = "STATE"
	VerbStart   = "START"
	VerbStop    = "STOP"
	VerbTrigger = "TRIGGER"
	VerbSet     = "SET"
	VerbStatus  = "STATUS"

	NounSession    = "SESSION"
	NounContinuous = "CONTINUOUS"
)

const queueSize = 32

// Bridge implements activation.Observer. Each session run gets a fresh id
// that tags its state frames.
type Bridge struct {
	shard   string
	pub     Publisher
	session Session
	logger  *slog.Logger

	mu sync.Mutex
	id string

	out chan []string
	in  chan *protocol.Message
}

// New returns a bridge publishing as shard. Call SetSession before Run.
func New(shard string, pub Publisher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		shard:  shard,
		pub:    pub,
		logger: logger.With("component", "telemetry"),
		id:     uuid.NewString(),
		out:    make(chan []string, queueSize),
		in:     make(chan *protocol.Message, queueSize),
	}
}

// SetSession installs the session commands are applied to.
func (b *Bridge) SetSession(s Session) { b.session = s }

// SessionID returns the id of the current session run.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// StateChanged queues a state frame. Leaving Idle starts a new session id.
func (b *Bridge) StateChanged(from, to activation.State) {
	b.mu.Lock()
	if from == activation.Idle && to != activation.Idle {
		b.id = uuid.NewString()
	}
	id := b.id
	b.mu.Unlock()
	b.queue([]string{protocol.Broadcast, VerbState, StateToken(to), id})
}

func (b *Bridge) StatusChanged(string)        {}
func (b *Bridge) Spoke(string)                {}
func (b *Bridge) Detected([]detect.Detection) {}

func (b *Bridge) queue(frame []string) {
	select {
	case b.out <- frame:
	default:
		b.logger.Warn("telemetry queue full, dropping frame", "frame", strings.Join(frame, ":"))
	}
}

// Inbound accepts a hub frame. It is meant as the protocol EmitOut
// callback and never blocks.
func (b *Bridge) Inbound(msg *protocol.Message) {
	if msg.To != b.shard {
		return
	}
	select {
	case b.in <- msg:
	default:
		b.logger.Warn("command queue full, dropping", "msg", msg.String())
	}
}

// Run publishes queued frames and applies hub commands until ctx ends.
func (b *Bridge) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-b.out:
				if err := b.pub.Transmit(frame); err != nil {
					b.logger.Debug("publish failed", "err", err)
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case msg := <-b.in:
			reply := b.Apply(ctx, msg)
			if err := b.pub.Transmit(reply); err != nil {
				b.logger.Debug("reply failed", "err", err)
			}
		}
	}
}

// Apply runs one hub command and returns the reply frame.
func (b *Bridge) Apply(ctx context.Context, msg *protocol.Message) *protocol.Message {
	reply := msg.Reply()
	if b.session == nil {
		reply.Error("NO_SESSION")
		return reply
	}
	b.logger.Info("hub command", "verb", msg.Verb, "noun", msg.Noun, "args", msg.Args, "from", msg.From)

	var err error
	switch {
	case msg.Verb == VerbStart && msg.Noun == NounSession:
		err = b.session.Start(ctx)
	case msg.Verb == VerbStop && msg.Noun == NounSession:
		err = b.session.Stop()
	case msg.Verb == VerbTrigger && msg.Noun == NounSession:
		err = b.session.Trigger()
	case msg.Verb == VerbStatus && msg.Noun == NounSession:
	case msg.Verb == VerbSet && msg.Noun == NounContinuous && len(msg.Args) == 1:
		switch strings.ToUpper(msg.Args[0]) {
		case "ON":
			b.session.SetContinuousMode(true)
		case "OFF":
			b.session.SetContinuousMode(false)
		default:
			reply.Error("BAD_ARG", msg.Args[0])
			return reply
		}
	default:
		reply.Error("UNKNOWN")
		return reply
	}
	if err != nil {
		b.logger.Warn("hub command failed", "verb", msg.Verb, "err", err)
		reply.Error(ErrorToken(err))
		return reply
	}

	snap := b.session.Snapshot()
	reply.Ok(msg.Noun, StateToken(snap.State), onOff(snap.Continuous))
	return reply
}

// StateToken renders a state for a frame.
func StateToken(s activation.State) string {
	return strings.ToUpper(s.String())
}

// ErrorToken names an error in a frame.
func ErrorToken(err error) string {
	var perm *activation.PermissionError
	var unsup *activation.UnsupportedError
	switch {
	case errors.Is(err, activation.ErrBusy):
		return "BUSY"
	case errors.Is(err, activation.ErrNotRunning):
		return "NOT_RUNNING"
	case errors.As(err, &perm):
		return "PERMISSION_" + strings.ToUpper(perm.Device)
	case errors.As(err, &unsup):
		return "UNSUPPORTED"
	}
	return "FAILED"
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

var _ activation.Observer = (*Bridge)(nil)
