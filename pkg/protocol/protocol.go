// Package protocol speaks the hub's colon-delimited frame format
// TO:VERB:NOUN[:ARGS...]:FROM over a websocket.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Broadcast addresses every shard.
const Broadcast = "ALL"

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  time.Duration
	Timeout time.Duration
	EmitOut func(*Message)
	Logger  *slog.Logger
}

type Protocol struct {
	ws *WebSocket

	shard  string
	logger *slog.Logger

	waiterMu sync.Mutex
	waiter   chan *Message

	emitMu  sync.Mutex
	emitOut func(*Message)
}

func NewProtocol(ctx context.Context, cfg PtclConfig) (*Protocol, error) {
	if !isToken(cfg.Shard) {
		return nil, fmt.Errorf("invalid shard name %q", cfg.Shard)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "protocol", "shard", cfg.Shard)
	if cfg.Reconn <= 0 {
		cfg.Reconn = time.Second
	}

	ws, err := NewWebSocket(ctx, cfg.Url, cfg.Reconn, cfg.Timeout, logger)
	if err != nil {
		logger.Error("failed to init ws connection", "url", cfg.Url, "err", err)
		return nil, err
	}

	ptcl := &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		logger:  logger,
		emitOut: cfg.EmitOut,
	}

	return ptcl, nil
}

// Shard returns the name this endpoint answers to.
func (ptcl *Protocol) Shard() string { return ptcl.shard }

func (ptcl *Protocol) EmitOut(f func(*Message)) {
	ptcl.emitMu.Lock()
	ptcl.emitOut = f
	ptcl.emitMu.Unlock()
}

// TransmitReceive sends v and waits for the next frame addressed to this
// shard.
func (ptcl *Protocol) TransmitReceive(ctx context.Context, v any) (*Message, error) {
	w := ptcl.installWaiter()
	defer ptcl.clearWaiter()

	if err := ptcl.Transmit(v); err != nil {
		return nil, err
	}
	select {
	case resp := <-w:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transmit sends a Message, a payload string, or payload fields. The FROM
// field is always this shard.
func (ptcl *Protocol) Transmit(v any) error {
	var msg string

	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		msg = m.String()
	case *Message:
		c := *m
		c.From = ptcl.shard
		msg = c.String()
	case string:
		msg = fmt.Sprintf("%s:%s", m, ptcl.shard)
	case []string:
		pay := strings.Join(m, ":")
		msg = fmt.Sprintf("%s:%s", pay, ptcl.shard)
	default:
		ptcl.logger.Error("provided unsupported type", "type", fmt.Sprintf("%T", v))
		return fmt.Errorf("unsupported type %T", v)
	}

	err := ptcl.ws.Write([]byte(msg))
	if err != nil {
		ptcl.logger.Error("failed to transmit", "msg", msg, "err", err)
	}
	return err
}

// Run reads frames until ctx ends or Close is called. Frames for this
// shard or for ALL are parsed and handed to a pending TransmitReceive or
// to the EmitOut callback.
func (ptcl *Protocol) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { ptcl.ws.Close() })
	defer stop()

	for {
		in := ptcl.ws.Read()
		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			if ctx.Err() != nil {
				return nil
			}
			if ptcl.ws.isClosed() {
				return nil
			}
			ptcl.logger.Warn("connection lost, reconnecting", "url", ptcl.ws.url, "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				if ctx.Err() != nil || errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
			ptcl.logger.Info("reconnected", "url", ptcl.ws.url)

		case READ_OK:
			if !ptcl.checkRecipient(in.msg) {
				continue
			}

			msg, err := Parse(string(in.msg))
			if err != nil {
				ptcl.logger.Warn("failed to parse", "msg", string(in.msg), "err", err)
				continue
			}

			if w := ptcl.currentWaiter(); w != nil && msg.To == ptcl.shard {
				select {
				case w <- msg:
				default:
				}
				continue
			}
			ptcl.emitMu.Lock()
			emit := ptcl.emitOut
			ptcl.emitMu.Unlock()
			if emit != nil {
				emit(msg)
			}
		}
	}
}

// Close ends the connection; Run returns afterwards.
func (ptcl *Protocol) Close() error {
	return ptcl.ws.Close()
}

func (ptcl *Protocol) installWaiter() chan *Message {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = make(chan *Message, 1)
	return ptcl.waiter
}

func (ptcl *Protocol) clearWaiter() {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = nil
}

func (ptcl *Protocol) currentWaiter() chan *Message {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	return ptcl.waiter
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to := strings.SplitN(string(msg), ":", 2)[0]
	return to == ptcl.shard || to == Broadcast
}

// Parse decodes one frame.
func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != Broadcast {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}

	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	msg := &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}
	return msg, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To)
	parts = append(parts, m.Verb)
	parts = append(parts, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

// Reply returns a message addressed back to the sender of m.
func (m *Message) Reply() *Message {
	return &Message{To: m.From, Verb: m.Verb, Noun: m.Noun, From: m.To}
}

func (m *Message) Error(reason string, args ...string) {
	m.Verb = "ERR"
	m.Noun = reason
	m.Args = args
}

func (m *Message) Ok(reason string, args ...string) {
	m.Verb = "OK"
	m.Noun = reason
	m.Args = args
}
