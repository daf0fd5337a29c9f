package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		args    int
		wantErr bool
	}{
		{"plain", "VISTA:trigger:session:HUB", "VISTA:TRIGGER:SESSION:HUB", 0, false},
		{"args", "VISTA:SET:CONTINUOUS:ON:HUB", "VISTA:SET:CONTINUOUS:ON:HUB", 1, false},
		{"broadcast", "ALL:STATE:LISTENING:abc-123:VISTA", "ALL:STATE:LISTENING:abc-123:VISTA", 1, false},
		{"hex id", "0a:PING:NOW:ff", "0a:PING:NOW:ff", 0, false},
		{"trailing newline", "VISTA:STOP:SESSION:HUB\n", "VISTA:STOP:SESSION:HUB", 0, false},
		{"empty", "  ", "", 0, true},
		{"too few", "VISTA:STOP:HUB", "", 0, true},
		{"inner space", "VISTA:SAY:hello world:HUB", "", 0, true},
		{"bad token", "VISTA:ST!OP:SESSION:HUB", "", 0, true},
		{"empty arg", "VISTA:SET:CONTINUOUS::HUB", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) err = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := msg.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if len(msg.Args) != tt.args {
				t.Errorf("Args = %v, want %d", msg.Args, tt.args)
			}
		})
	}
}

func TestReply(t *testing.T) {
	in, err := Parse("VISTA:START:SESSION:HUB")
	if err != nil {
		t.Fatal(err)
	}
	out := in.Reply()
	out.Ok("SESSION", "LISTENING")
	if got, want := out.String(), "HUB:OK:SESSION:LISTENING:VISTA"; got != want {
		t.Errorf("reply = %q, want %q", got, want)
	}
	out.Error("BUSY")
	if got, want := out.String(), "HUB:ERR:BUSY:VISTA"; got != want {
		t.Errorf("error reply = %q, want %q", got, want)
	}
}

// hub is a test websocket server that records frames and can push frames.
type hub struct {
	mu    sync.Mutex
	conn  *ws.Conn
	got   chan string
	ready chan struct{}
}

func newHub(t *testing.T) (*hub, string) {
	t.Helper()
	h := &hub{got: make(chan string, 16), ready: make(chan struct{})}
	up := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conn = c
		h.mu.Unlock()
		close(h.ready)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			h.got <- string(msg)
		}
	}))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (h *hub) push(t *testing.T, frame string) {
	t.Helper()
	<-h.ready
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.conn.WriteMessage(ws.TextMessage, []byte(frame)); err != nil {
		t.Fatal(err)
	}
}

func (h *hub) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-h.got:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from client")
		return ""
	}
}

func TestProtocolExchange(t *testing.T) {
	h, url := newHub(t)

	inbound := make(chan *Message, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ptcl, err := NewProtocol(ctx, PtclConfig{
		Shard:   "VISTA",
		Url:     url,
		Timeout: time.Second,
		EmitOut: func(m *Message) { inbound <- m },
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- ptcl.Run(ctx) }()

	if err := ptcl.Transmit([]string{Broadcast, "STATE", "LISTENING", "abc"}); err != nil {
		t.Fatal(err)
	}
	if got := h.next(t); got != "ALL:STATE:LISTENING:abc:VISTA" {
		t.Errorf("hub got %q", got)
	}

	h.push(t, "OTHER:TRIGGER:SESSION:HUB")
	h.push(t, "VISTA:TRIGGER:SESSION:HUB")
	select {
	case m := <-inbound:
		if m.Verb != "TRIGGER" || m.From != "HUB" {
			t.Errorf("inbound = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame for shard not delivered")
	}
	select {
	case m := <-inbound:
		t.Errorf("frame for another shard delivered: %+v", m)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := ptcl.Transmit("VISTA:LATE:FRAME"); err == nil {
		t.Error("Transmit after close succeeded")
	}
}

func TestTransmitReceive(t *testing.T) {
	h, url := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ptcl, err := NewProtocol(ctx, PtclConfig{Shard: "VISTA", Url: url})
	if err != nil {
		t.Fatal(err)
	}
	go ptcl.Run(ctx)

	go func() {
		select {
		case got := <-h.got:
			if got != "HUB:STATUS:QUERY:VISTA" {
				t.Errorf("hub got %q", got)
			}
		case <-time.After(2 * time.Second):
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		h.conn.WriteMessage(ws.TextMessage, []byte("VISTA:OK:STATUS:HUB"))
	}()

	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	resp, err := ptcl.TransmitReceive(rctx, Message{To: "HUB", Verb: "STATUS", Noun: "QUERY"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Verb != "OK" || resp.Noun != "STATUS" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestNewProtocolRejectsBadShard(t *testing.T) {
	if _, err := NewProtocol(context.Background(), PtclConfig{Shard: "bad shard", Url: "ws://127.0.0.1:1"}); err == nil {
		t.Fatal("NewProtocol accepted invalid shard")
	}
}
