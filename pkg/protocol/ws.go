package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("protocol: connection closed")

type WebSocket struct {
	url     string
	reconn  time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex // guards conn and closed; serializes writes
	conn   *ws.Conn
	closed bool
}

func NewWebSocket(ctx context.Context, url string, reconn, timeout time.Duration, logger *slog.Logger) (*WebSocket, error) {
	logger.Debug("init websocket protocol", "url", url)

	web := &WebSocket{
		url:     url,
		reconn:  reconn,
		timeout: timeout,
		logger:  logger,
	}

	conn, err := web.dial(ctx)
	if err != nil {
		return nil, err
	}
	web.conn = conn

	return web, nil
}

func (web *WebSocket) dial(ctx context.Context) (*ws.Conn, error) {
	d := *ws.DefaultDialer
	if web.timeout > 0 {
		d.HandshakeTimeout = web.timeout
	}
	conn, _, err := d.DialContext(ctx, web.url, nil)
	return conn, err
}

func (web *WebSocket) Write(payload []byte) error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.closed {
		return ErrClosed
	}
	web.logger.Debug("write ws", "msg", string(payload))
	if web.timeout > 0 {
		_ = web.conn.SetWriteDeadline(time.Now().Add(web.timeout))
	}
	return web.conn.WriteMessage(ws.TextMessage, payload)
}

type WsIncomeKind uint

const (
	CONN_CLOSE WsIncomeKind = iota
	READ_FAILURE
	READ_OK
)

type Income struct {
	kind WsIncomeKind
	msg  []byte
	err  error
}

func (web *WebSocket) current() *ws.Conn {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.conn
}

func (web *WebSocket) Read() Income {
	_, msg, err := web.current().ReadMessage()
	if err != nil {
		if WsIsClosed(err) || web.isClosed() {
			return Income{
				kind: CONN_CLOSE,
				err:  err,
			}
		}
		return Income{
			kind: READ_FAILURE,
			err:  err,
		}
	}

	web.logger.Debug("read ws", "msg", string(msg))
	return Income{
		kind: READ_OK,
		msg:  msg,
	}
}

// TryReconn redials until it succeeds or ctx ends.
func (web *WebSocket) TryReconn(ctx context.Context) error {
	for {
		conn, err := web.dial(ctx)
		if err == nil {
			web.mu.Lock()
			if web.closed {
				web.mu.Unlock()
				conn.Close()
				return ErrClosed
			}
			web.conn.Close()
			web.conn = conn
			web.mu.Unlock()
			return nil
		}
		web.logger.Debug("reconnect failed", "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(web.reconn):
		}
	}
}

func (web *WebSocket) isClosed() bool {
	web.mu.Lock()
	defer web.mu.Unlock()
	return web.closed
}

// Close sends a close frame and releases the connection.
func (web *WebSocket) Close() error {
	web.mu.Lock()
	defer web.mu.Unlock()
	if web.closed {
		return nil
	}
	web.closed = true
	_ = web.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return web.conn.Close()
}

func WsIsClosed(err error) bool {
	return ws.IsCloseError(err,
		ws.CloseNormalClosure,
		ws.CloseGoingAway,
		ws.CloseAbnormalClosure)
}
