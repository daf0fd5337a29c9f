// Package ipc is the daemon's local control socket. Each connection
// carries one JSON request and one JSON reply.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// Commands understood by the daemon.
const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdTrigger    = "trigger"
	CmdContinuous = "continuous"
	CmdStatus     = "status"
)

// Request is a control command. Arg carries "on" or "off" for continuous.
type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Response reports the outcome and the session state after it.
type Response struct {
	OK         bool   `json:"ok"`
	State      string `json:"state,omitempty"`
	Continuous bool   `json:"continuous"`
	Status     string `json:"status,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Handler answers one request.
type Handler func(ctx context.Context, req Request) Response

// ioTimeout bounds reading a request and writing a reply.
const ioTimeout = 5 * time.Second

// Server listens on a unix socket.
type Server struct {
	path    string
	handler Handler
	logger  *slog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

// Listen removes a stale socket at path and starts listening.
func Listen(path string, handler Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{
		path:    path,
		handler: handler,
		logger:  logger.With("component", "ipc", "socket", path),
		ln:      ln,
	}, nil
}

// Serve accepts connections until ctx ends or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Debug("bad request", "err", err)
		_ = json.NewEncoder(conn).Encode(Response{Error: "malformed request"})
		return
	}
	s.logger.Debug("request", "cmd", req.Cmd, "arg", req.Arg)

	resp := s.handler(ctx, req)
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("write reply failed", "err", err)
	}
}

// Send delivers one request to the daemon at path and returns its reply.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read reply: %w", err)
	}
	return resp, nil
}
