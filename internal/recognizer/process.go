package recognizer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"vista/pkg/speech"
)

// ProcessConfig names an external recognizer that prints one transcript
// per line on stdout.
type ProcessConfig struct {
	Command string
	Args    []string
}

// Process runs an external recognizer and shares its output with one
// stream at a time. The process is started on first use and restarted if
// it exits.
type Process struct {
	cfg    ProcessConfig
	logger *slog.Logger

	mu     sync.Mutex
	lines  chan Transcript
	cancel context.CancelFunc
}

// NewProcess returns a process backend.
func NewProcess(cfg ProcessConfig, logger *slog.Logger) *Process {
	if logger == nil {
		logger = slog.Default()
	}
	return &Process{cfg: cfg, logger: logger.With("component", "recognizer.process", "cmd", cfg.Command)}
}

// Name implements Backend.
func (p *Process) Name() string { return "process" }

// Available implements Backend.
func (p *Process) Available() error {
	if strings.TrimSpace(p.cfg.Command) == "" {
		return fmt.Errorf("%w: no recognizer command configured", speech.ErrUnsupported)
	}
	if _, err := exec.LookPath(p.cfg.Command); err != nil {
		return fmt.Errorf("%w: %v", speech.ErrUnsupported, err)
	}
	return nil
}

// Open implements Backend. Lines printed while no stream was open are
// discarded.
func (p *Process) Open(_ context.Context, _ speech.Options) (Source, error) {
	lines, err := p.ensure()
	if err != nil {
		return nil, err
	}
drain:
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				break drain
			}
		default:
			break drain
		}
	}
	return &processSource{lines: lines}, nil
}

func (p *Process) ensure() (chan Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lines != nil {
		return p.lines, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.cfg.Command, p.cfg.Args...)
	// children left holding the pipes must not keep Wait blocked
	cmd.WaitDelay = time.Second
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", p.cfg.Command, err)
	}
	p.logger.Info("recognizer process started", "pid", cmd.Process.Pid)

	lines := make(chan Transcript, 32)
	p.lines, p.cancel = lines, cancel

	go p.logLines(stderr)
	go func() {
		p.readLines(stdout, lines)
		err := cmd.Wait()
		p.mu.Lock()
		if p.lines == lines {
			p.lines, p.cancel = nil, nil
		}
		p.mu.Unlock()
		cancel()
		close(lines)
		p.logger.Info("recognizer process exited", "err", err)
	}()
	return lines, nil
}

func (p *Process) readLines(r io.Reader, out chan<- Transcript) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		tr, ok := ParseLine(scanner.Text())
		if !ok || !tr.Final {
			continue
		}
		select {
		case out <- tr:
		default:
			p.logger.Warn("transcript dropped, no reader", "text", tr.Text)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		p.logger.Warn("read recognizer output", "err", err)
	}
}

func (p *Process) logLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.logger.Debug("recognizer", "stderr", line)
		}
	}
}

// Release terminates the process. The next Open starts it again.
func (p *Process) Release() error { return p.Close() }

// Close terminates the process.
func (p *Process) Close() error {
	p.mu.Lock()
	cancel := p.cancel
	p.lines, p.cancel = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

type processSource struct {
	lines <-chan Transcript
}

func (s *processSource) Next(ctx context.Context) (string, error) {
	select {
	case tr, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return tr.Text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *processSource) Close() error { return nil }
