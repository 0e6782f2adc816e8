package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ProcessSource runs a command and reads its standard output. SDE
// requests are written to the command's standard input.
type ProcessSource struct {
	*ReaderSource

	cmd *exec.Cmd

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	waitOnce sync.Once
	waitErr  error
}

// StartProcess starts argv[0] with the remaining arguments.
func StartProcess(argv []string, opts ...ReaderOption) (*ProcessSource, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	p := &ProcessSource{cmd: cmd, stdin: stdin}
	opts = append([]ReaderOption{
		WithEOFError(&ExitError{Command: argv[0]}),
		WithCloser(closerFunc(p.stop)),
	}, opts...)
	p.ReaderSource = NewReaderSource(stdout, opts...)
	return p, nil
}

// Load reads the next chunk of output. When the process has exited the
// returned *ExitError carries its wait status.
func (p *ProcessSource) Load(ctx context.Context, filter *Filter) (*ReloadInfo, error) {
	info, err := p.ReaderSource.Load(ctx, filter)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return nil, &ExitError{Command: exitErr.Command, Err: p.wait()}
	}
	return info, err
}

// Income writes an SDE payload to the process. Text payloads get a
// trailing newline.
func (p *ProcessSource) Income(ctx context.Context, req SDERequest) (SDEResponse, error) {
	if err := ctx.Err(); err != nil {
		return SDEResponse{}, err
	}

	payload := req.Payload
	switch req.Kind {
	case SDEWriteText:
		payload = append(append([]byte(nil), payload...), '\n')
	case SDEWriteBytes:
	default:
		return SDEResponse{}, fmt.Errorf("unknown SDE request kind %d", req.Kind)
	}

	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	if p.stdin == nil {
		return SDEResponse{}, errors.New("process input closed")
	}
	n, err := p.stdin.Write(payload)
	if err != nil {
		return SDEResponse{Bytes: n}, fmt.Errorf("writing to process: %w", err)
	}
	return SDEResponse{Bytes: n}, nil
}

func (p *ProcessSource) wait() error {
	p.waitOnce.Do(func() { p.waitErr = p.cmd.Wait() })
	return p.waitErr
}

// stop closes stdin, kills the process if still running and reaps it.
func (p *ProcessSource) stop() error {
	p.stdinMu.Lock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	p.stdinMu.Unlock()

	// Kill fails harmlessly once the process has exited.
	_ = p.cmd.Process.Kill()
	_ = p.wait()
	return nil
}

// ExitError reports that the source process finished.
type ExitError struct {
	Command string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("process %s exited", e.Command)
	}
	return fmt.Sprintf("process %s exited: %v", e.Command, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
