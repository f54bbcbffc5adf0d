package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/theodorecharles/darkroom/internal/domain"
	"github.com/theodorecharles/darkroom/internal/infrastructure/logger"
	"github.com/theodorecharles/darkroom/internal/port"
)

// maxLineSize bounds a single output line. Batch programs emit short
// progress lines; anything past this is a runaway. The scanner aborts
// on such a line and the rest of the pipe is drained unparsed so the
// process can still exit.
const maxLineSize = 1024 * 1024

// Launcher runs external batch programs via os/exec and turns their
// line-oriented output into parsed events.
type Launcher struct{}

func NewLauncher() port.Launcher {
	return &Launcher{}
}

type process struct {
	cmd *exec.Cmd
}

func (p *process) Signal() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Launch starts the program and supervises it on background
// goroutines. Stdout and stderr are read concurrently; each pipe gets
// its own line scanner so lines split across arbitrary pipe-chunk
// boundaries are reassembled before parsing. onExit fires exactly once
// after both pipes are drained and the process has been reaped.
func (l *Launcher) Launch(ctx context.Context, spec domain.CommandSpec, onEvent func(domain.Event), onExit func(domain.ExitStatus)) (port.Process, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}

	var graceful atomic.Bool

	go func() {
		g := new(errgroup.Group)
		g.Go(func() error {
			scanLines(stdout, spec.Kind, domain.StreamStdout, onEvent, &graceful)
			return nil
		})
		g.Go(func() error {
			scanLines(stderr, spec.Kind, domain.StreamStderr, onEvent, &graceful)
			return nil
		})
		_ = g.Wait()

		code := 0
		if err := cmd.Wait(); err != nil {
			code = exitCode(err)
		}
		onExit(domain.ExitStatus{Code: code, Graceful: graceful.Load()})
	}()

	return &process{cmd: cmd}, nil
}

// scanLines feeds completed lines to the parser. Blank lines are
// dropped; the __COMPLETE__ end marker is recorded instead of being
// forwarded as a content event.
func scanLines(r io.Reader, kind domain.JobKind, stream domain.Stream, onEvent func(domain.Event), graceful *atomic.Bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if stream == domain.StreamStderr {
			logger.Debug.Printf("%s stderr: %s", kind, logger.SanitizeForLog(line))
		}
		ev := domain.ParseLine(kind, stream, line)
		if ev.Type == domain.EventEndMarker {
			graceful.Store(true)
			continue
		}
		onEvent(ev)
	}
	if err := sc.Err(); err != nil {
		logger.Warn.Printf("%s: %s read error: %v", kind, stream, err)
		// The scanner stopped mid-pipe. Keep consuming so the process
		// is never blocked on a full pipe and can reach its exit.
		_, _ = io.Copy(io.Discard, r)
	}
}

// exitCode maps a cmd.Wait error to the code reported downstream.
// Signal-terminated processes have no real exit code; they are
// reported with a synthetic nonzero one.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
