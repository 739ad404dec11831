package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxCapturedOutput caps how much stdout/stderr is kept per stream.
const maxCapturedOutput = 64 << 10

// ErrEmptyCommand is returned when Run is given a blank command.
var ErrEmptyCommand = errors.New("process: empty command")

// Config configures a Runner.
type Config struct {
	// Shell is the interpreter used with -c. Default: "sh".
	Shell string

	// Timeout bounds each command. Zero means no limit beyond the caller's context.
	Timeout time.Duration

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// Env are additional environment variables (key=value format).
	Env []string
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Result is the outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes shell commands.
type Runner struct {
	config Config
	logger Logger
}

// NewRunner creates a Runner, applying defaults for zero values.
func NewRunner(cfg Config) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 2 * time.Second
	}
	return &Runner{config: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Run executes command and waits for it. Output is trimmed of surrounding
// whitespace. A non-zero exit status is returned as an error along with the
// captured Result.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if strings.TrimSpace(command) == "" {
		return Result{}, ErrEmptyCommand
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	cmd := exec.Command(r.config.Shell, "-c", command) //nolint:gosec // commands come from the owner's config file
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if r.config.Env != nil {
		cmd.Env = append(cmd.Environ(), r.config.Env...)
	}

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("running command", "command", command)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting command: %w", err)
	}

	exitCh := make(chan error, 1)
	go func() {
		exitCh <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-exitCh:
	case <-ctx.Done():
		r.stopGroup(cmd.Process.Pid, exitCh)
		res := r.result(stdout, stderr, cmd, start)
		return res, fmt.Errorf("command stopped: %w", ctx.Err())
	}

	res := r.result(stdout, stderr, cmd, start)
	if waitErr != nil {
		r.logger.Debug("command failed", "command", command, "exit_code", res.ExitCode, "stderr", res.Stderr)
		return res, fmt.Errorf("command exited with code %d: %w", res.ExitCode, waitErr)
	}
	r.logger.Debug("command finished", "command", command, "duration", res.Duration)
	return res, nil
}

// stopGroup sends SIGTERM to the process group, then SIGKILL after the
// grace period, and waits for the leader to exit.
func (r *Runner) stopGroup(pid int, exitCh <-chan error) {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Warn("failed to send SIGTERM to process group", "pid", pid, "error", err)
	}

	select {
	case <-exitCh:
		return
	case <-time.After(r.config.GracefulTimeout):
		r.logger.Warn("command ignored SIGTERM, sending SIGKILL", "pid", pid)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		r.logger.Error("failed to kill process group", "pid", pid, "error", err)
	}
	<-exitCh
}

func (r *Runner) result(stdout, stderr *cappedBuffer, cmd *exec.Cmd, start time.Time) Result {
	res := Result{
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res
}

// cappedBuffer keeps at most limit bytes and discards the rest.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
