// Package executor runs external commands, capturing their output and
// exit status, with support for per-command timeouts and cancellation.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its configured timeout.
var ErrTimeout = errors.New("command timed out")

// waitDelay bounds how long Run waits for output to close after the
// program is killed or exits.
var waitDelay = time.Second

// Result holds the captured output and exit status of a command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandError is returned when a command starts but does not exit cleanly.
type CommandError struct {
	Program  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s exited with code %d", e.Program, strings.Join(e.Args, " "), e.ExitCode)
	if tail := lastLine(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	if errors.Is(e.Err, ErrTimeout) || errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Runner defines the behavior of something that can run external programs.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures command execution behavior.
type Options struct {
	// WorkingDir is the directory the command runs in.
	WorkingDir string
	// Env is appended to the current process environment.
	Env map[string]string
	// Timeout bounds a single execution. Zero means no timeout.
	Timeout time.Duration
	// Logger receives each output line of the command.
	Logger *log.Logger
}

// Option is a function that modifies Options.
type Option func(*Options)

// CommandExecutor is the concrete implementation of the Runner interface.
type CommandExecutor struct {
	options Options
}

// New creates a CommandExecutor with the given default options.
func New(opts ...Option) *CommandExecutor {
	e := &CommandExecutor{options: Options{Env: map[string]string{}}}
	for _, opt := range opts {
		opt(&e.options)
	}
	return e
}

// Run executes program with args and waits for it to exit. Output is
// collected until the streams close, or for at most waitDelay once the
// program has exited or been killed.
func (e *CommandExecutor) Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error) {
	options := e.mergeOptions(opts...)

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = options.WorkingDir
	cmd.Env = buildEnv(options.Env)

	// Helpers spawned by the program (ssh, remote helpers) inherit its
	// output. Once the program is killed they get waitDelay to close it.
	cmd.WaitDelay = waitDelay
	stdout := &lineWriter{logger: options.Logger}
	stderr := &lineWriter{logger: options.Logger}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", program, err)
	}
	waitErr := cmd.Wait()
	if errors.Is(waitErr, exec.ErrWaitDelay) && ctx.Err() == nil {
		// The program itself succeeded; a detached child kept its output open.
		waitErr = nil
	}
	stdout.flush()
	stderr.flush()

	result := &Result{
		Stdout:   stdout.buf.String(),
		Stderr:   stderr.buf.String(),
		ExitCode: exitCode(waitErr),
	}

	if waitErr != nil {
		cause := waitErr
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = fmt.Errorf("%w after %s: %w", ErrTimeout, options.Timeout, waitErr)
		} else if ctx.Err() != nil {
			cause = fmt.Errorf("%w: %w", ctx.Err(), waitErr)
		}
		return result, &CommandError{
			Program:  program,
			Args:     args,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
			Err:      cause,
		}
	}
	return result, nil
}

func (e *CommandExecutor) mergeOptions(opts ...Option) Options {
	merged := e.options
	merged.Env = make(map[string]string, len(e.options.Env))
	for k, v := range e.options.Env {
		merged.Env[k] = v
	}
	for _, opt := range opts {
		opt(&merged)
	}
	return merged
}

// lineWriter captures a stream and echoes each complete line to logger.
type lineWriter struct {
	buf     bytes.Buffer
	partial []byte
	logger  *log.Logger
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.logger == nil {
		return len(p), nil
	}
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.logger.Printf("    | %s", w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// flush logs a trailing line that had no newline.
func (w *lineWriter) flush() {
	if w.logger != nil && len(w.partial) > 0 {
		w.logger.Printf("    | %s", w.partial)
	}
	w.partial = nil
}

func buildEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// WithWorkingDir sets the working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithTimeout bounds each execution.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLogger streams command output to logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
