package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Command is the executable, optionally followed by fixed leading
	// arguments in shell syntax (e.g. `git -c core.autocrlf=false`).
	// Defaults to "git".
	Command string

	// Dir is the working directory for every invocation
	Dir string

	// Timeout bounds a single invocation. Zero means no timeout.
	Timeout time.Duration

	// Env holds extra "KEY=value" entries appended to the process environment
	Env []string

	// Logger receives command traces when Verbose is set
	Logger *log.Logger

	// Verbose logs each command line and its elapsed time
	Verbose bool
}

// Result is the outcome of a successful command invocation.
type Result struct {
	// Lines are the standard output lines, without line terminators.
	// A trailing empty line produced by the final newline is dropped.
	Lines []string

	// Elapsed is the wall-clock duration of the invocation
	Elapsed time.Duration
}

// Runner invokes an external command line tool synchronously.
//
// Every call blocks until the process exits. A non-zero exit status is
// always returned as a *CommandError.
type Runner struct {
	name    string
	prefix  []string
	dir     string
	timeout time.Duration
	env     []string
	logger  *log.Logger
	verbose bool
}

// NewRunner creates a Runner from the given configuration.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		command = "git"
	}

	words, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command %q: %w", cfg.Command, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("invalid command %q: empty", cfg.Command)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[runner] ", log.LstdFlags)
	}

	return &Runner{
		name:    words[0],
		prefix:  words[1:],
		dir:     cfg.Dir,
		timeout: cfg.Timeout,
		env:     cfg.Env,
		logger:  logger,
		verbose: cfg.Verbose,
	}, nil
}

// Dir returns the working directory commands run in.
func (r *Runner) Dir() string {
	return r.dir
}

// WithDir returns a copy of the runner that executes in dir.
func (r *Runner) WithDir(dir string) *Runner {
	c := *r
	c.dir = dir
	return &c
}

// Run executes the command with args, feeding stdin (may be empty) to the
// process and collecting its standard output lines.
func (r *Runner) Run(ctx context.Context, stdin string, args ...string) (Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	argv := append(append([]string{}, r.prefix...), args...)
	commandLine := shellquote.Join(append([]string{r.name}, argv...)...)

	cmd := exec.CommandContext(ctx, r.name, argv...)
	cmd.Dir = r.dir
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if r.verbose {
		r.logger.Printf("%s (%v)", commandLine, elapsed.Round(time.Millisecond))
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Elapsed: elapsed}, fmt.Errorf("%s: %w", commandLine, ErrTimeout)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{Elapsed: elapsed}, &CommandError{
				Command:  commandLine,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}

		if errors.Is(err, exec.ErrNotFound) {
			return Result{Elapsed: elapsed}, fmt.Errorf("%s: %w: %v", commandLine, ErrVCSNotAvailable, err)
		}

		return Result{Elapsed: elapsed}, &CommandError{
			Command:  commandLine,
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}

	return Result{Lines: SplitOutput(stdout.Bytes()), Elapsed: elapsed}, nil
}
