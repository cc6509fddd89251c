// Package logging sets up the process logger: stderr, plus an optional
// rotating log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	// File enables a rotating log file in addition to Stderr
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Stderr receives console output. Defaults to os.Stderr.
	Stderr io.Writer

	// Quiet drops console output when a log file is configured
	Quiet bool
}

// Logs fans one destination out to per-component loggers.
type Logs struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New creates the shared log destination.
func New(opts Options) *Logs {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	l := &Logs{out: stderr}
	if opts.File == "" {
		return l
	}

	l.file = &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	if opts.Quiet {
		l.out = l.file
	} else {
		l.out = io.MultiWriter(stderr, l.file)
	}
	return l
}

// Logger returns a logger for component, prefixed "[component] ".
func (l *Logs) Logger(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying destination.
func (l *Logs) Writer() io.Writer {
	return l.out
}

// Close flushes and closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
