package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/steveyegge/vault2git/internal/migrate"
)

// ProgressMessage renders the console line for a progress marker.
func ProgressMessage(marker int64, elapsed time.Duration) string {
	d := elapsed.Round(time.Millisecond)
	switch marker {
	case migrate.ProgressInit:
		return fmt.Sprintf("init took %v", d)
	case migrate.ProgressGC:
		return fmt.Sprintf("gc took %v", d)
	case migrate.ProgressFinalize:
		return fmt.Sprintf("finalization took %v", d)
	case migrate.ProgressTags:
		return fmt.Sprintf("tags creation took %v", d)
	default:
		return fmt.Sprintf("processing version %d took %v", marker, d)
	}
}

// Printer writes progress lines and keeps running totals.
type Printer struct {
	out io.Writer

	mu        sync.Mutex
	revisions int
	busy      time.Duration
}

// NewPrinter creates a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Report prints one marker. It never asks the run to stop.
func (p *Printer) Report(marker int64, elapsed time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if marker > 0 {
		p.revisions++
		p.busy += elapsed
	}

	line := ProgressMessage(marker, elapsed)
	switch {
	case marker > 0:
		fmt.Fprintf(p.out, "%s %s\n", RenderAccent("→"), line)
	case marker == migrate.ProgressFinalize:
		fmt.Fprintf(p.out, "%s %s\n", RenderPass("✓"), line)
	default:
		fmt.Fprintf(p.out, "%s %s\n", RenderMuted("·"), RenderMuted(line))
	}
	return false
}

// Revisions returns how many revisions were reported and the time
// they took.
func (p *Printer) Revisions() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revisions, p.busy
}

// Chain combines progress callbacks. Every callback sees every marker;
// the run stops if any of them asks to.
func Chain(fns ...migrate.ProgressFunc) migrate.ProgressFunc {
	return func(marker int64, elapsed time.Duration) bool {
		stop := false
		for _, fn := range fns {
			if fn != nil && fn(marker, elapsed) {
				stop = true
			}
		}
		return stop
	}
}
