package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/steveyegge/vault2git/internal/migrate"
	"github.com/steveyegge/vault2git/internal/source"
)

// ErrAborted is returned when the operator declines to continue.
var ErrAborted = errors.New("aborted by operator")

// ErrNotInteractive is returned when a prompt is needed but no
// terminal is attached.
var ErrNotInteractive = errors.New("no interactive terminal")

// Prompter asks the operator through huh forms on the terminal.
type Prompter struct {
	// Interactive is false when stdin is not a terminal; questions are
	// then answered without asking.
	Interactive bool

	In  io.Reader
	Out io.Writer
}

var _ migrate.Operator = (*Prompter)(nil)

// NewPrompter creates a prompter on the process terminal.
func NewPrompter() *Prompter {
	return &Prompter{
		Interactive: IsTerminal(os.Stdin),
		In:          os.Stdin,
		Out:         os.Stderr,
	}
}

// ConfirmFromStart asks whether branch should be migrated from its
// first revision. Without a terminal the answer is no.
func (p *Prompter) ConfirmFromStart(ctx context.Context, branch string, searched int) (bool, error) {
	if !p.Interactive {
		fmt.Fprintf(p.out(), "%s No restart point on %s after %d commits; rerun with --yes-from-start to migrate from the first revision\n",
			RenderWarn("⚠"), branch, searched)
		return false, nil
	}

	ok := false
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("No restart point found on %s", branch)).
		Description(fmt.Sprintf("Searched %d commits. Migrate from the first revision?", searched)).
		Affirmative("Yes").
		Negative("No").
		Value(&ok)

	if err := p.run(ctx, confirm); err != nil {
		return false, err
	}
	return ok, nil
}

// Pause waits for the operator before tx is committed.
func (p *Prompter) Pause(ctx context.Context, branch string, tx source.Transaction) error {
	if !p.Interactive {
		return fmt.Errorf("pause before revision %d: %w", tx.Revision, ErrNotInteractive)
	}

	ok := true
	confirm := huh.NewConfirm().
		Title(fmt.Sprintf("Revision %d is ready to commit on %s", tx.Revision, branch)).
		Description(fmt.Sprintf("%s: %s", tx.User, FirstLine(tx.Comment))).
		Affirmative("Continue").
		Negative("Abort").
		Value(&ok)

	if err := p.run(ctx, confirm); err != nil {
		return err
	}
	if !ok {
		return ErrAborted
	}
	return nil
}

func (p *Prompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field))
	if p.In != nil {
		form = form.WithInput(p.In)
	}
	form = form.WithOutput(p.out())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func (p *Prompter) out() io.Writer {
	if p.Out == nil {
		return os.Stderr
	}
	return p.Out
}

// FirstLine returns the first line of s.
func FirstLine(s string) string {
	for i, r := range s {
		if r == '\n' || r == '\r' {
			return s[:i]
		}
	}
	return s
}
