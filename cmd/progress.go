package main

import (
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/mattn/go-isatty"
)

// progressRenderer prints engine updates. On a terminal per-item updates rewrite a
// single line in place; elsewhere only phase changes and finished transfers are printed.
type progressRenderer struct {
	w       io.Writer
	tty     bool
	partial bool
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{w: w, tty: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// run renders updates until the channel is closed.
func (p *progressRenderer) run(updates <-chan tasks.ProgressUpdate) {
	for u := range updates {
		p.render(u)
	}
	p.clear()
}

func (p *progressRenderer) render(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.Transfer, tasks.Sweep:
		if !p.tty {
			return
		}
		line := u.Message
		if item, ok := u.Data.(*models.Item); ok && u.Phase == tasks.Transfer {
			line = fmt.Sprintf("[%d/%d] %s: %s", u.Step, u.Total, item.Name, u.Message)
		}
		fmt.Fprintf(p.w, "\r\033[K%s", line)
		p.partial = true
	default:
		p.clear()
		fmt.Fprintln(p.w, u.Message)
	}
}

func (p *progressRenderer) clear() {
	if p.partial {
		fmt.Fprint(p.w, "\r\033[K")
		p.partial = false
	}
}

// withProgress runs fn with a progress channel rendered to the runner's output. The
// channel is closed once fn returns, and withProgress waits for the renderer to drain it.
func (r *Runner) withProgress(fn func(progress chan<- tasks.ProgressUpdate) error) error {
	progress := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		newProgressRenderer(r.output).run(progress)
	}()

	err := fn(progress)
	close(progress)
	<-done
	return err
}
