package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/desertthunder/vmx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI runs a download under the interactive monitor.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.applyDownloadFlags(cmd); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := filepath.Join(filepath.Dir(r.config.Ledger.Path), "vmx-tui.log")
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := r.refreshIfNeeded(ctx, s, cmd.Bool("refresh")); err != nil {
		return err
	}

	model := ui.NewModel(ctx, s.engine.Download)
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result != nil {
		r.writePlain("%s", formatter.RenderDownload(result))
	}
	r.writePlain("Log written to %s\n", logPath)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SetLogger replaces the logger used by commands and engines opened afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}
