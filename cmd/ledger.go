package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Refresh fetches the catalog and records new items in the ledger.
func (r *Runner) Refresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCatalog(); err != nil {
		return err
	}

	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	return r.refreshIfNeeded(ctx, s, true)
}

// List prints the ledger as a table, CSV or JSON, optionally filtered by status.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openReader()
	if err != nil {
		return err
	}
	defer s.Close()

	if cmd.Bool("stats") {
		stats, err := s.repo.Stats(ctx)
		if err != nil {
			return err
		}
		return r.writePlain("%s\n", formatter.RenderStats(stats))
	}

	statuses := make([]models.Status, 0, len(cmd.StringSlice("status")))
	for _, key := range cmd.StringSlice("status") {
		status, err := models.ParseStatus(key)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		statuses = append(statuses, status)
	}

	items, err := s.repo.FindByStatus(ctx, statuses...)
	if err != nil {
		return err
	}
	r.logger.Debug("listing items", "count", len(items))

	switch format := cmd.String("format"); format {
	case "table", "":
		return r.writePlain("%s\n", formatter.RenderItems(items, formatter.DefaultNameWidth))
	case "csv":
		if path := cmd.String("output"); path != "" {
			if err := formatter.WriteCSVExport(items, path); err != nil {
				return err
			}
			r.logger.Info("exported items", "path", path, "count", len(items))
			return nil
		}
		data, err := formatter.ExportToCSV(items)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	case "json":
		return r.writeJSON(items, true)
	default:
		return fmt.Errorf("%w: unknown format %q (want table, csv or json)", shared.ErrInvalidArgument, format)
	}
}

// Reset returns interrupted items, or with --failed the failed ones, to not_downloaded.
func (r *Runner) Reset(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var n int64
	if cmd.Bool("failed") {
		n, err = s.repo.ResetFailed(ctx)
	} else {
		n, err = s.repo.ResetStuck(ctx)
	}
	if err != nil {
		return err
	}

	r.logger.Info("items reset", "count", n, "failed", cmd.Bool("failed"))
	return r.writePlain("%d item(s) reset\n", n)
}

// Sweep verifies every downloaded record against the destination directory.
func (r *Runner) Sweep(ctx context.Context, cmd *cli.Command) error {
	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var result *tasks.SweepResult
	err = r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		var err error
		result, err = s.engine.Sweep(ctx, progress)
		return err
	})
	if result != nil {
		r.writePlain("%s", formatter.RenderSweep(result))
	}
	return err
}
