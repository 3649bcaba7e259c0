package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/desertthunder/vmx/internal/shared"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Download runs the transfer pipeline until no eligible item remains.
//
// An empty ledger is filled from the catalog first. Interrupting the run releases
// in-flight items and exits cleanly.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	if err := r.applyDownloadFlags(cmd); err != nil {
		return err
	}

	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := r.refreshIfNeeded(ctx, s, cmd.Bool("refresh")); err != nil {
		return err
	}

	r.logger.Info("starting download", "dest", r.config.Download.Dest,
		"limit", r.config.Download.Limit, "concurrency", r.config.Download.Concurrency)

	var result *tasks.DownloadResult
	err = r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		var err error
		result, err = s.engine.Download(ctx, progress)
		return err
	})

	if result != nil {
		r.writePlain("%s", formatter.RenderDownload(result))
	}

	if errors.Is(err, context.Canceled) {
		r.logger.Warn("download interrupted, in-flight items were released")
		return nil
	}
	return err
}

// applyDownloadFlags overrides the download settings with any flags set on cmd.
func (r *Runner) applyDownloadFlags(cmd *cli.Command) error {
	if cmd.IsSet("limit") {
		if n := int(cmd.Int("limit")); n > 0 {
			r.config.Download.Limit = n
		} else {
			return fmt.Errorf("%w: --limit must be positive", shared.ErrInvalidArgument)
		}
	}
	if cmd.IsSet("concurrency") {
		if n := int(cmd.Int("concurrency")); n > 0 {
			r.config.Download.Concurrency = n
		} else {
			return fmt.Errorf("%w: --concurrency must be positive", shared.ErrInvalidArgument)
		}
	}
	if dest := cmd.String("dest"); dest != "" {
		abs, err := filepath.Abs(dest)
		if err != nil {
			return fmt.Errorf("failed to resolve --dest: %w", err)
		}
		r.config.Download.Dest = abs
	}
	return nil
}

// refreshIfNeeded fills the ledger from the catalog when forced or when the ledger is
// empty. An empty ledger without a configured catalog is left alone.
func (r *Runner) refreshIfNeeded(ctx context.Context, s *session, force bool) error {
	if !force {
		stats, err := s.repo.Stats(ctx)
		if err != nil {
			return err
		}
		total := 0
		for _, n := range stats {
			total += n
		}
		if total > 0 {
			return nil
		}
		if r.requireCatalog() != nil {
			r.logger.Warn("ledger is empty and no catalog is configured, nothing to download")
			return nil
		}
		r.logger.Info("ledger is empty, fetching catalog")
	} else if err := r.requireCatalog(); err != nil {
		return err
	}

	var result *tasks.RefreshResult
	err := r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		var err error
		result, err = s.engine.Refresh(ctx, progress)
		return err
	})
	if err != nil {
		return err
	}

	return r.writePlain("Fetched %d items, %d new\n", result.CatalogCount, result.Inserted)
}
