package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/services"
)

// SweepResult summarizes an integrity sweep.
type SweepResult struct {
	Checked    int      // downloaded records inspected
	Missing    int      // records whose file (or path) was absent
	ZeroByte   int      // records whose file was empty; the file is deleted
	Rearmed    int      // records demoted back to not_downloaded
	StaleParts []string // partial files removed from the destination directory
}

// Sweep checks every downloaded record against the filesystem. A record whose file is
// missing or empty goes to download_failed and straight back to not_downloaded so the
// same run picks it up again. Empty files are deleted. Leftover partial files in the
// destination directory are removed.
//
// The sweep only demotes records, never promotes them, so running it repeatedly is safe.
// It must not run while transfers are in flight.
func (e *Engine) Sweep(ctx context.Context, progress chan<- ProgressUpdate) (*SweepResult, error) {
	result := &SweepResult{}

	items, err := e.ledger.FindByStatus(ctx, models.StatusDownloaded)
	if err != nil {
		return result, err
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Checked++
		e.sendProgress(progress, sweepUpdate(i+1, len(items), item))

		reason, err := e.inspect(item, result)
		if err != nil {
			e.logger.Warn("could not inspect file", "key", item.ResourceKey, "path", item.Path, "error", err)
			continue
		}
		if reason == "" {
			continue
		}

		if err := e.demote(ctx, item, reason); err != nil {
			return result, err
		}
		result.Rearmed++
	}

	stale, err := removeStaleParts(e.opts.Dest)
	result.StaleParts = stale
	if err != nil {
		e.logger.Warn("could not remove partial files", "dest", e.opts.Dest, "error", err)
	}
	if len(stale) > 0 {
		e.logger.Info("removed partial files", "count", len(stale))
	}

	return result, nil
}

// inspect returns the reason a downloaded record can no longer be trusted, or "".
func (e *Engine) inspect(item *models.Item, result *SweepResult) (string, error) {
	if item.Path == "" {
		result.Missing++
		return "no path recorded", nil
	}

	info, err := os.Stat(item.Path)
	if errors.Is(err, os.ErrNotExist) {
		result.Missing++
		return "file missing", nil
	}
	if err != nil {
		return "", err
	}

	if info.Size() > 0 {
		return "", nil
	}

	result.ZeroByte++
	if err := os.Remove(item.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("failed to remove zero-byte file", "path", item.Path, "error", err)
	}
	return "zero-byte file", nil
}

func (e *Engine) demote(ctx context.Context, item *models.Item, reason string) error {
	e.logger.Warn("demoting downloaded record", "key", item.ResourceKey, "name", item.Name, "path", item.Path, "reason", reason)

	detail := &models.StatusDetail{LastError: reason}
	if err := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusDownloadFailed, detail); err != nil {
		return fmt.Errorf("failed to demote %s: %w", item.Name, err)
	}
	if err := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusNotDownloaded, nil); err != nil {
		return fmt.Errorf("failed to re-arm %s: %w", item.Name, err)
	}
	return nil
}

// removeStaleParts deletes partial media files, named with [models.FileExtension]
// followed by [services.PartSuffix], directly under dir. Other partial files are left
// alone.
func removeStaleParts(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	suffix := strings.ToLower(models.FileExtension + services.PartSuffix)

	var removed []string
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, errors.Join(errs...)
}
