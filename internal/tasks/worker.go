package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/services"
	"github.com/desertthunder/vmx/internal/shared"
)

// Outcome is how a single transfer ended.
type Outcome int

const (
	OutcomeSkipped    Outcome = iota // claim lost, nothing done
	OutcomeDownloaded                // file verified, record downloaded
	OutcomeFailed                    // record left in download_failed
	OutcomeRearmed                   // zero-byte file removed, record back to not_downloaded
	OutcomeReleased                  // interrupted by cancellation, record back to not_downloaded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeFailed:
		return "failed"
	case OutcomeRearmed:
		return "rearmed"
	case OutcomeReleased:
		return "released"
	default:
		return ""
	}
}

// TransferItem moves one record through claim, transfer, verify and finalize.
//
// The record is claimed (downloading) before any bytes move. A transfer error leaves it
// download_failed. A zero-byte result is deleted and the record re-armed to
// not_downloaded while its attempts are below MaxAttempts. Cancellation releases the
// claim. Only [OutcomeDownloaded] and [OutcomeSkipped] return a nil error.
//
// The file name is resolved with [models.FileNames] against the whole ledger.
func (e *Engine) TransferItem(
	ctx context.Context,
	logger *log.Logger,
	item *models.Item,
	step, total int,
	progress chan<- ProgressUpdate,
) (Outcome, error) {
	names, err := e.fileNames(ctx)
	if err != nil {
		return OutcomeSkipped, err
	}
	return e.transfer(ctx, logger, item, names[item.ResourceKey], step, total, progress)
}

// fileNames resolves the file name of every ledger record.
func (e *Engine) fileNames(ctx context.Context) (map[string]string, error) {
	items, err := e.ledger.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return models.FileNames(items), nil
}

func (e *Engine) transfer(
	ctx context.Context,
	logger *log.Logger,
	item *models.Item,
	name string,
	step, total int,
	progress chan<- ProgressUpdate,
) (Outcome, error) {
	logger = shared.WithLogger(logger, "key", item.ResourceKey)
	if name == "" {
		name = item.QualifiedFileName()
	}

	ok, err := e.ledger.Claim(ctx, item.ResourceKey)
	if err != nil {
		return OutcomeSkipped, err
	}
	if !ok {
		logger.Debug("claim lost", "name", item.Name)
		return OutcomeSkipped, nil
	}
	attempts := item.Attempts + 1

	dst, err := filepath.Abs(filepath.Join(e.opts.Dest, name))
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", shared.ErrTransferFailed, item.Name, err)
		return e.fail(ctx, logger, item, err), err
	}

	e.sendProgress(progress, startTransferUpdate(step, total, item))
	logger.Debug("transfer started", "name", item.Name, "size", item.Download.Size, "quality", item.Download.Quality, "attempt", attempts)

	transfer := e.fetcher.Fetch
	if item.Download.Size > e.opts.LargeFileThreshold {
		transfer = e.fetcher.Stream
	}

	_, err = transfer(ctx, item.Download.Link, dst, e.observer(step, total, item, progress))
	if err != nil {
		if ctx.Err() != nil {
			return e.release(ctx, logger, item)
		}
		err = fmt.Errorf("%w: %s: %w", shared.ErrTransferFailed, item.Name, err)
		return e.fail(ctx, logger, item, err), err
	}

	info, err := os.Stat(dst)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", shared.ErrTransferFailed, item.Name, err)
		return e.fail(ctx, logger, item, err), err
	}

	if info.Size() == 0 {
		return e.rejectEmpty(ctx, logger, item, dst, attempts)
	}

	if err := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusDownloaded, &models.StatusDetail{Path: dst}); err != nil {
		if ctx.Err() != nil {
			return e.release(ctx, logger, item)
		}
		err = fmt.Errorf("failed to finalize %s: %w", item.Name, err)
		return e.fail(ctx, logger, item, err), err
	}

	logger.Info("downloaded", "name", item.Name, "path", dst, "size", info.Size())
	return OutcomeDownloaded, nil
}

// rejectEmpty handles a transfer that produced a zero-byte file.
func (e *Engine) rejectEmpty(ctx context.Context, logger *log.Logger, item *models.Item, dst string, attempts int) (Outcome, error) {
	err := fmt.Errorf("%w: %s", shared.ErrZeroByteFile, dst)
	e.fail(ctx, logger, item, err)

	if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("failed to remove zero-byte file", "path", dst, "error", rmErr)
	}

	if attempts >= e.opts.MaxAttempts {
		logger.Warn("retry ceiling reached", "name", item.Name, "attempts", attempts)
		return OutcomeFailed, err
	}

	if setErr := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusNotDownloaded, nil); setErr != nil {
		logger.Warn("failed to re-arm record", "name", item.Name, "error", setErr)
		return OutcomeFailed, errors.Join(err, setErr)
	}

	logger.Warn("zero-byte file, will retry", "name", item.Name, "attempt", attempts, "max_attempts", e.opts.MaxAttempts)
	return OutcomeRearmed, err
}

// fail records err on the item as download_failed and logs it.
func (e *Engine) fail(ctx context.Context, logger *log.Logger, item *models.Item, err error) Outcome {
	logger.Warn("download failed", "name", item.Name, "error", err)

	detail := &models.StatusDetail{LastError: err.Error()}
	if setErr := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusDownloadFailed, detail); setErr != nil {
		logger.Error("failed to record download failure", "name", item.Name, "error", setErr)
	}
	return OutcomeFailed
}

// release returns an interrupted claim to not_downloaded. Uses a context detached from
// cancellation so the write lands after ctx is done.
func (e *Engine) release(ctx context.Context, logger *log.Logger, item *models.Item) (Outcome, error) {
	if err := e.ledger.SetStatus(context.WithoutCancel(ctx), item.ResourceKey, models.StatusNotDownloaded, nil); err != nil {
		logger.Error("failed to release claim", "name", item.Name, "error", err)
	}
	logger.Info("transfer interrupted", "name", item.Name)
	return OutcomeReleased, ctx.Err()
}

// observer converts raw byte counts into progress updates, emitting only when the whole
// percentage changes.
func (e *Engine) observer(step, total int, item *models.Item, progress chan<- ProgressUpdate) services.Observer {
	if progress == nil {
		return nil
	}

	last := -1
	return services.ObserverFunc(func(done, size int64) {
		if size <= 0 {
			size = item.Download.Size
		}
		if p := percent(done, size); p != last {
			last = p
			e.sendProgress(progress, transferProgressUpdate(step, total, item, done, size))
		}
	})
}
