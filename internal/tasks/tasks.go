// package tasks implements the download pipeline over the item ledger.
//
// The core abstraction is Engine, which recovers interrupted transfers, sweeps the ledger
// for inconsistent records, drains eligible items through a bounded worker pool, and
// reconciles the ledger against the remote catalog and the destination directory.
// Operations emit progress updates via channels for non-blocking status reporting.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/services"
	"github.com/desertthunder/vmx/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 2
	DefaultMaxAttempts = 3
)

// Ledger is the persistent record set the engine reads and mutates.
//
// Implemented by [repositories.ItemRepository].
type Ledger interface {
	FindAll(ctx context.Context) ([]*models.Item, error)
	FindByStatus(ctx context.Context, statuses ...models.Status) ([]*models.Item, error)
	FindEligibleForDownload(ctx context.Context, limit int) ([]*models.Item, error)
	Upsert(ctx context.Context, item *models.Item) error
	SyncCatalog(ctx context.Context, catalog []models.CatalogItem) (int, error)
	SetStatus(ctx context.Context, key string, to models.Status, detail *models.StatusDetail) error
	Claim(ctx context.Context, key string) (bool, error)
	ResetStuck(ctx context.Context) (int64, error)
}

// Options controls a download run.
type Options struct {
	Dest               string // Destination directory
	Limit              int    // Records fetched per batch; zero or less fetches every eligible record
	Concurrency        int    // Simultaneous transfers within a batch
	LargeFileThreshold int64  // Sizes above this are streamed, the rest buffered
	MaxAttempts        int    // Claims after which a zero-byte result is no longer re-armed
}

// OptionsFromConfig builds run options from the download configuration.
func OptionsFromConfig(cfg shared.DownloadConfig) Options {
	return Options{
		Dest:               cfg.Dest,
		Limit:              cfg.Limit,
		Concurrency:        cfg.Concurrency,
		LargeFileThreshold: cfg.LargeFileThreshold,
		MaxAttempts:        cfg.MaxAttempts,
	}
}

// DownloadResult summarizes a download run.
type DownloadResult struct {
	RunID      string       // Identifies the run in logs
	Processed  int          // Transfers attempted (claims won)
	Downloaded int          // Transfers finalized as downloaded
	Failed     int          // Transfers that ended in download_failed
	Rearmed    int          // Zero-byte transfers returned to not_downloaded for another attempt
	Skipped    int          // Records whose claim was lost
	Released   int          // Transfers interrupted by cancellation and released
	Batches    int          // Batches fetched from the ledger
	Reset      int64        // Records recovered from downloading before the run
	Sweep      *SweepResult // Pre-flight integrity sweep
	PostSweep  *SweepResult // Post-flight integrity sweep
}

// RefreshResult summarizes a catalog sync.
type RefreshResult struct {
	CatalogCount int // Items reported by the catalog
	Inserted     int // Items new to the ledger
}

// Engine orchestrates download runs, integrity sweeps and reconciliation.
type Engine struct {
	ledger  Ledger
	catalog services.Catalog
	fetcher services.Fetcher
	logger  *log.Logger
	opts    Options
}

// NewEngine creates a new Engine. catalog may be nil for operations that do not
// consult the remote catalog.
func NewEngine(ledger Ledger, catalog services.Catalog, fetcher services.Fetcher, logger *log.Logger, opts Options) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	return &Engine{
		ledger:  ledger,
		catalog: catalog,
		fetcher: fetcher,
		logger:  logger,
		opts:    opts,
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Download runs one full pass: crash recovery, pre-flight sweep, batches until no
// eligible record remains, post-flight sweep.
//
// Failures of individual transfers are counted and logged, never returned. The returned
// error is reserved for ledger failures, cancellation, and a batch in which no record
// could be claimed ([shared.ErrNoProgress]). The result is populated as far as the run got.
func (e *Engine) Download(ctx context.Context, progress chan<- ProgressUpdate) (*DownloadResult, error) {
	if e.fetcher == nil {
		return nil, fmt.Errorf("%w: fetcher not initialized", shared.ErrServiceUnavailable)
	}
	if e.opts.Dest == "" {
		return nil, fmt.Errorf("%w: destination directory is required", shared.ErrInvalidConfig)
	}

	runID := shared.GenerateID()
	logger := shared.WithLogger(e.logger, "run", runID)
	result := &DownloadResult{RunID: runID}

	if err := os.MkdirAll(e.opts.Dest, 0755); err != nil {
		return result, fmt.Errorf("failed to create destination directory: %w", err)
	}

	reset, err := e.ledger.ResetStuck(ctx)
	if err != nil {
		return result, err
	}
	result.Reset = reset
	if reset > 0 {
		logger.Warn("recovered interrupted downloads", "count", reset)
	}
	e.sendProgress(progress, recoverUpdate(reset))

	if result.Sweep, err = e.Sweep(ctx, progress); err != nil {
		return result, fmt.Errorf("pre-flight sweep: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := e.ledger.FindEligibleForDownload(ctx, e.opts.Limit)
		if err != nil {
			return result, err
		}
		if len(batch) == 0 {
			break
		}

		result.Batches++
		logger.Debug("starting batch", "batch", result.Batches, "size", len(batch))
		e.sendProgress(progress, batchUpdate(result.Batches, len(batch)))

		names, err := e.fileNames(ctx)
		if err != nil {
			return result, err
		}

		outcomes, err := e.runBatch(ctx, logger, batch, names, progress)
		claimed := tally(result, outcomes)
		if err != nil {
			logger.Warn("batch finished with failures", "batch", result.Batches, "error", err)
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}
		if claimed == 0 {
			return result, fmt.Errorf("%w: batch %d of %d records", shared.ErrNoProgress, result.Batches, len(batch))
		}
	}

	if result.PostSweep, err = e.Sweep(ctx, progress); err != nil {
		return result, fmt.Errorf("post-flight sweep: %w", err)
	}

	logger.Info("download run complete",
		"processed", result.Processed,
		"downloaded", result.Downloaded,
		"failed", result.Failed,
		"rearmed", result.Rearmed,
	)
	return result, nil
}

// runBatch transfers every record of the batch with at most Concurrency transfers in
// flight, each to its file name in names. A failing transfer never cancels its
// siblings; all failures are joined.
func (e *Engine) runBatch(
	ctx context.Context,
	logger *log.Logger,
	batch []*models.Item,
	names map[string]string,
	progress chan<- ProgressUpdate,
) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	errs := make([]error, len(batch))

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	for i, item := range batch {
		g.Go(func() error {
			outcomes[i], errs[i] = e.safeTransfer(ctx, logger, item, names[item.ResourceKey], i+1, len(batch), progress)
			return nil
		})
	}
	g.Wait()

	return outcomes, errors.Join(errs...)
}

// safeTransfer runs one transfer, converting a panic into a failed transfer.
func (e *Engine) safeTransfer(
	ctx context.Context,
	logger *log.Logger,
	item *models.Item,
	name string,
	step, total int,
	progress chan<- ProgressUpdate,
) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("transfer panicked", "key", item.ResourceKey, "name", item.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: panic: %v", shared.ErrTransferFailed, item.Name, r)
			outcome = e.fail(context.WithoutCancel(ctx), logger, item, err)
		}
	}()

	outcome, err = e.transfer(ctx, logger, item, name, step, total, progress)
	e.sendProgress(progress, transferDoneUpdate(step, total, item, outcome, err))
	return outcome, err
}

func tally(result *DownloadResult, outcomes []Outcome) (claimed int) {
	for _, o := range outcomes {
		switch o {
		case OutcomeSkipped:
			result.Skipped++
			continue
		case OutcomeDownloaded:
			result.Downloaded++
		case OutcomeFailed:
			result.Failed++
		case OutcomeRearmed:
			result.Rearmed++
		case OutcomeReleased:
			result.Released++
		}
		claimed++
	}
	result.Processed += claimed
	return claimed
}

// Refresh fetches the catalog and records it in the ledger: new items are inserted as
// not_downloaded, known items keep their status.
func (e *Engine) Refresh(ctx context.Context, progress chan<- ProgressUpdate) (*RefreshResult, error) {
	catalog, err := e.fetchCatalog(ctx, progress)
	if err != nil {
		return nil, err
	}

	inserted, err := e.ledger.SyncCatalog(ctx, catalog)
	if err != nil {
		return nil, err
	}

	e.logger.Info("catalog synced", "catalog", len(catalog), "inserted", inserted)
	return &RefreshResult{CatalogCount: len(catalog), Inserted: inserted}, nil
}

func (e *Engine) fetchCatalog(ctx context.Context, progress chan<- ProgressUpdate) ([]models.CatalogItem, error) {
	if e.catalog == nil {
		return nil, fmt.Errorf("%w: catalog not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, fetchCatalogUpdate(e.catalog.Name()))
	items, err := e.catalog.FetchAll(ctx)
	if err != nil {
		if !errors.Is(err, shared.ErrCatalogFetch) {
			err = fmt.Errorf("%w: %w", shared.ErrCatalogFetch, err)
		}
		return nil, err
	}
	return items, nil
}
