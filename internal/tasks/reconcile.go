package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/desertthunder/vmx/internal/models"
	"github.com/desertthunder/vmx/internal/shared"
)

// ReconcileResult is the three-way diff between catalog, ledger and disk.
type ReconcileResult struct {
	CatalogCount    int
	LedgerCount     int
	DiskCount       int
	MissingInLedger []models.CatalogItem // catalog items with no ledger record
	MissingOnDisk   []*models.Item       // records whose expected file is absent, not already not_downloaded
	OrphansOnDisk   []string             // media files no record or catalog item accounts for
	DryRun          bool
	Applied         int // corrective writes that succeeded
}

// Reconcile compares the remote catalog, the ledger and the destination directory.
//
// Catalog items absent from the ledger are inserted as not_downloaded. Records whose
// expected file is not on disk are set to not_downloaded whatever their status. Expected
// names come from [models.FileNames] over the ledger and the new catalog items, and are
// compared by [shared.NormalizeFilename]. With dryRun the diff is only
// reported. The catalog is fetched before anything is written, so a catalog failure
// leaves the ledger untouched. Each correction is applied independently; failures are
// joined into the returned error alongside a complete result.
func (e *Engine) Reconcile(ctx context.Context, dryRun bool, progress chan<- ProgressUpdate) (*ReconcileResult, error) {
	catalog, err := e.fetchCatalog(ctx, progress)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, reconcileUpdate(1, 3, "Reading ledger..."))
	ledger, err := e.ledger.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, reconcileUpdate(2, 3, "Listing destination directory..."))
	disk, err := listMedia(e.opts.Dest)
	if err != nil {
		return nil, err
	}

	result := diff(catalog, ledger, disk)
	result.DryRun = dryRun

	e.logger.Info("reconciliation diff",
		"catalog", result.CatalogCount,
		"ledger", result.LedgerCount,
		"disk", result.DiskCount,
		"missing_in_ledger", len(result.MissingInLedger),
		"missing_on_disk", len(result.MissingOnDisk),
		"orphans", len(result.OrphansOnDisk),
	)

	if dryRun {
		return result, nil
	}

	e.sendProgress(progress, reconcileUpdate(3, 3, "Applying corrections..."))
	var errs []error
	for _, c := range result.MissingInLedger {
		if err := e.ledger.Upsert(ctx, models.NewItem(c)); err != nil {
			errs = append(errs, err)
			continue
		}
		result.Applied++
	}
	for _, item := range result.MissingOnDisk {
		if err := e.ledger.SetStatus(ctx, item.ResourceKey, models.StatusNotDownloaded, nil); err != nil {
			errs = append(errs, err)
			continue
		}
		e.logger.Debug("marked for re-download", "key", item.ResourceKey, "name", item.Name, "was", item.Status)
		result.Applied++
	}

	if err := errors.Join(errs...); err != nil {
		return result, fmt.Errorf("reconciliation partially applied: %w", err)
	}
	return result, nil
}

func diff(catalog []models.CatalogItem, ledger []*models.Item, disk []string) *ReconcileResult {
	result := &ReconcileResult{
		CatalogCount: len(catalog),
		LedgerCount:  len(ledger),
		DiskCount:    len(disk),
	}

	onDisk := make(map[string]bool, len(disk))
	for _, name := range disk {
		onDisk[shared.NormalizeFilename(name)] = true
	}

	known := make(map[string]bool, len(ledger))
	records := make([]*models.Item, 0, len(ledger)+len(catalog))
	for _, item := range ledger {
		known[item.ResourceKey] = true
		records = append(records, item)
	}
	for _, c := range catalog {
		if !known[c.ResourceKey] {
			result.MissingInLedger = append(result.MissingInLedger, c)
			known[c.ResourceKey] = true
			records = append(records, models.NewItem(c))
		}
	}

	names := models.FileNames(records)
	expected := make(map[string]bool, len(names))
	for _, name := range names {
		expected[shared.NormalizeFilename(name)] = true
	}

	for _, item := range ledger {
		if !onDisk[shared.NormalizeFilename(names[item.ResourceKey])] && item.Status != models.StatusNotDownloaded {
			result.MissingOnDisk = append(result.MissingOnDisk, item)
		}
	}

	for _, name := range disk {
		if !expected[shared.NormalizeFilename(name)] {
			result.OrphansOnDisk = append(result.OrphansOnDisk, name)
		}
	}

	return result
}

// listMedia returns the names of media files directly under dir, sorted. A missing
// directory lists as empty.
func listMedia(dir string) ([]string, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: destination directory is required", shared.ErrInvalidConfig)
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read destination directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), models.FileExtension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
