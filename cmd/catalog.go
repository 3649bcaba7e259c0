package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/vmx/internal/ui"
	"github.com/urfave/cli/v3"
)

// counter is a catalog that can report its size without listing every item.
type counter interface {
	Count(ctx context.Context) (int, error)
}

// CatalogTest requests the first page of the catalog.
func (r *Runner) CatalogTest(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCatalog(); err != nil {
		return err
	}

	r.logger.Info("testing connection", "catalog", r.catalog.Name())
	if _, err := r.count(ctx); err != nil {
		r.writePlain("%s\n", ui.Err(fmt.Sprintf("Failed to connect to %s: %v", r.catalog.Name(), err)))
		return err
	}

	return r.writePlain("%s\n", ui.OK(fmt.Sprintf("Successfully connected to %s!", r.catalog.Name())))
}

// CatalogCount prints the number of items in the catalog.
func (r *Runner) CatalogCount(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireCatalog(); err != nil {
		return err
	}

	n, err := r.count(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("You have %d item(s) in your %s account.\n", n, r.catalog.Name())
}

// count asks the catalog for its size, listing every item when it cannot report one.
func (r *Runner) count(ctx context.Context) (int, error) {
	if c, ok := r.catalog.(counter); ok {
		return c.Count(ctx)
	}

	items, err := r.catalog.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
