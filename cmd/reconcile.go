package main

import (
	"context"

	"github.com/desertthunder/vmx/internal/formatter"
	"github.com/desertthunder/vmx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Compare prints the catalog, ledger and disk differences without changing anything.
func (r *Runner) Compare(ctx context.Context, cmd *cli.Command) error {
	return r.reconcile(ctx, true)
}

// Reconcile marks every item missing from the ledger or disk for download.
func (r *Runner) Reconcile(ctx context.Context, cmd *cli.Command) error {
	return r.reconcile(ctx, false)
}

func (r *Runner) reconcile(ctx context.Context, dryRun bool) error {
	if err := r.requireCatalog(); err != nil {
		return err
	}

	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	var result *tasks.ReconcileResult
	err = r.withProgress(func(progress chan<- tasks.ProgressUpdate) error {
		var err error
		result, err = s.engine.Reconcile(ctx, dryRun, progress)
		return err
	})
	if result != nil {
		r.writePlainHeader("Catalog / ledger / disk")
		r.writePlain("%s", formatter.RenderReconcile(result))
	}
	return err
}
