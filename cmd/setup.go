package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/vmx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes the config template when missing, initializes the ledger, runs migrations
// and creates the destination directory.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				return err
			}
			r.logger.Info("config file created", "path", r.configPath)
		}
	}

	r.logger.Info("initializing ledger", "path", r.config.Ledger.Path)

	s, err := r.openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := os.MkdirAll(r.config.Download.Dest, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	version, err := shared.SchemaVersion(s.db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for ledger: %v", r.config.Ledger.Path)
	r.writePlain("✓ Ledger ready: %s (%d items, schema v%d)\n", r.config.Ledger.Path, total, version)
	r.writePlain("✓ Downloads go to: %s\n", r.config.Download.Dest)

	if err := r.requireCatalog(); err != nil {
		r.writePlainln("Next steps:")
		r.writePlain("1. Set catalog.access_token in %s or export %s\n", r.configPath, shared.EnvAccessToken)
		r.writePlain("2. Run 'vmx catalog test' to check the connection\n")
	}

	return nil
}
