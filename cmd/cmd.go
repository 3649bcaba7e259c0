// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand creates the config file, ledger and destination directory.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file, initialize the ledger and run migrations",
		Action: r.Setup,
	}
}

// downloadCommand runs the transfer pipeline until no eligible item remains.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "download",
		Aliases: []string{"dl"},
		Usage:   "Download every item not yet on disk",
		Flags:   downloadFlags(),
		Action:  r.Download,
	}
}

func downloadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Number of items claimed per batch",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of simultaneous transfers within a batch",
		},
		&cli.StringFlag{
			Name:  "dest",
			Usage: "Destination directory for downloaded files",
		},
		&cli.BoolFlag{
			Name:  "refresh",
			Usage: "Refresh the ledger from the catalog before downloading",
		},
	}
}

// tuiCommand returns the live download monitor.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Download with a live terminal monitor",
		Flags:   downloadFlags(),
		Action:  r.TUI,
	}
}

// refreshCommand records new catalog items in the ledger.
func refreshCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "refresh",
		Usage:  "Refresh the list of items from the catalog",
		Action: r.Refresh,
	}
}

// listCommand prints the ledger.
func listCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "Print the ledger, largest items first",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, csv or json",
				Value:   "table",
			},
			&cli.StringSliceFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Only list items in these states (e.g. download_failed)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write csv output to this file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print counts per status instead of items",
			},
		},
		Action: r.List,
	}
}

// resetCommand returns records to not_downloaded.
func resetCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Reset items marked as downloading",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "failed",
				Usage: "Reset failed items instead, clearing their attempt count",
			},
		},
		Action: r.Reset,
	}
}

// sweepCommand checks that downloaded records still have their files.
func sweepCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "Verify downloaded files and re-arm missing or empty ones",
		Action: r.Sweep,
	}
}

// compareCommand reports the catalog, ledger and disk differences without writing.
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "compare",
		Usage:  "Compare catalog, ledger and disk files",
		Action: r.Compare,
	}
}

// reconcileCommand applies the corrections compare reports.
func reconcileCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "reconcile",
		Usage:  "Mark items missing from the ledger or disk for re-download",
		Action: r.Reconcile,
	}
}

// catalogCommand talks to the remote catalog directly.
func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Remote catalog operations",
		Commands: []*cli.Command{
			{
				Name:   "test",
				Usage:  "Test the connection to the catalog",
				Action: r.CatalogTest,
			},
			{
				Name:   "count",
				Usage:  "Show the number of items in the catalog",
				Action: r.CatalogCount,
			},
		},
	}
}
