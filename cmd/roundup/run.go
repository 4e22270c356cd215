package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/agenthands/roundup/internal/core"
	"github.com/agenthands/roundup/internal/core/rounds"
)

func RunCmd() *cobra.Command {
	var opts core.RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run consolidation rounds until a stop condition",
		Long: `Builds or reuses the neighbor cache, runs auto-dedup once, then loops
select, adjudicate, apply, rebuild and score until the collection converges.

An existing state file is resumed when it matches the current cluster export.
Use --restart to discard a state file that no longer matches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, cleanup, err := openConsolidator()
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := c.Run(ctx, opts)
			if report != nil {
				printReport(report)
			}
			if errors.Is(err, rounds.ErrChecksumMismatch) {
				return errors.New("state file does not match the current cluster export; rerun with --restart to discard it")
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "adjudicate and report without writing anything")
	cmd.Flags().BoolVar(&opts.Restart, "restart", false, "discard a mismatched state file and start over")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "rebuild the neighbor cache even if its key matches")
	return cmd
}
