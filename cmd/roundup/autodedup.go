package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func AutoDedupCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "autodedup",
		Short: "Merge certain duplicates without consulting the LLM",
		Long: `Unions every edge at or above auto_dedup_threshold and supersedes each
component's active members into its lexicographically smallest active id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, cleanup, err := openConsolidator()
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := c.AutoDedup(ctx, dryRun)
			if err != nil {
				return err
			}

			gray := color.New(color.FgHiBlack).SprintFunc()
			verb := "Merged"
			if dryRun {
				verb = "Would merge"
			}
			fmt.Printf("%s %d items across %d components\n", verb, len(res.Merges), res.Components)
			for _, m := range res.Merges {
				fmt.Printf("  %s %s %s\n", m.Src, gray("→"), m.Anchor)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list merges without writing")
	return cmd
}
