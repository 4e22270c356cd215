package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func GraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Manage the candidate similarity graph",
	}
	cmd.AddCommand(graphBuildCmd())
	return cmd
}

func graphBuildCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Query nearest neighbors and write the neighbor cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, cleanup, err := openConsolidator()
			if err != nil {
				return err
			}
			defer cleanup()

			g, stats, err := c.BuildGraph(ctx, force)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			source := "queried"
			if stats.FromCache {
				source = "cache"
			}
			fmt.Printf("%s neighbor list from %s\n", green("✓"), source)
			fmt.Printf("  Items queried:  %d\n", stats.Queried)
			fmt.Printf("  Raw neighbors:  %d\n", stats.Neighbors)
			fmt.Printf("  Dropped:        %d\n", stats.Dropped)
			fmt.Printf("  Re-ranked:      %d\n", stats.Reranked)
			fmt.Printf("  Active items:   %d\n", len(g.Items))
			fmt.Printf("  Graph edges:    %d\n", len(g.Edges))
			if g.Empty() {
				fmt.Printf("%s no pair reaches edge_threshold, nothing to consolidate\n", yellow("⚠"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if the cache key matches")
	return cmd
}
