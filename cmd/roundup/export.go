package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func ExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Partition the current graph and write the cluster export",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, c, cleanup, err := openConsolidator()
			if err != nil {
				return err
			}
			defer cleanup()

			if output == "" {
				output = c.Config.Path("communities.json")
			}
			export, err := c.Export(ctx, output)
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("Wrote %d clusters to %s\n", len(export.Communities), cyan(output))
			fmt.Printf("  Algorithm: %s\n", export.Metadata.Algorithm)
			fmt.Printf("  Skipped (too small): %d\n", export.Metadata.SkippedSmallCommunities)
			if export.Metadata.OversizedCommunities > 0 {
				fmt.Printf("  %s\n", yellow(fmt.Sprintf("Oversized: %d", export.Metadata.OversizedCommunities)))
			}
			for _, cl := range export.Communities {
				fmt.Printf("  %s  %-12s size=%-3d priority=%.3f\n", cl.ID, cl.Category, cl.Size, cl.PriorityScore)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "export file (default <work_dir>/communities.json)")
	return cmd
}
