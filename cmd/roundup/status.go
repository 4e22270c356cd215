package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agenthands/roundup/internal/core"
)

func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the checkpointed state of the current run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// Status only reads the checkpoint; no store connection is needed.
			st, err := core.NewWithDeps(cfg, core.Deps{}, logger).Status()
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Println("No run has started.")
				return nil
			}

			cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
			gray := color.New(color.FgHiBlack).SprintFunc()

			fmt.Printf("\n%s\n\n", cyan("=== Roundup Status ==="))
			fmt.Printf("  Run:        %s\n", st.RunID)
			fmt.Printf("  Round:      %d of %d\n", st.CurrentRound, st.MaxRounds)
			fmt.Printf("  Auto-dedup: %v\n", st.AutoDedupDone)
			fmt.Printf("  Updated:    %s\n", st.UpdatedAt.Format("2006-01-02 15:04:05"))
			if len(st.CommunitiesResolved) > 0 {
				fmt.Printf("  Resolved:   %s\n", strings.Join(st.CommunitiesResolved, ", "))
			} else {
				fmt.Printf("  Resolved:   %s\n", gray("none this round"))
			}
			printProgress(st.ProgressHistory)
			return nil
		},
	}
}
