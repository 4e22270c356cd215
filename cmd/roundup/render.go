package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/rounds"
)

func printReport(r *rounds.Report) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	title := "=== Roundup Report ==="
	if r.DryRun {
		title = "=== Roundup Report (dry run) ==="
	}
	fmt.Printf("\n%s\n\n", cyan(title))

	reason := r.StopReason
	switch reason {
	case rounds.StopStoreError, rounds.StopInterrupted:
		reason = red(reason)
	case rounds.StopBudget, rounds.StopMaxRounds:
		reason = yellow(reason)
	default:
		reason = green(reason)
	}
	fmt.Printf("  Run:              %s\n", r.RunID)
	fmt.Printf("  Stopped:          %s\n", reason)
	fmt.Printf("  Rounds completed: %d (now at round %d)\n", r.RoundsCompleted, r.CurrentRound)
	fmt.Printf("  Adjudicated:      %d clusters, %d oracle calls\n", r.ClustersAdjudicated, r.OracleCalls)
	fmt.Printf("  Merges:           %d (+%d auto-dedup)\n", r.MergesApplied, r.AutoDedupMerges)
	fmt.Printf("  Elapsed:          %s\n", r.Elapsed().Round(time.Second))

	if len(r.ManualReview) > 0 {
		fmt.Printf("\n%s %s\n", yellow("Manual review:"), strings.Join(r.ManualReview, ", "))
	}
	printProgress(r.ProgressHistory)

	if len(r.PlannedActions) > 0 {
		fmt.Printf("\n%s\n", yellow("Planned actions:"))
		for _, a := range r.PlannedActions {
			target := ""
			if a.TargetID != "" {
				target = " " + gray("→") + " " + a.TargetID
			}
			cluster := a.ClusterID
			if cluster == "" {
				cluster = "auto-dedup"
			}
			fmt.Printf("  %-10s %-14s %s%s\n", cluster, a.Action, a.EntryID, target)
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Printf("\n%s\n", yellow(fmt.Sprintf("Warnings (%d):", len(r.Warnings))))
		for _, w := range r.Warnings {
			fmt.Printf("  %s %s\n", yellow("⚠"), w)
		}
	}
	fmt.Println()
}

func printProgress(history []model.ProgressEntry) {
	if len(history) == 0 {
		return
	}
	fmt.Printf("\n  %-6s %10s %10s\n", "Round", "Items Δ", "Clusters Δ")
	for _, p := range history {
		fmt.Printf("  %-6d %9.1f%% %9.1f%%\n", p.Round, p.ItemsDeltaPct*100, p.CommsDeltaPct*100)
	}
}
