/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/snapsweep/internal/quota"
)

var (
	quotaForce   bool
	historyLimit int
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show or reset the free-tier deletion quota",
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lifetime deletions and what is left",
	Args:  cobra.NoArgs,
	RunE:  runQuotaStatus,
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the lifetime deletion counter",
	Args:  cobra.NoArgs,
	RunE:  runQuotaReset,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	quotaResetCmd.Flags().BoolVarP(&quotaForce, "force", "f", false, "Skip confirmation prompt")
	quotaCmd.AddCommand(quotaStatusCmd, quotaResetCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
	rootCmd.AddCommand(quotaCmd, historyCmd)
}

func runQuotaStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	used, err := a.Quota.Used(ctx)
	if err != nil {
		return err
	}
	remaining, err := a.Quota.Remaining(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted so far: %d\n", used)
	if remaining == quota.Unlimited {
		fmt.Println("Remaining:      unlimited (premium)")
		return nil
	}
	fmt.Printf("Remaining:      %d of %d\n", remaining, a.Quota.Cap())
	return nil
}

func runQuotaReset(cmd *cobra.Command, args []string) error {
	if !quotaForce && !confirm("Reset the lifetime deletion counter?") {
		fmt.Println("Aborted.")
		return nil
	}
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Quota.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Quota reset.")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.History.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No scans recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tITEMS\tGROUPS\tRECLAIMABLE\tDURATION")
	for _, r := range runs {
		state := r.State
		if r.FailureReason != "" {
			state += " (" + r.FailureReason + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), state, r.TotalItems, r.GroupCount,
			formatBytes(r.ReclaimableBytes), r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}
