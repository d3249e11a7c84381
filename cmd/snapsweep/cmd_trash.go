/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/snapsweep/internal/trash"
)

var (
	trashReason      string
	trashExpiredOnly bool
	trashLimit       int
	trashSkipExpired bool
	trashForce       bool
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect and manage the trash",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trash entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTrashList,
}

var trashStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the trash",
	Args:  cobra.NoArgs,
	RunE:  runTrashStats,
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore ENTRY_ID...",
	Short: "Restore entries so their items reappear in scans",
	Long: `Restore trash entries. By default any expired entry rejects the whole
request; --skip-expired restores the rest instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrashRestore,
}

var trashDeleteCmd = &cobra.Command{
	Use:   "delete ENTRY_ID...",
	Short: "Permanently delete entries and their files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTrashDelete,
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete everything in the trash",
	Args:  cobra.NoArgs,
	RunE:  runTrashEmpty,
}

var trashSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Permanently delete expired entries",
	Args:  cobra.NoArgs,
	RunE:  runTrashSweep,
}

func init() {
	trashListCmd.Flags().StringVar(&trashReason, "reason", "", "Only entries trashed for this reason")
	trashListCmd.Flags().BoolVar(&trashExpiredOnly, "expired", false, "Only expired entries")
	trashListCmd.Flags().IntVar(&trashLimit, "limit", 100, "Maximum entries to list (0 = all)")
	trashRestoreCmd.Flags().BoolVar(&trashSkipExpired, "skip-expired", false, "Restore the non-expired entries and skip the rest")
	trashDeleteCmd.Flags().BoolVarP(&trashForce, "force", "f", false, "Skip confirmation prompt")
	trashEmptyCmd.Flags().BoolVarP(&trashForce, "force", "f", false, "Skip confirmation prompt")

	trashCmd.AddCommand(trashListCmd, trashStatsCmd, trashRestoreCmd, trashDeleteCmd, trashEmptyCmd, trashSweepCmd)
	rootCmd.AddCommand(trashCmd)
}

func runTrashList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Trash.List(ctx, trash.Filter{Reason: trashReason, ExpiredOnly: trashExpiredOnly, Limit: trashLimit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Trash is empty.")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTRY\tITEM\tSIZE\tDELETED\tDAYS LEFT\tREASON")
	for _, e := range entries {
		left := fmt.Sprint(e.DaysRemaining(now))
		if e.IsExpired(now) {
			left = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.AssetRef, formatBytes(e.Size), e.DeletedAt.Local().Format("2006-01-02 15:04"), left, e.Reason)
	}
	return tw.Flush()
}

func runTrashStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Trash.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Entries:        %d\n", stats.Count)
	fmt.Printf("Size:           %s\n", formatBytes(stats.TotalBytes))
	fmt.Printf("Expiring soon:  %d\n", stats.ExpiringSoon)
	fmt.Printf("Expired:        %d\n", stats.Expired)
	fmt.Printf("Retention:      %d days\n", cfg.Settings.TrashRetentionDays)
	return nil
}

func runTrashRestore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Trash.Restore(ctx, args, trash.RestoreOptions{AutoSkipExpired: trashSkipExpired})
	switch {
	case errors.Is(err, trash.ErrExpired):
		return fmt.Errorf("%d entries have expired; rerun with --skip-expired to restore the rest", trash.AffectedCount(err))
	case err != nil:
		return err
	}
	fmt.Printf("Restored %d entries", len(res.Restored))
	if res.Skipped > 0 {
		fmt.Printf(", skipped %d expired", res.Skipped)
	}
	fmt.Println(".")
	return nil
}

func runTrashDelete(cmd *cobra.Command, args []string) error {
	if !trashForce && !confirm(fmt.Sprintf("Permanently delete %d items? This cannot be undone.", len(args))) {
		fmt.Println("Aborted.")
		return nil
	}
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Trash.PermanentlyDelete(ctx, args)
	return reportPurge("Deleted", n, err)
}

func runTrashEmpty(cmd *cobra.Command, args []string) error {
	if !trashForce && !confirm("Permanently delete everything in the trash? This cannot be undone.") {
		fmt.Println("Aborted.")
		return nil
	}
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Trash.EmptyTrash(ctx)
	return reportPurge("Deleted", n, err)
}

func runTrashSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Trash.SweepExpired(ctx)
	return reportPurge("Swept", n, err)
}

func reportPurge(verb string, n int, err error) error {
	fmt.Printf("%s %d entries.\n", verb, n)
	if errors.Is(err, trash.ErrDeleteFailed) {
		var be *trash.BatchError
		if errors.As(err, &be) {
			for id, cause := range be.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", id, cause)
			}
		}
		return fmt.Errorf("%d entries could not be deleted and remain in the trash", trash.AffectedCount(err))
	}
	return err
}
