/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/snapsweep/internal/grouping"
	"github.com/friendsincode/snapsweep/internal/progress"
	"github.com/friendsincode/snapsweep/internal/quota"
	"github.com/friendsincode/snapsweep/internal/scan"
)

var (
	scanJSON       bool
	scanTrash      []string
	scanTrashForce bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the library and report cleanup groups",
	Long: `Scan the configured library, analyze every item and print the resulting
groups. Ctrl-C cancels the scan; analyses already running are allowed to finish.

Examples:
  # Scan and print groups
  snapsweep scan

  # Scan and move every non-keeper of duplicate groups to the trash
  snapsweep scan --trash duplicate --force

  # Machine readable report
  snapsweep scan --json
`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the full report as JSON")
	scanCmd.Flags().StringSliceVar(&scanTrash, "trash", nil, "Trash non-keepers of these group categories (duplicate, similar, screenshot, blurry, selfie, large_video)")
	scanCmd.Flags().BoolVarP(&scanTrashForce, "force", "f", false, "Skip the confirmation prompt for --trash")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	if !scanJSON {
		unobserve := a.Scanner.Observe(progressPrinter())
		defer unobserve()
	}

	report, err := a.Scanner.Scan(ctx)
	if !scanJSON {
		fmt.Fprintln(os.Stderr)
	}
	switch {
	case err == nil:
	case errors.Is(err, scan.ErrCancelled):
		fmt.Fprintln(os.Stderr, "scan cancelled")
		return nil
	case errors.Is(err, scan.ErrNotAuthorized):
		return fmt.Errorf("library %s is not readable: %w", cfg.LibraryRoot, err)
	default:
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if len(scanTrash) == 0 {
		return nil
	}
	wanted := make(map[grouping.Category]bool, len(scanTrash))
	for _, c := range scanTrash {
		wanted[grouping.Category(c)] = true
	}
	var selected []grouping.Group
	count := 0
	for _, g := range report.Groups {
		if wanted[g.Category] {
			selected = append(selected, g)
			count += g.ReclaimableCount()
		}
	}
	if count == 0 {
		fmt.Println("Nothing to trash.")
		return nil
	}
	if !scanTrashForce && !confirm(fmt.Sprintf("Move %d items from %d groups to the trash?", count, len(selected))) {
		fmt.Println("Aborted.")
		return nil
	}

	trashed := 0
	for _, g := range selected {
		res, err := a.Cleanup.DeleteGroup(context.Background(), g)
		if errors.Is(err, quota.ErrQuotaExceeded) {
			remaining, _ := a.Quota.Remaining(context.Background())
			fmt.Printf("Stopped: deletion quota reached (%d left, group needs %d).\n", remaining, g.ReclaimableCount())
			break
		}
		if err != nil {
			return fmt.Errorf("trash group %s: %w", g.ID, err)
		}
		trashed += len(res.Trashed)
	}
	fmt.Printf("Moved %d items to the trash. They can be restored for %d days.\n", trashed, cfg.Settings.TrashRetentionDays)
	return nil
}

// progressPrinter renders a single updating progress line on stderr.
func progressPrinter() func(scan.Snapshot) {
	last := -1
	var lastPhase progress.Phase
	return func(s scan.Snapshot) {
		pct := int(s.Progress.Value * 100)
		if pct == last && s.Progress.Phase == lastPhase {
			return
		}
		last, lastPhase = pct, s.Progress.Phase
		fmt.Fprintf(os.Stderr, "\r%-14s %3d%%", s.Progress.Phase, pct)
	}
}

func printReport(r *scan.Report) {
	fmt.Printf("Scanned %d items in %s (%d analyzed, %d cached, %d failed, %d skipped, %d in trash)\n",
		r.Total, r.Timings.Total.Round(time.Millisecond), r.Analyzed, r.CacheHits, r.Failed, r.Skipped, r.Excluded)
	if r.LowDiskSpace {
		fmt.Printf("Warning: only %s free on the library volume\n", formatBytes(int64(r.FreeSpaceBytes)))
	}
	if len(r.Groups) == 0 {
		fmt.Println("No cleanup groups found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tCATEGORY\tITEMS\tRECLAIMABLE\tKEEPER")
	for _, g := range r.Groups {
		keeper, ok := g.Keeper()
		if !ok {
			keeper = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", g.ID, g.Category, g.Count(), formatBytes(g.ReclaimableSize()), keeper)
	}
	_ = tw.Flush()
	fmt.Printf("Reclaimable: %s\n", formatBytes(r.ReclaimableBytes))
}
