/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/snapsweep/internal/cache"
)

var errCacheDisabled = errors.New("analysis cache is disabled or Redis is unreachable")

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the Redis analysis cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop every cached analysis result so the next scan re-analyzes",
	Args:  cobra.NoArgs,
	RunE:  runCacheFlush,
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheFlush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := flushAnalysisCache(ctx, a.Cache); err != nil {
		return err
	}
	fmt.Println("Analysis cache flushed.")
	return nil
}

func flushAnalysisCache(ctx context.Context, c *cache.Cache) error {
	if c == nil || !c.IsAvailable() {
		return errCacheDisabled
	}
	return c.FlushAnalysis(ctx)
}
