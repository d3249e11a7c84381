/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"errors"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "scan", "trash", "quota", "history", "cache", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, sub := range []string{"list", "stats", "restore", "delete", "empty", "sweep"} {
		cmd, _, err := rootCmd.Find([]string{"trash", sub})
		if err != nil || cmd.Name() != sub {
			t.Errorf("trash %s not registered", sub)
		}
	}
	if cmd, _, err := rootCmd.Find([]string{"cache", "flush"}); err != nil || cmd.Name() != "flush" {
		t.Error("cache flush not registered")
	}
}

func TestFlushWithoutCacheFails(t *testing.T) {
	if err := flushAnalysisCache(context.Background(), nil); !errors.Is(err, errCacheDisabled) {
		t.Fatalf("expected errCacheDisabled, got %v", err)
	}
}
