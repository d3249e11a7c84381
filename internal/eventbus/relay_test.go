/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/snapsweep/internal/events"
)

func newOfflineRelay(t *testing.T, bus *events.Bus, nodeID string) *Relay {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxFailures = 2
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })
	return newRelay(client, bus, cfg, nodeID, zerolog.Nop())
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond
	if _, err := New(cfg, events.NewBus(), "node-a", zerolog.Nop()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestDeliverRepublishesRemoteEvents(t *testing.T) {
	bus := events.NewBus()
	r := newOfflineRelay(t, bus, "node-a")
	sub := bus.Subscribe(events.EventScanProgress)
	defer bus.Unsubscribe(events.EventScanProgress, sub)

	data, err := encode(events.EventScanProgress, events.Payload{"phase": "analyzing", "value": 0.5}, "node-b")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !r.deliver(data) {
		t.Fatal("remote event was not delivered")
	}

	select {
	case p := <-sub:
		if p["phase"] != "analyzing" || p[relayedKey] != "node-b" {
			t.Fatalf("payload = %v", p)
		}
		if r.shouldForward(p) {
			t.Fatal("relayed payload must not be forwarded again")
		}
	case <-time.After(time.Second):
		t.Fatal("no local event")
	}
}

func TestDeliverSkipsOwnEchoAndGarbage(t *testing.T) {
	bus := events.NewBus()
	r := newOfflineRelay(t, bus, "node-a")

	own, _ := encode(events.EventTrashAdded, events.Payload{"count": 1}, "node-a")
	tests := []struct {
		name string
		data []byte
	}{
		{"own echo", own},
		{"not json", []byte("{")},
		{"missing type", []byte(`{"payload":{},"node_id":"node-b"}`)},
	}
	for _, tt := range tests {
		if r.deliver(tt.data) {
			t.Errorf("%s: delivered, want dropped", tt.name)
		}
	}
}

func TestForwardingDisabledAfterRepeatedFailures(t *testing.T) {
	r := newOfflineRelay(t, events.NewBus(), "node-a")
	p := events.Payload{"state": "running"}

	if !r.shouldForward(p) {
		t.Fatal("fresh relay should forward")
	}
	r.handleFailure()
	if !r.shouldForward(p) {
		t.Fatal("one failure should not disable forwarding")
	}
	r.handleFailure()
	if r.shouldForward(p) {
		t.Fatal("forwarding should stop at the failure threshold")
	}
}

func TestRelayedTypesCoverStreamedEvents(t *testing.T) {
	seen := map[events.EventType]bool{}
	for _, typ := range RelayedTypes() {
		seen[typ] = true
	}
	for _, typ := range append(append([]events.EventType{}, events.ScanEvents...), events.EventQuotaChanged) {
		if !seen[typ] {
			t.Errorf("%s not relayed", typ)
		}
	}
}
