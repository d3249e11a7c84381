/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/friendsincode/snapsweep/internal/events"
	"github.com/friendsincode/snapsweep/internal/telemetry"
)

const eventsPingInterval = 15 * time.Second

// defaultEventTypes is what a client receives without a types filter.
func defaultEventTypes() []events.EventType {
	types := append([]events.EventType{}, events.ScanEvents...)
	types = append(types, events.TrashEvents...)
	return append(types, events.EventQuotaChanged)
}

// parseEventTypes keeps the known types from a comma separated list.
func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	known := make(map[events.EventType]bool)
	for _, t := range defaultEventTypes() {
		known[t] = true
	}
	var out []events.EventType
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		if known[t] {
			out = append(out, t)
		}
	}
	return out
}

// handleEvents streams bus events over a websocket. The current scan state is
// sent first so a client joining mid-scan does not wait for the next update.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = defaultEventTypes()
	}
	stream, unsubscribe := a.bus.SubscribeMany(eventTypes...)
	defer unsubscribe()

	// Reads are only needed to observe the client closing.
	ctx = conn.CloseRead(ctx)

	state := a.scanner.State()
	initial := events.Payload{"state": string(state.Kind), "reason": string(state.Reason)}
	if err := a.writeEvent(ctx, conn, events.EventScanState, initial); err != nil {
		a.logger.Debug().Err(err).Msg("websocket initial write failed")
		return
	}

	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		case env, ok := <-stream:
			if !ok {
				conn.Close(ws.StatusGoingAway, "event stream closed")
				return
			}
			if err := a.writeEvent(ctx, conn, env.Type, env.Payload); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data, err := json.Marshal(events.Envelope{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, ws.MessageText, data)
}
