/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays the in-process event bus over Redis pub/sub so a
// scan started from the CLI reaches websocket clients of a running server.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/snapsweep/internal/events"
)

// DefaultChannel is the Redis channel all nodes share.
const DefaultChannel = "snapsweep:events"

// relayedKey marks payloads that arrived from another node so they are not
// sent back out.
const relayedKey = "_relayed_from"

// Config contains Redis connection configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxFailures consecutive publish errors stop outbound forwarding.
	MaxFailures int
}

// DefaultConfig returns default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Channel:      DefaultChannel,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxFailures:  5,
	}
}

// Relay forwards local events to Redis and remote events to the local bus.
type Relay struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	bus     *events.Bus
	channel string
	nodeID  string
	types   []events.EventType
	logger  zerolog.Logger

	mu        sync.Mutex
	failCount int
	maxFails  int
	disabled  bool

	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
}

// message is the wire format on the Redis channel.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
}

// RelayedTypes are the events shared between nodes.
func RelayedTypes() []events.EventType {
	types := append([]events.EventType{}, events.ScanEvents...)
	types = append(types, events.TrashEvents...)
	return append(types, events.EventQuotaChanged)
}

// New connects to Redis. It fails when Redis is unreachable; callers run
// without the relay in that case.
func New(cfg Config, bus *events.Bus, nodeID string, logger zerolog.Logger) (*Relay, error) {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect event relay: %w", err)
	}

	return newRelay(client, bus, cfg, nodeID, logger), nil
}

func newRelay(client *redis.Client, bus *events.Bus, cfg Config, nodeID string, logger zerolog.Logger) *Relay {
	return &Relay{
		client:   client,
		bus:      bus,
		channel:  cfg.Channel,
		nodeID:   nodeID,
		types:    RelayedTypes(),
		maxFails: cfg.MaxFailures,
		logger:   logger.With().Str("component", "event_relay").Str("node_id", nodeID).Logger(),
	}
}

// Start begins relaying in both directions until Close.
func (r *Relay) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.pubsub = r.client.Subscribe(ctx, r.channel)
	local, unsub := r.bus.SubscribeMany(r.types...)
	r.unsub = unsub

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.forward(ctx, local)
	}()
	go func() {
		defer r.wg.Done()
		r.receive(ctx, r.pubsub.Channel())
	}()

	r.logger.Info().Str("channel", r.channel).Msg("event relay started")
}

// forward publishes local events to Redis.
func (r *Relay) forward(ctx context.Context, local <-chan events.Envelope) {
	for env := range local {
		if !r.shouldForward(env.Payload) {
			continue
		}
		data, err := encode(env.Type, env.Payload, r.nodeID)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to encode event")
			continue
		}
		pubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.client.Publish(pubCtx, r.channel, data).Err()
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn().Err(err).Str("event_type", string(env.Type)).Msg("failed to publish event")
				r.handleFailure()
			}
			continue
		}
		r.mu.Lock()
		r.failCount = 0
		r.mu.Unlock()
	}
}

// receive republishes events from other nodes on the local bus.
func (r *Relay) receive(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.deliver([]byte(msg.Payload))
		}
	}
}

// deliver decodes one Redis message and publishes it locally unless it is our
// own echo.
func (r *Relay) deliver(data []byte) bool {
	msg, err := decode(data)
	if err != nil {
		r.logger.Warn().Err(err).Msg("dropping malformed event")
		return false
	}
	if msg.NodeID == r.nodeID {
		return false
	}
	payload := make(events.Payload, len(msg.Payload)+1)
	for k, v := range msg.Payload {
		payload[k] = v
	}
	payload[relayedKey] = msg.NodeID
	r.bus.Publish(msg.EventType, payload)
	return true
}

func (r *Relay) shouldForward(p events.Payload) bool {
	if _, relayed := p[relayedKey]; relayed {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

// handleFailure stops outbound forwarding after repeated publish errors.
func (r *Relay) handleFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCount++
	if r.failCount >= r.maxFails && !r.disabled {
		r.disabled = true
		r.logger.Warn().Int("fail_count", r.failCount).Msg("event relay failure threshold reached, forwarding disabled")
	}
}

// Close stops both directions and closes the Redis client.
func (r *Relay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.unsub != nil {
		r.unsub()
	}
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	r.wg.Wait()
	return r.client.Close()
}

func encode(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
	})
}

func decode(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal relay message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("relay message without event type")
	}
	return &msg, nil
}
