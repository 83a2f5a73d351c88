// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"complianceflow/platform/shared/logger"
)

// RedisBus carries events over Redis PUBLISH/SUBSCRIBE so several service
// instances and the external workflow engine share one stream. Delivery is
// at-most-once: events published while no subscriber is connected are lost.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[int]*redis.PubSub
	nextID int
	closed bool
	wg     sync.WaitGroup
}

// NewRedisBus creates a bus on client. Channels are named "<prefix><type>".
func NewRedisBus(client *redis.Client, prefix string, l *logger.Logger) *RedisBus {
	if prefix == "" {
		prefix = "events:"
	}
	if l == nil {
		l = logger.New("eventbus")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		prefix: prefix,
		logger: l,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]*redis.PubSub),
	}
}

func (b *RedisBus) channel(t Type) string {
	return b.prefix + string(t)
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(e.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Subscribe implements Bus. It returns once Redis has confirmed the
// subscription.
func (b *RedisBus) Subscribe(t Type, h Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	ps := b.client.Subscribe(b.ctx, b.channel(t))
	if _, err := ps.Receive(b.ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", t, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, ErrBusClosed
	}
	b.subs[id] = ps
	b.mu.Unlock()

	b.wg.Add(1)
	go b.consume(ps, h)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			_ = ps.Close()
		})
	}, nil
}

func (b *RedisBus) consume(ps *redis.PubSub, h Handler) {
	defer b.wg.Done()
	for msg := range ps.Channel() {
		var e Event
		if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
			b.logger.Warn("", "", "dropping undecodable event", map[string]interface{}{
				"channel": msg.Channel,
				"error":   err.Error(),
			})
			continue
		}
		dispatch(b.ctx, b.logger, h, e)
	}
}

// Close implements Bus. It closes every subscription and waits for their
// consumers to drain. The Redis client is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*redis.PubSub)
	b.mu.Unlock()

	b.cancel()
	for _, ps := range subs {
		_ = ps.Close()
	}
	b.wg.Wait()
	return nil
}
