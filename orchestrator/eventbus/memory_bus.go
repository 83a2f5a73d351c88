// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"complianceflow/platform/shared/logger"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus closed")

// MemoryBus dispatches events synchronously to in-process subscribers, in
// subscription order. A panicking handler is logged and does not affect
// the others.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
	nextID   int
	closed   bool
	logger   *logger.Logger
}

type subscription struct {
	id      int
	handler Handler
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(l *logger.Logger) *MemoryBus {
	if l == nil {
		l = logger.New("eventbus")
	}
	return &MemoryBus{
		handlers: make(map[Type][]subscription),
		logger:   l,
	}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]subscription, len(b.handlers[e.Type]))
	copy(subs, b.handlers[e.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		dispatch(ctx, b.logger, s.handler, e)
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(t Type, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, id) })
	}, nil
}

func (b *MemoryBus) remove(t Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[t]
	for i, s := range subs {
		if s.id == id {
			b.handlers[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Close implements Bus.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[Type][]subscription)
	return nil
}

func dispatch(ctx context.Context, l *logger.Logger, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("", "", "event handler panicked", map[string]interface{}{
				"event_type":    string(e.Type),
				"event_id":      e.ID,
				"submission_id": e.SubmissionID,
				"panic":         fmt.Sprint(r),
			})
		}
	}()
	h(ctx, e)
}
