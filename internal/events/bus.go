// About Last Night - Live Event Game Orchestrator
// Copyright 2026 About Last Night Crew
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/aboutlastnight/orchestrator

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/aboutlastnight/orchestrator/internal/logging"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("events: bus closed")

// Handler consumes one domain event payload. Handlers for the same
// subscription run sequentially in publish order.
type Handler func(payload []byte)

// Bus is the in-process domain event bus. Every Subscribe is recorded in a
// registry; Close cancels every recorded subscription, which is how the
// system guarantees no listener survives a teardown.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
	nextID  int
	wg      sync.WaitGroup
	closed  bool
}

// NewBus creates a bus with buffered fan-out channels.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, newLoggerAdapter()),
		cancels: make(map[int]context.CancelFunc),
	}
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(topic string, payload interface{}) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The subscription lives until ctx is
// canceled or the bus is closed. Every subscription is recorded; Close tears
// all of them down.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	id := b.nextID
	b.nextID++
	b.cancels[id] = cancel
	b.mu.Unlock()

	msgs, err := b.pubsub.Subscribe(subCtx, topic)
	if err != nil {
		b.unregister(id)
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.unregister(id)
		for msg := range msgs {
			handler(msg.Payload)
			msg.Ack()
		}
	}()

	return nil
}

func (b *Bus) unregister(id int) {
	b.mu.Lock()
	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
	b.mu.Unlock()
}

// SubscriberCount returns the number of live registered subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cancels)
}

// Close cancels every registered subscription, waits for their goroutines to
// drain, and closes the underlying Pub/Sub. After Close the registry is
// empty.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
	b.mu.Unlock()

	if err := b.pubsub.Close(); err != nil {
		return fmt.Errorf("close pubsub: %w", err)
	}
	b.wg.Wait()
	logging.Debug().Msg("domain event bus closed")
	return nil
}
