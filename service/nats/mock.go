package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu              sync.RWMutex
	publishedEvents []*FireEvent
	publishError    error
	closed          bool
	subscribers     map[int]mockSubscriber
	nextSubID       int
}

type mockSubscriber struct {
	player string
	fn     func(*FireEvent)
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		publishedEvents: make([]*FireEvent, 0),
	}
}

// PublishFire records the event and returns any configured error.
func (m *MockPublisher) PublishFire(ctx context.Context, event *FireEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.publishedEvents = append(m.publishedEvents, event)
	for _, sub := range m.subscribers {
		if sub.player == "" || sub.player == event.Player {
			sub.fn(event)
		}
	}
	return nil
}

// SubscribeFire registers fn for events of player, or of every player when
// player is empty. Events are delivered synchronously from PublishFire.
func (m *MockPublisher) SubscribeFire(player string, fn func(*FireEvent)) (func() error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribers == nil {
		m.subscribers = make(map[int]mockSubscriber)
	}
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = mockSubscriber{player: player, fn: fn}

	return func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
		return nil
	}, nil
}

// SubscriberCount returns the number of active subscriptions.
func (m *MockPublisher) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetPublishedEvents returns all published events (for testing).
func (m *MockPublisher) GetPublishedEvents() []*FireEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*FireEvent, len(m.publishedEvents))
	copy(events, m.publishedEvents)
	return events
}

// GetPublishedEventsForPlayer returns events published for a specific player.
func (m *MockPublisher) GetPublishedEventsForPlayer(address string) []*FireEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*FireEvent, 0)
	for _, event := range m.publishedEvents {
		if event.Player == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError configures the mock to return an error on PublishFire.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
