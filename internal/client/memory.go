package client

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// In-memory broadcast for single-process deployments and tests.
type memoryPubSub struct {
	subscribers     map[string]map[*memorySubscription]struct{}
	subscriberMutex sync.RWMutex
}

func NewMemoryPubSub() PubSubClient {
	return &memoryPubSub{
		subscribers: make(map[string]map[*memorySubscription]struct{}),
	}
}

type memorySubscription struct {
	broker   *memoryPubSub
	topic    string
	messages chan []byte
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.subscriberMutex.Lock()
		defer b.subscriberMutex.Unlock()

		// remove before closing so Publish never sends on a closed channel
		delete(b.subscribers[s.topic], s)
		if len(b.subscribers[s.topic]) == 0 {
			delete(b.subscribers, s.topic)
		}
		close(s.messages)
	})
	return nil
}

func (b *memoryPubSub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	b.subscriberMutex.Lock()
	defer b.subscriberMutex.Unlock()

	sub := &memorySubscription{
		broker:   b,
		topic:    topic,
		messages: make(chan []byte, subscriberBuffer),
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*memorySubscription]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}

	return sub, nil
}

func (b *memoryPubSub) Publish(ctx context.Context, topic string, message []byte) error {
	b.subscriberMutex.RLock()
	defer b.subscriberMutex.RUnlock()

	for sub := range b.subscribers[topic] {
		// Non-blocking send to prevent slow subscribers from blocking others
		select {
		case sub.messages <- message:
		default:
			logrus.Warnf("Dropping %s message for slow subscriber", topic)
		}
	}
	return nil
}

func (b *memoryPubSub) Close() error {
	b.subscriberMutex.Lock()
	defer b.subscriberMutex.Unlock()

	for topic, subs := range b.subscribers {
		for sub := range subs {
			sub.once.Do(func() { close(sub.messages) })
		}
		delete(b.subscribers, topic)
	}
	return nil
}
