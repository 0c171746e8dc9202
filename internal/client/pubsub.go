package client

import "context"

// PubSubClient is a topic-keyed broadcast channel. It knows nothing about
// events or participants; every subscriber of a topic receives every message
// published on it.
type PubSubClient interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

type Subscription interface {
	// Messages is closed once the subscription ends.
	Messages() <-chan []byte
	Close() error
}

const subscriberBuffer = 100
