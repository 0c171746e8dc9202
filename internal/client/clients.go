package client

import (
	"strings"

	"github.com/pooly/backend/internal/dto"
	"github.com/sirupsen/logrus"
)

type Clients interface {
	AuthClient() AuthClient
	PubSubClient() PubSubClient
	Close() error
}

type clients struct {
	authClient   AuthClient
	pubSubClient PubSubClient
}

func (c clients) AuthClient() AuthClient {
	return c.authClient
}

func (c clients) PubSubClient() PubSubClient {
	return c.pubSubClient
}

func (c clients) Close() error {
	return c.pubSubClient.Close()
}

func NewClients(cfg dto.Config) Clients {
	pubSubClient, err := newPubSubClient(cfg.BrokerURL)
	if err != nil {
		logrus.Panic(err)
	}

	return &clients{
		authClient:   NewJWTAuthClient([]byte(cfg.JWTSecret), cfg.CredentialTTL),
		pubSubClient: pubSubClient,
	}
}

// NewClientsWith wires already constructed clients.
func NewClientsWith(authClient AuthClient, pubSubClient PubSubClient) Clients {
	return &clients{
		authClient:   authClient,
		pubSubClient: pubSubClient,
	}
}

func newPubSubClient(brokerURL string) (PubSubClient, error) {
	switch {
	case strings.HasPrefix(brokerURL, "redis://"), strings.HasPrefix(brokerURL, "rediss://"):
		logrus.Info("Using Redis pub/sub broker")
		return NewRedisPubSub(brokerURL)
	case strings.HasPrefix(brokerURL, "amqp://"), strings.HasPrefix(brokerURL, "amqps://"):
		logrus.Info("Using RabbitMQ broker")
		rabbitClient, err := NewRabbitMQClient(brokerURL)
		if err != nil {
			// lets a single instance start before RabbitMQ is ready
			logrus.Errorf("Failed to connect to RabbitMQ, falling back to in-memory broker: %v", err)
			return NewMemoryPubSub(), nil
		}
		return rabbitClient, nil
	default:
		logrus.Warn("Using in-memory broker (BROKER_URL not set)")
		return NewMemoryPubSub(), nil
	}
}
