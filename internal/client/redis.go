package client

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisChannelPrefix = "pooly:"

type redisPubSub struct {
	rdb *redis.Client
}

func NewRedisPubSub(url string) (PubSubClient, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return NewRedisPubSubFromClient(rdb), nil
}

func NewRedisPubSubFromClient(rdb *redis.Client) PubSubClient {
	return &redisPubSub{rdb: rdb}
}

func (c *redisPubSub) Publish(ctx context.Context, topic string, message []byte) error {
	return c.rdb.Publish(ctx, redisChannelPrefix+topic, message).Err()
}

func (c *redisPubSub) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := c.rdb.Subscribe(ctx, redisChannelPrefix+topic)
	// wait for the subscription confirmation so that publishes issued after
	// Subscribe returns are not missed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	sub := &redisSubscription{
		ps:       ps,
		messages: make(chan []byte, subscriberBuffer),
		done:     make(chan struct{}),
	}
	go sub.forward(topic)

	return sub, nil
}

func (c *redisPubSub) Close() error {
	return c.rdb.Close()
}

type redisSubscription struct {
	ps       *redis.PubSub
	messages chan []byte
	done     chan struct{}
	once     sync.Once
}

func (s *redisSubscription) forward(topic string) {
	defer close(s.messages)
	ch := s.ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.messages <- []byte(msg.Payload):
			case <-s.done:
				return
			default:
				logrus.Warnf("Dropping %s message for slow subscriber", topic)
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
