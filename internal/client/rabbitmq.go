package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const rabbitExchangeName = "pooly"

type rabbitClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	exchangeName    string
	subscribers     map[uint64]*rabbitSubscription
	subscriberMutex sync.RWMutex
	nextID          atomic.Uint64
	closed          atomic.Bool
}

type rabbitSubscription struct {
	id       uint64
	topic    string
	client   *rabbitClient
	messages chan []byte
	once     sync.Once
}

func NewRabbitMQClient(connectionStr string) (PubSubClient, error) {
	conn, ch, err := dialRabbit(connectionStr, rabbitExchangeName)
	if err != nil {
		return nil, err
	}

	client := &rabbitClient{
		conn:         conn,
		channel:      ch,
		exchangeName: rabbitExchangeName,
		subscribers:  make(map[uint64]*rabbitSubscription),
	}

	go client.monitorConnection(connectionStr)

	return client, nil
}

func dialRabbit(connectionStr, exchangeName string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(connectionStr)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	err = ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	return conn, ch, nil
}

func (c *rabbitClient) monitorConnection(connectionStr string) {
	connCloseChan := make(chan *amqp.Error, 1)
	c.subscriberMutex.RLock()
	c.conn.NotifyClose(connCloseChan)
	c.subscriberMutex.RUnlock()

	err := <-connCloseChan
	if c.closed.Load() {
		return
	}
	logrus.Errorf("RabbitMQ connection closed: %v", err)

	for !c.closed.Load() {
		time.Sleep(5 * time.Second)

		logrus.Info("Attempting to reconnect to RabbitMQ...")
		conn, ch, err := dialRabbit(connectionStr, c.exchangeName)
		if err != nil {
			logrus.Errorf("Failed to reconnect to RabbitMQ: %v", err)
			continue
		}

		c.subscriberMutex.Lock()
		oldConn := c.conn
		oldChannel := c.channel
		c.conn = conn
		c.channel = ch
		c.subscriberMutex.Unlock()

		if oldChannel != nil {
			oldChannel.Close()
		}
		if oldConn != nil {
			oldConn.Close()
		}

		c.resubscribeAll()

		go c.monitorConnection(connectionStr)
		break
	}
}

func (c *rabbitClient) resubscribeAll() {
	c.subscriberMutex.RLock()
	defer c.subscriberMutex.RUnlock()

	for id, sub := range c.subscribers {
		deliveries, err := c.consume(sub.topic, sub.consumerTag())
		if err != nil {
			logrus.Errorf("Failed to resubscribe %d to %s: %v", id, sub.topic, err)
			continue
		}
		go sub.forward(deliveries)
	}
}

// consume binds a fresh exclusive queue to the topic. Callers hold subscriberMutex.
func (c *rabbitClient) consume(topic, consumerTag string) (<-chan amqp.Delivery, error) {
	q, err := c.channel.QueueDeclare(
		"",    // name - let RabbitMQ generate a unique name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, err
	}

	err = c.channel.QueueBind(
		q.Name,         // queue name
		topic,          // routing key
		c.exchangeName, // exchange
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return nil, err
	}

	return c.channel.Consume(
		q.Name,      // queue
		consumerTag, // consumer
		true,        // auto-ack
		true,        // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
}

func (c *rabbitClient) Publish(ctx context.Context, topic string, message []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.subscriberMutex.RLock()
	ch := c.channel
	c.subscriberMutex.RUnlock()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		topic,          // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        message,
		})
}

func (c *rabbitClient) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	c.subscriberMutex.Lock()
	defer c.subscriberMutex.Unlock()

	sub := &rabbitSubscription{
		id:       c.nextID.Add(1),
		topic:    topic,
		client:   c,
		messages: make(chan []byte, subscriberBuffer),
	}

	deliveries, err := c.consume(topic, sub.consumerTag())
	if err != nil {
		return nil, err
	}
	c.subscribers[sub.id] = sub

	go sub.forward(deliveries)

	return sub, nil
}

func (s *rabbitSubscription) forward(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		func() {
			s.client.subscriberMutex.RLock()
			defer s.client.subscriberMutex.RUnlock()

			// closed subscriptions are removed from the map under the write lock
			if s.client.subscribers[s.id] != s {
				return
			}

			select {
			case s.messages <- d.Body:
			default:
				logrus.Warnf("Dropping %s message for slow subscriber", s.topic)
			}
		}()
	}
}

func (s *rabbitSubscription) consumerTag() string {
	return fmt.Sprintf("pooly-%d", s.id)
}

func (s *rabbitSubscription) Messages() <-chan []byte {
	return s.messages
}

func (s *rabbitSubscription) Close() error {
	s.once.Do(func() {
		s.client.subscriberMutex.Lock()
		delete(s.client.subscribers, s.id)
		close(s.messages)
		ch := s.client.channel
		s.client.subscriberMutex.Unlock()

		if ch == nil {
			return
		}
		// the auto-delete queue goes away with its last consumer
		if err := ch.Cancel(s.consumerTag(), false); err != nil {
			logrus.Warnf("Failed to cancel RabbitMQ consumer %s: %v", s.consumerTag(), err)
		}
	})
	return nil
}

func (c *rabbitClient) Close() error {
	c.closed.Store(true)

	c.subscriberMutex.Lock()
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		sub.once.Do(func() { close(sub.messages) })
	}
	ch, conn := c.channel, c.conn
	c.subscriberMutex.Unlock()

	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
