package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pooly/backend/internal/client"
	"github.com/pooly/backend/internal/dto"
	"github.com/sirupsen/logrus"
)

// EventBroker publishes live updates and hands out event-scoped streams of them.
type EventBroker interface {
	Publish(ctx context.Context, update dto.LiveUpdate)
	Watch(ctx context.Context, identity dto.Identity, topics ...dto.Topic) (<-chan dto.LiveUpdate, error)
}

const watchBuffer = 100

type eventBroker struct {
	pubSub client.PubSubClient
}

func newEventBroker(pubSub client.PubSubClient) EventBroker {
	return &eventBroker{pubSub: pubSub}
}

// Publish does not wait for any subscriber and never fails the caller; broker
// errors are logged. Publishes on one topic from one goroutine keep their order.
func (b *eventBroker) Publish(ctx context.Context, update dto.LiveUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		logrus.Errorf("Error marshaling %s update: %v", update.Topic, err)
		return
	}

	// the mutation is already committed, a cancelled request must not drop its update
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := b.pubSub.Publish(ctx, string(update.Topic), payload); err != nil {
		logrus.Errorf("Error publishing %s update for event %s: %v", update.Topic, update.EventCode, err)
	}
}

// Watch subscribes once per topic. The underlying channel is scope-blind, so
// every update is checked against the watcher's event before it is delivered;
// foreign updates are dropped. The returned channel is closed when ctx ends or
// the broker goes away.
func (b *eventBroker) Watch(ctx context.Context, identity dto.Identity, topics ...dto.Topic) (<-chan dto.LiveUpdate, error) {
	if len(topics) == 0 {
		topics = dto.AllTopics
	}
	topics = uniqueTopics(topics)

	subs := make([]client.Subscription, 0, len(topics))
	closeAll := func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
	for _, topic := range topics {
		if !topic.Valid() {
			closeAll()
			return nil, fmt.Errorf("%w: unknown topic %q", dto.ErrInvalidInput, topic)
		}
		sub, err := b.pubSub.Subscribe(ctx, string(topic))
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("%w: subscribe %s: %v", dto.ErrStorageUnavailable, topic, err)
		}
		subs = append(subs, sub)
	}

	out := make(chan dto.LiveUpdate, watchBuffer)
	var wg sync.WaitGroup
	wg.Add(len(subs))
	for i, sub := range subs {
		go func(topic dto.Topic, sub client.Subscription) {
			defer wg.Done()
			forward(ctx, identity, topic, sub.Messages(), out)
		}(topics[i], sub)
	}

	go func() {
		<-ctx.Done()
		closeAll()
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

func forward(ctx context.Context, identity dto.Identity, topic dto.Topic, messages <-chan []byte, out chan<- dto.LiveUpdate) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var update dto.LiveUpdate
			if err := json.Unmarshal(msg, &update); err != nil {
				logrus.Errorf("Error unmarshaling %s update: %v", topic, err)
				continue
			}
			if !accepts(identity, topic, update) {
				continue
			}

			select {
			case out <- update:
			default:
				logrus.Warnf("Dropping %s update for slow watcher %s", topic, identity.ParticipantID)
			}
		case <-ctx.Done():
			return
		}
	}
}

// accepts reports whether an update may reach a watcher. Updates without an
// event scope never match.
func accepts(identity dto.Identity, topic dto.Topic, update dto.LiveUpdate) bool {
	return update.Topic == topic &&
		update.EventCode != "" &&
		update.EventCode == identity.EventCode
}

// uniqueTopics keeps the first occurrence of every topic so that a repeated
// topic does not deliver each update twice.
func uniqueTopics(topics []dto.Topic) []dto.Topic {
	seen := make(map[dto.Topic]struct{}, len(topics))
	unique := make([]dto.Topic, 0, len(topics))
	for _, topic := range topics {
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		unique = append(unique, topic)
	}
	return unique
}
