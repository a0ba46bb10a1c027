package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type broker interface {
	Ping(context.Context) error
	Publisher(topic string) *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Resume(orderingKey string)
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers keeps one ordered publisher per topic for the life of the relay.
type topicPublishers struct {
	mu     sync.Mutex
	open   func(topic string) publisher
	byName map[string]publisher
}

func newTopicPublishers(b broker) *topicPublishers {
	return &topicPublishers{
		open: func(topic string) publisher {
			p := b.Publisher(topic)
			if p == nil {
				return nil
			}
			p.EnableMessageOrdering = true
			return orderedPublisher{p}
		},
		byName: map[string]publisher{},
	}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byName[topic]; ok {
		return p
	}
	p := t.open(topic)
	if p != nil {
		t.byName[topic] = p
	}
	return p
}

func (t *topicPublishers) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.byName {
		p.Stop()
		delete(t.byName, name)
	}
}

type orderedPublisher struct {
	*gcppubsub.Publisher
}

func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

func (p orderedPublisher) Resume(orderingKey string) {
	p.Publisher.ResumePublish(orderingKey)
}
