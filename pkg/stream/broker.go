package stream

import (
	"context"
	"sync"
)

// Broker is an in-process Source and Notifier. The API uses it when no Redis
// change feed is configured, and tests use it everywhere.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*brokerSub
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[int]*brokerSub{}}
}

type brokerSub struct {
	broker *Broker
	topic  string
	id     int
	events chan struct{}
	once   sync.Once
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &brokerSub{
		broker: b,
		topic:  topic,
		id:     b.nextID,
		events: make(chan struct{}, 1),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]*brokerSub{}
	}
	b.subs[topic][sub.id] = sub
	return sub, nil
}

func (b *Broker) Notify(_ context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[topic] {
		select {
		case sub.events <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

func (s *brokerSub) Events() <-chan struct{} {
	return s.events
}

func (s *brokerSub) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		delete(s.broker.subs[s.topic], s.id)
		if len(s.broker.subs[s.topic]) == 0 {
			delete(s.broker.subs, s.topic)
		}
		close(s.events)
	})
	return nil
}
