package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/marketplace-backend/pkg/stream"
	"github.com/redis/go-redis/v9"
)

// Notify publishes a change notification for topic. The payload is empty;
// subscribers reload their snapshot.
func (c *Client) Notify(ctx context.Context, topic string) error {
	if c.store == nil {
		return errNotInitialized
	}
	if err := c.store.Publish(ctx, c.ChangesChannel(topic), "").Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription for topic and waits for redis to
// confirm it before returning.
func (c *Client) Subscribe(ctx context.Context, topic string) (stream.Subscription, error) {
	if c.raw == nil {
		return nil, errNotInitialized
	}

	ps := c.raw.Subscribe(ctx, c.ChangesChannel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("confirm subscription %s: %w", topic, err)
	}
	return newChangeSubscription(ps.Channel(), ps), nil
}

type changeSubscription struct {
	events chan struct{}
	closer interface{ Close() error }
	once   sync.Once
	stop   chan struct{}
	wg     sync.WaitGroup
}

func newChangeSubscription(messages <-chan *redis.Message, closer interface{ Close() error }) *changeSubscription {
	sub := &changeSubscription{
		events: make(chan struct{}, 1),
		closer: closer,
		stop:   make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.forward(messages)
	return sub
}

func (s *changeSubscription) forward(messages <-chan *redis.Message) {
	defer s.wg.Done()
	defer close(s.events)
	for {
		select {
		case <-s.stop:
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			select {
			case s.events <- struct{}{}:
			default:
			}
		}
	}
}

func (s *changeSubscription) Events() <-chan struct{} {
	return s.events
}

func (s *changeSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.closer.Close()
		s.wg.Wait()
		if errors.Is(err, redis.ErrClosed) {
			err = nil
		}
	})
	return err
}
