package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings selects the transport. Memory is a single-process fan-out; redis
// streams let several server instances share conversation streams.
type Settings struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	Group     string `mapstructure:"group" yaml:"group"`
}

const subscriberBuffer = 256

// Bus publishes and subscribes to per-conversation topics.
type Bus struct {
	pub    message.Publisher
	newSub func(topic string) (message.Subscriber, bool, error)
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

func NewBus(s Settings) (*Bus, error) {
	logger := NewWatermillLogger(log.Logger)
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "memory":
		gc := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            subscriberBuffer,
			BlockPublishUntilSubscriberAck: true,
		}, logger)
		return &Bus{
			pub:     gc,
			newSub:  func(string) (message.Subscriber, bool, error) { return gc, false, nil },
			logger:  logger,
			closers: []func() error{gc.Close},
		}, nil
	case "redis":
		return newRedisBus(s, logger)
	default:
		return nil, errors.Errorf("event bus: unknown driver %q", s.Driver)
	}
}

func newRedisBus(s Settings, logger watermill.LoggerAdapter) (*Bus, error) {
	if s.RedisAddr == "" {
		return nil, errors.New("event bus: redis driver needs redis_addr")
	}
	group := s.Group
	if group == "" {
		group = "estatebot-ui"
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "event bus: redis publisher")
	}
	b := &Bus{pub: pub, logger: logger, closers: []func() error{pub.Close, client.Close}}
	b.newSub = func(topic string) (message.Subscriber, bool, error) {
		// Each viewer gets its own group so every viewer sees every event.
		viewerGroup := group + ":" + uuid.NewString()
		if err := ensureGroupAtTail(context.Background(), client, topic, viewerGroup); err != nil {
			return nil, false, err
		}
		sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
			Client:        client,
			Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: viewerGroup,
			Consumer:      "viewer",
		}, logger)
		return sub, true, err
	}
	return b, nil
}

// ensureGroupAtTail creates the consumer group at $ so a new viewer does not
// replay history.
func ensureGroupAtTail(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(err, "event bus: create consumer group")
	}
	return nil
}

// Publish sends ev on its conversation topic.
func (b *Bus) Publish(ev Event) error {
	if b == nil {
		return nil
	}
	if ev.ConversationID == "" {
		return errors.New("event bus: event without conversation id")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "event bus: encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(ev.Kind))
	return b.pub.Publish(Topic(ev.ConversationID), msg)
}

// Subscribe streams a conversation's events until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, conversationID string) (<-chan Event, error) {
	if b == nil {
		return nil, errors.New("event bus is nil")
	}
	topic := Topic(conversationID)
	sub, owned, err := b.newSub(topic)
	if err != nil {
		return nil, err
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		if owned {
			_ = sub.Close()
		}
		return nil, errors.Wrap(err, "event bus: subscribe")
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		if owned {
			defer func() { _ = sub.Close() }()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(msg.Payload, &ev); err != nil {
					b.logger.Error("drop undecodable event", err, watermill.LogFields{"topic": topic})
					msg.Ack()
					continue
				}
				select {
				case out <- ev:
					msg.Ack()
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
