package eventbus

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus bundles the publisher the store announces changes on and the subscriber
// presentation components read them from.
type Bus struct {
	Topic      string
	Publisher  message.Publisher
	Subscriber message.Subscriber

	redis redis.UniversalClient
}

// Build returns a Redis Streams backed bus when enabled, an in-memory one otherwise.
func Build(s Settings, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	topic := strings.TrimSpace(s.Topic)
	if topic == "" {
		topic = DefaultTopic
	}

	if !s.Redis.Enabled {
		pubSub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logger)
		return &Bus{Topic: topic, Publisher: pubSub, Subscriber: pubSub}, nil
	}

	if strings.TrimSpace(s.Redis.Addr) == "" {
		return nil, errors.New("eventbus: redis enabled but addr is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Redis.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "eventbus: redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Redis.Group,
		Consumer:      s.Redis.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "eventbus: redis subscriber")
	}

	return &Bus{Topic: topic, Publisher: pub, Subscriber: sub, redis: client}, nil
}

// EnsureGroupAtTail creates the consumer group at the stream tail so a new
// consumer does not replay the full history. No-op for the in-memory bus.
func (b *Bus) EnsureGroupAtTail(ctx context.Context, group string) error {
	if b == nil || b.redis == nil || group == "" {
		return nil
	}
	err := b.redis.XGroupCreateMkStream(ctx, b.Topic, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "eventbus: create consumer group")
	}
	log.Info().Str("stream", b.Topic).Str("group", group).Msg("created redis consumer group at tail")
	return nil
}

// DropGroup removes a consumer group created by EnsureGroupAtTail. No-op for the
// in-memory bus.
func (b *Bus) DropGroup(ctx context.Context, group string) error {
	if b == nil || b.redis == nil || group == "" {
		return nil
	}
	if err := b.redis.XGroupDestroy(ctx, b.Topic, group).Err(); err != nil {
		return errors.Wrap(err, "eventbus: drop consumer group")
	}
	log.Debug().Str("stream", b.Topic).Str("group", group).Msg("dropped redis consumer group")
	return nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var firstErr error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			firstErr = err
		}
	}
	// the gochannel bus uses one value for both sides
	if b.Subscriber != nil && any(b.Subscriber) != any(b.Publisher) {
		if err := b.Subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
