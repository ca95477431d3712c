package eventbus

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

const (
	metadataRunID = "run_id"
	metadataSeq   = "seq"
)

// Notifier publishes store changes as JSON messages on a topic.
type Notifier struct {
	publisher message.Publisher
	topic     string
}

var _ conversation.Notifier = &Notifier{}

func NewNotifier(publisher message.Publisher, topic string) *Notifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Notifier{publisher: publisher, topic: topic}
}

func (n *Notifier) Notify(ctx context.Context, c conversation.Change) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "eventbus: marshal change")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(metadataRunID, c.RunID)
	msg.Metadata.Set(metadataSeq, strconv.FormatUint(c.Seq, 10))
	if err := n.publisher.Publish(n.topic, msg); err != nil {
		return errors.Wrap(err, "eventbus: publish change")
	}
	log.Trace().Str("topic", n.topic).Uint64("seq", c.Seq).Strs("actions", c.Actions).Msg("published change")
	return nil
}

// Subscribe registers on topic and returns the decoded changes. Changes that
// arrive after a newer one from the same run are dropped, since every change
// carries the full state. A non-empty runID drops the changes of every other
// run. The channel closes when ctx is done or the subscription ends.
func Subscribe(ctx context.Context, sub message.Subscriber, topic string, runID string) (<-chan conversation.Change, error) {
	if sub == nil {
		return nil, errors.New("eventbus: subscriber is nil")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	messages, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrap(err, "eventbus: subscribe")
	}

	out := make(chan conversation.Change, 16)
	go func() {
		defer close(out)
		lastSeq := map[string]uint64{}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var c conversation.Change
				err := json.Unmarshal(msg.Payload, &c)
				msg.Ack()
				if err != nil {
					log.Warn().Err(err).Str("component", "eventbus").Str("message_id", msg.UUID).Msg("failed to decode change")
					continue
				}
				if runID != "" && c.RunID != runID {
					log.Trace().Str("component", "eventbus").Str("run_id", c.RunID).Msg("dropped change of another run")
					continue
				}
				if c.Seq <= lastSeq[c.RunID] {
					continue
				}
				lastSeq[c.RunID] = c.Seq
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
