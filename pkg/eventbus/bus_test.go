package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

func TestBuild_InMemory(t *testing.T) {
	bus, err := Build(DefaultSettings(), NewWatermillLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.Equal(t, DefaultTopic, bus.Topic)
	require.NotNil(t, bus.Publisher)
	require.NotNil(t, bus.Subscriber)
	require.NoError(t, bus.EnsureGroupAtTail(context.Background(), "g"))
	require.NoError(t, bus.Close())
}

func TestBuild_RedisNeedsAddr(t *testing.T) {
	s := DefaultSettings()
	s.Redis.Enabled = true
	s.Redis.Addr = ""
	_, err := Build(s, nil)
	require.Error(t, err)
}

func TestStoreChangesReachSubscriber(t *testing.T) {
	bus, err := Build(Settings{Topic: "test.changes"}, nil)
	require.NoError(t, err)
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := conversation.NewStore(conversation.WithNotifier(NewNotifier(bus.Publisher, bus.Topic)))
	got, err := Subscribe(ctx, bus.Subscriber, bus.Topic, store.RunID())
	require.NoError(t, err)

	go func() { _ = store.Run(ctx) }()

	require.NoError(t, store.Dispatch(ctx, conversation.SetDraft{Text: "hel"}))
	require.NoError(t, store.Dispatch(ctx, conversation.SetDraft{Text: "hello"}))

	var last conversation.Change
	require.Eventually(t, func() bool {
		for {
			select {
			case c := <-got:
				last = c
			default:
				return last.Seq == 2
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "hello", last.State.DraftInput)
	require.Equal(t, []string{"set_draft"}, last.Actions)
	require.Equal(t, store.RunID(), last.RunID)
}

type chanSubscriber struct {
	ch chan *message.Message
}

func (s *chanSubscriber) Subscribe(_ context.Context, _ string) (<-chan *message.Message, error) {
	return s.ch, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestSubscribe_DropsStaleAndUndecodable(t *testing.T) {
	ch := make(chan *message.Message, 4)
	ch <- message.NewMessage("1", []byte(`{"run_id":"r","seq":3,"state":{"draft_input":"c"}}`))
	ch <- message.NewMessage("2", []byte(`{"run_id":"r","seq":2,"state":{"draft_input":"b"}}`))
	ch <- message.NewMessage("3", []byte(`garbage`))
	ch <- message.NewMessage("4", []byte(`{"run_id":"r","seq":4,"state":{"draft_input":"d"}}`))
	close(ch)

	changes, err := Subscribe(context.Background(), &chanSubscriber{ch: ch}, "t", "")
	require.NoError(t, err)
	var drafts []string
	for c := range changes {
		drafts = append(drafts, c.State.DraftInput)
	}
	require.Equal(t, []string{"c", "d"}, drafts)
}

func TestSubscribe_FiltersForeignRuns(t *testing.T) {
	ch := make(chan *message.Message, 4)
	ch <- message.NewMessage("1", []byte(`{"run_id":"mine","seq":5,"state":{"draft_input":"e"}}`))
	ch <- message.NewMessage("2", []byte(`{"run_id":"other","seq":9,"state":{"draft_input":"x"}}`))
	ch <- message.NewMessage("3", []byte(`{"run_id":"mine","seq":3,"state":{"draft_input":"c"}}`))
	ch <- message.NewMessage("4", []byte(`{"run_id":"mine","seq":6,"state":{"draft_input":"f"}}`))
	close(ch)

	changes, err := Subscribe(context.Background(), &chanSubscriber{ch: ch}, "t", "mine")
	require.NoError(t, err)
	var drafts []string
	for c := range changes {
		drafts = append(drafts, c.State.DraftInput)
	}
	require.Equal(t, []string{"e", "f"}, drafts)
}

func TestRedisSettings_ForRun(t *testing.T) {
	r := DefaultSettings().Redis
	a, b := r.ForRun("run-a"), r.ForRun("run-b")
	require.Equal(t, "chat-widget-run-a", a.Group)
	require.NotEqual(t, a.Group, b.Group)
	require.Equal(t, r.Consumer, a.Consumer)
	require.Equal(t, r, r.ForRun(""))
}
