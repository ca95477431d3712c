// Package widget wires the transport, store, controller, journal and event bus
// into one application value.
package widget

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/chatapi"
	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/config"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
	"github.com/go-go-golems/chatwidget/pkg/eventbus"
	"github.com/go-go-golems/chatwidget/pkg/persistence/journal"
)

// App owns one conversation. Store.Run must be running (see Run) before any
// controller command is issued.
type App struct {
	settings   config.Settings
	client     *chatapi.Client
	store      *conversation.Store
	controller *chatsync.Controller
	bus        *eventbus.Bus
	journal    journal.Journal
}

type Option func(*options)

type options struct {
	transport chatsync.Transport
}

// WithTransport replaces the HTTP client, mostly for tests.
func WithTransport(t chatsync.Transport) Option {
	return func(o *options) { o.transport = t }
}

func New(ctx context.Context, s config.Settings, opts ...Option) (*App, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{settings: s}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	client, err := chatapi.New(s.BaseURL, chatapi.WithTimeout(s.RequestTimeout))
	if err != nil {
		return nil, err
	}
	a.client = client
	transport := o.transport
	if transport == nil {
		transport = client
	}

	a.journal, err = journal.Open(s.Journal)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	runID := uuid.NewString()
	if s.Events.Redis.Enabled {
		s.Events.Redis = s.Events.Redis.ForRun(runID)
		a.settings = s
	}
	a.bus, err = eventbus.Build(s.Events, eventbus.NewWatermillLogger(log.Logger))
	if err != nil {
		return nil, err
	}
	if s.Events.Redis.Enabled {
		if err := a.bus.EnsureGroupAtTail(ctx, s.Events.Redis.Group); err != nil {
			return nil, err
		}
	}

	storeOpts := []conversation.StoreOption{
		conversation.WithRunID(runID),
		conversation.WithInitialState(conversation.NewState(s.Greeting)),
		conversation.WithNotifier(eventbus.NewNotifier(a.bus.Publisher, a.bus.Topic)),
	}
	if a.journal != nil {
		storeOpts = append(storeOpts, conversation.WithJournal(a.journal))
	}
	a.store = conversation.NewStore(storeOpts...)

	a.controller, err = chatsync.NewController(chatsync.Config{
		Store:     a.store,
		Transport: transport,
		UserID:    s.UserID,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("base_url", client.BaseURL()).
		Str("user_id", a.controller.UserID()).
		Str("run_id", a.store.RunID()).
		Str("journal", s.Journal.Backend).
		Bool("redis", s.Events.Redis.Enabled).
		Msg("chat widget assembled")
	ok = true
	return a, nil
}

func (a *App) Settings() config.Settings { return a.settings }
func (a *App) Client() *chatapi.Client { return a.client }
func (a *App) Store() *conversation.Store { return a.store }
func (a *App) Controller() *chatsync.Controller { return a.controller }
func (a *App) Bus() *eventbus.Bus { return a.bus }
func (a *App) Journal() journal.Journal { return a.journal }

// Run drives the store loop until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.store == nil {
		return errors.New("app is not initialized")
	}
	return a.store.Run(ctx)
}

// Subscribe returns the stream of state changes of this app's store. Changes
// other processes publish on a shared stream are dropped. Subscribe before
// issuing commands: the in-memory bus does not replay earlier changes.
func (a *App) Subscribe(ctx context.Context) (<-chan conversation.Change, error) {
	if a == nil || a.bus == nil || a.store == nil {
		return nil, errors.New("app is not initialized")
	}
	return eventbus.Subscribe(ctx, a.bus.Subscriber, a.bus.Topic, a.store.RunID())
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	if a.bus != nil && a.settings.Events.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.bus.DropGroup(ctx, a.settings.Events.Redis.Group); err != nil {
			log.Warn().Err(err).Str("group", a.settings.Events.Redis.Group).Msg("could not drop consumer group")
		}
		cancel()
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			firstErr = err
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
