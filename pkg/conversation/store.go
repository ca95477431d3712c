package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrStoreClosed is returned by Dispatch once the store loop has exited.
var ErrStoreClosed = errors.New("conversation store is closed")

// Transition is one applied action, as recorded in the journal.
type Transition struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Seq       uint64    `json:"seq" yaml:"seq"`
	Action    string    `json:"action" yaml:"action"`
	Payload   string    `json:"payload" yaml:"payload"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// Journal receives every applied transition, in order. The transitions of one
// dispatched batch arrive in a single Append call.
type Journal interface {
	Append(ctx context.Context, ts ...Transition) error
}

// Change is announced after each applied batch. Seq is the sequence number of the
// last transition in the batch; consumers drop changes older than what they have seen.
type Change struct {
	RunID   string   `json:"run_id"`
	Seq     uint64   `json:"seq"`
	Actions []string `json:"actions"`
	State   State    `json:"state"`
}

// Notifier is told about every change, in order.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

type StoreOption func(*Store)

func WithJournal(j Journal) StoreOption {
	return func(s *Store) { s.journal = j }
}

func WithNotifier(n Notifier) StoreOption {
	return func(s *Store) { s.notifier = n }
}

func WithInitialState(state State) StoreOption {
	return func(s *Store) { s.state = state.Clone() }
}

func WithRunID(runID string) StoreOption {
	return func(s *Store) {
		if runID != "" {
			s.runID = runID
		}
	}
}

type dispatchRequest struct {
	build func(State) []Action
	reply chan []Action
}

// Store owns the canonical State. A single goroutine (Run) applies dispatched
// batches one at a time, in the order they were issued; nothing else writes state.
type Store struct {
	runID    string
	requests chan *dispatchRequest
	done     chan struct{}
	running  atomic.Bool
	doneOnce sync.Once

	mu    sync.RWMutex
	state State
	seq   uint64

	journal  Journal
	notifier Notifier
}

func NewStore(options ...StoreOption) *Store {
	s := &Store{
		runID:    uuid.NewString(),
		requests: make(chan *dispatchRequest),
		done:     make(chan struct{}),
		state:    NewState(""),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Store) RunID() string { return s.runID }

// Seq returns the sequence number of the last applied transition.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Run applies dispatched batches until ctx is done. It can only be run once.
func (s *Store) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("conversation store: already running")
	}
	defer s.doneOnce.Do(func() { close(s.done) })

	log.Debug().Str("component", "conversation").Str("run_id", s.runID).Msg("store loop started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("component", "conversation").Str("run_id", s.runID).Msg("store loop stopped")
			return nil
		case req := <-s.requests:
			req.reply <- s.apply(ctx, req.build)
		}
	}
}

// Dispatch applies actions as one batch and returns once they are applied.
func (s *Store) Dispatch(ctx context.Context, actions ...Action) error {
	_, err := s.DispatchFunc(ctx, func(State) []Action { return actions })
	return err
}

// DispatchFunc runs build inside the writer with the current state and applies the
// batch it returns. Returning no actions leaves the state untouched. This is how
// callers make a check-and-set atomic. It returns the actions that were applied.
//
// If ctx is canceled after the request was handed over, the batch may still be applied.
func (s *Store) DispatchFunc(ctx context.Context, build func(State) []Action) ([]Action, error) {
	if build == nil {
		return nil, errors.New("conversation store: nil build func")
	}
	req := &dispatchRequest{build: build, reply: make(chan []Action, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return nil, ErrStoreClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case applied := <-req.reply:
		return applied, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) apply(ctx context.Context, build func(State) []Action) []Action {
	current := s.State()
	actions, err := runBuild(build, current)
	if err != nil {
		log.Error().Err(err).Str("component", "conversation").Msg("dispatch build failed, nothing applied")
		return nil
	}
	applied := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a != nil {
			applied = append(applied, a)
		}
	}
	if len(applied) == 0 {
		return nil
	}

	next := Reduce(current, applied...)
	now := time.Now()
	transitions := make([]Transition, 0, len(applied))

	s.mu.Lock()
	for _, a := range applied {
		s.seq++
		payload, err := json.Marshal(a)
		if err != nil {
			payload = []byte("null")
		}
		transitions = append(transitions, Transition{
			RunID:     s.runID,
			Seq:       s.seq,
			Action:    a.Name(),
			Payload:   string(payload),
			AppliedAt: now,
		})
	}
	s.state = next
	seq := s.seq
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Append(ctx, transitions...); err != nil {
			log.Warn().Err(err).Str("component", "conversation").
				Uint64("first_seq", transitions[0].Seq).Uint64("last_seq", seq).
				Msg("journal append failed")
		}
	}
	if s.notifier != nil {
		change := Change{
			RunID:   s.runID,
			Seq:     seq,
			Actions: ActionNames(applied),
			State:   next.Clone(),
		}
		if err := s.notifier.Notify(ctx, change); err != nil {
			log.Warn().Err(err).Str("component", "conversation").Uint64("seq", seq).Msg("change notification failed")
		}
	}
	return applied
}

func runBuild(build func(State) []Action, state State) (actions []Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in dispatch build: %v", r)
		}
	}()
	return build(state), nil
}
