package ui

import (
	"context"
	"sync"
)

type opKind int

const (
	opDraft opKind = iota
	opSubmit
)

type queuedOp struct {
	kind  opKind
	text  string
	reply chan bool
}

// commandQueue hands the input-driven commands to the conversation from a
// single goroutine, in the order Update issued them. tea.Cmds run concurrently,
// so two keystrokes sent as separate Cmds could reach the store in either order.
type commandQueue struct {
	mu      sync.Mutex
	pending []queuedOp
	stopped bool
	wake    chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{wake: make(chan struct{}, 1)}
}

// Draft queues a draft update. Consecutive drafts collapse into the newest one.
func (q *commandQueue) Draft(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}
	if n := len(q.pending); n > 0 && q.pending[n-1].kind == opDraft {
		q.pending[n-1].text = text
	} else {
		q.pending = append(q.pending, queuedOp{kind: opDraft, text: text})
	}
	q.signal()
}

// Submit queues a send. The returned channel yields whether it was accepted.
func (q *commandQueue) Submit(text string) <-chan bool {
	reply := make(chan bool, 1)
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		reply <- false
		return reply
	}
	q.pending = append(q.pending, queuedOp{kind: opSubmit, text: text, reply: reply})
	q.signal()
	return reply
}

func (q *commandQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *commandQueue) take() []queuedOp {
	q.mu.Lock()
	defer q.mu.Unlock()
	ops := q.pending
	q.pending = nil
	return ops
}

// run executes queued ops until ctx is done. Sends still pending then are rejected.
func (q *commandQueue) run(ctx context.Context, commands Commands) {
	defer func() {
		q.mu.Lock()
		q.stopped = true
		ops := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, op := range ops {
			if op.reply != nil {
				op.reply <- false
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
		for _, op := range q.take() {
			switch op.kind {
			case opDraft:
				commands.UpdateDraft(ctx, op.text)
			case opSubmit:
				_, accepted := commands.Submit(ctx, op.text)
				op.reply <- accepted
			}
		}
	}
}
