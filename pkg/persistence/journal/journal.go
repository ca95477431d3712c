package journal

import (
	"context"
	"strings"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// RunRecord summarizes the transitions recorded by one store instance.
type RunRecord struct {
	RunID          string `json:"run_id" yaml:"run_id"`
	CreatedAtMs    int64  `json:"created_at_ms" yaml:"created_at_ms"`
	LastActivityMs int64  `json:"last_activity_ms" yaml:"last_activity_ms"`
	LastSeq        uint64 `json:"last_seq" yaml:"last_seq"`
}

// Query selects transitions. An empty RunID matches every run.
type Query struct {
	RunID    string
	SinceSeq uint64
	Limit    int
}

// Journal is the durable log of applied store transitions. It is a debugging aid:
// nothing reads it back into a live store.
type Journal interface {
	// Append records the transitions atomically: either all of them or none.
	Append(ctx context.Context, ts ...conversation.Transition) error
	List(ctx context.Context, q Query) ([]conversation.Transition, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

const (
	DefaultMaxEntriesPerRun = 5000

	defaultListLimit = 1000
	defaultRunLimit  = 200
)

func normalizeQuery(q Query) Query {
	q.RunID = strings.TrimSpace(q.RunID)
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	return q
}
