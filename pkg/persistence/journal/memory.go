package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// InMemoryJournal is a size-limited Journal. It keeps the most recent
// maxEntriesPerRun transitions of every run.
type InMemoryJournal struct {
	mu               sync.Mutex
	maxEntriesPerRun int
	runs             map[string]*inMemRun
}

type inMemRun struct {
	record      RunRecord
	transitions []conversation.Transition
}

var _ Journal = &InMemoryJournal{}
var _ conversation.Journal = &InMemoryJournal{}

func NewInMemoryJournal(maxEntriesPerRun int) *InMemoryJournal {
	if maxEntriesPerRun <= 0 {
		maxEntriesPerRun = DefaultMaxEntriesPerRun
	}
	return &InMemoryJournal{
		maxEntriesPerRun: maxEntriesPerRun,
		runs:             map[string]*inMemRun{},
	}
}

func (j *InMemoryJournal) Close() error { return nil }

func (j *InMemoryJournal) Append(_ context.Context, ts ...conversation.Transition) error {
	if j == nil {
		return errors.New("in-memory journal: nil journal")
	}
	for _, t := range ts {
		if err := validateTransition(t); err != nil {
			return errors.Wrap(err, "in-memory journal")
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	last := map[string]uint64{}
	for _, t := range ts {
		prev, ok := last[t.RunID]
		if !ok {
			if run := j.runs[t.RunID]; run != nil {
				prev = run.record.LastSeq
			}
		}
		if prev >= t.Seq {
			return errors.Errorf("in-memory journal: seq %d is not after %d", t.Seq, prev)
		}
		last[t.RunID] = t.Seq
	}

	for _, t := range ts {
		run := j.runs[t.RunID]
		if run == nil {
			run = &inMemRun{record: RunRecord{RunID: t.RunID, CreatedAtMs: t.AppliedAt.UnixMilli()}}
			j.runs[t.RunID] = run
		}
		run.transitions = append(run.transitions, t)
		run.record.LastSeq = t.Seq
		if ms := t.AppliedAt.UnixMilli(); ms > run.record.LastActivityMs {
			run.record.LastActivityMs = ms
		}
		if drop := len(run.transitions) - j.maxEntriesPerRun; drop > 0 {
			run.transitions = append([]conversation.Transition(nil), run.transitions[drop:]...)
		}
	}
	return nil
}

func (j *InMemoryJournal) List(_ context.Context, q Query) ([]conversation.Transition, error) {
	if j == nil {
		return nil, errors.New("in-memory journal: nil journal")
	}
	q = normalizeQuery(q)

	j.mu.Lock()
	defer j.mu.Unlock()

	var ret []conversation.Transition
	for runID, run := range j.runs {
		if q.RunID != "" && runID != q.RunID {
			continue
		}
		for _, t := range run.transitions {
			if t.Seq > q.SinceSeq {
				ret = append(ret, t)
			}
		}
	}
	sortTransitions(ret)
	if len(ret) > q.Limit {
		ret = ret[:q.Limit]
	}
	return ret, nil
}

func (j *InMemoryJournal) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	if j == nil {
		return nil, errors.New("in-memory journal: nil journal")
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	records := make([]RunRecord, 0, len(j.runs))
	for _, run := range j.runs {
		records = append(records, run.record)
	}
	sort.Slice(records, func(a, b int) bool {
		if records[a].LastActivityMs == records[b].LastActivityMs {
			return records[a].RunID < records[b].RunID
		}
		return records[a].LastActivityMs > records[b].LastActivityMs
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func validateTransition(t conversation.Transition) error {
	if strings.TrimSpace(t.RunID) == "" {
		return errors.New("run id is empty")
	}
	if t.Seq == 0 {
		return errors.New("seq is 0")
	}
	if strings.TrimSpace(t.Action) == "" {
		return errors.New("action is empty")
	}
	return nil
}

func sortTransitions(ts []conversation.Transition) {
	sort.SliceStable(ts, func(a, b int) bool {
		if !ts[a].AppliedAt.Equal(ts[b].AppliedAt) {
			return ts[a].AppliedAt.Before(ts[b].AppliedAt)
		}
		if ts[a].RunID != ts[b].RunID {
			return ts[a].RunID < ts[b].RunID
		}
		return ts[a].Seq < ts[b].Seq
	})
}
