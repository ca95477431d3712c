package journal

import (
	"context"
	"database/sql"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

type SQLiteJournal struct {
	db *sql.DB
}

var _ Journal = &SQLiteJournal{}
var _ conversation.Journal = &SQLiteJournal{}

func NewSQLiteJournal(dsn string) (*SQLiteJournal, error) {
	if dsn == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// the store appends from a single goroutine; one connection keeps writes ordered
	db.SetMaxOpenConns(1)
	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJournal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *SQLiteJournal) migrate() error {
	if j == nil || j.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journal_runs (
		  run_id TEXT PRIMARY KEY,
		  created_at_ms INTEGER NOT NULL,
		  last_activity_ms INTEGER NOT NULL,
		  last_seq INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS journal_transitions (
		  run_id TEXT NOT NULL,
		  seq INTEGER NOT NULL,
		  action TEXT NOT NULL,
		  payload_json TEXT NOT NULL,
		  applied_at_ms INTEGER NOT NULL,
		  PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS journal_transitions_by_applied
		  ON journal_transitions(applied_at_ms, run_id, seq);`,
		`CREATE INDEX IF NOT EXISTS journal_runs_by_last_activity
		  ON journal_runs(last_activity_ms DESC, run_id ASC);`,
	}
	for _, st := range stmts {
		if _, err := j.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

// Append writes ts in one transaction.
func (j *SQLiteJournal) Append(ctx context.Context, ts ...conversation.Transition) error {
	if j == nil || j.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	if len(ts) == 0 {
		return nil
	}
	for _, t := range ts {
		if err := validateTransition(t); err != nil {
			return errors.Wrap(err, "sqlite journal")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite journal: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range ts {
		if err := appendTx(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite journal: commit")
	}
	return nil
}

func appendTx(ctx context.Context, tx *sql.Tx, t conversation.Transition) error {
	seq, err := uint64ToInt64(t.Seq)
	if err != nil {
		return errors.Wrap(err, "sqlite journal: seq overflow")
	}
	appliedAt := t.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}
	ms := appliedAt.UnixMilli()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_transitions (run_id, seq, action, payload_json, applied_at_ms)
		VALUES (?, ?, ?, ?, ?)
	`, t.RunID, seq, t.Action, t.Payload, ms); err != nil {
		return errors.Wrap(err, "sqlite journal: insert transition")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO journal_runs (run_id, created_at_ms, last_activity_ms, last_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			last_activity_ms = CASE
				WHEN excluded.last_activity_ms > journal_runs.last_activity_ms THEN excluded.last_activity_ms
				ELSE journal_runs.last_activity_ms
			END,
			last_seq = CASE
				WHEN excluded.last_seq > journal_runs.last_seq THEN excluded.last_seq
				ELSE journal_runs.last_seq
			END
	`, t.RunID, ms, ms, seq); err != nil {
		return errors.Wrap(err, "sqlite journal: upsert run")
	}
	return nil
}

func (j *SQLiteJournal) List(ctx context.Context, q Query) ([]conversation.Transition, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q = normalizeQuery(q)
	since, err := uint64ToInt64(q.SinceSeq)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: since overflow")
	}

	query := `
		SELECT run_id, seq, action, payload_json, applied_at_ms
		FROM journal_transitions
		WHERE seq > ?
	`
	args := []any{since}
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	query += ` ORDER BY applied_at_ms ASC, run_id ASC, seq ASC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: list transitions")
	}
	defer func() { _ = rows.Close() }()

	ret := make([]conversation.Transition, 0)
	for rows.Next() {
		var (
			t       conversation.Transition
			seq     int64
			applied int64
		)
		if err := rows.Scan(&t.RunID, &seq, &t.Action, &t.Payload, &applied); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan transition")
		}
		t.Seq, err = int64ToUint64(seq)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite journal: invalid seq")
		}
		t.AppliedAt = time.UnixMilli(applied)
		ret = append(ret, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate transitions")
	}
	return ret, nil
}

func (j *SQLiteJournal) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, created_at_ms, last_activity_ms, last_seq
		FROM journal_runs
		ORDER BY last_activity_ms DESC, run_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: list runs")
	}
	defer func() { _ = rows.Close() }()

	records := make([]RunRecord, 0)
	for rows.Next() {
		var (
			r       RunRecord
			lastSeq int64
		)
		if err := rows.Scan(&r.RunID, &r.CreatedAtMs, &r.LastActivityMs, &lastSeq); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan run")
		}
		r.LastSeq, err = int64ToUint64(lastSeq)
		if err != nil {
			return nil, errors.Wrap(err, "sqlite journal: invalid last_seq")
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite journal: iterate runs")
	}
	return records, nil
}

func uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, errors.Errorf("value %d exceeds int64", v)
	}
	return int64(v), nil
}

func int64ToUint64(v int64) (uint64, error) {
	if v < 0 {
		return 0, errors.Errorf("negative value %d", v)
	}
	return uint64(v), nil
}
