package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/syndicator/internal/syndication"
)

// DefaultLimit caps list queries when the caller passes no limit.
const DefaultLimit = 50

// RunRow is a row of the runs table.
type RunRow struct {
	ID           string          `json:"id"`
	Mode         string          `json:"mode"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   time.Time       `json:"finishedAt"`
	Skipped      bool            `json:"runSkipped"`
	Reason       string          `json:"reason,omitempty"`
	UpdatedPosts int             `json:"updatedPosts"`
	SkippedPosts int             `json:"skippedPosts"`
	ErrorPosts   int             `json:"errorPosts"`
	Report       json.RawMessage `json:"report"`
}

// RecordRun stores the summary and full JSON report of a finished run.
func (db *DB) RecordRun(ctx context.Context, r *syndication.Report) error {
	report, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: encode report: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO runs (id, mode, started_at, finished_at, skipped, reason,
			updated_posts, skipped_posts, error_posts, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at   = excluded.finished_at,
			skipped       = excluded.skipped,
			reason        = excluded.reason,
			updated_posts = excluded.updated_posts,
			skipped_posts = excluded.skipped_posts,
			error_posts   = excluded.error_posts,
			report        = excluded.report
	`, r.RunID, r.Mode, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.SkippedRun, r.Reason,
		len(r.Updated), len(r.Skipped), len(r.Errors), string(report))
	if err != nil {
		return fmt.Errorf("journal: record run: %w", err)
	}
	return nil
}

// RecordTransition appends one transition.
func (db *DB) RecordTransition(ctx context.Context, t syndication.Transition) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO transitions (run_id, path, slug, target, from_status, to_status, action, detail, url, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.RunID, t.Path, t.Slug, t.Target, string(t.From), string(t.To), t.Action, t.Detail, t.URL, t.At.UTC())
	if err != nil {
		return fmt.Errorf("journal: record transition: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, mode, started_at, finished_at, skipped, reason,
			updated_posts, skipped_posts, error_posts, report
		FROM runs ORDER BY started_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			r      RunRow
			report string
		)
		if err := rows.Scan(&r.ID, &r.Mode, &r.StartedAt, &r.FinishedAt, &r.Skipped, &r.Reason,
			&r.UpdatedPosts, &r.SkippedPosts, &r.ErrorPosts, &report); err != nil {
			return nil, err
		}
		r.Report = json.RawMessage(report)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Transitions returns the transitions of a post, newest first.
func (db *DB) Transitions(ctx context.Context, slug string, limit int) ([]syndication.Transition, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, path, slug, target, from_status, to_status, action, detail, url, at
		FROM transitions WHERE slug = ? ORDER BY at DESC, id DESC LIMIT ?
	`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: transitions: %w", err)
	}
	defer rows.Close()

	var out []syndication.Transition
	for rows.Next() {
		var (
			t        syndication.Transition
			from, to string
		)
		if err := rows.Scan(&t.RunID, &t.Path, &t.Slug, &t.Target, &from, &to,
			&t.Action, &t.Detail, &t.URL, &t.At); err != nil {
			return nil, err
		}
		t.From, t.To = syndication.Status(from), syndication.Status(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Observer adapts j to a syndication.Observer. Journal failures are logged
// and never fail a run.
func Observer(j Journal, logger *slog.Logger) syndication.Observer {
	return &observer{j: j, logger: logger}
}

type observer struct {
	j      Journal
	logger *slog.Logger
}

func (o *observer) OnTransition(ctx context.Context, t syndication.Transition) {
	if err := o.j.RecordTransition(ctx, t); err != nil {
		o.logger.Warn("journal: record transition failed",
			slog.String("post", t.Slug), slog.String("target", t.Target), slog.String("error", err.Error()))
	}
}

func (o *observer) OnRun(ctx context.Context, r *syndication.Report) {
	if err := o.j.RecordRun(ctx, r); err != nil {
		o.logger.Warn("journal: record run failed", slog.String("run", r.RunID), slog.String("error", err.Error()))
	}
}
