package journal

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/syndicator/internal/syndication"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var at = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs`).Scan(&count); err != nil {
		t.Fatalf("runs table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM transitions`).Scan(&count); err != nil {
		t.Fatalf("transitions table missing: %v", err)
	}
}

func TestRecordAndListRuns(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := &syndication.Report{RunID: "run-1", Mode: syndication.ModeDeploy, StartedAt: at, FinishedAt: at,
		SkippedRun: true, Reason: syndication.SkipNoPending}
	second := &syndication.Report{RunID: "run-2", Mode: syndication.ModeManual, StartedAt: at.Add(time.Hour), FinishedAt: at.Add(time.Hour),
		Updated: []syndication.PostUpdate{{File: "src/blog/posts/a.md", UpdatedTargets: []string{"mastodon"}}}}
	for _, r := range []*syndication.Report{first, second} {
		if err := db.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := db.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-2" || runs[0].UpdatedPosts != 1 || runs[0].Skipped {
		t.Errorf("newest run = %+v", runs[0])
	}
	if !runs[1].Skipped || runs[1].Reason != syndication.SkipNoPending {
		t.Errorf("oldest run = %+v", runs[1])
	}
	if !runs[1].StartedAt.Equal(at) {
		t.Errorf("StartedAt = %v, want %v", runs[1].StartedAt, at)
	}

	var decoded syndication.Report
	if err := json.Unmarshal(runs[0].Report, &decoded); err != nil {
		t.Fatalf("report json: %v", err)
	}
	if len(decoded.Updated) != 1 || decoded.Updated[0].File != "src/blog/posts/a.md" {
		t.Errorf("decoded report = %+v", decoded.Updated)
	}
}

func TestTransitionsBySlug(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	j := Observer(db, slog.New(slog.NewTextHandler(io.Discard, nil)))

	j.OnTransition(ctx, syndication.Transition{RunID: "r1", Path: "p/a.md", Slug: "a", Target: "mastodon",
		From: syndication.StatusPending, To: syndication.StatusRequested, Action: "publish",
		Detail: "publish-status-503", At: at})
	j.OnTransition(ctx, syndication.Transition{RunID: "r2", Path: "p/a.md", Slug: "a", Target: "mastodon",
		From: syndication.StatusRequested, To: syndication.StatusConfirmed, Action: "confirm",
		URL: "https://m.example/1", At: at.Add(time.Hour)})
	j.OnTransition(ctx, syndication.Transition{RunID: "r2", Path: "p/b.md", Slug: "b", Target: "bluesky",
		From: syndication.StatusPending, To: syndication.StatusFailed, Action: "publish", At: at})

	got, err := db.Transitions(ctx, "a", 0)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].To != syndication.StatusConfirmed || got[0].URL != "https://m.example/1" {
		t.Errorf("newest = %+v", got[0])
	}
	if got[1].Detail != "publish-status-503" || got[1].From != syndication.StatusPending {
		t.Errorf("oldest = %+v", got[1])
	}
}
