package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/syndicator/internal/journal"
	"github.com/starford/syndicator/internal/syndication"
	"github.com/starford/syndicator/internal/watch"
)

// testConfig points an FS store at a temp site checkout and the relay at
// srv. It returns the config and the posts directory.
func testConfig(t *testing.T, srv *httptest.Server) (*Config, string) {
	t.Helper()
	root := t.TempDir()
	posts := filepath.Join(root, filepath.FromSlash(DefaultPostsDir))
	if err := os.MkdirAll(posts, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.Store.FS.Root = root
	cfg.Relay.Endpoint = srv.URL
	cfg.Journal.Path = filepath.Join(t.TempDir(), "journal.db")
	cfg.Syndication.DeployContext = "production"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg, posts
}

func relayServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !strings.HasSuffix(r.PostForm.Get("target"), "/mastodon") {
			http.Error(w, "unsupported", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"url":"https://m.example/@me/42"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDeployWiresStoreRelayAndJournal(t *testing.T) {
	cfg, posts := testConfig(t, relayServer(t))
	post := filepath.Join(posts, "hello.md")
	if err := os.WriteFile(post, []byte("---\ntitle: Hello\nsyndicate: [mastodon]\n---\nBody\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := Deploy(context.Background(), syndication.Trigger{Context: "production"},
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if len(rep.Updated) != 1 || len(rep.Errors) != 0 {
		t.Fatalf("report = %+v", rep)
	}

	data, err := os.ReadFile(post)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"mastodon: https://m.example/@me/42", "syndicationComplete: true", "Body"} {
		if !strings.Contains(got, want) {
			t.Errorf("post missing %q:\n%s", want, got)
		}
	}

	db, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	runs, err := db.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != rep.RunID {
		t.Errorf("journal runs = %+v", runs)
	}
	trans, err := db.Transitions(context.Background(), "hello", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(trans) != 1 || trans[0].To != syndication.StatusConfirmed {
		t.Errorf("journal transitions = %+v", trans)
	}
}

func TestDeploySkipsPreview(t *testing.T) {
	cfg, posts := testConfig(t, relayServer(t))
	if err := os.WriteFile(filepath.Join(posts, "hello.md"), []byte("---\nsyndicate: mastodon\n---\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rep, err := Deploy(context.Background(), syndication.Trigger{Context: "deploy-preview"},
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if !rep.SkippedRun || rep.Reason != syndication.SkipNonProduction {
		t.Errorf("report = %+v", rep)
	}
}

func TestSyndicateUnknownPost(t *testing.T) {
	cfg, _ := testConfig(t, relayServer(t))
	cfg.Journal.Path = ""

	_, err := Syndicate(context.Background(), syndication.ManualRequest{Post: "missing"},
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error for unknown post")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestWatcherSaveMakesNoRelayCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "not deployed yet", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	cfg, posts := testConfig(t, srv)
	cfg.Journal.Path = ""
	app, err := newApplication([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	c, err := app.build()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = watch.Watch(ctx, c.fsStore.Root(), c.fsStore.PostsDir(), 50*time.Millisecond, c.logger,
			repairOnSave(c.engine, c.logger))
	}()
	time.Sleep(100 * time.Millisecond)

	draft := "---\ntitle: Draft\nsyndicate: [mastodon]\n---\nBody\n"
	if err := os.WriteFile(filepath.Join(posts, "draft.md"), []byte(draft), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	manual := "---\ntitle: Manual\nsyndicate: [mastodon]\nsyndication:\n  mastodon: https://m.example/@me/1\n---\n"
	if err := os.WriteFile(filepath.Join(posts, "manual.md"), []byte(manual), 0o644); err != nil {
		t.Fatal(err)
	}

	// Handler calls are serialised, so once manual.md is reconciled the
	// earlier draft save has been handled too.
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(filepath.Join(posts, "manual.md"))
		if strings.Contains(string(data), "syndicationComplete: true") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manual.md not reconciled:\n%s", data)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if n := calls.Load(); n != 0 {
		t.Errorf("relay calls = %d, want 0", n)
	}
	data, err := os.ReadFile(filepath.Join(posts, "draft.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != draft {
		t.Errorf("draft rewritten:\n%s", data)
	}
}

func TestWatchDisabledByDefault(t *testing.T) {
	if NewDefaultConfig().Watch.Enabled {
		t.Error("watcher must be opt-in")
	}
}
