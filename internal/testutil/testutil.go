// Package testutil provides shared test doubles for the content store and
// the relay.
package testutil

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/checksum"
	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/relay"
)

// PostsDir is the directory MemStore lists posts from.
const PostsDir = "src/blog/posts"

// TestStore creates a filesystem store in a temporary directory.
func TestStore(t *testing.T) (string, *contentstore.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := contentstore.NewFS(root, PostsDir)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// MemStore is an in-memory contentstore.Store. Versions are content
// checksums, so identical content always has the same version.
type MemStore struct {
	mu     sync.Mutex
	files  map[string][]byte
	writes []contentstore.WriteRequest

	// BeforeWrite, when set, runs before each conditional write is checked.
	// Tests use it to simulate a concurrent writer.
	BeforeWrite func(s *MemStore, req contentstore.WriteRequest, n int)
	// FailWrite, when set, can reject a write outright. n counts the
	// writes that succeeded before it.
	FailWrite func(req contentstore.WriteRequest, n int) error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{files: map[string][]byte{}}
}

// PostPath returns the store path of the post named slug.
func PostPath(slug string) string {
	return path.Join(PostsDir, slug+".md")
}

// Put stores content unconditionally, bypassing BeforeWrite.
func (s *MemStore) Put(p, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = []byte(content)
}

// Content returns the current content of p.
func (s *MemStore) Content(p string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.files[p])
}

// Writes returns the successful writes in order.
func (s *MemStore) Writes() []contentstore.WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contentstore.WriteRequest(nil), s.writes...)
}

// List returns the Markdown files under PostsDir.
func (s *MemStore) List(_ context.Context) ([]contentstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contentstore.Entry
	for p, content := range s.files {
		if strings.HasPrefix(p, PostsDir+"/") && strings.HasSuffix(p, ".md") {
			out = append(out, contentstore.Entry{Path: p, Version: checksum.Sum(content)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the file at p.
func (s *MemStore) Read(_ context.Context, p string) (*contentstore.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[p]
	if !ok {
		return nil, fmt.Errorf("memstore: %s: %w", p, apperr.ErrNotFound)
	}
	return &contentstore.File{
		Path:    p,
		Version: checksum.Sum(content),
		Content: append([]byte(nil), content...),
	}, nil
}

// Write replaces the file when req.Version matches the current version.
func (s *MemStore) Write(_ context.Context, req contentstore.WriteRequest) (string, error) {
	s.mu.Lock()
	n := len(s.writes)
	hook, fail := s.BeforeWrite, s.FailWrite
	s.mu.Unlock()
	if fail != nil {
		if err := fail(req, n); err != nil {
			return "", err
		}
	}
	if hook != nil {
		hook(s, req, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current := ""
	if content, ok := s.files[req.Path]; ok {
		current = checksum.Sum(content)
	}
	if current != req.Version {
		return "", &apperr.ConflictError{Path: req.Path, Expected: req.Version, Current: current}
	}
	s.files[req.Path] = append([]byte(nil), req.Content...)
	s.writes = append(s.writes, req)
	return checksum.Sum(req.Content), nil
}

// Call is one recorded relay call.
type Call struct {
	Source string
	Target string
}

// FakeRelay is a scripted relay.Publisher. Results queued for a target are
// returned in order; once exhausted the Default result is returned.
type FakeRelay struct {
	mu      sync.Mutex
	script  map[string][]relay.Result
	calls   []Call
	Default relay.Result
}

// NewFakeRelay returns a relay that answers 503 unless scripted.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{
		script:  map[string][]relay.Result{},
		Default: relay.Result{OK: false, Status: 503},
	}
}

// Queue appends results for target, which is a relay target URL.
func (f *FakeRelay) Queue(target string, results ...relay.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[target] = append(f.script[target], results...)
}

// Publish implements relay.Publisher.
func (f *FakeRelay) Publish(_ context.Context, source, target string) relay.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Source: source, Target: target})
	if queue := f.script[target]; len(queue) > 0 {
		f.script[target] = queue[1:]
		return queue[0]
	}
	return f.Default
}

// Calls returns the recorded calls in order.
func (f *FakeRelay) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current time of the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
