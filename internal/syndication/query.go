package syndication

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/starford/syndicator/internal/frontmatter"
)

// TargetView is the state of one target of a post.
type TargetView struct {
	Target      string `json:"target"`
	Status      Status `json:"status"`
	URL         string `json:"url,omitempty"`
	RequestedAt string `json:"requestedAt,omitempty"`
	CheckedAt   string `json:"checkedAt,omitempty"`
	LastError   string `json:"lastError,omitempty"`
	Wanted      bool   `json:"wanted"`
	Known       bool   `json:"known"`
}

// PostView is the syndication state of a post.
type PostView struct {
	Path         string       `json:"path"`
	Slug         string       `json:"slug"`
	Title        string       `json:"title"`
	CanonicalURL string       `json:"canonicalUrl"`
	Version      string       `json:"version"`
	Complete     bool         `json:"complete"`
	Pending      []string     `json:"pending"`
	Targets      []TargetView `json:"targets"`
}

// Post returns the state of the post named by id (see ResolvePost).
func (e *Engine) Post(ctx context.Context, id string) (*PostView, error) {
	entries, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("syndication: list posts: %w", err)
	}
	p, err := ResolvePost(entries, id)
	if err != nil {
		return nil, err
	}
	pr, err := e.loadPost(ctx, "", p, e.now())
	if err != nil {
		return nil, err
	}
	return e.view(pr), nil
}

// Posts returns the state of every well-formed post, ordered by path.
// pendingOnly keeps only posts with targets left to publish.
func (e *Engine) Posts(ctx context.Context, pendingOnly bool) ([]PostView, error) {
	entries, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("syndication: list posts: %w", err)
	}
	out := make([]PostView, 0, len(entries))
	for _, entry := range entries {
		pr, err := e.loadPost(ctx, "", entry.Path, e.now())
		if errors.Is(err, frontmatter.ErrMalformed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		v := e.view(pr)
		if pendingOnly && len(v.Pending) == 0 {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (e *Engine) view(pr *postRun) *PostView {
	wanted := map[string]bool{}
	for _, t := range e.norm.Wishlist(pr.doc) {
		wanted[t] = true
	}
	keys := map[string]bool{}
	for t := range wanted {
		keys[t] = true
	}
	for t := range pr.st.Syndication {
		keys[t] = true
	}
	for t := range pr.st.Status {
		keys[t] = true
	}

	complete, _ := pr.doc.Get(KeyComplete)
	v := &PostView{
		Path:         pr.path,
		Slug:         pr.slug,
		Title:        pr.title,
		CanonicalURL: pr.canonical,
		Version:      pr.version,
		Complete:     complete == true,
		Pending:      e.pendingTargets(pr),
	}
	if v.Pending == nil {
		v.Pending = []string{}
	}
	for t := range keys {
		v.Targets = append(v.Targets, TargetView{
			Target:      t,
			Status:      pr.st.Status[t].OrPending(),
			URL:         e.reg.URLFor(pr.st.Syndication, t),
			RequestedAt: pr.st.RequestedAt[t],
			CheckedAt:   pr.st.CheckedAt[t],
			LastError:   pr.st.LastError[t],
			Wanted:      wanted[t],
			Known:       e.reg.IsKnown(t),
		})
	}
	sort.Slice(v.Targets, func(i, j int) bool { return v.Targets[i].Target < v.Targets[j].Target })
	return v
}
