package syndication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/frontmatter"
)

// ManualRequest selects the posts of a manual run.
type ManualRequest struct {
	All bool
	// Post identifies a single post by path, slug, file name or URL.
	Post string
}

// Syndicate runs the state machine for the requested posts without deploy
// guards or leases. Posts are processed one at a time and every transition
// is logged. Writes are still conditional.
func (e *Engine) Syndicate(ctx context.Context, req ManualRequest) (*Report, error) {
	paths, err := e.selectPosts(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.runSequential(ctx, ModeManual, paths, false), nil
}

// Repair reconciles bookkeeping for the requested posts without calling the
// relay: recorded URLs become confirmed and the wish-list shrinks. It is
// safe to run before a post is deployed.
func (e *Engine) Repair(ctx context.Context, req ManualRequest) (*Report, error) {
	paths, err := e.selectPosts(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.runSequential(ctx, ModeRepair, paths, true), nil
}

func (e *Engine) selectPosts(ctx context.Context, req ManualRequest) ([]string, error) {
	if !req.All && strings.TrimSpace(req.Post) == "" {
		return nil, fmt.Errorf("syndication: provide a post or all: %w", apperr.ErrInvalidInput)
	}
	entries, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("syndication: list posts: %w", err)
	}

	if !req.All {
		p, err := ResolvePost(entries, req.Post)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	return paths, nil
}

func (e *Engine) runSequential(ctx context.Context, mode string, paths []string, repairOnly bool) *Report {
	rep := newReport(e.newID(), mode, e.now())
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			rep.addError(p, err)
			continue
		}
		pr, err := e.loadPost(ctx, rep.RunID, p, rep.StartedAt)
		switch {
		case errors.Is(err, frontmatter.ErrMalformed):
			rep.addSkipped(p, SkipMalformed)
			continue
		case err != nil:
			rep.addError(p, err)
			continue
		}
		pr.repairOnly = repairOnly
		e.logger.Info(mode+": syndicating",
			slog.String("post", pr.slug), slog.String("title", pr.title), slog.String("source", pr.canonical))
		e.runPost(ctx, pr, rep)
	}
	return e.finishRun(ctx, rep)
}

// ResolvePost finds the entry named by id: a store path, a slug, a file name
// or a post URL whose last segment is the slug.
func ResolvePost(entries []contentstore.Entry, id string) (string, error) {
	id = strings.TrimSpace(id)
	if u, err := url.Parse(id); err == nil && u.Scheme != "" && u.Host != "" {
		id = strings.TrimSuffix(path.Base(strings.TrimRight(u.Path, "/")), ".html")
	}
	id = strings.TrimPrefix(path.Clean("/"+id), "/")
	if id == "" {
		return "", fmt.Errorf("syndication: empty post id: %w", apperr.ErrInvalidInput)
	}
	for _, entry := range entries {
		base := path.Base(entry.Path)
		if entry.Path == id || base == id || base == id+".md" {
			return entry.Path, nil
		}
	}
	return "", fmt.Errorf("syndication: post %q: %w", id, apperr.ErrNotFound)
}
