package syndication

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/frontmatter"
)

// Run handles one deploy-succeeded event: it guards against non-production
// and self-triggered deploys, then processes every post that needs work with
// at most Config.Concurrency posts in flight.
func (e *Engine) Run(ctx context.Context, trig Trigger) *Report {
	now := e.now()
	rep := newReport(e.newID(), ModeDeploy, now)
	e.run(ctx, trig, rep)
	return e.finishRun(ctx, rep)
}

func (e *Engine) run(ctx context.Context, trig Trigger, rep *Report) {
	if !trig.IsProduction(e.cfg.DeployContext) {
		rep.skipRun(SkipNonProduction)
		return
	}
	if trig.IsBotCommit(e.cfg.CommitPrefix) {
		rep.skipRun(SkipBotCommit)
		return
	}

	entries, err := e.store.List(ctx)
	if err != nil {
		e.logger.Error("orchestrator: list posts failed", slog.String("error", err.Error()))
		rep.skipRun(err.Error())
		return
	}

	posts := e.loadAll(ctx, entries, rep)
	pending, sync := 0, false
	for _, pr := range posts {
		pending += len(e.pendingTargets(pr))
		sync = sync || e.needsSync(pr)
	}
	if pending == 0 && !sync {
		rep.skipRun(SkipNoPending)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, pr := range posts {
		g.Go(func() error {
			e.runPost(gctx, pr, rep)
			return nil
		})
	}
	_ = g.Wait()
}

// loadAll reads and parses every post concurrently. Unreadable posts are
// reported as errors and malformed ones as skipped; neither is returned.
func (e *Engine) loadAll(ctx context.Context, entries []contentstore.Entry, rep *Report) []*postRun {
	loaded := make([]*postRun, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			pr, err := e.loadPost(gctx, rep.RunID, entry.Path, rep.StartedAt)
			switch {
			case errors.Is(err, frontmatter.ErrMalformed):
				e.logger.Warn("orchestrator: malformed front matter",
					slog.String("path", entry.Path), slog.String("error", err.Error()))
				rep.addSkipped(entry.Path, SkipMalformed)
			case err != nil:
				rep.addError(entry.Path, err)
			default:
				pr.leases = true
				loaded[i] = pr
			}
			return nil
		})
	}
	_ = g.Wait()

	posts := make([]*postRun, 0, len(loaded))
	for _, pr := range loaded {
		if pr != nil {
			posts = append(posts, pr)
		}
	}
	return posts
}

func (e *Engine) finishRun(ctx context.Context, rep *Report) *Report {
	rep.finish(e.now())
	e.logger.Info("orchestrator: run finished",
		slog.String("run", rep.RunID),
		slog.String("mode", rep.Mode),
		slog.String("skip_reason", rep.Reason),
		slog.Int("updated", len(rep.Updated)),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Int("errors", len(rep.Errors)))
	e.observer.OnRun(ctx, rep)
	return rep
}
