package syndication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/frontmatter"
	"github.com/starford/syndicator/internal/relay"
)

// SlugFromPath returns the post slug for a content path.
func SlugFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// postRun is the working copy of one post during a run. doc and base are
// the document and state at version; st is the local state being evolved.
type postRun struct {
	runID     string
	path      string
	slug      string
	title     string
	canonical string
	version   string
	doc       *frontmatter.Document
	base      State
	st        State
	now       time.Time
	leases    bool

	// repairOnly limits processing to bookkeeping; the relay is not called.
	repairOnly bool

	touched     map[string]struct{}
	transitions []Transition
}

func (e *Engine) loadPost(ctx context.Context, runID, p string, now time.Time) (*postRun, error) {
	file, err := e.store.Read(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("syndication: read %s: %w", p, err)
	}
	doc, err := frontmatter.Parse(file.Content)
	if err != nil {
		return nil, fmt.Errorf("syndication: parse %s: %w", p, err)
	}
	slug := SlugFromPath(p)
	title := doc.String(KeyTitle)
	if title == "" {
		title = slug
	}
	st := e.norm.Collect(doc)
	return &postRun{
		runID:     runID,
		path:      p,
		slug:      slug,
		title:     title,
		canonical: e.site.CanonicalURL(slug, doc.String(KeyCanonical)),
		version:   file.Version,
		doc:       doc,
		base:      st,
		st:        st.Clone(),
		now:       now,
		touched:   map[string]struct{}{},
	}, nil
}

// pendingTargets are wish-list targets the registry knows that have no URL.
func (e *Engine) pendingTargets(pr *postRun) []string {
	var out []string
	for _, t := range e.norm.Wishlist(pr.doc) {
		if e.reg.IsKnown(t) && e.reg.URLFor(pr.st.Syndication, t) == "" {
			out = append(out, t)
		}
	}
	return out
}

// needsSync reports whether bookkeeping alone would change the post: a
// wished target already has a URL, or a known URL lacks confirmed status.
func (e *Engine) needsSync(pr *postRun) bool {
	for _, t := range e.norm.Wishlist(pr.doc) {
		if e.reg.URLFor(pr.st.Syndication, t) != "" {
			return true
		}
	}
	for t := range pr.st.Syndication {
		if e.reg.IsKnown(t) && pr.st.Status[t] != StatusConfirmed {
			return true
		}
	}
	return false
}

func (pr *postRun) touch(target string) {
	pr.touched[target] = struct{}{}
}

func (pr *postRun) setError(target, msg string) {
	if msg == "" {
		delete(pr.st.LastError, target)
		return
	}
	pr.st.LastError[target] = msg
}

func (e *Engine) record(pr *postRun, target string, from, to Status, action, detail, url string) {
	t := Transition{
		RunID:  pr.runID,
		Path:   pr.path,
		Slug:   pr.slug,
		Target: target,
		From:   from.OrPending(),
		To:     to.OrPending(),
		Action: action,
		Detail: detail,
		URL:    url,
		At:     pr.now,
	}
	pr.transitions = append(pr.transitions, t)
	e.logger.Info("syndication: transition",
		slog.String("run", pr.runID),
		slog.String("post", pr.slug),
		slog.String("title", pr.title),
		slog.String("target", target),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.String("action", action),
		slog.String("detail", detail))
}

// markConfirmed moves target to confirmed, recording url when the post has
// none yet.
func (e *Engine) markConfirmed(pr *postRun, target, url, action string, from Status) {
	changed := pr.st.Status[target] != StatusConfirmed ||
		pr.st.RequestedAt[target] != "" ||
		pr.st.CheckedAt[target] != "" ||
		pr.st.LastError[target] != ""
	if url != "" && e.reg.URLFor(pr.st.Syndication, target) == "" {
		pr.st.Syndication[target] = url
		changed = true
	}
	if !changed {
		return
	}
	pr.st.MarkConfirmed(target)
	pr.touch(target)
	if from != StatusConfirmed {
		e.record(pr, target, from, StatusConfirmed, action, "", url)
	}
}

// rebase adopts the document a lease wrote, keeping local changes to
// previously touched targets.
func (e *Engine) rebase(pr *postRun, lease Lease) {
	remote := e.norm.Collect(lease.Doc)
	pr.st = MergeTouched(remote, pr.base, pr.st, pr.touched)
	pr.base = remote
	pr.doc = lease.Doc
	pr.version = lease.Version
}

func (e *Engine) publish(ctx context.Context, pr *postRun, target string) relay.Result {
	endpoint, _ := e.reg.Endpoint(target)
	res := e.relay.Publish(ctx, pr.canonical, endpoint)
	e.logger.Info("relay: publish",
		slog.String("post", pr.slug),
		slog.String("target", target),
		slog.String("source", pr.canonical),
		slog.Bool("ok", res.OK),
		slog.Int("status", res.Status),
		slog.String("url", res.SyndicatedURL),
		slog.String("error", res.Error))
	return res
}

// repair records bookkeeping that needs no relay call: every known target
// with a URL, and every wished target already marked confirmed, becomes
// confirmed with its timestamps cleared.
func (e *Engine) repair(pr *postRun) {
	for t := range pr.st.Syndication {
		if e.reg.IsKnown(t) {
			e.markConfirmed(pr, t, "", "repair", pr.st.Status[t])
		}
	}
	for _, target := range e.norm.Wishlist(pr.doc) {
		if e.reg.URLFor(pr.st.Syndication, target) != "" || pr.st.Status[target] == StatusConfirmed {
			e.markConfirmed(pr, target, "", "repair", pr.st.Status[target])
		}
	}
}

// process walks every target of the post once.
func (e *Engine) process(ctx context.Context, pr *postRun) error {
	e.repair(pr)
	if pr.repairOnly {
		return nil
	}

	var pending []string
	for _, target := range e.norm.Wishlist(pr.doc) {
		if e.reg.URLFor(pr.st.Syndication, target) != "" || pr.st.Status[target] == StatusConfirmed {
			continue
		}
		if !e.reg.IsKnown(target) {
			continue
		}
		if pr.st.Status[target] == StatusRequested {
			if err := e.handleRequested(ctx, pr, target); err != nil {
				return err
			}
			continue
		}
		pending = append(pending, target)
	}

	for _, target := range pending {
		if err := e.handlePending(ctx, pr, target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleRequested(ctx context.Context, pr *postRun, target string) error {
	ts := FormatTimestamp(pr.now)
	d := RequestedConfirmAction(StatusRequested, pr.st.RequestedAt[target], pr.st.CheckedAt[target], pr.now)
	switch d.Action {
	case ActionWait:
		e.logger.Debug("orchestrator: confirm cooldown",
			slog.String("post", pr.slug),
			slog.String("target", target),
			slog.Float64("checked_age_h", d.CheckedAgeHours),
			slog.Float64("cooldown_h", d.CooldownHours))
		return nil

	case ActionSeedRequestedAt:
		pr.st.RequestedAt[target] = ts
		pr.st.CheckedAt[target] = ts
		if pr.st.LastError[target] == "" {
			pr.st.LastError[target] = DiagMissingTimestamp
		}
		pr.touch(target)
		e.record(pr, target, StatusRequested, StatusRequested, string(d.Action), pr.st.LastError[target], "")
		return nil

	case ActionStaleFailed:
		pr.st.Status[target] = StatusFailed
		pr.st.RequestedAt[target] = ts
		delete(pr.st.CheckedAt, target)
		pr.st.LastError[target] = DiagStale
		pr.touch(target)
		e.record(pr, target, StatusRequested, StatusFailed, string(d.Action), DiagStale, "")
		return nil
	}

	if pr.leases {
		lease, err := e.leaser.AcquireConfirm(ctx, pr.path, pr.slug, target, pr.now)
		if err != nil {
			return err
		}
		if !lease.Acquired {
			e.logger.Info("orchestrator: confirm lease skipped",
				slog.String("post", pr.slug), slog.String("target", target), slog.String("reason", lease.Reason))
			return nil
		}
		e.rebase(pr, lease)
	}
	pr.st.CheckedAt[target] = ts

	res := e.publish(ctx, pr, target)
	if res.OK && res.SyndicatedURL != "" {
		e.markConfirmed(pr, target, res.SyndicatedURL, "confirm", StatusRequested)
		return nil
	}
	pr.st.Status[target] = PickForward(pr.st.Status[target], StatusRequested)
	pr.setError(target, SummarizeResult(res, "confirm"))
	pr.touch(target)
	e.record(pr, target, StatusRequested, pr.st.Status[target], "confirm", pr.st.LastError[target], "")
	return nil
}

func (e *Engine) handlePending(ctx context.Context, pr *postRun, target string) error {
	from := pr.st.Status[target].OrPending()
	if from == StatusFailed && InFailedBackoff(pr.st.RequestedAt[target], pr.now) {
		e.logger.Debug("orchestrator: failed backoff", slog.String("post", pr.slug), slog.String("target", target))
		return nil
	}

	if pr.leases {
		lease, err := e.leaser.AcquirePublish(ctx, pr.path, pr.slug, target, pr.now)
		if err != nil {
			return err
		}
		if !lease.Acquired {
			e.logger.Info("orchestrator: publish lease skipped",
				slog.String("post", pr.slug), slog.String("target", target), slog.String("reason", lease.Reason))
			return nil
		}
		e.rebase(pr, lease)
	}

	res := e.publish(ctx, pr, target)
	ts := FormatTimestamp(pr.now)
	switch {
	case res.OK && res.SyndicatedURL != "":
		e.markConfirmed(pr, target, res.SyndicatedURL, "publish", from)
		return nil
	case ShouldMarkRequested(res):
		pr.st.Status[target] = PickForward(pr.st.Status[target], StatusRequested)
		pr.st.RequestedAt[target] = ts
		pr.st.CheckedAt[target] = ts
	default:
		pr.st.Status[target] = StatusFailed
		pr.st.RequestedAt[target] = ts
		delete(pr.st.CheckedAt, target)
	}
	pr.setError(target, SummarizeResult(res, "publish"))
	pr.touch(target)
	e.record(pr, target, from, pr.st.Status[target], "publish", pr.st.LastError[target], "")
	return nil
}

// finalize applies st to doc and shrinks the wish-list to the targets that
// still lack a URL. It reports whether that changed anything beyond st.
func (e *Engine) finalize(doc *frontmatter.Document, st State) (bool, error) {
	wishlist := e.norm.Wishlist(doc)
	var remaining []string
	for _, t := range wishlist {
		if e.reg.URLFor(st.Syndication, t) == "" {
			remaining = append(remaining, t)
		}
	}

	changed := false
	switch {
	case len(remaining) > 0:
		if len(remaining) != len(wishlist) {
			changed = true
		}
		if err := doc.Set(KeySyndicate, remaining); err != nil {
			return false, err
		}
		if doc.Has(KeyComplete) {
			doc.Delete(KeyComplete)
			changed = true
		}
	case doc.Has(KeySyndicate):
		doc.Delete(KeySyndicate)
		changed = true
		if v, _ := doc.Get(KeyComplete); v != true {
			if err := doc.Set(KeyComplete, true); err != nil {
				return false, err
			}
		}
	}

	for _, key := range []string{KeySyndication, KeyStatus, KeyRequestedAt, KeyCheckedAt, KeyLastError} {
		if doc.Has(key) && e.isEmptyField(doc, key) {
			changed = true
		}
	}
	if err := st.Apply(doc); err != nil {
		return false, err
	}
	return changed, nil
}

func (e *Engine) isEmptyField(doc *frontmatter.Document, key string) bool {
	v, _ := doc.Get(key)
	switch key {
	case KeySyndication:
		return len(e.norm.SyndicationMap(v)) == 0
	case KeyStatus:
		return len(e.norm.StatusMap(v)) == 0
	}
	return len(e.norm.StringMap(v)) == 0
}

// commit writes the post back. On a version conflict it re-reads the post,
// merges the touched targets over the remote state and retries, up to the
// lease attempt limit.
func (e *Engine) commit(ctx context.Context, pr *postRun) (bool, error) {
	doc := pr.doc.Clone()
	changed, err := e.finalize(doc, pr.st)
	if err != nil {
		return false, err
	}
	if !changed && len(pr.touched) == 0 {
		return false, nil
	}

	content, err := doc.Render()
	if err != nil {
		return false, err
	}
	version := pr.version
	message := fmt.Sprintf("%s update %s", e.cfg.CommitPrefix, pr.slug)

	for attempt := 1; ; attempt++ {
		_, err := e.store.Write(ctx, contentstore.WriteRequest{
			Path:    pr.path,
			Content: content,
			Version: version,
			Message: message,
		})
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, apperr.ErrVersionConflict) || attempt >= e.cfg.LeaseMaxAttempts {
			return false, fmt.Errorf("syndication: write %s: %w", pr.path, err)
		}

		e.logger.Info("orchestrator: write conflict, merging", slog.String("post", pr.slug), slog.Int("attempt", attempt))
		file, err := e.store.Read(ctx, pr.path)
		if err != nil {
			return false, fmt.Errorf("syndication: reread %s: %w", pr.path, err)
		}
		remoteDoc, err := frontmatter.Parse(file.Content)
		if err != nil {
			return false, fmt.Errorf("syndication: reparse %s: %w", pr.path, err)
		}
		merged := MergeTouched(e.norm.Collect(remoteDoc), pr.base, pr.st, pr.touched)
		if _, err := e.finalize(remoteDoc, merged); err != nil {
			return false, err
		}
		if content, err = remoteDoc.Render(); err != nil {
			return false, err
		}
		version = file.Version
	}
}

// runPost processes and commits one post, recording the outcome in rep.
// When processing stops on an error, outcomes already received for earlier
// targets are still committed so they are not lost.
func (e *Engine) runPost(ctx context.Context, pr *postRun, rep *Report) {
	procErr := e.process(ctx, pr)
	if procErr != nil {
		e.logger.Error("orchestrator: post failed", slog.String("path", pr.path), slog.String("error", procErr.Error()))
	}

	written, err := e.commit(ctx, pr)
	if err != nil {
		e.logger.Error("orchestrator: write failed", slog.String("path", pr.path), slog.String("error", err.Error()))
		rep.addError(pr.path, errors.Join(procErr, err))
		return
	}

	if written {
		updated := make([]string, 0, len(pr.touched))
		for t := range pr.touched {
			updated = append(updated, t)
		}
		sort.Strings(updated)
		rep.addUpdated(PostUpdate{File: pr.path, UpdatedTargets: updated, Transitions: pr.transitions})
		for _, t := range pr.transitions {
			e.observer.OnTransition(ctx, t)
		}
	}

	switch {
	case procErr != nil:
		rep.addError(pr.path, procErr)
	case !written:
		rep.addSkipped(pr.path, SkipNoChanges)
	}
}
