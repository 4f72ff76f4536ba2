package syndication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/contentstore"
	"github.com/starford/syndicator/internal/frontmatter"
)

// DefaultLeaseAttempts bounds the read-check-write loop of a lease.
const DefaultLeaseAttempts = 4

// Lease is the outcome of a lease attempt. When Acquired is false Reason
// names why; Version and Doc then are unset.
type Lease struct {
	Acquired bool
	Reason   string
	// Version is the store version written by the lease.
	Version string
	// Doc is the document as written by the lease.
	Doc *frontmatter.Document
	At  time.Time
}

// Leaser claims a post/target pair by writing a marker into the post with a
// conditional write, so that concurrent runs never publish the same pair
// twice.
type Leaser struct {
	store       contentstore.Store
	norm        *Normalizer
	prefix      string
	maxAttempts int
}

// NewLeaser returns a Leaser. maxAttempts <= 0 selects DefaultLeaseAttempts.
func NewLeaser(store contentstore.Store, norm *Normalizer, commitPrefix string, maxAttempts int) *Leaser {
	if maxAttempts <= 0 {
		maxAttempts = DefaultLeaseAttempts
	}
	return &Leaser{store: store, norm: norm, prefix: commitPrefix, maxAttempts: maxAttempts}
}

// AcquirePublish claims target for a first or retried publish. The marker
// moves the target to requested and stamps requestedAt and checkedAt.
func (l *Leaser) AcquirePublish(ctx context.Context, path, slug, target string, now time.Time) (Lease, error) {
	check := func(st State) (bool, string) {
		return PublishEligibility(l.norm.reg, st, target, now)
	}
	mark := func(st State) {
		ts := FormatTimestamp(now)
		st.Status[target] = PickForward(st.Status[target], StatusRequested)
		st.RequestedAt[target] = ts
		st.CheckedAt[target] = ts
		delete(st.LastError, target)
	}
	return l.acquire(ctx, "publish", path, slug, target, now, check, mark)
}

// AcquireConfirm claims a requested target for a confirmation check. The
// marker stamps checkedAt.
func (l *Leaser) AcquireConfirm(ctx context.Context, path, slug, target string, now time.Time) (Lease, error) {
	check := func(st State) (bool, string) {
		status := st.Status[target]
		if status != StatusRequested {
			return false, ReasonNotRequested
		}
		d := RequestedConfirmAction(status, st.RequestedAt[target], st.CheckedAt[target], now)
		if d.Action != ActionConfirm {
			return false, "requested-" + string(d.Action)
		}
		return true, ""
	}
	mark := func(st State) {
		st.CheckedAt[target] = FormatTimestamp(now)
	}
	return l.acquire(ctx, "confirm", path, slug, target, now, check, mark)
}

func (l *Leaser) acquire(
	ctx context.Context,
	kind, path, slug, target string,
	now time.Time,
	check func(State) (bool, string),
	mark func(State),
) (Lease, error) {
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		file, err := l.store.Read(ctx, path)
		if err != nil {
			return Lease{}, fmt.Errorf("syndication: lease %s read: %w", kind, err)
		}
		doc, err := frontmatter.Parse(file.Content)
		if err != nil {
			return Lease{}, fmt.Errorf("syndication: lease %s parse: %w", kind, err)
		}

		st := l.norm.Collect(doc)
		if ok, reason := check(st); !ok {
			return Lease{Reason: reason}, nil
		}
		mark(st)
		if err := st.Apply(doc); err != nil {
			return Lease{}, err
		}
		content, err := doc.Render()
		if err != nil {
			return Lease{}, err
		}

		version, err := l.store.Write(ctx, contentstore.WriteRequest{
			Path:    path,
			Content: content,
			Version: file.Version,
			Message: fmt.Sprintf("%s lease %s %s %s", l.prefix, kind, slug, target),
		})
		if errors.Is(err, apperr.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Lease{}, fmt.Errorf("syndication: lease %s write: %w", kind, err)
		}
		return Lease{Acquired: true, Version: version, Doc: doc, At: now}, nil
	}
	return Lease{Reason: ReasonLeaseConflict}, nil
}
