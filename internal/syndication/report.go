package syndication

import (
	"sort"
	"sync"
	"time"
)

// Run-level skip reasons.
const (
	SkipNonProduction = "non-production"
	SkipBotCommit     = "bot-commit"
	SkipNoPending     = "no-pending"
	SkipNoChanges     = "no-changes"
	SkipMalformed     = "malformed-front-matter"
)

// Transition is one observable change of a post/target pair.
type Transition struct {
	RunID  string    `json:"runId"`
	Path   string    `json:"path"`
	Slug   string    `json:"slug"`
	Target string    `json:"target"`
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
	URL    string    `json:"url,omitempty"`
	At     time.Time `json:"at"`
}

// PostUpdate describes a post that was written back.
type PostUpdate struct {
	File           string       `json:"file"`
	UpdatedTargets []string     `json:"updatedTargets"`
	Transitions    []Transition `json:"transitions,omitempty"`
}

// PostSkip describes a post that needed no write.
type PostSkip struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// PostError describes a post whose processing failed.
type PostError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report summarises one run. When the whole run was skipped, SkippedRun is
// set with Reason and the per-post lists are empty.
type Report struct {
	RunID      string       `json:"runId"`
	Mode       string       `json:"mode"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	SkippedRun bool         `json:"runSkipped,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Updated    []PostUpdate `json:"updated"`
	Skipped    []PostSkip   `json:"skipped"`
	Errors     []PostError  `json:"errors"`

	mu sync.Mutex
}

func newReport(runID, mode string, now time.Time) *Report {
	return &Report{
		RunID:     runID,
		Mode:      mode,
		StartedAt: now,
		Updated:   []PostUpdate{},
		Skipped:   []PostSkip{},
		Errors:    []PostError{},
	}
}

func (r *Report) skipRun(reason string) *Report {
	r.SkippedRun = true
	r.Reason = reason
	return r
}

func (r *Report) addUpdated(u PostUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updated = append(r.Updated, u)
}

func (r *Report) addSkipped(file, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, PostSkip{File: file, Reason: reason})
}

func (r *Report) addError(file string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, PostError{File: file, Error: err.Error()})
}

// finish sorts the per-post lists so reports are stable regardless of
// worker scheduling.
func (r *Report) finish(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = now
	sort.Slice(r.Updated, func(i, j int) bool { return r.Updated[i].File < r.Updated[j].File })
	sort.Slice(r.Skipped, func(i, j int) bool { return r.Skipped[i].File < r.Skipped[j].File })
	sort.Slice(r.Errors, func(i, j int) bool { return r.Errors[i].File < r.Errors[j].File })
}

// Transitions returns every transition in the report.
func (r *Report) Transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Transition
	for _, u := range r.Updated {
		out = append(out, u.Transitions...)
	}
	return out
}
