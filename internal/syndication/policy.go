package syndication

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/syndicator/internal/relay"
	"github.com/starford/syndicator/internal/targets"
)

const (
	// FailedBackoff is how long a failed target waits, measured from its
	// requestedAt, before it is retried.
	FailedBackoff = 6 * time.Hour
	// RequestStale is the age after which an unconfirmed request is demoted
	// to failed.
	RequestStale = 48 * time.Hour
	// MaxErrorLength bounds the persisted diagnostic, in characters.
	MaxErrorLength = 160
)

// Diagnostics written by the policy itself.
const (
	DiagMissingTimestamp = "requested-missing-timestamp"
	DiagStale            = "requested-stale"
)

type confirmRule struct {
	maxAge   time.Duration
	cooldown time.Duration
}

// The re-check interval grows with how long a request has been outstanding.
var confirmRules = []confirmRule{
	{maxAge: time.Hour, cooldown: 15 * time.Minute},
	{maxAge: 6 * time.Hour, cooldown: time.Hour},
	{maxAge: 24 * time.Hour, cooldown: 3 * time.Hour},
	{maxAge: RequestStale, cooldown: 6 * time.Hour},
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatTimestamp renders t the way timestamps are persisted.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// ParseTimestamp parses a persisted timestamp.
func ParseTimestamp(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// HoursSince returns the hours elapsed between ts and now. Missing or
// unparseable timestamps are infinitely stale: +Inf.
func HoursSince(ts string, now time.Time) float64 {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return math.Inf(1)
	}
	return now.Sub(t).Hours()
}

// ConfirmCooldownHours returns the minimum gap between confirmation checks
// for a request that is requestedAgeHours old.
func ConfirmCooldownHours(requestedAgeHours float64) float64 {
	for _, r := range confirmRules {
		if requestedAgeHours <= r.maxAge.Hours() {
			return r.cooldown.Hours()
		}
	}
	return confirmRules[len(confirmRules)-1].cooldown.Hours()
}

// Action is what the policy allows next for a requested target.
type Action string

const (
	ActionNotRequested    Action = "not-requested"
	ActionSeedRequestedAt Action = "seed-requested-at"
	ActionStaleFailed     Action = "stale-failed"
	ActionWait            Action = "wait"
	ActionConfirm         Action = "confirm"
)

// Decision is the result of RequestedConfirmAction.
type Decision struct {
	Action            Action
	RequestedAgeHours float64
	CheckedAgeHours   float64
	CooldownHours     float64
}

// RequestedConfirmAction decides what to do with a target in requested state.
func RequestedConfirmAction(status Status, requestedAt, checkedAt string, now time.Time) Decision {
	if ParseStatus(string(status)) != StatusRequested {
		return Decision{Action: ActionNotRequested}
	}

	requestedAge := HoursSince(requestedAt, now)
	if math.IsInf(requestedAge, 1) {
		return Decision{Action: ActionSeedRequestedAt, CooldownHours: confirmRules[0].cooldown.Hours()}
	}
	if requestedAge >= RequestStale.Hours() {
		return Decision{Action: ActionStaleFailed, RequestedAgeHours: requestedAge}
	}

	d := Decision{
		RequestedAgeHours: requestedAge,
		CheckedAgeHours:   HoursSince(checkedAt, now),
		CooldownHours:     ConfirmCooldownHours(requestedAge),
	}
	if !math.IsInf(d.CheckedAgeHours, 1) && d.CheckedAgeHours < d.CooldownHours {
		d.Action = ActionWait
		return d
	}
	d.Action = ActionConfirm
	return d
}

// ShouldMarkRequested reports whether a relay result means the publish is
// still in flight (as opposed to definitively failed).
func ShouldMarkRequested(r relay.Result) bool {
	switch {
	case r.OK && r.SyndicatedURL == "":
		return true
	case r.Error != "":
		return true
	case !r.OK && r.Status >= 500:
		return true
	case !r.OK && r.Status == 429:
		return true
	}
	return false
}

// InFailedBackoff reports whether a failed target is still cooling down.
func InFailedBackoff(requestedAt string, now time.Time) bool {
	return HoursSince(requestedAt, now) < FailedBackoff.Hours()
}

// Eligibility reasons.
const (
	ReasonAlreadySyndicated = "already-syndicated"
	ReasonAlreadyConfirmed  = "already-confirmed"
	ReasonFailedBackoff     = "failed-backoff"
	ReasonNotRequested      = "not-requested"
	ReasonLeaseConflict     = "lease-conflict"
)

// PublishEligibility decides from st whether a publish attempt for target
// may start now. ok=false comes with a reason code.
func PublishEligibility(reg *targets.Registry, st State, target string, now time.Time) (ok bool, reason string) {
	if reg.URLFor(st.Syndication, target) != "" {
		return false, ReasonAlreadySyndicated
	}
	switch status := st.Status[target].OrPending(); status {
	case StatusConfirmed:
		return false, ReasonAlreadyConfirmed
	case StatusRequested:
		d := RequestedConfirmAction(status, st.RequestedAt[target], st.CheckedAt[target], now)
		return false, "requested-" + string(d.Action)
	case StatusFailed:
		if InFailedBackoff(st.RequestedAt[target], now) {
			return false, ReasonFailedBackoff
		}
	}
	return true, ""
}

// TruncateError trims v and caps it at MaxErrorLength characters.
func TruncateError(v string) string {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) <= MaxErrorLength {
		return v
	}
	runes := []rune(v)
	return string(runes[:MaxErrorLength-1]) + "…"
}

// SummarizeResult renders a relay result as a diagnostic for phase
// ("publish" or "confirm"). A clean success yields "".
func SummarizeResult(r relay.Result, phase string) string {
	switch {
	case r.Error != "":
		return TruncateError(phase + "-" + r.Error)
	case !r.OK:
		status := "unknown"
		if r.Status != 0 {
			status = fmt.Sprint(r.Status)
		}
		return TruncateError(phase + "-status-" + status)
	case r.SyndicatedURL == "":
		return phase + "-no-url"
	}
	return ""
}
