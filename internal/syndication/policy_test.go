package syndication

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/starford/syndicator/internal/relay"
	"github.com/starford/syndicator/internal/targets"
)

var t0 = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) string {
	return FormatTimestamp(t0.Add(-d))
}

func TestPickForward(t *testing.T) {
	tests := []struct {
		current, next, want Status
	}{
		{"", StatusRequested, StatusRequested},
		{StatusFailed, "", StatusFailed},
		{StatusPending, StatusFailed, StatusFailed},
		{StatusFailed, StatusRequested, StatusRequested},
		{StatusRequested, StatusFailed, StatusRequested},
		{StatusConfirmed, StatusPending, StatusConfirmed},
		{StatusRequested, StatusConfirmed, StatusConfirmed},
		{StatusRequested, StatusRequested, StatusRequested},
		{"bogus", StatusFailed, StatusFailed},
		{" Confirmed ", StatusRequested, StatusConfirmed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PickForward(tt.current, tt.next), "PickForward(%q, %q)", tt.current, tt.next)
	}
}

func TestHoursSince(t *testing.T) {
	assert.True(t, math.IsInf(HoursSince("", t0), 1))
	assert.True(t, math.IsInf(HoursSince("yesterday", t0), 1))
	assert.InDelta(t, 2.0, HoursSince(ago(2*time.Hour), t0), 1e-9)
	assert.InDelta(t, 12.0, HoursSince("2024-05-02", t0), 1e-9)
}

func TestConfirmCooldownHours(t *testing.T) {
	tests := []struct {
		age  float64
		want float64
	}{
		{0.5, 0.25},
		{1, 0.25},
		{1.5, 1},
		{6, 1},
		{12, 3},
		{24, 3},
		{30, 6},
		{100, 6},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfirmCooldownHours(tt.age), "age %v", tt.age)
	}
}

func TestRequestedConfirmAction(t *testing.T) {
	tests := []struct {
		name        string
		status      Status
		requestedAt string
		checkedAt   string
		want        Action
	}{
		{"not requested", StatusFailed, ago(time.Hour), "", ActionNotRequested},
		{"missing requestedAt", StatusRequested, "", ago(time.Minute), ActionSeedRequestedAt},
		{"garbage requestedAt", StatusRequested, "soon", "", ActionSeedRequestedAt},
		{"stale", StatusRequested, ago(48 * time.Hour), ago(time.Minute), ActionStaleFailed},
		{"fresh check", StatusRequested, ago(30 * time.Minute), ago(10 * time.Minute), ActionWait},
		{"cooldown elapsed", StatusRequested, ago(30 * time.Minute), ago(20 * time.Minute), ActionConfirm},
		{"never checked", StatusRequested, ago(30 * time.Minute), "", ActionConfirm},
		{"mid-age waiting", StatusRequested, ago(10 * time.Hour), ago(2 * time.Hour), ActionWait},
		{"mid-age due", StatusRequested, ago(10 * time.Hour), ago(4 * time.Hour), ActionConfirm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := RequestedConfirmAction(tt.status, tt.requestedAt, tt.checkedAt, t0)
			assert.Equal(t, tt.want, d.Action)
		})
	}
}

func TestShouldMarkRequested(t *testing.T) {
	tests := []struct {
		name string
		res  relay.Result
		want bool
	}{
		{"accepted without url", relay.Result{OK: true, Status: 202}, true},
		{"published", relay.Result{OK: true, Status: 201, SyndicatedURL: "https://m.example/1"}, false},
		{"timeout", relay.Result{Error: relay.ErrTagTimeout}, true},
		{"network", relay.Result{Error: relay.ErrTagNetwork}, true},
		{"server error", relay.Result{Status: 503}, true},
		{"rate limited", relay.Result{Status: 429}, true},
		{"bad request", relay.Result{Status: 400}, false},
		{"not found", relay.Result{Status: 404}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldMarkRequested(tt.res), tt.name)
	}
}

func TestPublishEligibility(t *testing.T) {
	reg := targets.Default()
	st := NewState()
	st.Syndication["fediverse"] = "https://m.example/1"
	st.Status["bluesky"] = StatusFailed
	st.RequestedAt["bluesky"] = ago(time.Hour)

	ok, reason := PublishEligibility(reg, st, "mastodon", t0)
	assert.False(t, ok)
	assert.Equal(t, ReasonAlreadySyndicated, reason)

	ok, reason = PublishEligibility(reg, st, "bluesky", t0)
	assert.False(t, ok)
	assert.Equal(t, ReasonFailedBackoff, reason)

	st.RequestedAt["bluesky"] = ago(7 * time.Hour)
	ok, _ = PublishEligibility(reg, st, "bluesky", t0)
	assert.True(t, ok)

	st.Status["bluesky"] = StatusRequested
	st.CheckedAt["bluesky"] = ago(time.Minute)
	ok, reason = PublishEligibility(reg, st, "bluesky", t0)
	assert.False(t, ok)
	assert.Equal(t, "requested-wait", reason)

	st.Status["bluesky"] = StatusConfirmed
	ok, reason = PublishEligibility(reg, st, "bluesky", t0)
	assert.False(t, ok)
	assert.Equal(t, ReasonAlreadyConfirmed, reason)
}

func TestSummarizeResult(t *testing.T) {
	assert.Equal(t, "publish-timeout", SummarizeResult(relay.Result{Error: relay.ErrTagTimeout}, "publish"))
	assert.Equal(t, "confirm-status-503", SummarizeResult(relay.Result{Status: 503}, "confirm"))
	assert.Equal(t, "publish-status-unknown", SummarizeResult(relay.Result{}, "publish"))
	assert.Equal(t, "publish-no-url", SummarizeResult(relay.Result{OK: true, Status: 202}, "publish"))
	assert.Empty(t, SummarizeResult(relay.Result{OK: true, SyndicatedURL: "https://x"}, "publish"))
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", TruncateError("  short "))

	long := strings.Repeat("é", 200)
	got := TruncateError(long)
	assert.Equal(t, MaxErrorLength, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))

	exact := strings.Repeat("a", MaxErrorLength)
	assert.Equal(t, exact, TruncateError(exact))
}
