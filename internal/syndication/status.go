package syndication

import "strings"

// Status is the lifecycle state of one post/target pair.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
)

var statusPriority = map[Status]int{
	StatusPending:   0,
	StatusFailed:    1,
	StatusRequested: 2,
	StatusConfirmed: 3,
}

// ParseStatus normalises a persisted status value. Unknown values yield "".
func ParseStatus(v string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := statusPriority[s]; ok {
		return s
	}
	return ""
}

// Priority returns the merge priority of s, or -1 for an unknown status.
func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -1
}

// OrPending returns s, or StatusPending when s is empty.
func (s Status) OrPending() Status {
	if s == "" {
		return StatusPending
	}
	return s
}

// PickForward reconciles two status proposals: the one with higher priority
// wins and ties keep current. An empty or unknown side yields the other.
func PickForward(current, next Status) Status {
	c, n := ParseStatus(string(current)), ParseStatus(string(next))
	switch {
	case c == "":
		return n
	case n == "":
		return c
	case n.Priority() > c.Priority():
		return n
	default:
		return c
	}
}
