package syndication

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/starford/syndicator/internal/frontmatter"
	"github.com/starford/syndicator/internal/targets"
)

// Front matter keys owned by the syndicator.
const (
	KeyTitle       = "title"
	KeyCanonical   = "canonical"
	KeySyndicate   = "syndicate"
	KeySyndication = "syndication"
	KeyStatus      = "syndicationStatus"
	KeyRequestedAt = "syndicationRequestedAt"
	KeyCheckedAt   = "syndicationCheckedAt"
	KeyLastError   = "syndicationLastError"
	KeyComplete    = "syndicationComplete"
)

// State is the canonical, per-target syndication state of one post. Maps
// are keyed by canonical target key; the Syndication map additionally keeps
// verbatim keys for sites the registry does not know.
type State struct {
	Syndication map[string]string
	Status      map[string]Status
	RequestedAt map[string]string
	CheckedAt   map[string]string
	LastError   map[string]string
}

// NewState returns an empty state with all maps allocated.
func NewState() State {
	return State{
		Syndication: map[string]string{},
		Status:      map[string]Status{},
		RequestedAt: map[string]string{},
		CheckedAt:   map[string]string{},
		LastError:   map[string]string{},
	}
}

// Clone deep-copies s.
func (s State) Clone() State {
	c := NewState()
	copyInto(c.Syndication, s.Syndication)
	for k, v := range s.Status {
		c.Status[k] = v
	}
	copyInto(c.RequestedAt, s.RequestedAt)
	copyInto(c.CheckedAt, s.CheckedAt)
	copyInto(c.LastError, s.LastError)
	return c
}

func copyInto(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// MarkConfirmed moves target to confirmed and drops its bookkeeping fields.
func (s State) MarkConfirmed(target string) {
	s.Status[target] = StatusConfirmed
	delete(s.RequestedAt, target)
	delete(s.CheckedAt, target)
	delete(s.LastError, target)
}

// Normalizer turns author-written front matter into canonical State.
type Normalizer struct {
	reg *targets.Registry
}

// NewNormalizer returns a Normalizer backed by reg.
func NewNormalizer(reg *targets.Registry) *Normalizer {
	return &Normalizer{reg: reg}
}

// Targets normalises the syndicate wish-list. It accepts a single string, a
// list of strings or {key: flag} objects, or a {key: flag} object. Keys are
// alias-resolved and deduplicated in first-seen order; unknown keys are kept.
func (n *Normalizer) Targets(raw any) []string {
	var out []string
	seen := map[string]bool{}
	add := func(name string) {
		key := n.reg.Resolve(name)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, key)
	}
	addEnabled := func(m map[string]any) {
		for _, k := range sortedKeys(m) {
			if truthy(m[k]) {
				add(k)
			}
		}
	}

	switch v := raw.(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case string:
				add(it)
			default:
				if m, ok := asMap(it); ok {
					addEnabled(m)
				}
			}
		}
	default:
		if m, ok := asMap(v); ok {
			addEnabled(m)
		}
	}
	return out
}

// SyndicationMap normalises published URLs. Accepted shapes: a list of
// {site|network|service, url|href} objects, or an object whose values are a
// URL string, a list whose first element is the URL, or a {url|href} object.
func (n *Normalizer) SyndicationMap(raw any) map[string]string {
	out := map[string]string{}
	put := func(name, u string) {
		key := n.reg.SyndicationKey(name)
		u = strings.TrimSpace(u)
		if key == "" || u == "" {
			return
		}
		out[key] = u
	}

	if list, ok := raw.([]any); ok {
		for _, item := range list {
			m, ok := asMap(item)
			if !ok {
				continue
			}
			put(firstString(m, "site", "network", "service"), firstString(m, "url", "href"))
		}
		return out
	}

	m, ok := asMap(raw)
	if !ok {
		return out
	}
	for _, k := range aliasFirst(m, n.reg.SyndicationKey) {
		switch v := m[k].(type) {
		case string:
			put(k, v)
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok {
					put(k, s)
				}
			}
		default:
			if obj, ok := asMap(v); ok {
				put(k, firstString(obj, "url", "href"))
			}
		}
	}
	return out
}

// StatusMap normalises syndicationStatus. Values that are not a known
// status are dropped, which is equivalent to pending.
func (n *Normalizer) StatusMap(raw any) map[string]Status {
	out := map[string]Status{}
	for k, v := range n.stringMap(raw) {
		if s := ParseStatus(v); s != "" {
			out[k] = s
		}
	}
	return out
}

// StringMap normalises a per-target string map such as timestamps or
// diagnostics.
func (n *Normalizer) StringMap(raw any) map[string]string {
	return n.stringMap(raw)
}

func (n *Normalizer) stringMap(raw any) map[string]string {
	out := map[string]string{}
	m, ok := asMap(raw)
	if !ok {
		return out
	}
	for _, k := range aliasFirst(m, n.reg.Resolve) {
		key := n.reg.Resolve(k)
		v := scalarString(m[k])
		if key == "" || v == "" {
			continue
		}
		out[key] = v
	}
	return out
}

// Collect reads the canonical State out of doc.
func (n *Normalizer) Collect(doc *frontmatter.Document) State {
	get := func(key string) any {
		v, _ := doc.Get(key)
		return v
	}
	return State{
		Syndication: n.SyndicationMap(get(KeySyndication)),
		Status:      n.StatusMap(get(KeyStatus)),
		RequestedAt: n.StringMap(get(KeyRequestedAt)),
		CheckedAt:   n.StringMap(get(KeyCheckedAt)),
		LastError:   n.StringMap(get(KeyLastError)),
	}
}

// Wishlist returns the normalised syndicate list of doc.
func (n *Normalizer) Wishlist(doc *frontmatter.Document) []string {
	v, _ := doc.Get(KeySyndicate)
	return n.Targets(v)
}

// Apply writes s back into doc in canonical form. Empty maps are removed.
func (s State) Apply(doc *frontmatter.Document) error {
	statuses := make(map[string]string, len(s.Status))
	for k, v := range s.Status {
		statuses[k] = string(v)
	}
	fields := []struct {
		key string
		m   map[string]string
	}{
		{KeySyndication, s.Syndication},
		{KeyStatus, statuses},
		{KeyRequestedAt, s.RequestedAt},
		{KeyCheckedAt, s.CheckedAt},
		{KeyLastError, s.LastError},
	}
	for _, f := range fields {
		if len(f.m) == 0 {
			doc.Delete(f.key)
			continue
		}
		if err := doc.Set(f.key, f.m); err != nil {
			return fmt.Errorf("syndication: apply %s: %w", f.key, err)
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case []any, map[string]any, map[any]any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(s))
	}
}

// truthy reports whether a flag value enables a target: true, a non-empty
// string or a non-zero number.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case uint64:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// aliasFirst orders keys so that entries already in canonical form come
// last and therefore win over aliases that resolve to the same key.
func aliasFirst(m map[string]any, canon func(string) string) []string {
	keys := sortedKeys(m)
	sort.SliceStable(keys, func(i, j int) bool {
		return !isCanonical(keys[i], canon) && isCanonical(keys[j], canon)
	})
	return keys
}

func isCanonical(k string, canon func(string) string) bool {
	return canon(k) == strings.TrimSpace(k)
}
