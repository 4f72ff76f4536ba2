// Package targets maps syndication target names to relay target URLs.
package targets

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Default relay target URLs and aliases.
var (
	DefaultEndpoints = map[string]string{
		"mastodon": "https://brid.gy/publish/mastodon",
		"bluesky":  "https://brid.gy/publish/bluesky",
	}
	DefaultAliases = map[string]string{
		"fediverse": "mastodon",
	}
)

// Registry is an immutable lookup table built once at startup and passed to
// whoever needs it.
type Registry struct {
	endpoints map[string]string
	aliases   map[string]string
}

// New builds a registry. Keys and aliases are matched case-insensitively.
func New(endpoints, aliases map[string]string) *Registry {
	r := &Registry{
		endpoints: make(map[string]string, len(endpoints)),
		aliases:   make(map[string]string, len(aliases)),
	}
	for k, v := range endpoints {
		key := fold(k)
		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}
		r.endpoints[key] = strings.TrimSpace(v)
	}
	for k, v := range aliases {
		from, to := fold(k), fold(v)
		if from == "" || to == "" {
			continue
		}
		r.aliases[from] = to
	}
	return r
}

// Default returns the registry for the stock brid.gy targets.
func Default() *Registry {
	return New(DefaultEndpoints, DefaultAliases)
}

// fold normalises a target name typed by an author.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// Resolve returns the canonical key for name after alias resolution, or ""
// for empty input. The result is not guaranteed to be a known target.
func (r *Registry) Resolve(name string) string {
	key := fold(name)
	if key == "" {
		return ""
	}
	if alias, ok := r.aliases[key]; ok {
		return alias
	}
	return key
}

// IsKnown reports whether key has a relay target.
func (r *Registry) IsKnown(key string) bool {
	_, ok := r.endpoints[key]
	return ok
}

// Endpoint returns the relay target URL for key.
func (r *Registry) Endpoint(key string) (string, bool) {
	u, ok := r.endpoints[key]
	return u, ok
}

// Keys returns the known target keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.endpoints))
	for k := range r.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SyndicationKey canonicalises a key of the syndication URL map. Known
// targets are alias-resolved; anything else is kept verbatim so links the
// author recorded by hand for other sites survive a rewrite.
func (r *Registry) SyndicationKey(name string) string {
	raw := strings.TrimSpace(name)
	if raw == "" {
		return ""
	}
	if key := r.Resolve(raw); r.IsKnown(key) {
		return key
	}
	return raw
}

// URLFor returns the published URL recorded for target, honouring any alias
// that still appears as a raw key.
func (r *Registry) URLFor(syndication map[string]string, target string) string {
	if syndication == nil {
		return ""
	}
	if u := syndication[target]; u != "" {
		return u
	}
	for alias, canonical := range r.aliases {
		if canonical == target {
			if u := syndication[alias]; u != "" {
				return u
			}
		}
	}
	return ""
}
