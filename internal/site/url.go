// Package site builds the canonical, absolute URLs that identify posts to
// the federation relay.
package site

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultOrigin is the production origin. Canonical URLs always use it, even
// when a run is triggered from a preview deploy.
const DefaultOrigin = "https://thayn.me"

var (
	absoluteURLRe = regexp.MustCompile(`(?i)^https?://`)
	multiSlashRe  = regexp.MustCompile(`/{2,}`)
	fileExtRe     = regexp.MustCompile(`(?i)\.[a-z0-9]+$`)
)

// Site holds the origin and blog prefix used for canonical post URLs.
type Site struct {
	Origin   string
	BlogPath string
}

// New returns a Site, filling defaults for empty fields.
func New(origin, blogPath string) Site {
	origin = trimBase(origin)
	if origin == "" {
		origin = DefaultOrigin
	}
	if strings.Trim(blogPath, "/ ") == "" {
		blogPath = "/blog/"
	}
	return Site{Origin: origin, BlogPath: blogPath}
}

// PostPath returns the path of a post: "/blog/<slug>/", or "/blog/" for an
// empty slug.
func (s Site) PostPath(slug string) string {
	prefix := "/" + strings.Trim(s.BlogPath, "/ ") + "/"
	clean := strings.Trim(strings.TrimSpace(slug), "/")
	if clean == "" {
		return prefix
	}
	return prefix + clean + "/"
}

// CanonicalURL returns the author's canonical override when it resolves,
// otherwise the default post URL.
func (s Site) CanonicalURL(slug, override string) string {
	if u := Canonicalize(s.Origin, override); u != "" {
		return u
	}
	return Canonicalize(s.Origin, s.PostPath(slug))
}

// Canonicalize resolves value against base and, for same-origin URLs,
// normalises the path to a trailing-slash directory form unless the last
// segment looks like a file.
func Canonicalize(base, value string) string {
	abs := toAbsolute(base, value)
	if abs == "" {
		return ""
	}
	u, err := url.Parse(abs)
	if err != nil {
		return abs
	}
	if b := trimBase(base); b != "" {
		if bu, err := url.Parse(b); err == nil && strings.EqualFold(bu.Scheme, u.Scheme) && strings.EqualFold(bu.Host, u.Host) {
			u.Path = normalizePath(u.Path)
			u.RawPath = ""
		}
	}
	return u.String()
}

func toAbsolute(base, value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if absoluteURLRe.MatchString(trimmed) {
		return trimmed
	}
	b := trimBase(base)
	if b == "" {
		return trimmed
	}
	bu, err := url.Parse(b + "/")
	if err != nil {
		return ""
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(ref).String()
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	p = multiSlashRe.ReplaceAllString(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p == "/" || strings.HasSuffix(p, "/") {
		return p
	}
	if fileExtRe.MatchString(path.Base(p)) {
		return p
	}
	return p + "/"
}

func trimBase(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}
