package site

import "testing"

func TestPostPath(t *testing.T) {
	s := New("", "")
	cases := map[string]string{
		"hello":   "/blog/hello/",
		"/hello/": "/blog/hello/",
		"  ":      "/blog/",
		"a/b":     "/blog/a/b/",
	}
	for in, want := range cases {
		if got := s.PostPath(in); got != want {
			t.Errorf("PostPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalURL(t *testing.T) {
	s := New("https://thayn.me/", "/blog/")
	if got := s.CanonicalURL("first-post", ""); got != "https://thayn.me/blog/first-post/" {
		t.Errorf("default canonical = %q", got)
	}
	if got := s.CanonicalURL("first-post", "/notes/first"); got != "https://thayn.me/notes/first/" {
		t.Errorf("relative override = %q", got)
	}
	if got := s.CanonicalURL("first-post", "https://elsewhere.example/x"); got != "https://elsewhere.example/x" {
		t.Errorf("absolute override = %q", got)
	}
}

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		base, value, want string
	}{
		{"https://thayn.me", "https://thayn.me//blog//post", "https://thayn.me/blog/post/"},
		{"https://thayn.me", "/feed.xml", "https://thayn.me/feed.xml"},
		{"https://thayn.me", "https://thayn.me/blog/x", "https://thayn.me/blog/x/"},
		{"https://thayn.me", "HTTPS://other.example/a", "https://other.example/a"},
		{"https://thayn.me", "", ""},
		{"", "/relative", "/relative"},
	}
	for _, c := range cases {
		if got := Canonicalize(c.base, c.value); got != c.want {
			t.Errorf("Canonicalize(%q, %q) = %q, want %q", c.base, c.value, got, c.want)
		}
	}
}
