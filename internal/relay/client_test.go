package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPublish_SendsFormAndReadsJSONURL(t *testing.T) {
	var gotSource, gotTarget, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotSource, gotTarget = r.PostForm.Get("source"), r.PostForm.Get("target")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://mastodon.example/@x/1"}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Publish(context.Background(), "https://thayn.me/blog/a/", "https://brid.gy/publish/mastodon")
	if !res.OK || res.Status != http.StatusCreated || res.SyndicatedURL != "https://mastodon.example/@x/1" {
		t.Errorf("result = %+v", res)
	}
	if gotSource != "https://thayn.me/blog/a/" || gotTarget != "https://brid.gy/publish/mastodon" {
		t.Errorf("form = %q %q", gotSource, gotTarget)
	}
	if gotType != "application/x-www-form-urlencoded" {
		t.Errorf("content type = %q", gotType)
	}
}

func TestPublish_LocationHeaderFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://bsky.example/post/1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Publish(context.Background(), "s", "t")
	if !res.OK || res.SyndicatedURL != "https://bsky.example/post/1" {
		t.Errorf("result = %+v", res)
	}
}

func TestPublish_ServerErrorIsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Publish(context.Background(), "s", "t")
	if res.OK || res.Status != http.StatusServiceUnavailable || res.Error != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestPublish_OKWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res := NewClient(srv.URL).Publish(context.Background(), "s", "t")
	if !res.OK || res.SyndicatedURL != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestPublish_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := NewClient(srv.URL, WithTimeout(50*time.Millisecond)).Publish(context.Background(), "s", "t")
	if res.Error != ErrTagTimeout || res.OK {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestPublish_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewClient(url).Publish(context.Background(), "s", "t")
	if res.Error != ErrTagNetwork {
		t.Errorf("result = %+v, want network-error", res)
	}
}

func TestPublish_RateLimitPastDeadlineIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://mastodon.example/@x/1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeout(50*time.Millisecond), WithRateLimit(0.1, 1))
	if res := c.Publish(context.Background(), "s", "t"); !res.OK {
		t.Fatalf("first call = %+v", res)
	}
	// The next token is ten seconds away, well past the call deadline.
	res := c.Publish(context.Background(), "s", "t")
	if res.Error != ErrTagTimeout || res.OK {
		t.Errorf("result = %+v, want timeout", res)
	}
}

func TestPublish_RateLimitCancelledIsNetworkError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithRateLimit(0.1, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.Publish(ctx, "s", "t")
	if res.Error != ErrTagNetwork {
		t.Errorf("result = %+v, want network-error", res)
	}
}
