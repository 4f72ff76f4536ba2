package contentstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/syndicator/internal/apperr"
)

func githubServer(t *testing.T) (*GitHub, *httptest.Server) {
	t.Helper()
	files := map[string]string{"src/blog/posts/hello.md": "---\ntitle: Hello\n---\nBody\n"}
	sha := "sha-1"

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/me/site/contents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, "/repos/me/site/contents/")
		switch {
		case r.Method == http.MethodGet && path == "src/blog/posts":
			_ = json.NewEncoder(w).Encode([]map[string]string{
				{"type": "file", "name": "hello.md", "path": "src/blog/posts/hello.md", "sha": sha},
				{"type": "file", "name": "notes.txt", "path": "src/blog/posts/notes.txt", "sha": "x"},
				{"type": "dir", "name": "drafts", "path": "src/blog/posts/drafts", "sha": "y"},
			})
		case r.Method == http.MethodGet:
			content, ok := files[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			enc := base64.StdEncoding.EncodeToString([]byte(content))
			// Mimic the API's line wrapping.
			wrapped := enc[:10] + "\n" + enc[10:]
			_ = json.NewEncoder(w).Encode(map[string]string{"sha": sha, "content": wrapped, "encoding": "base64"})
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			var req putRequest
			_ = json.Unmarshal(body, &req)
			if req.SHA != sha {
				w.WriteHeader(http.StatusConflict)
				return
			}
			data, _ := base64.StdEncoding.DecodeString(req.Content)
			files[path] = string(data)
			sha = "sha-2"
			_ = json.NewEncoder(w).Encode(map[string]any{"content": map[string]string{"sha": sha}})
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g, err := NewGitHub(GitHubConfig{
		APIURL: srv.URL, Token: "tok", Owner: "me", Repo: "site", PostsDir: "src/blog/posts",
	}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return g, srv
}

func TestGitHub_ListFiltersMarkdownFiles(t *testing.T) {
	g, _ := githubServer(t)
	entries, err := g.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "src/blog/posts/hello.md" || entries[0].Version != "sha-1" {
		t.Errorf("entries = %v", entries)
	}
}

func TestGitHub_ReadDecodesWrappedBase64(t *testing.T) {
	g, _ := githubServer(t)
	f, err := g.Read(context.Background(), "src/blog/posts/hello.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(f.Content) != "---\ntitle: Hello\n---\nBody\n" || f.Version != "sha-1" {
		t.Errorf("file = %q @ %s", f.Content, f.Version)
	}
}

func TestGitHub_ReadMissing(t *testing.T) {
	g, _ := githubServer(t)
	_, err := g.Read(context.Background(), "src/blog/posts/nope.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGitHub_WriteConflict(t *testing.T) {
	ctx := context.Background()
	g, _ := githubServer(t)

	v, err := g.Write(ctx, WriteRequest{Path: "src/blog/posts/hello.md", Content: []byte("new"), Version: "sha-1", Message: "Syndication: update hello"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v != "sha-2" {
		t.Errorf("version = %q, want sha-2", v)
	}

	_, err = g.Write(ctx, WriteRequest{Path: "src/blog/posts/hello.md", Content: []byte("stale"), Version: "sha-1"})
	if !errors.Is(err, apperr.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestNewGitHub_RequiresCredentials(t *testing.T) {
	if _, err := NewGitHub(GitHubConfig{Owner: "me", Repo: "site"}, nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
