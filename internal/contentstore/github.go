package contentstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/syndicator/internal/apperr"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHubConfig configures the GitHub contents API store.
type GitHubConfig struct {
	APIURL   string
	Token    string
	Owner    string
	Repo     string
	Branch   string
	PostsDir string
}

// GitHub implements Store against the GitHub repository contents API. The
// blob SHA of each file is its version token and every write is a commit.
type GitHub struct {
	cfg    GitHubConfig
	client *http.Client
}

// NewGitHub creates a GitHub-backed store. A nil client uses a default client
// with a 30s timeout.
func NewGitHub(cfg GitHubConfig, client *http.Client) (*GitHub, error) {
	if cfg.Token == "" || cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("contentstore: github token, owner and repo are required: %w", apperr.ErrInvalidInput)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultGitHubAPI
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	cfg.PostsDir = strings.Trim(cfg.PostsDir, "/")
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHub{cfg: cfg, client: client}, nil
}

type contentEntry struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

func (g *GitHub) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.cfg.APIURL,
		url.PathEscape(g.cfg.Owner), url.PathEscape(g.cfg.Repo), strings.Join(segments, "/"))
}

func (g *GitHub) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	req.Header.Set("User-Agent", "syndicator-bot")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return g.client.Do(req)
}

// List returns the .md files in the posts directory on the configured branch.
func (g *GitHub) List(ctx context.Context) ([]Entry, error) {
	u := g.contentsURL(g.cfg.PostsDir) + "?ref=" + url.QueryEscape(g.cfg.Branch)
	res, err := g.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("contentstore: list posts: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contentstore: list posts: status %d", res.StatusCode)
	}

	var entries []contentEntry
	if err := json.NewDecoder(res.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("contentstore: decode listing: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type != "file" || !strings.HasSuffix(e.Name, ".md") {
			continue
		}
		p := e.Path
		if p == "" {
			p = g.cfg.PostsDir + "/" + e.Name
		}
		out = append(out, Entry{Path: p, Version: e.SHA})
	}
	return out, nil
}

// Read fetches a file and its blob SHA.
func (g *GitHub) Read(ctx context.Context, path string) (*File, error) {
	u := g.contentsURL(path) + "?ref=" + url.QueryEscape(g.cfg.Branch)
	res, err := g.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("contentstore: read %s: %w", path, err)
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("contentstore: read %s: %w", path, apperr.ErrNotFound)
	case res.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("contentstore: read %s: status %d", path, res.StatusCode)
	}

	var entry contentEntry
	if err := json.NewDecoder(res.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("contentstore: decode %s: %w", path, err)
	}
	// The API wraps base64 content at 60 columns.
	raw := strings.NewReplacer("\n", "", "\r", "").Replace(entry.Content)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("contentstore: decode %s content: %w", path, err)
	}
	return &File{Path: path, Version: entry.SHA, Content: data}, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// Write commits new content if the file's blob SHA still equals req.Version.
func (g *GitHub) Write(ctx context.Context, req WriteRequest) (string, error) {
	payload, err := json.Marshal(putRequest{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString(req.Content),
		SHA:     req.Version,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return "", fmt.Errorf("contentstore: encode write: %w", err)
	}
	res, err := g.do(ctx, http.MethodPut, g.contentsURL(req.Path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("contentstore: write %s: %w", req.Path, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusConflict:
		return "", &apperr.ConflictError{Path: req.Path, Expected: req.Version}
	case http.StatusNotFound:
		return "", fmt.Errorf("contentstore: write %s: %w", req.Path, apperr.ErrNotFound)
	default:
		return "", fmt.Errorf("contentstore: write %s: status %d", req.Path, res.StatusCode)
	}

	var out putResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.Content.SHA == "" {
		// Committed, but no SHA in the body: the stale token makes the next
		// conditional write conflict and re-read.
		return req.Version, nil
	}
	return out.Content.SHA, nil
}
