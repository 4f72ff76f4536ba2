package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/journal"
	"github.com/starford/syndicator/internal/syndication"
)

// Syndicator is the part of the syndication engine the API drives.
type Syndicator interface {
	Run(ctx context.Context, trig syndication.Trigger) *syndication.Report
	Syndicate(ctx context.Context, req syndication.ManualRequest) (*syndication.Report, error)
	Post(ctx context.Context, id string) (*syndication.PostView, error)
	Posts(ctx context.Context, pendingOnly bool) ([]syndication.PostView, error)
}

// History is the read side of the journal.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]journal.RunRow, error)
	Transitions(ctx context.Context, slug string, limit int) ([]syndication.Transition, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc     Syndicator
	history History
	logger  *slog.Logger

	// Deploy runs started in the background.
	inflight sync.WaitGroup
}

// NewHandler creates a new Handler. history may be nil when the journal is
// disabled.
func NewHandler(svc Syndicator, history History, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, history: history, logger: logger}
}

// Wait blocks until background deploy runs have finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// DeployHook handles POST /hooks/deploy-succeeded.
//
// The run happens in the background and the hook answers 202, unless
// ?wait=true is given, in which case the report is returned.
func (h *Handler) DeployHook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	trig := syndication.ParseTrigger(body)

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		writeJSON(w, http.StatusOK, h.svc.Run(r.Context(), trig))
		return
	}

	ctx := context.WithoutCancel(r.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.svc.Run(ctx, trig)
	}()
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

// Syndicate handles POST /syndicate.
func (h *Handler) Syndicate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SyndicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rep, err := h.svc.Syndicate(r.Context(), syndication.ManualRequest{All: req.All, Post: req.Post})
	if err != nil {
		writeError(w, "syndicate", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ListPosts handles GET /posts. ?pending=true keeps posts with work left.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending"))
	posts, err := h.svc.Posts(r.Context(), pending)
	if err != nil {
		writeError(w, "list posts", err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: posts, Total: len(posts)})
}

// GetPost handles GET /posts/{slug}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.svc.Post(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// ListRuns handles GET /runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("journal disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.history.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []journal.RunRow{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// ListTransitions handles GET /posts/{slug}/transitions.
func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("journal disabled"))
		return
	}
	slug := chi.URLParam(r, "slug")
	if slug == "" {
		writeError(w, "list transitions", fmt.Errorf("slug is required: %w", apperr.ErrInvalidInput))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.history.Transitions(r.Context(), slug, limit)
	if err != nil {
		writeError(w, "list transitions", err)
		return
	}
	if items == nil {
		items = []syndication.Transition{}
	}
	writeJSON(w, http.StatusOK, TransitionListResponse{Transitions: items})
}
