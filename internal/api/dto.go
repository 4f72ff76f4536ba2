package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/syndicator/internal/journal"
	"github.com/starford/syndicator/internal/syndication"
)

// SyndicateRequest is the body of POST /syndicate.
type SyndicateRequest struct {
	Post string `json:"post,omitempty" example:"hello-world"`
	All  bool   `json:"all,omitempty"`
}

// Validate requires exactly one of Post and All.
func (r SyndicateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Post,
			validation.When(!r.All, validation.Required.Error("post or all is required")),
			validation.When(r.All, validation.Empty.Error("post and all are mutually exclusive")),
		),
	)
}

// AcceptedResponse is returned when a deploy run was queued.
type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

// PostListResponse wraps post state listings.
type PostListResponse struct {
	Posts []syndication.PostView `json:"posts"`
	Total int                    `json:"total"`
}

// RunListResponse wraps journal runs.
type RunListResponse struct {
	Runs []journal.RunRow `json:"runs"`
}

// TransitionListResponse wraps the transitions of a post.
type TransitionListResponse struct {
	Transitions []syndication.Transition `json:"transitions"`
}
