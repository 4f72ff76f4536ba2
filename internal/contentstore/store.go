// Package contentstore defines the versioned post store the syndication job
// coordinates through. Every write is conditional on the version token the
// writer last read; a mismatch fails with apperr.ErrVersionConflict.
package contentstore

import "context"

// Entry is a post file known to the store.
type Entry struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// File is the content of a post at a specific version.
type File struct {
	Path    string
	Version string
	Content []byte
}

// WriteRequest replaces the file at Path if it is still at Version.
type WriteRequest struct {
	Path    string
	Content []byte
	Version string
	// Message describes the change; stores backed by version control use it
	// as the commit message.
	Message string
}

// Store is the interface for post storage.
type Store interface {
	// List returns every post (.md) file.
	List(ctx context.Context) ([]Entry, error)
	// Read returns the current content and version of a post.
	Read(ctx context.Context, path string) (*File, error)
	// Write performs a conditional write and returns the new version.
	Write(ctx context.Context, req WriteRequest) (string, error)
}
