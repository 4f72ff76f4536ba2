package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/syndicator/internal/apperr"
	"github.com/starford/syndicator/internal/checksum"
)

// FS implements Store on the local file system. Versions are SHA-256
// checksums of the file content.
type FS struct {
	root     string // absolute path to the site checkout
	postsDir string // posts directory relative to root

	mu sync.Mutex // serialises compare-and-swap writes within this process
}

// NewFS creates a store rooted at root serving posts under postsDir.
// The root directory must already exist.
func NewFS(root, postsDir string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("contentstore: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("contentstore: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("contentstore: root is not a directory: %s", abs)
	}
	return &FS{root: abs, postsDir: filepath.ToSlash(filepath.Clean(postsDir))}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// PostsDir returns the absolute posts directory.
func (f *FS) PostsDir() string { return filepath.Join(f.root, filepath.FromSlash(f.postsDir)) }

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("contentstore: empty path: %w", apperr.ErrInvalidInput)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("contentstore: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidInput)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("contentstore: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("contentstore: path escapes root: %s: %w", rel, apperr.ErrInvalidInput)
	}
	return abs, nil
}

// List walks the posts directory and returns every .md file.
func (f *FS) List(_ context.Context) ([]Entry, error) {
	base := f.PostsDir()
	var out []Entry
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, Entry{Path: filepath.ToSlash(rel), Version: checksum.Sum(data)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("contentstore: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Read returns the content and checksum of a post.
func (f *FS) Read(_ context.Context, path string) (*File, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("contentstore: read %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("contentstore: read %s: %w", path, err)
	}
	return &File{Path: path, Version: checksum.Sum(data), Content: data}, nil
}

// Write replaces the file if its checksum still equals req.Version, then
// writes atomically: tmp file → fsync → rename.
func (f *FS) Write(_ context.Context, req WriteRequest) (string, error) {
	abs, err := f.safePath(req.Path)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("contentstore: write %s: %w", req.Path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("contentstore: write %s: %w", req.Path, err)
	}
	if !checksum.Matches(current, req.Version) {
		return "", &apperr.ConflictError{Path: req.Path, Expected: req.Version, Current: checksum.Sum(current)}
	}

	if err := writeAtomic(abs, req.Content); err != nil {
		return "", err
	}
	return checksum.Sum(req.Content), nil
}

func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, ".syndicator-tmp-*")
	if err != nil {
		return fmt.Errorf("contentstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("contentstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("contentstore: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("contentstore: close temp: %w", err)
	}
	if info, err := os.Stat(abs); err == nil {
		_ = os.Chmod(tmpName, info.Mode().Perm())
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("contentstore: rename: %w", err)
	}
	success = true
	return nil
}
