package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidInput    = errors.New("invalid input")
)

// ConflictError reports a conditional write rejected because the stored
// version no longer matches the token the writer read.
type ConflictError struct {
	Path     string
	Expected string
	Current  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %s, current %s", e.Path, short(e.Expected), short(e.Current))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

func short(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	if token == "" {
		return "<none>"
	}
	return token
}
