package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRouting           = errors.New("routing failed")
	ErrGeneration        = errors.New("generation backend failure")
	ErrRetrieval         = errors.New("retrieval backend failure")
	ErrExtraction        = errors.New("question extraction failed")
	ErrWebSearchDisabled = errors.New("web search disabled")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrNotReady          = errors.New("system not initialized")
	ErrTemporary         = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
