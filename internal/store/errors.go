package store

import (
	"errors"
	"fmt"
)

// Store error types.
var (
	ErrNotFound            = errors.New("document not found")
	ErrDocumentWriteFailed = errors.New("document write failed")
	ErrObjectDeleteFailed  = errors.New("object delete failed")
)

// DocumentWriteFailed is returned when the store rejects a create, update or
// delete on a document.
type DocumentWriteFailed struct {
	Op    string
	Path  string
	Cause error
}

func (e *DocumentWriteFailed) Error() string {
	return fmt.Sprintf("failed to %s document %s: %v", e.Op, e.Path, e.Cause)
}

func (e *DocumentWriteFailed) Unwrap() error { return e.Cause }

func (e *DocumentWriteFailed) Is(target error) bool { return target == ErrDocumentWriteFailed }

// ObjectDeleteFailed is returned when the store rejects an object removal.
type ObjectDeleteFailed struct {
	Address string
	Cause   error
}

func (e *ObjectDeleteFailed) Error() string {
	return fmt.Sprintf("failed to delete object %s: %v", e.Address, e.Cause)
}

func (e *ObjectDeleteFailed) Unwrap() error { return e.Cause }

func (e *ObjectDeleteFailed) Is(target error) bool { return target == ErrObjectDeleteFailed }

// WriteFailed wraps cause as a DocumentWriteFailed unless it already is one.
func WriteFailed(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	var dwf *DocumentWriteFailed
	if errors.As(cause, &dwf) {
		return cause
	}
	return &DocumentWriteFailed{Op: op, Path: path, Cause: cause}
}
