// Package store defines the document and object store operations the tracker
// consumes. Concrete backends live in internal/gcp (Firestore, Cloud Storage),
// internal/s3compat (any S3-compatible bucket) and internal/store/memstore.
package store

import (
	"context"
	"io"
	"time"
)

// serverTimestamp is the type of ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp is a field value asking the backend to stamp the write with
// its own clock. Callers never compute createdAt client-side.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Document is a raw document as read from the store.
type Document struct {
	ID     string
	Path   string
	Fields map[string]any
}

// Query narrows and orders a collection listing. Zero values mean "no filter"
// and "store order".
type Query struct {
	OrderBy    string
	Descending bool
	WhereField string
	WhereValue any
}

// Snapshot is one push from a live subscription.
type Snapshot struct {
	Docs []Document
	Err  error
}

// DocumentStore is the hierarchical document store. Collection and document
// paths are slash separated, e.g. "products/abc/tasks".
type DocumentStore interface {
	Create(ctx context.Context, collectionPath string, fields map[string]any) (string, error)
	Update(ctx context.Context, docPath string, fields map[string]any) error
	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, docPath string) error
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, docPath string) (*Document, error)
	List(ctx context.Context, collectionPath string, q Query) ([]Document, error)
	// Subscribe pushes a full snapshot on every change until ctx is done. The
	// channel is closed after the final snapshot.
	Subscribe(ctx context.Context, collectionPath string, q Query) <-chan Snapshot
}

// PutOptions configures an object write.
type PutOptions struct {
	ContentType string
	// Size is the total number of bytes, or -1 when unknown.
	Size int64
	// ChunkSize is the resumable upload chunk size. Zero uses the backend default.
	ChunkSize int
	// Progress receives the cumulative number of bytes the backend has accepted.
	Progress func(written int64)
}

// Listing is one level of an object namespace.
type Listing struct {
	Items       []ObjectInfo
	SubPrefixes []string
}

// ObjectInfo describes an object found by ListChildren.
type ObjectInfo struct {
	Path    string
	Size    int64
	Updated time.Time
}

// ObjectStore is the blob store holding uploaded images.
type ObjectStore interface {
	Put(ctx context.Context, path string, r io.Reader, opts PutOptions) error
	// Address resolves the durable retrieval address of a written object by
	// reading its descriptor.
	Address(ctx context.Context, path string) (string, error)
	// Open streams an object by path or retrieval address.
	Open(ctx context.Context, pathOrAddress string) (io.ReadCloser, error)
	// Delete removes an object by path or retrieval address. Deleting an
	// absent object is not an error.
	Delete(ctx context.Context, pathOrAddress string) error
	// ListChildren lists the direct children of prefix: objects and sub-prefixes.
	ListChildren(ctx context.Context, prefix string) (Listing, error)
}
