// Package upload pushes prepared blobs to the object store under the
// deterministic uploads/ namespace and resolves their retrieval address.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
)

// Root is the first segment of every upload path.
const Root = "uploads"

// ReportRoot is the first segment of every generated report path.
const ReportRoot = "reports"

// DefaultChunkSize is the resumable upload chunk size.
const DefaultChunkSize = 256 * 1024

// ErrUploadFailed matches any *UploadFailed with errors.Is.
var ErrUploadFailed = errors.New("upload failed")

// UploadFailed wraps a transport error during transfer or address resolution.
type UploadFailed struct {
	Path  string
	Cause error
}

func (e *UploadFailed) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.Path, e.Cause)
}

func (e *UploadFailed) Unwrap() error { return e.Cause }

func (e *UploadFailed) Is(target error) bool { return target == ErrUploadFailed }

// ProgressSink receives whole percentages, non-decreasing, ending at 100 on
// success. It is informational only.
type ProgressSink func(percent int)

// ChannelSink adapts a channel to a ProgressSink. Sends never block. Values
// are distinct and increasing, so a buffer of 101 never drops one.
func ChannelSink(ch chan<- int) ProgressSink {
	return func(percent int) {
		select {
		case ch <- percent:
		default:
		}
	}
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	unsafeRegex     = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// Sanitize turns an original file name into a safe object name component:
// whitespace runs become "_" and anything outside [A-Za-z0-9._-] is dropped.
func Sanitize(name string) string {
	s := whitespaceRegex.ReplaceAllString(name, "_")
	s = unsafeRegex.ReplaceAllString(s, "")
	if s == "" || s == "." || s == ".." {
		return "image.jpg"
	}
	return s
}

// NamespacePrefix is the object namespace owned by a product.
func NamespacePrefix(productID string) string {
	return store.Join(Root, productID)
}

// ReportPrefix is the object namespace holding a product's reports.
func ReportPrefix(productID string) string {
	return store.Join(ReportRoot, productID)
}

// ProductPrefixes lists every object namespace a product owns.
func ProductPrefixes(productID string) []string {
	return []string{NamespacePrefix(productID), ReportPrefix(productID)}
}

// ObjectPath builds uploads/{productId}/{stepId|no-task}/{unixMillis}_{name}.
func ObjectPath(productID, stepID string, at time.Time, name string) string {
	if stepID == "" {
		stepID = models.NoStepSentinel
	}
	return store.Join(Root, productID, stepID, strconv.FormatInt(at.UnixMilli(), 10)+"_"+Sanitize(name))
}

// Clock hands out strictly increasing timestamps at millisecond resolution so
// files uploaded within the same millisecond still get distinct paths.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewClock returns a Clock reading now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the next timestamp.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return time.UnixMilli(ms)
}

// Uploader runs resumable transfers against an ObjectStore.
type Uploader struct {
	objects   store.ObjectStore
	chunkSize int
}

// NewUploader returns an Uploader. chunkSize <= 0 selects DefaultChunkSize.
func NewUploader(objects store.ObjectStore, chunkSize int) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{objects: objects, chunkSize: chunkSize}
}

// Upload writes blob to path in chunks, reports progress to sink and returns
// the object's retrieval address. It does not retry.
func (u *Uploader) Upload(ctx context.Context, path string, blob []byte, contentType string, sink ProgressSink) (string, error) {
	total := int64(len(blob))
	var mu sync.Mutex
	last := -1
	report := func(percent int) {
		mu.Lock()
		defer mu.Unlock()
		if sink == nil || percent <= last {
			return
		}
		last = percent
		sink(percent)
	}

	opts := store.PutOptions{
		ContentType: contentType,
		Size:        total,
		ChunkSize:   u.chunkSize,
		Progress: func(written int64) {
			if total == 0 {
				return
			}
			// 100 is reserved for a finalized object.
			report(min(int(written*100/total), 99))
		},
	}
	if err := u.objects.Put(ctx, path, bytes.NewReader(blob), opts); err != nil {
		return "", &UploadFailed{Path: path, Cause: err}
	}

	address, err := u.objects.Address(ctx, path)
	if err != nil {
		return "", &UploadFailed{Path: path, Cause: fmt.Errorf("failed to resolve retrieval address: %w", err)}
	}
	report(100)
	return address, nil
}
