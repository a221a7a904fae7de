package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// DownloadTokenKey is the object metadata key Firebase reads download tokens from.
const DownloadTokenKey = "firebaseStorageDownloadTokens"

const firebaseHost = "https://firebasestorage.googleapis.com/v0/b/"

// GCSStore is the store.ObjectStore backed by a Cloud Storage bucket. Retrieval
// addresses are Firebase download URLs so browsers can load images directly.
type GCSStore struct {
	bucket     *storage.BucketHandle
	bucketName string
}

// NewGCSStore returns a GCSStore for bucketName. The caller owns the client.
func NewGCSStore(client *storage.Client, bucketName string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucketName), bucketName: bucketName}
}

// Put performs a resumable upload. ProgressFunc fires after every chunk the
// service has acknowledged.
func (s *GCSStore) Put(ctx context.Context, path string, r io.Reader, opts store.PutOptions) error {
	w := s.bucket.Object(store.Join(path)).NewWriter(ctx)
	w.ContentType = opts.ContentType
	if opts.ChunkSize > 0 {
		w.ChunkSize = opts.ChunkSize
	}
	w.Metadata = map[string]string{DownloadTokenKey: uuid.NewString()}
	if opts.Progress != nil {
		w.ProgressFunc = opts.Progress
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", path, err)
	}
	return nil
}

// Address reads the object's descriptor and builds its download URL, minting a
// token for objects written without one.
func (s *GCSStore) Address(ctx context.Context, path string) (string, error) {
	path = store.Join(path)
	obj := s.bucket.Object(path)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", fmt.Errorf("object %s: %w", path, store.ErrNotFound)
		}
		return "", fmt.Errorf("failed to read object metadata: %w", err)
	}

	token, _, _ := strings.Cut(attrs.Metadata[DownloadTokenKey], ",")
	if token == "" {
		token = uuid.NewString()
		update := storage.ObjectAttrsToUpdate{Metadata: map[string]string{DownloadTokenKey: token}}
		if _, err := obj.Update(ctx, update); err != nil {
			return "", fmt.Errorf("failed to set download token: %w", err)
		}
	}
	return DownloadURL(s.bucketName, path, token), nil
}

// DownloadURL is the Firebase download URL of an object.
func DownloadURL(bucket, path, token string) string {
	return firebaseHost + bucket + "/o/" + url.PathEscape(path) + "?alt=media&token=" + url.QueryEscape(token)
}

// ObjectPathFromAddress resolves a Firebase download URL, a gs:// URI, a
// storage.googleapis.com URL or a bare object path to an object path in bucket.
func ObjectPathFromAddress(bucket, address string) (string, error) {
	switch {
	case strings.HasPrefix(address, firebaseHost):
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("invalid download url: %w", err)
		}
		rest := strings.TrimPrefix(u.Path, "/v0/b/")
		b, name, ok := strings.Cut(rest, "/o/")
		if !ok || name == "" {
			return "", fmt.Errorf("download url %q has no object name", address)
		}
		return checkBucket(bucket, b, name)
	case strings.HasPrefix(address, "gs://"):
		b, name, _ := strings.Cut(strings.TrimPrefix(address, "gs://"), "/")
		return checkBucket(bucket, b, name)
	case strings.HasPrefix(address, "https://storage.googleapis.com/"):
		u, err := url.Parse(address)
		if err != nil {
			return "", fmt.Errorf("invalid storage url: %w", err)
		}
		b, name, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return checkBucket(bucket, b, name)
	case strings.Contains(address, "://"):
		return "", fmt.Errorf("unsupported object address %q", address)
	}
	return store.Join(address), nil
}

func checkBucket(want, got, name string) (string, error) {
	if got != want {
		return "", fmt.Errorf("address belongs to bucket %q, not %q", got, want)
	}
	if name == "" {
		return "", fmt.Errorf("address in bucket %q has no object name", got)
	}
	return store.Join(name), nil
}

func (s *GCSStore) Open(ctx context.Context, pathOrAddress string) (io.ReadCloser, error) {
	path, err := ObjectPathFromAddress(s.bucketName, pathOrAddress)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", path, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucketName, path, err)
	}
	return r, nil
}

// Delete removes the object. An object that is already gone counts as deleted.
func (s *GCSStore) Delete(ctx context.Context, pathOrAddress string) error {
	path, err := ObjectPathFromAddress(s.bucketName, pathOrAddress)
	if err != nil {
		return &store.ObjectDeleteFailed{Address: pathOrAddress, Cause: err}
	}
	err = s.bucket.Object(path).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return &store.ObjectDeleteFailed{Address: pathOrAddress, Cause: err}
}

// ListChildren lists one level below prefix using the "/" delimiter.
func (s *GCSStore) ListChildren(ctx context.Context, prefix string) (store.Listing, error) {
	var listing store.Listing
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: store.Join(prefix) + "/", Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return listing, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if attrs.Prefix != "" {
			listing.SubPrefixes = append(listing.SubPrefixes, strings.TrimSuffix(attrs.Prefix, "/"))
			continue
		}
		listing.Items = append(listing.Items, store.ObjectInfo{Path: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
	slog.Debug("Listed object prefix.", "prefix", prefix, "items", len(listing.Items), "subPrefixes", len(listing.SubPrefixes))
	return listing, nil
}
