// Package s3compat implements store.ObjectStore on any S3-compatible bucket
// (MinIO locally, a hosted provider in production) for deployments that keep
// photos outside Cloud Storage.
package s3compat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minPartSize is the smallest multipart part S3 accepts.
const minPartSize = 5 * 1024 * 1024

// Config is the connection configuration of a Store.
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	PublicBase string
	UseSSL     bool
}

// Store is a store.ObjectStore on an S3-compatible bucket. Addresses are
// public URLs under PublicBase.
type Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// New creates a client, ensures the bucket exists with a public-read policy,
// and returns a ready-to-use Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		slog.Info("Created object bucket.", "bucket", cfg.Bucket)
	}
	if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
		return nil, fmt.Errorf("failed to set bucket policy: %w", err)
	}

	return newStore(client, cfg.Bucket, cfg.PublicBase), nil
}

func newStore(client *minio.Client, bucket, publicBase string) *Store {
	return &Store{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

// progressReader is handed to minio as PutObjectOptions.Progress; minio reads
// from it as many bytes as it has sent.
type progressReader struct {
	written int64
	fn      func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	p.written += int64(len(b))
	p.fn(p.written)
	return len(b), nil
}

func (s *Store) Put(ctx context.Context, path string, r io.Reader, opts store.PutOptions) error {
	key := store.Join(path)
	size := opts.Size
	if size == 0 {
		size = -1
	}
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.ChunkSize >= minPartSize {
		putOpts.PartSize = uint64(opts.ChunkSize)
	}
	if opts.Progress != nil {
		putOpts.Progress = &progressReader{fn: opts.Progress}
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, putOpts); err != nil {
		return fmt.Errorf("failed to put object %q: %w", key, err)
	}
	return nil
}

// Address stats the object and returns its public URL.
func (s *Store) Address(ctx context.Context, path string) (string, error) {
	key := store.Join(path)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("object %s: %w", key, store.ErrNotFound)
		}
		return "", fmt.Errorf("failed to stat object %q: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// PublicURL returns the browser-accessible URL for key.
func (s *Store) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + strings.Join(segments, "/")
}

// keyOf maps a public URL, an s3:// URI or a bare key back to a key.
func (s *Store) keyOf(pathOrAddress string) (string, error) {
	if rest, ok := strings.CutPrefix(pathOrAddress, s.publicBase+"/"); ok && s.publicBase != "" {
		key, err := url.PathUnescape(rest)
		if err != nil {
			return "", fmt.Errorf("invalid object url %q: %w", pathOrAddress, err)
		}
		return store.Join(key), nil
	}
	if rest, ok := strings.CutPrefix(pathOrAddress, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket != s.bucket || key == "" {
			return "", fmt.Errorf("address %q is not an object in bucket %q", pathOrAddress, s.bucket)
		}
		return store.Join(key), nil
	}
	if strings.Contains(pathOrAddress, "://") {
		return "", fmt.Errorf("unsupported object address %q", pathOrAddress)
	}
	return store.Join(pathOrAddress), nil
}

func (s *Store) Open(ctx context.Context, pathOrAddress string) (io.ReadCloser, error) {
	key, err := s.keyOf(pathOrAddress)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat object %q: %w", key, err)
	}
	return obj, nil
}

// Delete removes the object. S3 reports success for absent keys; NoSuchKey
// from stricter providers is treated the same.
func (s *Store) Delete(ctx context.Context, pathOrAddress string) error {
	key, err := s.keyOf(pathOrAddress)
	if err != nil {
		return &store.ObjectDeleteFailed{Address: pathOrAddress, Cause: err}
	}
	err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return &store.ObjectDeleteFailed{Address: pathOrAddress, Cause: err}
	}
	return nil
}

func (s *Store) ListChildren(ctx context.Context, prefix string) (store.Listing, error) {
	var listing store.Listing
	opts := minio.ListObjectsOptions{Prefix: store.Join(prefix) + "/", Recursive: false}
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return listing, fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			listing.SubPrefixes = append(listing.SubPrefixes, strings.TrimSuffix(obj.Key, "/"))
			continue
		}
		listing.Items = append(listing.Items, store.ObjectInfo{Path: obj.Key, Size: obj.Size, Updated: obj.LastModified})
	}
	return listing, nil
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey"
	}
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
