// Package memstore provides in-memory document and object stores. They back
// the unit tests and `progressctl --memory`, and support failure injection so
// cascade behaviour under partial failure can be exercised.
package memstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/google/uuid"
)

// DocStore is an in-memory store.DocumentStore.
type DocStore struct {
	mu          sync.RWMutex
	docs        map[string]map[string]any
	clock       time.Time
	subscribers map[int]chan struct{}
	nextSub     int

	failCreate func(collectionPath string) error
	failDelete func(docPath string) error
}

// NewDocStore returns an empty DocStore whose server clock starts at start.
func NewDocStore(start time.Time) *DocStore {
	return &DocStore{
		docs:        make(map[string]map[string]any),
		clock:       start,
		subscribers: make(map[int]chan struct{}),
	}
}

// FailCreate makes Create return the error produced by fn. Pass nil to clear.
func (s *DocStore) FailCreate(fn func(collectionPath string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = fn
}

// FailDelete makes Delete return the error produced by fn. Pass nil to clear.
func (s *DocStore) FailDelete(fn func(docPath string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fn
}

// tick advances the server clock by a millisecond so every write gets a
// distinct, increasing timestamp. Callers hold s.mu.
func (s *DocStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *DocStore) stamp(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			v = s.tick()
		}
		out[k] = v
	}
	return out
}

func (s *DocStore) notify() {
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *DocStore) Create(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		if err := s.failCreate(collectionPath); err != nil {
			return "", store.WriteFailed("create", collectionPath, err)
		}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	s.docs[store.Join(collectionPath, id)] = s.stamp(fields)
	s.notify()
	return id, nil
}

func (s *DocStore) Update(ctx context.Context, docPath string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docPath = store.Join(docPath)
	existing, ok := s.docs[docPath]
	if !ok {
		return store.WriteFailed("update", docPath, store.ErrNotFound)
	}
	for k, v := range s.stamp(fields) {
		existing[k] = v
	}
	s.notify()
	return nil
}

func (s *DocStore) Delete(ctx context.Context, docPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docPath = store.Join(docPath)
	if s.failDelete != nil {
		if err := s.failDelete(docPath); err != nil {
			return store.WriteFailed("delete", docPath, err)
		}
	}
	delete(s.docs, docPath)
	s.notify()
	return nil
}

func (s *DocStore) Get(ctx context.Context, docPath string) (*store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	docPath = store.Join(docPath)
	fields, ok := s.docs[docPath]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Document{ID: store.Base(docPath), Path: docPath, Fields: copyFields(fields)}, nil
}

func (s *DocStore) List(ctx context.Context, collectionPath string, q store.Query) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list(store.Join(collectionPath), q), nil
}

func (s *DocStore) list(collectionPath string, q store.Query) []store.Document {
	var docs []store.Document
	for path, fields := range s.docs {
		if store.Parent(path) != collectionPath {
			continue
		}
		if q.WhereField != "" && !reflect.DeepEqual(fields[q.WhereField], q.WhereValue) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := fields[q.OrderBy]; !ok {
				continue
			}
		}
		docs = append(docs, store.Document{ID: store.Base(path), Path: path, Fields: copyFields(fields)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			c := compare(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	return docs
}

func (s *DocStore) Subscribe(ctx context.Context, collectionPath string, q store.Query) <-chan store.Snapshot {
	out := make(chan store.Snapshot)
	changed := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = changed
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		}()
		for {
			s.mu.RLock()
			docs := s.list(store.Join(collectionPath), q)
			s.mu.RUnlock()
			select {
			case out <- store.Snapshot{Docs: docs}:
			case <-ctx.Done():
				return
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// SeedDoc writes a document at an exact path, bypassing Create.
func (s *DocStore) SeedDoc(docPath string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[store.Join(docPath)] = s.stamp(fields)
	s.notify()
}

// Len returns the number of documents directly under collectionPath.
func (s *DocStore) Len(collectionPath string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list(store.Join(collectionPath), store.Query{}))
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// compare orders the value types the tracker stores. Mismatched types fall
// back to their formatted representation.
func compare(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	if af, aok := number(a); aok {
		if bf, bok := number(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

type object struct {
	data        []byte
	contentType string
	token       string
}

// ObjectStore is an in-memory store.ObjectStore.
type ObjectStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]object

	failPut    func(path string) error
	failDelete func(path string) error
}

// NewObjectStore returns an empty ObjectStore for bucket.
func NewObjectStore(bucket string) *ObjectStore {
	return &ObjectStore{bucket: bucket, objects: make(map[string]object)}
}

// FailPut makes Put return the error produced by fn. Pass nil to clear.
func (s *ObjectStore) FailPut(fn func(path string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = fn
}

// FailDelete makes Delete return the error produced by fn. Pass nil to clear.
func (s *ObjectStore) FailDelete(fn func(path string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = fn
}

func (s *ObjectStore) addressPrefix() string {
	return "memstore://" + s.bucket + "/"
}

func (s *ObjectStore) pathOf(pathOrAddress string) string {
	p := strings.TrimPrefix(pathOrAddress, s.addressPrefix())
	if i := strings.Index(p, "?"); i >= 0 {
		p = p[:i]
	}
	return store.Join(p)
}

const defaultChunkSize = 256 * 1024

func (s *ObjectStore) Put(ctx context.Context, path string, r io.Reader, opts store.PutOptions) error {
	path = store.Join(path)
	s.mu.RLock()
	failPut := s.failPut
	s.mu.RUnlock()
	if failPut != nil {
		if err := failPut(path); err != nil {
			return err
		}
	}

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	var buf bytes.Buffer
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.CopyN(&buf, r, int64(chunk))
		written += n
		if n > 0 && opts.Progress != nil {
			opts.Progress(written)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read upload body: %w", err)
		}
	}

	s.mu.Lock()
	s.objects[path] = object{data: buf.Bytes(), contentType: opts.ContentType, token: uuid.NewString()}
	s.mu.Unlock()
	return nil
}

func (s *ObjectStore) Address(ctx context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path = store.Join(path)
	obj, ok := s.objects[path]
	if !ok {
		return "", fmt.Errorf("object %s: %w", path, store.ErrNotFound)
	}
	return s.addressPrefix() + path + "?token=" + obj.token, nil
}

func (s *ObjectStore) Open(ctx context.Context, pathOrAddress string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path := s.pathOf(pathOrAddress)
	obj, ok := s.objects[path]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", path, store.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *ObjectStore) Delete(ctx context.Context, pathOrAddress string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.pathOf(pathOrAddress)
	if s.failDelete != nil {
		if err := s.failDelete(path); err != nil {
			return &store.ObjectDeleteFailed{Address: pathOrAddress, Cause: err}
		}
	}
	delete(s.objects, path)
	return nil
}

func (s *ObjectStore) ListChildren(ctx context.Context, prefix string) (store.Listing, error) {
	if err := ctx.Err(); err != nil {
		return store.Listing{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	base := store.Join(prefix) + "/"
	var listing store.Listing
	seen := make(map[string]bool)
	for path, obj := range s.objects {
		rest, ok := strings.CutPrefix(path, base)
		if !ok {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			sub := base + rest[:i]
			if !seen[sub] {
				seen[sub] = true
				listing.SubPrefixes = append(listing.SubPrefixes, sub)
			}
			continue
		}
		listing.Items = append(listing.Items, store.ObjectInfo{Path: path, Size: int64(len(obj.data))})
	}
	sort.Slice(listing.Items, func(i, j int) bool { return listing.Items[i].Path < listing.Items[j].Path })
	sort.Strings(listing.SubPrefixes)
	return listing, nil
}

// Paths returns every stored object path, sorted.
func (s *ObjectStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Bytes returns the content of the object at path or address.
func (s *ObjectStore) Bytes(pathOrAddress string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[s.pathOf(pathOrAddress)]
	return obj.data, ok
}

// Seed writes an object directly, bypassing Put.
func (s *ObjectStore) Seed(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[store.Join(path)] = object{data: data, token: uuid.NewString()}
}
