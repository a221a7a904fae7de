package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/productprogress/internal/store"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreStore is the store.DocumentStore backed by Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an existing client. The caller owns the client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) collection(path string) (*firestore.CollectionRef, error) {
	ref := s.client.Collection(store.Join(path))
	if ref == nil {
		return nil, fmt.Errorf("%q is not a collection path", path)
	}
	return ref, nil
}

func (s *FirestoreStore) doc(path string) (*firestore.DocumentRef, error) {
	ref := s.client.Doc(store.Join(path))
	if ref == nil {
		return nil, fmt.Errorf("%q is not a document path", path)
	}
	return ref, nil
}

// toFirestore swaps the store sentinel for the Firestore one.
func toFirestore(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if store.IsServerTimestamp(v) {
			v = firestore.ServerTimestamp
		}
		out[k] = v
	}
	return out
}

func (s *FirestoreStore) Create(ctx context.Context, collectionPath string, fields map[string]any) (string, error) {
	coll, err := s.collection(collectionPath)
	if err != nil {
		return "", store.WriteFailed("create", collectionPath, err)
	}
	ref, _, err := coll.Add(ctx, toFirestore(fields))
	if err != nil {
		return "", store.WriteFailed("create", collectionPath, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Update(ctx context.Context, docPath string, fields map[string]any) error {
	ref, err := s.doc(docPath)
	if err != nil {
		return store.WriteFailed("update", docPath, err)
	}
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			err = store.ErrNotFound
		}
		return store.WriteFailed("update", docPath, err)
	}
	return nil
}

// Delete succeeds for documents that do not exist, which is Firestore's own
// behaviour without a precondition.
func (s *FirestoreStore) Delete(ctx context.Context, docPath string) error {
	ref, err := s.doc(docPath)
	if err != nil {
		return store.WriteFailed("delete", docPath, err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return store.WriteFailed("delete", docPath, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, docPath string) (*store.Document, error) {
	ref, err := s.doc(docPath)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document %s: %w", docPath, err)
	}
	return toDocument(snap), nil
}

func (s *FirestoreStore) query(collectionPath string, q store.Query) (firestore.Query, error) {
	coll, err := s.collection(collectionPath)
	if err != nil {
		return firestore.Query{}, err
	}
	query := coll.Query
	if q.WhereField != "" {
		query = query.Where(q.WhereField, "==", q.WhereValue)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	return query, nil
}

func (s *FirestoreStore) List(ctx context.Context, collectionPath string, q store.Query) ([]store.Document, error) {
	query, err := s.query(collectionPath, q)
	if err != nil {
		return nil, err
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []store.Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", collectionPath, err)
		}
		docs = append(docs, *toDocument(snap))
	}
	return docs, nil
}

// Subscribe follows the query with a realtime listener. A listener error is
// delivered as the final snapshot.
func (s *FirestoreStore) Subscribe(ctx context.Context, collectionPath string, q store.Query) <-chan store.Snapshot {
	out := make(chan store.Snapshot)
	go func() {
		defer close(out)
		send := func(snap store.Snapshot) bool {
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		query, err := s.query(collectionPath, q)
		if err != nil {
			send(store.Snapshot{Err: err})
			return
		}
		iter := query.Snapshots(ctx)
		defer iter.Stop()
		for {
			qs, err := iter.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				send(store.Snapshot{Err: fmt.Errorf("listener on %s failed: %w", collectionPath, err)})
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				send(store.Snapshot{Err: fmt.Errorf("failed to read snapshot of %s: %w", collectionPath, err)})
				return
			}
			docs := make([]store.Document, 0, len(snaps))
			for _, snap := range snaps {
				docs = append(docs, *toDocument(snap))
			}
			if !send(store.Snapshot{Docs: docs}) {
				return
			}
		}
	}()
	return out
}

func toDocument(snap *firestore.DocumentSnapshot) *store.Document {
	return &store.Document{
		ID:     snap.Ref.ID,
		Path:   relativePath(snap.Ref.Path),
		Fields: snap.Data(),
	}
}

// relativePath strips "projects/{p}/databases/{db}/documents/" from a
// fully qualified document name.
func relativePath(name string) string {
	if _, rest, ok := strings.Cut(name, "/documents/"); ok {
		return rest
	}
	return store.Join(name)
}
