package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/upload"
)

// GCSEvent is the payload of a GCS event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// SweeperFunction removes photos and reports that finish uploading after
// their product was deleted, closing the window between a cascade's namespace sweep and
// late writers.
type SweeperFunction struct {
	docs    store.DocumentStore
	objects store.ObjectStore
	bucket  string
}

func NewSweeperFunction(docs store.DocumentStore, objects store.ObjectStore, bucket string) *SweeperFunction {
	return &SweeperFunction{docs: docs, objects: objects, bucket: bucket}
}

// ProductOfObject returns the product id owning an upload or report path,
// or "" for objects outside both namespaces.
func ProductOfObject(name string) string {
	for _, root := range []string{upload.Root, upload.ReportRoot} {
		rest, ok := strings.CutPrefix(name, root+"/")
		if !ok {
			continue
		}
		productID, _, ok := strings.Cut(rest, "/")
		if !ok {
			return ""
		}
		return productID
	}
	return ""
}

// Process deletes the finalized object when its product no longer exists.
// Lookup errors are returned so the event is retried.
func (f *SweeperFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if f.bucket != "" && e.Bucket != f.bucket {
		logCtx.Debug("Object is in another bucket. Skipping.")
		return nil
	}
	productID := ProductOfObject(e.Name)
	if productID == "" {
		logCtx.Debug("Object is not owned by a product. Skipping.")
		return nil
	}
	logCtx = logCtx.With("productId", productID)

	_, err := f.docs.Get(ctx, models.ProductPath(productID))
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		logCtx.Error("Failed to look up product.", "error", err)
		return fmt.Errorf("failed to look up product: %w", err)
	}

	if err := f.objects.Delete(ctx, e.Name); err != nil {
		logCtx.Error("Failed to delete orphaned object.", "error", err)
		return err
	}
	logCtx.Info("Deleted object of a deleted product.")
	return nil
}
