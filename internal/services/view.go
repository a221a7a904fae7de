package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
)

// ViewFunction serves the read-only public view.
type ViewFunction struct {
	docs store.DocumentStore
}

func NewViewFunction(docs store.DocumentStore) *ViewFunction {
	return &ViewFunction{docs: docs}
}

// Process lists products and, when productID is set, renders that product.
func (f *ViewFunction) Process(ctx context.Context, productID string) (*models.PublicViewResponse, error) {
	products, err := f.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	resp := &models.PublicViewResponse{Products: products}
	if productID != "" {
		if resp.View, err = f.View(ctx, productID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// ListProducts returns every product, newest first.
func (f *ViewFunction) ListProducts(ctx context.Context) ([]models.Product, error) {
	docs, err := f.docs.List(ctx, models.ProductsCollection(), store.Query{OrderBy: models.FieldCreatedAt, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		products = append(products, models.ProductFromFields(d.ID, d.Fields))
	}
	return products, nil
}

// View returns the product with its steps in order and its entries newest first.
func (f *ViewFunction) View(ctx context.Context, productID string) (*models.ProductView, error) {
	doc, err := f.docs.Get(ctx, models.ProductPath(productID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read product: %w", err)
	}

	stepDocs, err := f.docs.List(ctx, models.StepsCollection(productID), store.Query{OrderBy: models.FieldOrder})
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	entryDocs, err := f.docs.List(ctx, models.EntriesCollection(productID), store.Query{OrderBy: models.FieldCreatedAt, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list progress entries: %w", err)
	}

	view := &models.ProductView{
		Product: models.ProductFromFields(doc.ID, doc.Fields),
		Steps:   make([]models.Step, 0, len(stepDocs)),
		Entries: make([]models.ProgressEntry, 0, len(entryDocs)),
	}
	for _, d := range stepDocs {
		view.Steps = append(view.Steps, models.StepFromFields(productID, d.ID, d.Fields))
	}
	for _, d := range entryDocs {
		view.Entries = append(view.Entries, models.EntryFromFields(productID, d.ID, d.Fields))
	}
	view.Progress = models.Progress(view.Steps)
	view.Done = models.DoneCount(view.Steps)
	view.Total = len(view.Steps)
	return view, nil
}

// ViewUpdate is one push from Watch.
type ViewUpdate struct {
	View *models.ProductView
	Err  error
}

// Watch re-renders the product view whenever its steps or entries change,
// until ctx is done or a listener fails.
func (f *ViewFunction) Watch(ctx context.Context, productID string) <-chan ViewUpdate {
	out := make(chan ViewUpdate)
	go func() {
		defer close(out)
		steps := f.docs.Subscribe(ctx, models.StepsCollection(productID), store.Query{})
		entries := f.docs.Subscribe(ctx, models.EntriesCollection(productID), store.Query{})
		for steps != nil || entries != nil {
			var snap store.Snapshot
			var ok bool
			select {
			case snap, ok = <-steps:
				if !ok {
					steps = nil
					continue
				}
			case snap, ok = <-entries:
				if !ok {
					entries = nil
					continue
				}
			case <-ctx.Done():
				return
			}

			update := ViewUpdate{Err: snap.Err}
			if snap.Err == nil {
				update.View, update.Err = f.View(ctx, productID)
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			if update.Err != nil {
				slog.Warn("Stopped watching product.", "productId", productID, "error", update.Err)
				return
			}
		}
	}()
	return out
}
