// Package cascade deletes products, steps and progress entries together with
// every document and object that hangs off them.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/upload"
	"golang.org/x/sync/singleflight"
)

// State is the stage a cascade is in, or stopped in when it failed.
type State string

const (
	StateDeletingLinkedEntries  State = "DeletingLinkedEntries"
	StateDeletingStepDoc        State = "DeletingStepDoc"
	StateDeletingEntries        State = "DeletingEntries"
	StateDeletingSteps          State = "DeletingSteps"
	StatePurgingObjectNamespace State = "PurgingObjectNamespace"
	StateDeletingProductDoc     State = "DeletingProductDoc"
	StateDeletingEntryObjects   State = "DeletingEntryObjects"
	StateDeletingEntryDoc       State = "DeletingEntryDoc"
	StateDone                   State = "Done"
)

// Report describes what one cascade removed.
type Report struct {
	State                State `json:"state"`
	EntriesDeleted       int   `json:"entriesDeleted"`
	StepsDeleted         int   `json:"stepsDeleted"`
	ObjectsDeleted       int   `json:"objectsDeleted"`
	ObjectDeleteFailures int   `json:"objectDeleteFailures"`
	SweptObjects         int   `json:"sweptObjects"`
}

// Coordinator runs cascade deletions. Cascades on the same product never
// interleave, and concurrent DeleteProduct calls for one product share a
// single run.
//
// Cascades ignore cancellation of the caller's context: once started they
// run to completion so best-effort object cleanup is never cut short.
type Coordinator struct {
	docs    store.DocumentStore
	objects store.ObjectStore
	locks   keyedMutex
	flights singleflight.Group
	logger  *slog.Logger
}

// NewCoordinator returns a Coordinator. A nil logger uses slog.Default().
func NewCoordinator(docs store.DocumentStore, objects store.ObjectStore, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{docs: docs, objects: objects, logger: logger}
}

// DeleteStep removes every progress entry linked to the step, their images,
// then the step document. Deleting an absent step is a no-op.
func (c *Coordinator) DeleteStep(ctx context.Context, productID, stepID string) error {
	_, err := c.DeleteStepWithReport(ctx, productID, stepID)
	return err
}

// DeleteStepWithReport is DeleteStep returning what was removed.
func (c *Coordinator) DeleteStepWithReport(ctx context.Context, productID, stepID string) (*Report, error) {
	if productID == "" || stepID == "" {
		return nil, errors.New("productID and stepID are required")
	}
	ctx = context.WithoutCancel(ctx)
	unlock := c.locks.Lock(productID)
	defer unlock()

	logCtx := c.logger.With("productId", productID, "stepId", stepID)
	rep := &Report{State: StateDeletingLinkedEntries}

	entries, err := c.docs.List(ctx, models.EntriesCollection(productID), store.Query{WhereField: models.FieldStepID, WhereValue: stepID})
	if err != nil {
		return rep, fmt.Errorf("failed to list entries of step %s: %w", stepID, err)
	}
	for _, doc := range entries {
		if err := c.deleteEntry(ctx, logCtx, productID, doc, rep); err != nil {
			return rep, err
		}
	}

	rep.State = StateDeletingStepDoc
	if err := c.docs.Delete(ctx, models.StepPath(productID, stepID)); err != nil {
		return rep, store.WriteFailed("delete", models.StepPath(productID, stepID), err)
	}

	rep.State = StateDone
	logCtx.Info("Step deleted.", "entriesDeleted", rep.EntriesDeleted, "objectsDeleted", rep.ObjectsDeleted, "objectDeleteFailures", rep.ObjectDeleteFailures)
	return rep, nil
}

// DeleteProduct removes all entries and their images, all steps, everything
// left in the product's upload namespace, then the product document.
func (c *Coordinator) DeleteProduct(ctx context.Context, productID string) error {
	_, err := c.DeleteProductWithReport(ctx, productID)
	return err
}

// DeleteProductWithReport is DeleteProduct returning what was removed.
// Callers joining a run already in flight receive a copy of its report.
func (c *Coordinator) DeleteProductWithReport(ctx context.Context, productID string) (*Report, error) {
	if productID == "" {
		return nil, errors.New("productID is required")
	}
	ctx = context.WithoutCancel(ctx)
	v, err, shared := c.flights.Do(productID, func() (any, error) {
		unlock := c.locks.Lock(productID)
		defer unlock()
		rep, err := c.deleteProduct(ctx, productID)
		return rep, err
	})
	if shared {
		c.logger.Debug("Joined product deletion already in flight.", "productId", productID)
	}
	rep := *v.(*Report)
	return &rep, err
}

func (c *Coordinator) deleteProduct(ctx context.Context, productID string) (*Report, error) {
	logCtx := c.logger.With("productId", productID)
	rep := &Report{State: StateDeletingEntries}

	entries, err := c.docs.List(ctx, models.EntriesCollection(productID), store.Query{})
	if err != nil {
		return rep, fmt.Errorf("failed to list entries: %w", err)
	}
	for _, doc := range entries {
		if err := c.deleteEntry(ctx, logCtx, productID, doc, rep); err != nil {
			return rep, err
		}
	}

	rep.State = StateDeletingSteps
	steps, err := c.docs.List(ctx, models.StepsCollection(productID), store.Query{})
	if err != nil {
		return rep, fmt.Errorf("failed to list steps: %w", err)
	}
	for _, doc := range steps {
		if err := c.docs.Delete(ctx, doc.Path); err != nil {
			return rep, store.WriteFailed("delete", doc.Path, err)
		}
		rep.StepsDeleted++
	}

	rep.State = StatePurgingObjectNamespace
	for _, prefix := range upload.ProductPrefixes(productID) {
		swept, failed, err := c.sweep(ctx, logCtx, prefix)
		rep.SweptObjects += swept
		rep.ObjectDeleteFailures += failed
		if err != nil {
			logCtx.Warn("Namespace sweep stopped early; continuing.", "prefix", prefix, "error", err)
		}
	}

	rep.State = StateDeletingProductDoc
	if err := c.docs.Delete(ctx, models.ProductPath(productID)); err != nil {
		return rep, store.WriteFailed("delete", models.ProductPath(productID), err)
	}

	rep.State = StateDone
	logCtx.Info("Product deleted.",
		"entriesDeleted", rep.EntriesDeleted,
		"stepsDeleted", rep.StepsDeleted,
		"objectsDeleted", rep.ObjectsDeleted,
		"sweptObjects", rep.SweptObjects,
		"objectDeleteFailures", rep.ObjectDeleteFailures)
	return rep, nil
}

// DeleteEntry removes one progress entry and its images. Deleting an absent
// entry is a no-op.
func (c *Coordinator) DeleteEntry(ctx context.Context, productID, entryID string) error {
	_, err := c.DeleteEntryWithReport(ctx, productID, entryID)
	return err
}

// DeleteEntryWithReport is DeleteEntry returning what was removed.
func (c *Coordinator) DeleteEntryWithReport(ctx context.Context, productID, entryID string) (*Report, error) {
	if productID == "" || entryID == "" {
		return nil, errors.New("productID and entryID are required")
	}
	ctx = context.WithoutCancel(ctx)
	unlock := c.locks.Lock(productID)
	defer unlock()

	logCtx := c.logger.With("productId", productID, "entryId", entryID)
	rep := &Report{State: StateDeletingEntryObjects}

	doc, err := c.docs.Get(ctx, models.EntryPath(productID, entryID))
	if errors.Is(err, store.ErrNotFound) {
		rep.State = StateDone
		return rep, nil
	}
	if err != nil {
		return rep, fmt.Errorf("failed to read entry %s: %w", entryID, err)
	}
	if err := c.deleteEntry(ctx, logCtx, productID, *doc, rep); err != nil {
		return rep, err
	}
	rep.State = StateDone
	logCtx.Info("Progress entry deleted.", "objectsDeleted", rep.ObjectsDeleted, "objectDeleteFailures", rep.ObjectDeleteFailures)
	return rep, nil
}

// deleteEntry removes an entry's images best-effort, then its document.
func (c *Coordinator) deleteEntry(ctx context.Context, logCtx *slog.Logger, productID string, doc store.Document, rep *Report) error {
	entry := models.EntryFromFields(productID, doc.ID, doc.Fields)
	for _, address := range entry.Images {
		if err := c.objects.Delete(ctx, address); err != nil {
			rep.ObjectDeleteFailures++
			logCtx.Warn("Failed to delete image; continuing.", "entryId", entry.ID, "address", address, "error", err)
			continue
		}
		rep.ObjectsDeleted++
	}

	path := models.EntryPath(productID, doc.ID)
	if rep.State == StateDeletingEntryObjects {
		rep.State = StateDeletingEntryDoc
	}
	if err := c.docs.Delete(ctx, path); err != nil {
		return store.WriteFailed("delete", path, err)
	}
	rep.EntriesDeleted++
	return nil
}

// Sweep deletes every object below prefix, depth first, and returns how many
// were removed. Individual delete failures are logged and skipped; a listing
// failure stops the sweep.
func (c *Coordinator) Sweep(ctx context.Context, prefix string) (int, error) {
	ctx = context.WithoutCancel(ctx)
	logCtx := c.logger.With("prefix", prefix)
	deleted, failed, err := c.sweep(ctx, logCtx, prefix)
	logCtx.Info("Object namespace swept.", "deleted", deleted, "failed", failed)
	return deleted, err
}

func (c *Coordinator) sweep(ctx context.Context, logCtx *slog.Logger, prefix string) (deleted, failed int, err error) {
	stack := []string{prefix}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		listing, err := c.objects.ListChildren(ctx, p)
		if err != nil {
			return deleted, failed, fmt.Errorf("failed to list %s: %w", p, err)
		}
		for _, item := range listing.Items {
			if err := c.objects.Delete(ctx, item.Path); err != nil {
				failed++
				logCtx.Warn("Failed to delete swept object; continuing.", "path", item.Path, "error", err)
				continue
			}
			deleted++
		}
		stack = append(stack, listing.SubPrefixes...)
	}
	return deleted, failed, nil
}
