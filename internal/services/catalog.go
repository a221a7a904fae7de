package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"github.com/Lllllllleong/productprogress/internal/cascade"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
)

// CatalogConfig holds configuration for the catalog-admin service.
type CatalogConfig struct {
	WorkflowID       string
	WorkflowLocation string
}

// CatalogFunction handles the admin's product and step edits. Product
// deletion is dispatched, never done with a bare document delete.
type CatalogFunction struct {
	docs       store.DocumentStore
	dispatcher Dispatcher
}

// NewCatalog creates a CatalogFunction from the environment. Without
// WORKFLOW_ID product deletions run detached inside this instance.
func NewCatalog(ctx context.Context, backends *Backends) (*CatalogFunction, error) {
	config := CatalogConfig{
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
	}

	var dispatcher Dispatcher
	if config.WorkflowID != "" {
		executionsClient, err := executions.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		dispatcher = NewWorkflowDispatcher(executionsClient, backends.Config.ProjectID, config.WorkflowLocation, config.WorkflowID)
	} else {
		dispatcher = NewDetachedDispatcher(cascade.NewCoordinator(backends.Docs, backends.Objects, nil))
	}
	slog.Info("Catalog admin initialized.", "workflowId", config.WorkflowID)
	return NewCatalogFunction(backends.Docs, dispatcher), nil
}

func NewCatalogFunction(docs store.DocumentStore, dispatcher Dispatcher) *CatalogFunction {
	return &CatalogFunction{docs: docs, dispatcher: dispatcher}
}

// Process runs the requested action.
func (f *CatalogFunction) Process(ctx context.Context, req *models.CatalogRequest) (*models.CatalogResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	logCtx := slog.With("action", req.Action, "productId", req.ProductID, "stepId", req.StepID)

	var (
		id  string
		msg string
		err error
	)
	switch req.Action {
	case "addProduct":
		id, err = f.AddProduct(ctx, req.Name, req.Note, models.Status(req.Status))
		msg = "Product added."
	case "updateProduct":
		id, err = req.ProductID, f.UpdateProduct(ctx, req.ProductID, req.Name, req.Note, models.Status(req.Status))
		msg = "Product saved."
	case "addStep":
		id, err = f.AddStep(ctx, req.ProductID, req.Title)
		msg = "Step added."
	case "toggleStep":
		var done bool
		done, err = f.ToggleStep(ctx, req.ProductID, req.StepID)
		id, msg = req.StepID, fmt.Sprintf("Step marked %s.", doneWord(done))
	case "setStepDone":
		id, err = req.StepID, f.SetStepDone(ctx, req.ProductID, req.StepID, req.Done)
		msg = fmt.Sprintf("Step marked %s.", doneWord(req.Done))
	case "deleteProduct":
		id, err = req.ProductID, f.RequestProductDeletion(ctx, req.ProductID)
		msg = "Product deletion started."
	}
	if err != nil {
		logCtx.Error("Catalog action failed.", "error", err)
		return nil, err
	}
	logCtx.Info("Catalog action done.", "id", id)
	return &models.CatalogResponse{Status: "success", ID: id, Message: msg}, nil
}

func doneWord(done bool) string {
	if done {
		return "done"
	}
	return "not done"
}

// AddProduct creates a product. Every field is optional.
func (f *CatalogFunction) AddProduct(ctx context.Context, name, note string, status models.Status) (string, error) {
	p := models.Product{Name: name, Note: note, Status: status}
	id, err := f.docs.Create(ctx, models.ProductsCollection(), p.Fields())
	if err != nil {
		return "", fmt.Errorf("failed to create product: %w", err)
	}
	return id, nil
}

// UpdateProduct overwrites the product's name, note and status.
func (f *CatalogFunction) UpdateProduct(ctx context.Context, productID, name, note string, status models.Status) error {
	fields := map[string]any{
		models.FieldName:   name,
		models.FieldNote:   note,
		models.FieldStatus: string(models.ParseStatus(string(status))),
	}
	return f.update(ctx, models.ProductPath(productID), fields)
}

// AddStep appends a step ordered after the product's current last step.
func (f *CatalogFunction) AddStep(ctx context.Context, productID, title string) (string, error) {
	if err := f.requireProduct(ctx, productID); err != nil {
		return "", err
	}
	steps, err := f.steps(ctx, productID)
	if err != nil {
		return "", err
	}
	s := models.Step{Title: title, Order: models.NextOrder(steps)}
	id, err := f.docs.Create(ctx, models.StepsCollection(productID), s.Fields())
	if err != nil {
		return "", fmt.Errorf("failed to create step: %w", err)
	}
	return id, nil
}

// ToggleStep flips the step's done flag and returns the new value.
func (f *CatalogFunction) ToggleStep(ctx context.Context, productID, stepID string) (bool, error) {
	doc, err := f.docs.Get(ctx, models.StepPath(productID, stepID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: step %s does not exist", ErrInvalidRequest, stepID)
		}
		return false, fmt.Errorf("failed to read step: %w", err)
	}
	done := !models.StepFromFields(productID, stepID, doc.Fields).Done
	return done, f.SetStepDone(ctx, productID, stepID, done)
}

func (f *CatalogFunction) SetStepDone(ctx context.Context, productID, stepID string, done bool) error {
	return f.update(ctx, models.StepPath(productID, stepID), map[string]any{models.FieldDone: done})
}

// RequestProductDeletion starts the product cascade and returns before it ends.
func (f *CatalogFunction) RequestProductDeletion(ctx context.Context, productID string) error {
	if err := f.requireProduct(ctx, productID); err != nil {
		return err
	}
	if err := f.dispatcher.DispatchProductDeletion(ctx, productID); err != nil {
		return fmt.Errorf("failed to start product deletion: %w", err)
	}
	return nil
}

func (f *CatalogFunction) update(ctx context.Context, docPath string, fields map[string]any) error {
	if err := f.docs.Update(ctx, docPath, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidRequest, docPath)
		}
		return err
	}
	return nil
}

func (f *CatalogFunction) requireProduct(ctx context.Context, productID string) error {
	_, err := f.docs.Get(ctx, models.ProductPath(productID))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: product %s does not exist", ErrInvalidRequest, productID)
	}
	if err != nil {
		return fmt.Errorf("failed to read product: %w", err)
	}
	return nil
}

func (f *CatalogFunction) steps(ctx context.Context, productID string) ([]models.Step, error) {
	docs, err := f.docs.List(ctx, models.StepsCollection(productID), store.Query{OrderBy: models.FieldOrder})
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	steps := make([]models.Step, 0, len(docs))
	for _, d := range docs {
		steps = append(steps, models.StepFromFields(productID, d.ID, d.Fields))
	}
	return steps, nil
}
