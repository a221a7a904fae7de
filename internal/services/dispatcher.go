package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/productprogress/internal/cascade"
)

// Dispatcher starts a product cascade without waiting for it.
type Dispatcher interface {
	DispatchProductDeletion(ctx context.Context, productID string) error
}

// WorkflowDispatcher hands product deletion to a Cloud Workflows execution,
// which calls the cascade-delete function and retries it on failure.
type WorkflowDispatcher struct {
	client *executions.Client
	parent string
}

// NewWorkflowDispatcher targets projects/{projectID}/locations/{location}/workflows/{workflowID}.
func NewWorkflowDispatcher(client *executions.Client, projectID, location, workflowID string) *WorkflowDispatcher {
	return &WorkflowDispatcher{
		client: client,
		parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}
}

func (d *WorkflowDispatcher) DispatchProductDeletion(ctx context.Context, productID string) error {
	payloadBytes, err := json.Marshal(map[string]interface{}{"productId": productID})
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: d.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := d.client.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Product deletion handed to workflow.", "productId", productID, "execution", exec.GetName())
	return nil
}

// DetachedDispatcher runs the cascade in a background goroutine of this
// process. Wait blocks until every dispatched cascade has finished.
type DetachedDispatcher struct {
	coordinator *cascade.Coordinator
	wg          sync.WaitGroup
}

func NewDetachedDispatcher(coordinator *cascade.Coordinator) *DetachedDispatcher {
	return &DetachedDispatcher{coordinator: coordinator}
}

func (d *DetachedDispatcher) DispatchProductDeletion(ctx context.Context, productID string) error {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.coordinator.DeleteProduct(ctx, productID); err != nil {
			slog.Error("Detached product deletion failed.", "productId", productID, "error", err)
		}
	}()
	return nil
}

func (d *DetachedDispatcher) Wait() { d.wg.Wait() }
