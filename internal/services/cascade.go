package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/productprogress/internal/cascade"
	"github.com/Lllllllleong/productprogress/internal/models"
)

// CascadeFunction exposes the cascade coordinator to HTTP callers: the admin
// front end and the product deletion workflow.
type CascadeFunction struct {
	coordinator *cascade.Coordinator
}

func NewCascadeFunction(coordinator *cascade.Coordinator) *CascadeFunction {
	return &CascadeFunction{coordinator: coordinator}
}

// DeleteStep removes a step with its linked entries and photos.
func (f *CascadeFunction) DeleteStep(ctx context.Context, req *models.DeleteRequest) (*models.DeleteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	if req.StepID == "" {
		return nil, fmt.Errorf("%w: taskId is required", ErrInvalidRequest)
	}
	rep, err := f.coordinator.DeleteStepWithReport(ctx, req.ProductID, req.StepID)
	return f.respond(req, "Step deleted.", rep, err)
}

// DeleteProduct removes a product and everything below it.
func (f *CascadeFunction) DeleteProduct(ctx context.Context, req *models.DeleteRequest) (*models.DeleteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	rep, err := f.coordinator.DeleteProductWithReport(ctx, req.ProductID)
	return f.respond(req, "Product deleted.", rep, err)
}

// DeleteEntry removes one progress entry and its photos.
func (f *CascadeFunction) DeleteEntry(ctx context.Context, req *models.DeleteRequest) (*models.DeleteResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	if req.EntryID == "" {
		return nil, fmt.Errorf("%w: entryId is required", ErrInvalidRequest)
	}
	rep, err := f.coordinator.DeleteEntryWithReport(ctx, req.ProductID, req.EntryID)
	return f.respond(req, "Progress entry deleted.", rep, err)
}

func (f *CascadeFunction) respond(req *models.DeleteRequest, msg string, rep *cascade.Report, err error) (*models.DeleteResponse, error) {
	if err != nil {
		state := ""
		if rep != nil {
			state = string(rep.State)
		}
		slog.Error("Cascade deletion failed.", "productId", req.ProductID, "stepId", req.StepID, "entryId", req.EntryID, "state", state, "error", err)
		return nil, err
	}
	return &models.DeleteResponse{
		Status:               "success",
		EntriesDeleted:       rep.EntriesDeleted,
		StepsDeleted:         rep.StepsDeleted,
		ObjectsDeleted:       rep.ObjectsDeleted + rep.SweptObjects,
		ObjectDeleteFailures: rep.ObjectDeleteFailures,
		Message:              msg,
	}, nil
}
