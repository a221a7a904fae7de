package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Lllllllleong/productprogress/internal/cascade"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	products []string
	err      error
}

func (d *recordingDispatcher) DispatchProductDeletion(_ context.Context, productID string) error {
	d.products = append(d.products, productID)
	return d.err
}

func TestCatalog_StepsDriveProgress(t *testing.T) {
	ctx := context.Background()
	docs, _ := newStores()
	catalog := NewCatalogFunction(docs, &recordingDispatcher{})
	view := NewViewFunction(docs)

	pid, err := catalog.AddProduct(ctx, "Table", "", "")
	require.NoError(t, err)
	cut, err := catalog.AddStep(ctx, pid, "Cut")
	require.NoError(t, err)
	_, err = catalog.AddStep(ctx, pid, "Sand")
	require.NoError(t, err)

	v, err := view.View(ctx, pid)
	require.NoError(t, err)
	require.Len(t, v.Steps, 2)
	assert.Equal(t, "Cut", v.Steps[0].Title)
	assert.Equal(t, 1, v.Steps[0].Order)
	assert.Equal(t, "Sand", v.Steps[1].Title)
	assert.Equal(t, 2, v.Steps[1].Order)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, models.StatusInProgress, v.Product.Status)

	done, err := catalog.ToggleStep(ctx, pid, cut)
	require.NoError(t, err)
	assert.True(t, done)

	v, err = view.View(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 50, v.Progress)
	assert.Equal(t, 1, v.Done)
	assert.Equal(t, 2, v.Total)

	done, err = catalog.ToggleStep(ctx, pid, cut)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCatalog_ProcessActions(t *testing.T) {
	ctx := context.Background()
	docs, _ := newStores()
	catalog := NewCatalogFunction(docs, &recordingDispatcher{})

	resp, err := catalog.Process(ctx, &models.CatalogRequest{Action: "addProduct", Name: "Chair"})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	pid := resp.ID
	require.NotEmpty(t, pid)

	_, err = catalog.Process(ctx, &models.CatalogRequest{Action: "updateProduct", ProductID: pid, Name: "Oak chair", Note: "for the hall", Status: "zavrseno"})
	require.NoError(t, err)
	doc, err := docs.Get(ctx, models.ProductPath(pid))
	require.NoError(t, err)
	p := models.ProductFromFields(pid, doc.Fields)
	assert.Equal(t, "Oak chair", p.Name)
	assert.Equal(t, "for the hall", p.Note)
	assert.Equal(t, models.StatusDone, p.Status)

	resp, err = catalog.Process(ctx, &models.CatalogRequest{Action: "addStep", ProductID: pid})
	require.NoError(t, err)
	sid := resp.ID

	resp, err = catalog.Process(ctx, &models.CatalogRequest{Action: "setStepDone", ProductID: pid, StepID: sid, Done: true})
	require.NoError(t, err)
	assert.Equal(t, "Step marked done.", resp.Message)

	resp, err = catalog.Process(ctx, &models.CatalogRequest{Action: "toggleStep", ProductID: pid, StepID: sid})
	require.NoError(t, err)
	assert.Equal(t, "Step marked not done.", resp.Message)
}

func TestCatalog_RejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	docs, _ := newStores()
	catalog := NewCatalogFunction(docs, &recordingDispatcher{})

	tests := []struct {
		name string
		req  models.CatalogRequest
	}{
		{"unknown action", models.CatalogRequest{Action: "rename", ProductID: "p1"}},
		{"missing product", models.CatalogRequest{Action: "addStep"}},
		{"missing step", models.CatalogRequest{Action: "toggleStep", ProductID: "p1"}},
		{"unknown status", models.CatalogRequest{Action: "updateProduct", ProductID: "p1", Status: "lost"}},
		{"step of unknown product", models.CatalogRequest{Action: "addStep", ProductID: "nope"}},
		{"toggle of unknown step", models.CatalogRequest{Action: "toggleStep", ProductID: "nope", StepID: "s1"}},
		{"update of unknown product", models.CatalogRequest{Action: "updateProduct", ProductID: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Process(ctx, &tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
		})
	}
	assert.Zero(t, docs.Len(models.ProductsCollection()))
}

func TestCatalog_ProductDeletionIsDispatched(t *testing.T) {
	ctx := context.Background()
	docs, _ := newStores()
	d := &recordingDispatcher{}
	catalog := NewCatalogFunction(docs, d)
	pid := createProduct(t, docs, "Bench")

	_, err := catalog.Process(ctx, &models.CatalogRequest{Action: "deleteProduct", ProductID: pid})
	require.NoError(t, err)
	assert.Equal(t, []string{pid}, d.products)

	_, err = docs.Get(ctx, models.ProductPath(pid))
	assert.NoError(t, err, "the dispatcher owns the delete")

	d.err = errors.New("workflow unavailable")
	err = catalog.RequestProductDeletion(ctx, pid)
	assert.ErrorContains(t, err, "failed to start product deletion")

	err = catalog.RequestProductDeletion(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCatalog_DetachedDeletionOutlivesRequest(t *testing.T) {
	docs, objects := newStores()
	pid := createProduct(t, docs, "Cabinet")
	objects.Seed("uploads/"+pid+"/no-task/1_a.jpg", []byte("x"))
	d := NewDetachedDispatcher(cascade.NewCoordinator(docs, objects, nil))
	catalog := NewCatalogFunction(docs, d)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, catalog.RequestProductDeletion(ctx, pid))
	cancel()
	d.Wait()

	_, err := docs.Get(context.Background(), models.ProductPath(pid))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, objects.Paths())
}
