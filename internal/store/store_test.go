package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "products/p1/tasks", Join("products", "/p1/", "", "tasks"))
	assert.Equal(t, "products/p1/tasks", Parent("products/p1/tasks/s1"))
	assert.Equal(t, "", Parent("products"))
	assert.Equal(t, "s1", Base("/products/p1/tasks/s1/"))
}

func TestWriteFailed(t *testing.T) {
	assert.NoError(t, WriteFailed("delete", "products/p1", nil))

	err := WriteFailed("update", "products/p1", ErrNotFound)
	assert.ErrorIs(t, err, ErrDocumentWriteFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "failed to update document products/p1: document not found")

	assert.Same(t, err, WriteFailed("delete", "products/p2", err))

	var odf error = &ObjectDeleteFailed{Address: "uploads/p1/a.jpg", Cause: errors.New("403")}
	assert.ErrorIs(t, odf, ErrObjectDeleteFailed)
	assert.NotErrorIs(t, odf, ErrDocumentWriteFailed)
	assert.True(t, IsServerTimestamp(ServerTimestamp))
	assert.False(t, IsServerTimestamp("now"))
}
