package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDocs fails every Get.
type flakyDocs struct {
	store.DocumentStore
}

func (flakyDocs) Get(context.Context, string) (*store.Document, error) {
	return nil, errors.New("unavailable")
}

func TestParseAllowList(t *testing.T) {
	assert.Equal(t, []string{"a@x.hr", "b@x.hr"}, ParseAllowList(" a@x.hr, ,b@x.hr ,"))
	assert.Empty(t, ParseAllowList(""))
}

func TestIdentityFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	assert.Empty(t, IdentityFromRequest(r))

	r.Header.Set(IdentityHeader, "accounts.google.com:owner@radionica.hr")
	assert.Equal(t, "owner@radionica.hr", IdentityFromRequest(r))
}

func TestRequireAdmin(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewDocStore(time.Now())
	docs.SeedDoc("adminEmails/helper@radionica.hr", map[string]any{})

	a := NewAuthorizer(docs, []string{"Owner@Radionica.hr"})

	assert.NoError(t, a.RequireAdmin(ctx, "owner@radionica.hr"))
	assert.NoError(t, a.RequireAdmin(ctx, "helper@radionica.hr"))
	assert.ErrorIs(t, a.RequireAdmin(ctx, "guest@example.com"), ErrPermissionDenied)
	assert.ErrorIs(t, a.RequireAdmin(ctx, ""), ErrPermissionDenied)
}

func TestRequireAdmin_LookupFailureIsNotPermissionDenied(t *testing.T) {
	a := NewAuthorizer(flakyDocs{}, nil)

	err := a.RequireAdmin(context.Background(), "helper@radionica.hr")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
}

func TestRequireAdmin_AllowListOnly(t *testing.T) {
	a := NewAuthorizer(nil, []string{"owner@radionica.hr"})
	assert.NoError(t, a.RequireAdmin(context.Background(), "owner@radionica.hr"))
	assert.ErrorIs(t, a.RequireAdmin(context.Background(), "helper@radionica.hr"), ErrPermissionDenied)
}
