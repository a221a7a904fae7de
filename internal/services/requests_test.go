package services

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartRequest(t *testing.T, fields map[string]string, files [][2]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f[0])
		require.NoError(t, err)
		_, err = part.Write([]byte(f[1]))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestReadProgressForm(t *testing.T) {
	r := multipartRequest(t,
		map[string]string{"productId": "p1", "taskId": "s1", "note": "Glued"},
		[][2]string{{"b.jpg", "second"}, {"a.jpg", "first"}})

	req, files, err := ReadProgressForm(r)
	require.NoError(t, err)

	assert.Equal(t, &models.AddProgressRequest{ProductID: "p1", StepID: "s1", Note: "Glued"}, req)
	require.Len(t, files, 2)
	assert.Equal(t, "b.jpg", files[0].Name)
	assert.Equal(t, []byte("second"), files[0].Data)
	assert.Equal(t, "a.jpg", files[1].Name)
}

func TestReadProgressForm_NotMultipart(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")

	_, _, err := ReadProgressForm(r)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDecodeJSON(t *testing.T) {
	var req models.CatalogRequest
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":"addStep","productId":"p1","title":"Cut"}`))
	require.NoError(t, DecodeJSON(r, &req))
	assert.Equal(t, "Cut", req.Title)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"action":`))
	assert.ErrorIs(t, DecodeJSON(r, &req), ErrInvalidRequest)
}

func TestAdmin(t *testing.T) {
	docs, _ := newStores()
	authz := auth.NewAuthorizer(docs, []string{"owner@radionica.hr"})

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set(auth.IdentityHeader, "accounts.google.com:owner@radionica.hr")
	email, err := Admin(context.Background(), authz, r)
	require.NoError(t, err)
	assert.Equal(t, "owner@radionica.hr", email)

	r.Header.Set(auth.IdentityHeader, "accounts.google.com:visitor@example.com")
	_, err = Admin(context.Background(), authz, r)
	assert.ErrorIs(t, err, auth.ErrPermissionDenied)
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
}
