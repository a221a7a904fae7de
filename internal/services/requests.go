package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/models"
)

// MaxUploadMemory is the part of a multipart form kept in memory; the rest
// spills to temp files.
const MaxUploadMemory = 32 << 20

// ReadProgressForm reads the multipart add-progress form: productId, taskId,
// note and any number of "files" parts, kept in selection order.
func ReadProgressForm(r *http.Request) (*models.AddProgressRequest, []models.UploadFile, error) {
	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		return nil, nil, fmt.Errorf("%w: could not parse multipart form: %v", ErrInvalidRequest, err)
	}
	req := &models.AddProgressRequest{
		ProductID: r.FormValue("productId"),
		StepID:    r.FormValue("taskId"),
		Note:      r.FormValue("note"),
	}

	var files []models.UploadFile
	for _, header := range r.MultipartForm.File["files"] {
		f, err := header.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open uploaded file %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read uploaded file %s: %w", header.Filename, err)
		}
		files = append(files, models.UploadFile{Name: header.Filename, Data: data})
	}
	return req, files, nil
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: could not parse JSON: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Admin checks the caller of r and returns its email.
func Admin(ctx context.Context, authz *auth.Authorizer, r *http.Request) (string, error) {
	email := auth.IdentityFromRequest(r)
	if err := authz.RequireAdmin(ctx, email); err != nil {
		return "", err
	}
	return email, nil
}
