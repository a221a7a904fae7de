package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/gcp"
)

// NewAuthorizer builds the admin check from ADMIN_EMAILS and the adminEmails
// collection.
func NewAuthorizer(backends *Backends) *auth.Authorizer {
	return auth.NewAuthorizer(backends.Docs, auth.ParseAllowList(gcp.GetEnv("ADMIN_EMAILS", "")))
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// WriteError responds with the status for err and its message text.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, HTTPStatus(err), map[string]string{"status": "error", "message": ErrText(err)})
}
