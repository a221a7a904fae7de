// Package auth decides whether a caller may use the admin surface.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lllllllleong/productprogress/internal/store"
)

// ErrPermissionDenied is returned for callers that are not administrators.
// It is never used for transient lookup failures.
var ErrPermissionDenied = errors.New("permission denied")

// IdentityHeader carries the caller's email when the functions sit behind IAP.
const IdentityHeader = "X-Goog-Authenticated-User-Email"

const (
	adminCollection = "adminEmails"
	iapPrefix       = "accounts.google.com:"
)

// Authorizer grants admin rights to allow-listed emails and to emails that
// have a document in the adminEmails collection.
type Authorizer struct {
	docs  store.DocumentStore
	allow []string
}

// NewAuthorizer returns an Authorizer. docs may be nil to use the allow list only.
func NewAuthorizer(docs store.DocumentStore, allow []string) *Authorizer {
	return &Authorizer{docs: docs, allow: allow}
}

// ParseAllowList splits a comma separated ADMIN_EMAILS value.
func ParseAllowList(v string) []string {
	var out []string
	for _, e := range strings.Split(v, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// IdentityFromRequest returns the caller's email, or "" when the request is anonymous.
func IdentityFromRequest(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(IdentityHeader))
	return strings.TrimPrefix(v, iapPrefix)
}

// RequireAdmin returns nil if email belongs to an administrator.
func (a *Authorizer) RequireAdmin(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: sign-in required", ErrPermissionDenied)
	}
	for _, allowed := range a.allow {
		if strings.EqualFold(allowed, email) {
			return nil
		}
	}
	if a.docs == nil {
		return fmt.Errorf("%w: %s is not an administrator", ErrPermissionDenied, email)
	}

	_, err := a.docs.Get(ctx, store.Join(adminCollection, email))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s is not an administrator", ErrPermissionDenied, email)
	default:
		return fmt.Errorf("failed to check admin membership: %w", err)
	}
}
