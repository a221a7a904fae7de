package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidRequest marks caller mistakes: missing fields, unknown ids.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAllUploadsFailed is returned when files were selected but none of
	// them could be stored. No entry is written in that case.
	ErrAllUploadsFailed = errors.New("no photo could be uploaded")
)

// invalid wraps err as ErrInvalidRequest, spelling out validator failures.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if", "required_unless":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, "; "))
}

// ErrText is the single human-readable line shown for err. Errors are never
// serialised as structures.
func ErrText(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, auth.ErrPermissionDenied):
		return "You do not have permission to do this."
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return "unknown error"
	}
	return msg
}

// HTTPStatus maps err to the status code a function responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAllUploadsFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
