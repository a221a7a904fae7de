package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/cascade"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/services"
)

var (
	cascadeInstance *services.CascadeFunction
	authorizer      *auth.Authorizer
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleDeleteStep", deleteHandler((*services.CascadeFunction).DeleteStep))
	functions.HTTP("HandleDeleteProduct", deleteHandler((*services.CascadeFunction).DeleteProduct))
	functions.HTTP("HandleDeleteEntry", deleteHandler((*services.CascadeFunction).DeleteEntry))
}

func main() {}

func initialize() {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		// The deletion workflow calls in with its service account, which
		// must be listed in ADMIN_EMAILS.
		authorizer = services.NewAuthorizer(backends)
		cascadeInstance = services.NewCascadeFunction(cascade.NewCoordinator(backends.Docs, backends.Objects, nil))
	})
}

type deleteOp func(*services.CascadeFunction, context.Context, *models.DeleteRequest) (*models.DeleteResponse, error)

// deleteHandler wraps one cascade operation as an HTTP function.
func deleteHandler(op deleteOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		initialize()
		if initErr != nil {
			slog.Error("Critical: Cascade delete initialization failed", "error", initErr)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}

		if _, err := services.Admin(r.Context(), authorizer, r); err != nil {
			slog.Warn("Rejected delete request", "error", err)
			services.WriteError(w, err)
			return
		}

		var req models.DeleteRequest
		if err := services.DecodeJSON(r, &req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			services.WriteError(w, err)
			return
		}

		res, err := op(cascadeInstance, r.Context(), &req)
		if err != nil {
			services.WriteError(w, err)
			return
		}
		services.WriteJSON(w, http.StatusOK, res)
	}
}
