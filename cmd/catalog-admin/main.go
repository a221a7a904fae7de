package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/productprogress/internal/auth"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/services"
)

var (
	catalogInstance *services.CatalogFunction
	authorizer      *auth.Authorizer
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCatalogAdmin", handleCatalogAdmin)
}

func main() {}

// handleCatalogAdmin applies one product or step edit.
func handleCatalogAdmin(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		authorizer = services.NewAuthorizer(backends)
		catalogInstance, initErr = services.NewCatalog(context.Background(), backends)
	})
	if initErr != nil {
		slog.Error("Critical: Catalog admin initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	if _, err := services.Admin(r.Context(), authorizer, r); err != nil {
		slog.Warn("Rejected catalog edit", "error", err)
		services.WriteError(w, err)
		return
	}

	var req models.CatalogRequest
	if err := services.DecodeJSON(r, &req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		services.WriteError(w, err)
		return
	}

	res, err := catalogInstance.Process(r.Context(), &req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, res)
}
