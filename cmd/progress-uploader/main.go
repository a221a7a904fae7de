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
	"github.com/Lllllllleong/productprogress/internal/services"
)

var (
	progressInstance *services.ProgressFunction
	authorizer       *auth.Authorizer
	once             sync.Once
	initErr          error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleAddProgress", handleAddProgress)
}

func main() {}

// handleAddProgress stores the uploaded photos and writes one progress entry.
func handleAddProgress(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		authorizer = services.NewAuthorizer(backends)
		progressInstance, initErr = services.NewProgress(context.Background(), backends)
	})
	if initErr != nil {
		slog.Error("Critical: Progress uploader initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	author, err := services.Admin(r.Context(), authorizer, r)
	if err != nil {
		slog.Warn("Rejected progress upload", "error", err)
		services.WriteError(w, err)
		return
	}

	req, files, err := services.ReadProgressForm(r)
	if err != nil {
		slog.Warn("Could not read upload form", "error", err)
		services.WriteError(w, err)
		return
	}

	res, err := progressInstance.Process(r.Context(), req, files, author)
	if err != nil {
		// Error is already logged with context in the Process method.
		if res != nil {
			services.WriteJSON(w, services.HTTPStatus(err), res)
			return
		}
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, res)
}
