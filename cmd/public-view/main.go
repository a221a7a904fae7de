package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/services"
)

var (
	viewInstance *services.ViewFunction
	once         sync.Once
	initErr      error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandlePublicView", handlePublicView)
}

func main() {}

// handlePublicView lists products and, with ?productId=, renders one of them.
// It is read-only and needs no sign-in.
func handlePublicView(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		viewInstance = services.NewViewFunction(backends.Docs)
	})
	if initErr != nil {
		slog.Error("Critical: Public view initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := r.URL.Query().Get("productId")
	res, err := viewInstance.Process(r.Context(), productID)
	if err != nil {
		slog.Error("Failed to render public view", "productId", productID, "error", err)
		services.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=30")
	services.WriteJSON(w, http.StatusOK, res)
}
