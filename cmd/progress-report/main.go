package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/services"
)

var (
	reportInstance *services.ReportFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleProgressReport", handleProgressReport)
}

func main() {}

// handleProgressReport renders a product's photo log as a PDF and returns its
// retrieval address.
func handleProgressReport(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		reportInstance = services.NewReportFunction(backends.Docs, backends.Objects)
	})
	if initErr != nil {
		slog.Error("Critical: Progress report initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	req := models.ReportRequest{ProductID: r.URL.Query().Get("productId")}
	if r.Method == http.MethodPost {
		if err := services.DecodeJSON(r, &req); err != nil {
			slog.Warn("Could not decode request body", "error", err)
			services.WriteError(w, err)
			return
		}
	}

	res, err := reportInstance.Process(r.Context(), &req)
	if err != nil {
		slog.Error("Failed to build progress report", "productId", req.ProductID, "error", err)
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, res)
}
