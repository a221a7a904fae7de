package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	sweeperInstance *services.SweeperFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by google.cloud.storage.object.v1.finalized on the upload bucket.
	functions.CloudEvent("SweepOrphanUpload", sweepOrphanUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func sweepOrphanUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		gcp.LoadDotEnv()
		backends, err := services.NewBackends(context.Background())
		if err != nil {
			initErr = err
			return
		}
		sweeperInstance = services.NewSweeperFunction(backends.Docs, backends.Objects, backends.Config.Bucket)
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Returning an error marks the invocation as failed so it is retried.
	return sweeperInstance.Process(ctx, gcsEvent)
}
