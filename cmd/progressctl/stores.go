package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Lllllllleong/productprogress/internal/services"
	"github.com/Lllllllleong/productprogress/internal/store/memstore"
)

// openBackends connects to the configured stores, or to fresh in-memory ones
// with --memory.
func openBackends(ctx context.Context) (*services.Backends, error) {
	if useMemory {
		return &services.Backends{
			Docs:    memstore.NewDocStore(time.Now()),
			Objects: memstore.NewObjectStore("memory"),
			Config:  services.BackendConfig{Bucket: "memory", StorageBackend: "memory"},
		}, nil
	}
	backends, err := services.NewBackends(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stores: %w", err)
	}
	return backends, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
