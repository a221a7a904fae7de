package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/imaging"
	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/upload"
	"golang.org/x/sync/errgroup"
)

// Captioner writes a one-line description of a photo.
type Captioner interface {
	Caption(ctx context.Context, jpeg []byte) (string, error)
}

// ProgressConfig holds all configuration for the add-progress service.
type ProgressConfig struct {
	UploadConcurrency int
	ChunkSize         int
	WatermarkPath     string
	CaptionModel      string
	VertexAIRegion    string
}

func loadProgressConfig() ProgressConfig {
	return ProgressConfig{
		UploadConcurrency: gcp.GetEnvInt("UPLOAD_CONCURRENCY", 3),
		ChunkSize:         gcp.GetEnvInt("UPLOAD_CHUNK_SIZE", upload.DefaultChunkSize),
		WatermarkPath:     gcp.GetEnv("WATERMARK_PATH", "watermark.png"),
		CaptionModel:      gcp.GetEnv("CAPTION_MODEL", ""),
		VertexAIRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
	}
}

// ProgressFunction prepares, uploads and records the photos of a new
// progress entry.
type ProgressFunction struct {
	docs        store.DocumentStore
	objects     store.ObjectStore
	engine      *imaging.Engine
	policy      imaging.Policy
	uploader    *upload.Uploader
	clock       *upload.Clock
	watermark   []byte
	captioner   Captioner
	concurrency int
}

// NewProgress creates a ProgressFunction from the environment.
func NewProgress(ctx context.Context, backends *Backends) (*ProgressFunction, error) {
	config := loadProgressConfig()

	watermark, err := os.ReadFile(config.WatermarkPath)
	if err != nil {
		// Uploads still work; every photo goes through the resize-only path.
		slog.Warn("Watermark not readable; photos will be stored without it.", "path", config.WatermarkPath, "error", err)
	}

	var captioner Captioner
	if config.CaptionModel != "" {
		vertexClient, err := gcp.NewVertexClient(ctx, backends.Config.ProjectID, config.VertexAIRegion, config.CaptionModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		captioner = vertexClient
		backends.closers = append(backends.closers, vertexClient.Close)
	}

	f := NewProgressFunction(backends.Docs, backends.Objects, watermark, config).WithCaptioner(captioner)
	slog.Info("Progress uploader initialized.", "uploadConcurrency", f.concurrency, "captions", captioner != nil)
	return f, nil
}

// NewProgressFunction wires a ProgressFunction from explicit dependencies.
func NewProgressFunction(docs store.DocumentStore, objects store.ObjectStore, watermark []byte, config ProgressConfig) *ProgressFunction {
	concurrency := config.UploadConcurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	return &ProgressFunction{
		docs:        docs,
		objects:     objects,
		engine:      imaging.NewEngine(imaging.DefaultOptions()),
		policy:      imaging.DefaultPolicy(),
		uploader:    upload.NewUploader(objects, config.ChunkSize),
		clock:       upload.NewClock(nil),
		watermark:   watermark,
		concurrency: concurrency,
	}
}

// WithCaptioner enables note suggestions for entries saved without a note.
func (f *ProgressFunction) WithCaptioner(c Captioner) *ProgressFunction {
	f.captioner = c
	return f
}

type fileResult struct {
	address string
	blob    []byte
	err     error
}

// Process stores every file, then writes the entry referencing the uploaded
// addresses in selection order. A failed file never stops its siblings.
func (f *ProgressFunction) Process(ctx context.Context, req *models.AddProgressRequest, files []models.UploadFile, author string) (*models.AddProgressResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	logCtx := slog.With("productId", req.ProductID, "stepId", req.StepID, "files", len(files))
	logCtx.Info("Adding progress entry.")

	if _, err := f.docs.Get(ctx, models.ProductPath(req.ProductID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %s does not exist", ErrInvalidRequest, req.ProductID)
		}
		return nil, fmt.Errorf("failed to read product: %w", err)
	}
	if req.StepID != "" {
		if _, err := f.docs.Get(ctx, models.StepPath(req.ProductID, req.StepID)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: step %s does not exist", ErrInvalidRequest, req.StepID)
			}
			return nil, fmt.Errorf("failed to read step: %w", err)
		}
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, file := range files {
		g.Go(func() error {
			results[i] = f.storeFile(gctx, logCtx, req, file)
			return nil
		})
	}
	_ = g.Wait()

	var images, failures []string
	var firstBlob []byte
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", files[i].Name, ErrText(r.err)))
			continue
		}
		images = append(images, r.address)
		if firstBlob == nil {
			firstBlob = r.blob
		}
	}
	if len(files) > 0 && len(images) == 0 {
		logCtx.Error("Every upload failed; no entry written.", "failures", failures)
		return &models.AddProgressResponse{Status: "error", Failures: failures, Message: ErrText(ErrAllUploadsFailed)},
			fmt.Errorf("%w: %d of %d failed", ErrAllUploadsFailed, len(failures), len(files))
	}

	note := req.Note
	if note == "" && f.captioner != nil && firstBlob != nil {
		caption, err := f.captioner.Caption(ctx, firstBlob)
		if err != nil {
			logCtx.Warn("Caption suggestion failed; saving without a note.", "error", err)
		} else {
			note = caption
		}
	}

	if author == "" {
		author = models.DefaultAuthor
	}
	entry := models.ProgressEntry{StepID: req.StepID, Note: note, Images: images, Author: author}
	entryID, err := f.docs.Create(ctx, models.EntriesCollection(req.ProductID), entry.Fields())
	if err != nil {
		logCtx.Error("Failed to create progress entry; removing its photos.", "error", err)
		f.discard(context.WithoutCancel(ctx), logCtx, images)
		return nil, fmt.Errorf("failed to save progress entry: %w", err)
	}

	resp := &models.AddProgressResponse{Status: "success", EntryID: entryID, Images: images, Message: "Progress entry saved."}
	if len(failures) > 0 {
		resp.Status = "partial"
		resp.Failures = failures
		resp.Message = fmt.Sprintf("Progress entry saved; %d of %d photos failed.", len(failures), len(files))
	}
	logCtx.Info("Progress entry saved.", "entryId", entryID, "uploaded", len(images), "failed", len(failures))
	return resp, nil
}

// storeFile runs the transform policy and uploads the prepared blob.
func (f *ProgressFunction) storeFile(ctx context.Context, logCtx *slog.Logger, req *models.AddProgressRequest, file models.UploadFile) fileResult {
	fileLog := logCtx.With("file", file.Name)

	prepared, err := f.engine.Prepare(file.Data, f.watermark, f.policy)
	if err != nil {
		fileLog.Error("Photo could not be prepared.", "error", err)
		return fileResult{err: err}
	}
	if prepared.FallbackCause != nil {
		fileLog.Warn("Watermark skipped; stored resized photo.", "cause", prepared.FallbackCause)
	}

	path := upload.ObjectPath(req.ProductID, req.StepID, f.clock.Next(), file.Name)
	sink := func(percent int) {
		fileLog.Debug("Upload progress.", "path", path, "percent", percent)
	}
	address, err := f.uploader.Upload(ctx, path, prepared.Data, imaging.ContentType, sink)
	if err != nil {
		fileLog.Error("Photo upload failed.", "path", path, "error", err)
		return fileResult{err: err}
	}
	return fileResult{address: address, blob: prepared.Data}
}

// discard removes objects whose entry could not be written.
func (f *ProgressFunction) discard(ctx context.Context, logCtx *slog.Logger, addresses []string) {
	for _, a := range addresses {
		if err := f.objects.Delete(ctx, a); err != nil {
			logCtx.Warn("Failed to remove unreferenced photo.", "address", a, "error", err)
		}
	}
}
