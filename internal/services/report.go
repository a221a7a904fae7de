package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store"
	"github.com/Lllllllleong/productprogress/internal/upload"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

// ReportFunction renders a product's photo log as a PDF, one photo per page,
// newest entry first.
type ReportFunction struct {
	docs    store.DocumentStore
	objects store.ObjectStore
	now     func() time.Time
}

func NewReportFunction(docs store.DocumentStore, objects store.ObjectStore) *ReportFunction {
	return &ReportFunction{docs: docs, objects: objects, now: time.Now}
}

// Process builds the report and returns its retrieval address.
func (f *ReportFunction) Process(ctx context.Context, req *models.ReportRequest) (*models.ReportResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, invalid(err)
	}
	logCtx := slog.With("productId", req.ProductID)
	logCtx.Info("Building progress report.")

	if _, err := f.docs.Get(ctx, models.ProductPath(req.ProductID)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %s does not exist", ErrInvalidRequest, req.ProductID)
		}
		return nil, fmt.Errorf("failed to read product: %w", err)
	}
	entryDocs, err := f.docs.List(ctx, models.EntriesCollection(req.ProductID), store.Query{OrderBy: models.FieldCreatedAt, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list progress entries: %w", err)
	}
	var addresses []string
	for _, d := range entryDocs {
		addresses = append(addresses, models.EntryFromFields(req.ProductID, d.ID, d.Fields).Images...)
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("%w: product %s has no photos", ErrInvalidRequest, req.ProductID)
	}

	tempDir, err := os.MkdirTemp("", "progress-report-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	imgFiles := f.download(ctx, logCtx, tempDir, addresses)
	if len(imgFiles) == 0 {
		return nil, fmt.Errorf("none of the %d photos could be downloaded", len(addresses))
	}

	outPath := filepath.Join(tempDir, "report.pdf")
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ImportImagesFile(imgFiles, outPath, pdfcpu.DefaultImportConfig(), conf); err != nil {
		return nil, fmt.Errorf("failed to import photos into pdf: %w", err)
	}
	pageCount, err := api.PageCountFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if pageCount != len(imgFiles) {
		return nil, fmt.Errorf("report has %d pages for %d photos", pageCount, len(imgFiles))
	}

	objectPath := store.Join(upload.ReportPrefix(req.ProductID), strconv.FormatInt(f.now().UnixMilli(), 10)+".pdf")
	address, err := f.save(ctx, outPath, objectPath)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Progress report saved.", "path", objectPath, "pageCount", pageCount, "skipped", len(addresses)-len(imgFiles))
	return &models.ReportResponse{Status: "success", ReportURL: address, PageCount: pageCount}, nil
}

// download fetches the photos concurrently and returns the local files in
// the order of addresses. Photos that cannot be read are skipped.
func (f *ReportFunction) download(ctx context.Context, logCtx *slog.Logger, dir string, addresses []string) []string {
	paths := make([]string, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, address := range addresses {
		g.Go(func() error {
			local := filepath.Join(dir, fmt.Sprintf("%04d.jpg", i))
			if err := f.fetch(gctx, address, local); err != nil {
				logCtx.Warn("Skipping photo that could not be downloaded.", "address", address, "error", err)
				return nil
			}
			paths[i] = local
			return nil
		})
	}
	_ = g.Wait()

	files := paths[:0]
	for _, p := range paths {
		if p != "" {
			files = append(files, p)
		}
	}
	return files
}

func (f *ReportFunction) fetch(ctx context.Context, address, local string) error {
	r, err := f.objects.Open(ctx, address)
	if err != nil {
		return err
	}
	defer r.Close()
	localFile, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", local, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, r); err != nil {
		return fmt.Errorf("failed to copy object to local file: %w", err)
	}
	return nil
}

func (f *ReportFunction) save(ctx context.Context, localPath, objectPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("could not open local file %s: %w", localPath, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat report: %w", err)
	}
	if err := f.objects.Put(ctx, objectPath, file, store.PutOptions{ContentType: "application/pdf", Size: info.Size()}); err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	address, err := f.objects.Address(ctx, objectPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve report address: %w", err)
	}
	return address, nil
}
