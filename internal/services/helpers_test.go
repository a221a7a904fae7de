package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/Lllllllleong/productprogress/internal/models"
	"github.com/Lllllllleong/productprogress/internal/store/memstore"
	"github.com/stretchr/testify/require"
)

func newStores() (*memstore.DocStore, *memstore.ObjectStore) {
	return memstore.NewDocStore(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)), memstore.NewObjectStore("shop")
}

func testImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func jpegFile(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h, color.RGBA{R: 160, G: 120, B: 80, A: 255}), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pngFile(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h, c)))
	return buf.Bytes()
}

func createProduct(t *testing.T, docs *memstore.DocStore, name string) string {
	t.Helper()
	id, err := docs.Create(context.Background(), models.ProductsCollection(), models.Product{Name: name}.Fields())
	require.NoError(t, err)
	return id
}
