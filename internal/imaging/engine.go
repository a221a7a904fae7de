// Package imaging turns a raw upload into the JPEG that is actually stored:
// downscaled to a bounded long edge with the workshop watermark composited in
// the bottom-right corner.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrTransformFailed is returned when decoding or compositing fails. Callers
// recover by falling back to ResizeOnly.
var ErrTransformFailed = errors.New("image transform failed")

// ContentType is the MIME type of every blob the engine produces.
const ContentType = "image/jpeg"

// Options configures the engine.
type Options struct {
	// MaxDimension bounds the long edge of the output. Sources are never upscaled.
	MaxDimension int
	// WatermarkFraction is the watermark width as a fraction of the output width.
	WatermarkFraction float64
	// WatermarkOpacity is the alpha the watermark is painted with.
	WatermarkOpacity float64
	// BackingAlpha is the alpha of the black rectangle behind the watermark.
	BackingAlpha float64
	// BackingMargin extends the backing rectangle past the watermark on each side, in pixels.
	BackingMargin int
	// PaddingFraction of the short edge separates the watermark from the corner.
	PaddingFraction float64
	// Quality is the JPEG quality, 1-100.
	Quality int
	// MaxSourcePixels rejects sources whose decoded size would exceed it.
	MaxSourcePixels int
	// Scaler resamples the source. Defaults to draw.CatmullRom.
	Scaler draw.Scaler
}

// DefaultOptions returns the options used by the admin upload flow.
func DefaultOptions() Options {
	return Options{
		MaxDimension:      1600,
		WatermarkFraction: 0.25,
		WatermarkOpacity:  0.9,
		BackingAlpha:      0.28,
		BackingMargin:     10,
		PaddingFraction:   0.02,
		Quality:           85,
		MaxSourcePixels:   120_000_000,
		Scaler:            draw.CatmullRom,
	}
}

// Engine applies the transform. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	opts Options
}

// NewEngine returns an Engine, filling unset options from DefaultOptions.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.WatermarkFraction <= 0 || opts.WatermarkFraction > 1 {
		opts.WatermarkFraction = def.WatermarkFraction
	}
	if opts.WatermarkOpacity <= 0 || opts.WatermarkOpacity > 1 {
		opts.WatermarkOpacity = def.WatermarkOpacity
	}
	if opts.BackingAlpha < 0 || opts.BackingAlpha > 1 {
		opts.BackingAlpha = def.BackingAlpha
	}
	if opts.PaddingFraction < 0 {
		opts.PaddingFraction = def.PaddingFraction
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	if opts.MaxSourcePixels <= 0 {
		opts.MaxSourcePixels = def.MaxSourcePixels
	}
	if opts.Scaler == nil {
		opts.Scaler = def.Scaler
	}
	return &Engine{opts: opts}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Output is an encoded image and its pixel dimensions.
type Output struct {
	Data   []byte
	Width  int
	Height int
}

// Transform decodes raw, scales it to MaxDimension, composites watermark in
// the bottom-right corner and encodes the result as JPEG.
func (e *Engine) Transform(raw, watermark []byte) (out *Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: composite panicked: %v", ErrTransformFailed, r)
		}
	}()

	src, err := e.decode(raw)
	if err != nil {
		return nil, err
	}
	if len(watermark) == 0 {
		return nil, fmt.Errorf("%w: watermark is empty", ErrTransformFailed)
	}
	wm, _, err := image.Decode(bytes.NewReader(watermark))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode watermark: %v", ErrTransformFailed, err)
	}
	if wm.Bounds().Empty() {
		return nil, fmt.Errorf("%w: watermark has no pixels", ErrTransformFailed)
	}

	canvas := e.render(src, e.opts.MaxDimension)
	e.composite(canvas, wm)
	return encode(canvas, e.opts.Quality)
}

// ResizeOnly applies the same scaling as Transform without the watermark.
func (e *Engine) ResizeOnly(raw []byte, maxDimension, quality int) (*Output, error) {
	if maxDimension <= 0 {
		maxDimension = e.opts.MaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = e.opts.Quality
	}
	src, err := e.decode(raw)
	if err != nil {
		return nil, err
	}
	return encode(e.render(src, maxDimension), quality)
}

func (e *Engine) decode(raw []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read image header: %v", ErrTransformFailed, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrTransformFailed)
	}
	if cfg.Width*cfg.Height > e.opts.MaxSourcePixels {
		return nil, fmt.Errorf("%w: image is %dx%d, above the %d pixel limit", ErrTransformFailed, cfg.Width, cfg.Height, e.opts.MaxSourcePixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrTransformFailed, err)
	}
	return img, nil
}

// ScaledSize returns the output size of a w×h source bounded by maxDimension.
func ScaledSize(w, h, maxDimension int) (int, int) {
	k := math.Min(math.Min(float64(maxDimension)/float64(w), float64(maxDimension)/float64(h)), 1)
	sw := int(math.Round(float64(w) * k))
	sh := int(math.Round(float64(h) * k))
	return max(sw, 1), max(sh, 1)
}

func (e *Engine) render(src image.Image, maxDimension int) *image.RGBA {
	b := src.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), maxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel; transparent sources land on white.
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	e.opts.Scaler.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// Placement returns the watermark rectangle for a w×h canvas and a wmW×wmH
// watermark: scaled to the configured width fraction, aspect preserved,
// anchored bottom-right with padding of a fraction of the short edge.
func Placement(w, h, wmW, wmH int, opts Options) image.Rectangle {
	targetW := max(int(math.Round(float64(w)*opts.WatermarkFraction)), 1)
	targetH := max(int(math.Round(float64(wmH)*float64(targetW)/float64(wmW))), 1)
	pad := int(math.Round(float64(min(w, h)) * opts.PaddingFraction))
	x := w - targetW - pad
	y := h - targetH - pad
	return image.Rect(x, y, x+targetW, y+targetH)
}

func (e *Engine) composite(canvas *image.RGBA, wm image.Image) {
	bounds := canvas.Bounds()
	wb := wm.Bounds()
	place := Placement(bounds.Dx(), bounds.Dy(), wb.Dx(), wb.Dy(), e.opts)

	backing := place.Inset(-e.opts.BackingMargin).Intersect(bounds)
	draw.DrawMask(canvas, backing, image.Black, image.Point{}, alphaMask(e.opts.BackingAlpha), image.Point{}, draw.Over)

	scaled := image.NewRGBA(image.Rect(0, 0, place.Dx(), place.Dy()))
	e.opts.Scaler.Scale(scaled, scaled.Bounds(), wm, wb, draw.Src, nil)
	draw.DrawMask(canvas, place, scaled, image.Point{}, alphaMask(e.opts.WatermarkOpacity), image.Point{}, draw.Over)
}

func alphaMask(a float64) image.Image {
	return image.NewUniform(color.Alpha{A: uint8(math.Round(a * 255))})
}

func encode(img image.Image, quality int) (*Output, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: failed to encode jpeg: %v", ErrTransformFailed, err)
	}
	b := img.Bounds()
	return &Output{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}
