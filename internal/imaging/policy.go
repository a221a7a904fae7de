package imaging

import (
	"bytes"
	"fmt"
)

// Policy bounds what Prepare is allowed to hand to the uploader.
type Policy struct {
	// MaxBytes is the size ceiling of a prepared blob.
	MaxBytes int
	// FallbackQuality is used by every resize-only pass.
	FallbackQuality int
	// MinDimension stops the shrinking loop.
	MinDimension int
}

// DefaultPolicy is 3 MiB at JPEG quality 82, shrinking no further than 400px.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:        3 * 1024 * 1024,
		FallbackQuality: 82,
		MinDimension:    400,
	}
}

// Result is a prepared blob ready for upload.
type Result struct {
	Output
	Watermarked bool
	// FallbackCause is the transform error that forced the resize-only path.
	FallbackCause error
}

// Prepare runs Transform and falls back to ResizeOnly when it fails or when
// the output is above the size ceiling. The original bytes are never returned.
func (e *Engine) Prepare(raw, watermark []byte, p Policy) (*Result, error) {
	if p.MaxBytes <= 0 {
		p.MaxBytes = DefaultPolicy().MaxBytes
	}
	if p.FallbackQuality <= 0 || p.FallbackQuality > 100 {
		p.FallbackQuality = DefaultPolicy().FallbackQuality
	}
	if p.MinDimension <= 0 {
		p.MinDimension = DefaultPolicy().MinDimension
	}

	res := &Result{}
	out, err := e.Transform(raw, watermark)
	if err == nil {
		res.Output = *out
		res.Watermarked = true
	} else {
		res.FallbackCause = err
		out, err = e.ResizeOnly(raw, e.opts.MaxDimension, p.FallbackQuality)
		if err != nil {
			return nil, fmt.Errorf("resize-only fallback failed: %w", err)
		}
		res.Output = *out
	}

	dim := e.opts.MaxDimension
	quality := p.FallbackQuality
	for len(res.Data) > p.MaxBytes && dim >= p.MinDimension {
		out, err = e.ResizeOnly(raw, dim, quality)
		if err != nil {
			return nil, fmt.Errorf("failed to shrink oversized image: %w", err)
		}
		res.Output = *out
		res.Watermarked = false
		dim /= 2
	}
	if len(res.Data) > p.MaxBytes {
		return nil, fmt.Errorf("%w: image is still %d bytes at %dpx", ErrTransformFailed, len(res.Data), dim*2)
	}

	if bytes.Equal(res.Data, raw) {
		out, err = e.ResizeOnly(raw, e.opts.MaxDimension, max(quality-5, 1))
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode image: %w", err)
		}
		res.Output = *out
	}
	return res, nil
}
