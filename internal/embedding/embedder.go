// Package embedding turns uploaded image bytes into unit-length feature
// vectors with a pretrained vision encoder.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/hyperjump/docent/internal/errs"
	"github.com/hyperjump/docent/pkg/utils"
)

// Encoder runs the forward pass of a frozen vision encoder. pixels is one
// preprocessed image in CHW layout (3 × ImageSize × ImageSize). The returned
// vector is raw (not normalized) and has Dimensions() components.
type Encoder interface {
	Encode(ctx context.Context, pixels []float32) ([]float32, error)
	Dimensions() int
	ImageSize() int
	Close() error
}

// ONNXOptions configures NewONNXEncoder.
type ONNXOptions struct {
	ModelPath          string
	RuntimeLibraryPath string
	InputName          string
	OutputName         string
	Dimensions         int
	ImageSize          int
}

// Extractor decodes, preprocesses and encodes images. It is safe for
// concurrent use when its Encoder is.
type Extractor struct {
	encoder Encoder
	model   string
	cache   *ImageCache
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithModelName records the model version string reported by Model.
func WithModelName(name string) ExtractorOption {
	return func(e *Extractor) { e.model = name }
}

// WithCache enables a content-addressed LRU of the given capacity. Capacity <= 0 disables it.
func WithCache(capacity int) ExtractorOption {
	return func(e *Extractor) {
		if capacity > 0 {
			e.cache = NewImageCache(capacity)
		}
	}
}

// NewExtractor wraps an already loaded encoder.
func NewExtractor(encoder Encoder, opts ...ExtractorOption) *Extractor {
	e := &Extractor{encoder: encoder}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the L2-normalized embedding of an encoded image.
// Undecodable or empty input fails with errs.ErrDecode.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]float32, error) {
	var key [sha256.Size]byte
	if e.cache != nil && len(data) > 0 {
		key = sha256.Sum256(data)
		if cached, ok := e.cache.Get(key); ok {
			return append([]float32(nil), cached...), nil
		}
	}

	img, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	pixels := Preprocess(img, e.encoder.ImageSize())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := e.encoder.Encode(ctx, pixels)
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	if len(raw) != e.encoder.Dimensions() {
		return nil, fmt.Errorf("encoder returned %d dimensions, expected %d", len(raw), e.encoder.Dimensions())
	}
	vec := append([]float32(nil), raw...)
	if !utils.NormalizeL2(vec) {
		return nil, fmt.Errorf("encoder returned a zero-norm vector")
	}

	if e.cache != nil {
		e.cache.Set(key, append([]float32(nil), vec...))
	}
	return vec, nil
}

// Dimensions returns the embedding dimension.
func (e *Extractor) Dimensions() int {
	return e.encoder.Dimensions()
}

// Model returns the configured model version string.
func (e *Extractor) Model() string {
	return e.model
}

// Close releases the encoder.
func (e *Extractor) Close() error {
	return e.encoder.Close()
}

// modelUnavailable wraps err as errs.ErrModelUnavailable.
func modelUnavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errs.ErrModelUnavailable, fmt.Sprintf(format, args...))
}
