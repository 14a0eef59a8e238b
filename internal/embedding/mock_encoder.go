package embedding

import (
	"context"
	"fmt"
	"math"
)

// mockGrid is the side of the per-channel pooling grid the mock projects from.
const mockGrid = 4

// MockEncoder is a deterministic stand-in for the vision encoder, used in tests
// and when embedding.backend is "mock". It average-pools each channel onto a
// 4×4 grid and projects the pooled features with fixed sinusoidal weights, so
// identical pixels always give identical vectors and different images differ.
type MockEncoder struct {
	dimensions int
	imageSize  int
}

// NewMockEncoder returns an encoder with the given output dimension and input resolution.
func NewMockEncoder(dimensions, imageSize int) *MockEncoder {
	if dimensions <= 0 {
		dimensions = 512
	}
	if imageSize < mockGrid {
		imageSize = 224
	}
	return &MockEncoder{dimensions: dimensions, imageSize: imageSize}
}

// Encode returns the projected features for pixels (CHW).
func (e *MockEncoder) Encode(ctx context.Context, pixels []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := e.imageSize
	plane := size * size
	if len(pixels) != 3*plane {
		return nil, fmt.Errorf("input has %d values, expected %d", len(pixels), 3*plane)
	}

	features := make([]float64, 3*mockGrid*mockGrid)
	counts := make([]float64, mockGrid*mockGrid)
	for y := 0; y < size; y++ {
		gy := y * mockGrid / size
		for x := 0; x < size; x++ {
			cell := gy*mockGrid + x*mockGrid/size
			counts[cell]++
			for c := 0; c < 3; c++ {
				features[c*mockGrid*mockGrid+cell] += float64(pixels[c*plane+y*size+x])
			}
		}
	}
	for i := range features {
		features[i] /= counts[i%(mockGrid*mockGrid)]
	}

	out := make([]float32, e.dimensions)
	for i := range out {
		v := 0.01 * math.Cos(float64(i+1))
		for j, f := range features {
			v += f * math.Sin(float64((i+1)*(j+3)))
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEncoder) Dimensions() int {
	return e.dimensions
}

// ImageSize returns the square input resolution.
func (e *MockEncoder) ImageSize() int {
	return e.imageSize
}

// Close is a no-op for MockEncoder.
func (e *MockEncoder) Close() error {
	return nil
}
