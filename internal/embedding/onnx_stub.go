//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"errors"
)

// ONNXEncoder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEncoder struct{}

// NewONNXEncoder returns errs.ErrModelUnavailable when built without CGO.
func NewONNXEncoder(_ ONNXOptions) (*ONNXEncoder, error) {
	return nil, modelUnavailable("ONNX encoder requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ONNXEncoder) Encode(context.Context, []float32) ([]float32, error) {
	return nil, errors.New("ONNX encoder not available")
}

func (e *ONNXEncoder) Dimensions() int { return 0 }

func (e *ONNXEncoder) ImageSize() int { return 0 }

func (e *ONNXEncoder) Close() error { return nil }
