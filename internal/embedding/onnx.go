//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func initRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// ONNXEncoder runs a CLIP visual tower exported to ONNX. It requires CGO and the
// onnxruntime shared library. The session's tensors are bound once at load
// time, so Encode calls are serialized: one inference at a time per process.
type ONNXEncoder struct {
	session      *ort.AdvancedSession
	dimensions   int
	imageSize    int
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	mu           sync.Mutex
}

// NewONNXEncoder loads the model at opts.ModelPath. Any failure wraps errs.ErrModelUnavailable.
func NewONNXEncoder(opts ONNXOptions) (*ONNXEncoder, error) {
	if _, err := os.Stat(opts.ModelPath); err != nil {
		return nil, modelUnavailable("model file: %v", err)
	}
	if err := initRuntime(opts.RuntimeLibraryPath); err != nil {
		return nil, modelUnavailable("initialize ONNX runtime: %v", err)
	}

	size := int64(opts.ImageSize)
	inputData := make([]float32, 3*opts.ImageSize*opts.ImageSize)
	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, size, size), inputData)
	if err != nil {
		return nil, modelUnavailable("create input tensor: %v", err)
	}
	outputData := make([]float32, opts.Dimensions)
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(opts.Dimensions)), outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, modelUnavailable("create output tensor: %v", err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, modelUnavailable("create ONNX session: %v", err)
	}

	return &ONNXEncoder{
		session:      session,
		dimensions:   opts.Dimensions,
		imageSize:    opts.ImageSize,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Encode runs one forward pass. The returned slice is a copy of the output tensor.
func (e *ONNXEncoder) Encode(ctx context.Context, pixels []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := e.inputTensor.GetData()
	if len(pixels) != len(in) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(pixels), len(in))
	}
	copy(in, pixels)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, e.dimensions)
	copy(out, e.outputTensor.GetData()[:e.dimensions])
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEncoder) Dimensions() int {
	return e.dimensions
}

// ImageSize returns the square input resolution.
func (e *ONNXEncoder) ImageSize() int {
	return e.imageSize
}

// Close destroys the session and tensors.
func (e *ONNXEncoder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
