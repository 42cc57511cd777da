package onnx

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Runtime owns the process-wide ONNX Runtime environment. Create one at
// start-up and close it after every session built on it.
type Runtime struct{}

// NewRuntime initializes the ONNX Runtime environment.
func NewRuntime(libraryPath string) (*Runtime, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return &Runtime{}, nil
}

// Close tears down the environment.
func (r *Runtime) Close() error {
	return ort.DestroyEnvironment()
}

// modelIO describes the single input and output of a model file.
type modelIO struct {
	inputName   string
	inputShape  ort.Shape
	outputName  string
	outputShape ort.Shape
}

func inspect(modelPath string) (modelIO, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return modelIO{}, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return modelIO{}, fmt.Errorf("model %s: expected 1 input and 1 output, got %d and %d",
			modelPath, len(inputs), len(outputs))
	}
	return modelIO{
		inputName:   inputs[0].Name,
		inputShape:  inputs[0].Dimensions,
		outputName:  outputs[0].Name,
		outputShape: outputs[0].Dimensions,
	}, nil
}

// session bundles an AdvancedSession with its fixed input and output tensors.
type session struct {
	s      *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

func newSession(modelPath string, io modelIO, inputShape, outputShape ort.Shape) (*session, error) {
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s, err := ort.NewAdvancedSession(modelPath,
		[]string{io.inputName}, []string{io.outputName},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &session{s: s, input: input, output: output}, nil
}

// run copies data into the input tensor, runs the model and returns a copy
// of the output. Callers serialize access.
func (s *session) run(data []float32) ([]float32, error) {
	copy(s.input.GetData(), data)
	if err := s.s.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	out := s.output.GetData()
	return append([]float32(nil), out...), nil
}

func (s *session) destroy() {
	if s.input != nil {
		_ = s.input.Destroy()
	}
	if s.output != nil {
		_ = s.output.Destroy()
	}
	if s.s != nil {
		_ = s.s.Destroy()
	}
}

// staticDim returns d when positive, otherwise the fallback.
func staticDim(d int64, fallback int64) int64 {
	if d > 0 {
		return d
	}
	return fallback
}
