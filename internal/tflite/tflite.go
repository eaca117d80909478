// Package tflite runs .tflite models, such as ones exported from Keras,
// through the TFLite C API.
package tflite

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	tfl "github.com/mattn/go-tflite"

	"github.com/ayusman/seglo/internal/nn"
)

var (
	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("tflite model not found")
	// ErrInterpreter is returned when the interpreter cannot be set up or run.
	ErrInterpreter = errors.New("tflite interpreter failed")
)

// TensorInfo describes a model input or output.
type TensorInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
}

// Model is a loaded interpreter with tensors allocated. Predict is safe for
// concurrent use.
type Model struct {
	mu      sync.Mutex
	model   *tfl.Model
	options *tfl.InterpreterOptions
	interp  *tfl.Interpreter
}

var _ nn.Predictor = (*Model)(nil)

// Open loads the model at path.
func Open(path string) (*Model, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	model := tfl.NewModelFromFile(path)
	if model == nil {
		return nil, fmt.Errorf("%w: cannot load %s", ErrInterpreter, path)
	}

	options := tfl.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())

	interp := tfl.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: cannot create interpreter", ErrInterpreter)
	}
	if status := interp.AllocateTensors(); status != tfl.OK {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, fmt.Errorf("%w: allocate tensors: status %d", ErrInterpreter, status)
	}

	m := &Model{model: model, options: options, interp: interp}
	if m.interp.GetInputTensorCount() != 1 || m.interp.GetOutputTensorCount() < 1 {
		m.Close()
		return nil, fmt.Errorf("%w: expected one input tensor", ErrInterpreter)
	}
	return m, nil
}

// Inputs describes the input tensors.
func (m *Model) Inputs() []TensorInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TensorInfo
	for i := 0; i < m.interp.GetInputTensorCount(); i++ {
		out = append(out, describe(m.interp.GetInputTensor(i)))
	}
	return out
}

// Outputs describes the output tensors.
func (m *Model) Outputs() []TensorInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TensorInfo
	for i := 0; i < m.interp.GetOutputTensorCount(); i++ {
		out = append(out, describe(m.interp.GetOutputTensor(i)))
	}
	return out
}

// InputDim returns the flattened size of the input tensor.
func (m *Model) InputDim() int { return elements(m.Inputs()[0].Shape) }

// NumClasses returns the flattened size of the first output tensor.
func (m *Model) NumClasses() int { return elements(m.Outputs()[0].Shape) }

// Predict copies x into the input tensor, invokes the interpreter and
// returns the first output.
func (m *Model) Predict(x []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	input := m.interp.GetInputTensor(0)
	if input.Type() != tfl.Float32 {
		return nil, fmt.Errorf("%w: input type %s is not float32", ErrInterpreter, dtype(input.Type()))
	}
	buf := input.Float32s()
	if len(buf) != len(x) {
		return nil, fmt.Errorf("%w: got %d values, model expects %d", nn.ErrDimensionMismatch, len(x), len(buf))
	}
	copy(buf, x)

	if status := m.interp.Invoke(); status != tfl.OK {
		return nil, fmt.Errorf("%w: invoke: status %d", ErrInterpreter, status)
	}

	output := m.interp.GetOutputTensor(0)
	if output.Type() != tfl.Float32 {
		return nil, fmt.Errorf("%w: output type %s is not float32", ErrInterpreter, dtype(output.Type()))
	}
	return append([]float32(nil), output.Float32s()...), nil
}

// Close releases the interpreter and model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interp != nil {
		m.interp.Delete()
		m.interp = nil
	}
	if m.options != nil {
		m.options.Delete()
		m.options = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}

func describe(t *tfl.Tensor) TensorInfo {
	info := TensorInfo{Name: t.Name(), DType: dtype(t.Type())}
	for i := 0; i < t.NumDims(); i++ {
		info.Shape = append(info.Shape, t.Dim(i))
	}
	return info
}

func dtype(t tfl.TensorType) string {
	switch t {
	case tfl.Float32:
		return "float32"
	case tfl.Int32:
		return "int32"
	case tfl.Int64:
		return "int64"
	case tfl.UInt8:
		return "uint8"
	case tfl.Int8:
		return "int8"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
