// Package models opens a trained model in any supported format behind one
// interface and runs the compatibility check used before shipping it.
package models

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/seglo/internal/mobile"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/tflite"
)

// ErrModelNotFound is returned when the model file does not exist.
var ErrModelNotFound = errors.New("model not found")

// ErrUnknownFormat is returned for unrecognized file extensions.
var ErrUnknownFormat = errors.New("unknown model format")

// TensorInfo describes an input or output tensor.
type TensorInfo = tflite.TensorInfo

// Model is a loaded model ready for inference.
type Model interface {
	nn.Predictor
	Format() string
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	Close() error
}

// Open loads path, choosing the loader by extension: .json (float model),
// .q8 (quantized mobile model) or .tflite.
func Open(path string) (Model, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		m, err := nn.Load(path)
		if err != nil {
			return nil, err
		}
		return &native{Predictor: m, format: "json"}, nil
	case ".q8":
		q, err := mobile.Load(path)
		if err != nil {
			return nil, err
		}
		return &native{Predictor: q, format: "q8"}, nil
	case ".tflite":
		t, err := tflite.Open(path)
		if err != nil {
			return nil, err
		}
		return &lite{Model: t}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
}

// Wrap exposes an in-memory predictor as a Model.
func Wrap(p nn.Predictor, format string) Model {
	return &native{Predictor: p, format: format}
}

// native adapts models implemented in this module.
type native struct {
	nn.Predictor
	format string
}

func (n *native) Format() string { return n.format }

func (n *native) Inputs() []TensorInfo {
	return []TensorInfo{{Name: "input", DType: "float32", Shape: []int{1, n.InputDim()}}}
}

func (n *native) Outputs() []TensorInfo {
	return []TensorInfo{{Name: "output", DType: "float32", Shape: []int{1, n.NumClasses()}}}
}

func (n *native) Close() error { return nil }

type lite struct {
	*tflite.Model
}

func (l *lite) Format() string { return "tflite" }

// Report is the outcome of a compatibility check.
type Report struct {
	Path        string       `json:"path"`
	Format      string       `json:"format"`
	Inputs      []TensorInfo `json:"inputs"`
	Outputs     []TensorInfo `json:"outputs"`
	Input       []float32    `json:"input"`
	OutputShape []int        `json:"output_shape"`
	Output      []float32    `json:"output"`
}

// Check feeds one random [1, InputDim] float32 input through m.
func Check(m Model, seed uint64) (*Report, error) {
	rng := rand.New(rand.NewPCG(seed, seed))
	x := make([]float32, m.InputDim())
	for i := range x {
		x[i] = rng.Float32()
	}

	out, err := m.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return &Report{
		Format:      m.Format(),
		Inputs:      m.Inputs(),
		Outputs:     m.Outputs(),
		Input:       x,
		OutputShape: []int{1, len(out)},
		Output:      out,
	}, nil
}

// Print writes the report in the layout of the interpreter's detail dump.
func (r *Report) Print(w io.Writer) {
	if r.Path != "" {
		fmt.Fprintf(w, "Model: %s (%s)\n", r.Path, r.Format)
	}
	fmt.Fprintln(w, "Input details:")
	for i, t := range r.Inputs {
		fmt.Fprintf(w, "  [%d] name=%s dtype=%s shape=%v\n", i, t.Name, t.DType, t.Shape)
	}
	fmt.Fprintln(w, "Output details:")
	for i, t := range r.Outputs {
		fmt.Fprintf(w, "  [%d] name=%s dtype=%s shape=%v\n", i, t.Name, t.DType, t.Shape)
	}
	fmt.Fprintln(w, "Inference successful.")
	fmt.Fprintf(w, "Output shape: %v\n", r.OutputShape)
	fmt.Fprintf(w, "Output: %v\n", r.Output)
}
