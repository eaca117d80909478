package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// Format is the identifier written into saved model files.
const Format = "seglo-dense"

// ErrBadModel is returned when a model file cannot be interpreted.
var ErrBadModel = errors.New("invalid model file")

// Predictor is anything that maps a feature vector to class probabilities.
type Predictor interface {
	Predict(x []float32) ([]float32, error)
	InputDim() int
	NumClasses() int
}

var _ Predictor = (*Model)(nil)

type fileModel struct {
	Format   string      `json:"format"`
	Version  int         `json:"version"`
	InputDim int         `json:"input_dim"`
	Layers   []fileLayer `json:"layers"`
}

type fileLayer struct {
	Kind       Kind       `json:"kind"`
	Activation Activation `json:"activation,omitempty"`
	Rate       float64    `json:"rate,omitempty"`
	In         int        `json:"in"`
	Out        int        `json:"out"`
	Weights    []float64  `json:"weights,omitempty"`
	Bias       []float64  `json:"bias,omitempty"`
}

// MarshalJSON encodes the model with row-major In×Out kernels.
func (m *Model) MarshalJSON() ([]byte, error) {
	f := fileModel{Format: Format, Version: 1, InputDim: m.inputDim}
	for _, l := range m.layers {
		fl := fileLayer{Kind: l.Kind, Activation: l.Activation, Rate: l.Rate, In: l.In, Out: l.Out}
		if l.Kind == KindDense {
			fl.Weights = make([]float64, 0, l.In*l.Out)
			for r := 0; r < l.In; r++ {
				fl.Weights = append(fl.Weights, l.W.RawRowView(r)...)
			}
			fl.Bias = append([]float64(nil), l.B...)
		}
		f.Layers = append(f.Layers, fl)
	}
	return json.Marshal(f)
}

// UnmarshalJSON decodes and validates a model.
func (m *Model) UnmarshalJSON(data []byte) error {
	var f fileModel
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrBadModel, err)
	}
	if f.Format != Format {
		return fmt.Errorf("%w: format %q", ErrBadModel, f.Format)
	}
	if f.InputDim <= 0 || len(f.Layers) == 0 {
		return fmt.Errorf("%w: empty model", ErrBadModel)
	}

	layers := make([]*Layer, 0, len(f.Layers))
	in := f.InputDim
	for i, fl := range f.Layers {
		if fl.In != in {
			return fmt.Errorf("%w: layer %d expects %d inputs, previous layer gives %d", ErrBadModel, i, fl.In, in)
		}
		l := &Layer{Kind: fl.Kind, Activation: fl.Activation, Rate: fl.Rate, In: fl.In, Out: fl.Out}
		switch fl.Kind {
		case KindDense:
			if fl.Out <= 0 || len(fl.Weights) != fl.In*fl.Out || len(fl.Bias) != fl.Out {
				return fmt.Errorf("%w: layer %d has wrong weight shape", ErrBadModel, i)
			}
			l.W = mat.NewDense(fl.In, fl.Out, append([]float64(nil), fl.Weights...))
			l.B = append([]float64(nil), fl.Bias...)
		case KindDropout:
			if fl.Out != fl.In {
				return fmt.Errorf("%w: dropout layer %d changes width", ErrBadModel, i)
			}
		default:
			return fmt.Errorf("%w: layer %d has kind %q", ErrBadModel, i, fl.Kind)
		}
		layers = append(layers, l)
		in = fl.Out
	}
	last := layers[len(layers)-1]
	if last.Kind != KindDense || last.Activation != Softmax {
		return fmt.Errorf("%w: last layer must be a softmax dense layer", ErrBadModel)
	}

	m.inputDim = f.InputDim
	m.layers = layers
	return nil
}

// Save writes the model to path, creating parent directories.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load reads a model saved with Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
