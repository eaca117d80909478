// Package nn implements the static gesture model: a small sequential dense
// network with ReLU hidden layers, dropout and a softmax output, trained with
// Adam on sparse categorical cross-entropy.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Kind identifies a layer type.
type Kind string

const (
	KindDense   Kind = "dense"
	KindDropout Kind = "dropout"
)

// Activation is applied to a dense layer's output.
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Softmax Activation = "softmax"
)

// ErrDimensionMismatch is returned when an input does not match the model.
var ErrDimensionMismatch = errors.New("input dimension mismatch")

// LayerSpec describes one hidden layer: a ReLU dense layer optionally
// followed by dropout.
type LayerSpec struct {
	Units   int     `yaml:"units" json:"units"`
	Dropout float64 `yaml:"dropout,omitempty" json:"dropout,omitempty"`
}

// DefaultLayers is 256 → dropout 0.3 → 128 → dropout 0.3 → 64.
var DefaultLayers = []LayerSpec{
	{Units: 256, Dropout: 0.3},
	{Units: 128, Dropout: 0.3},
	{Units: 64},
}

// Layer is either a dense layer (W is In×Out, B has Out entries) or a
// dropout layer that is the identity at inference.
type Layer struct {
	Kind       Kind
	Activation Activation
	Rate       float64
	In, Out    int
	W          *mat.Dense
	B          []float64
}

// Model is a sequential network.
type Model struct {
	inputDim int
	layers   []*Layer
}

// Build creates a model with Glorot-uniform kernels and zero biases.
func Build(inputDim, numClasses int, hidden []LayerSpec, seed uint64) (*Model, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", inputDim)
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", numClasses)
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	m := &Model{inputDim: inputDim}

	in := inputDim
	for i, spec := range hidden {
		if spec.Units <= 0 {
			return nil, fmt.Errorf("layer %d: units must be positive, got %d", i, spec.Units)
		}
		if spec.Dropout < 0 || spec.Dropout >= 1 {
			return nil, fmt.Errorf("layer %d: dropout %v must be in [0, 1)", i, spec.Dropout)
		}
		m.layers = append(m.layers, newDense(in, spec.Units, ReLU, rng))
		if spec.Dropout > 0 {
			m.layers = append(m.layers, &Layer{Kind: KindDropout, Rate: spec.Dropout, In: spec.Units, Out: spec.Units})
		}
		in = spec.Units
	}
	m.layers = append(m.layers, newDense(in, numClasses, Softmax, rng))

	return m, nil
}

func newDense(in, out int, act Activation, rng *rand.Rand) *Layer {
	limit := math.Sqrt(6 / float64(in+out))
	data := make([]float64, in*out)
	for i := range data {
		data[i] = limit * (2*rng.Float64() - 1)
	}
	return &Layer{
		Kind:       KindDense,
		Activation: act,
		In:         in,
		Out:        out,
		W:          mat.NewDense(in, out, data),
		B:          make([]float64, out),
	}
}

// InputDim returns the expected input length.
func (m *Model) InputDim() int { return m.inputDim }

// NumClasses returns the number of softmax outputs.
func (m *Model) NumClasses() int { return m.layers[len(m.layers)-1].Out }

// Layers returns the model layers in order.
func (m *Model) Layers() []*Layer { return m.layers }

// Params returns the number of trainable parameters.
func (m *Model) Params() int {
	n := 0
	for _, l := range m.layers {
		if l.Kind == KindDense {
			n += l.In*l.Out + l.Out
		}
	}
	return n
}

// Predict returns class probabilities for one input.
func (m *Model) Predict(x []float32) ([]float32, error) {
	out, err := m.PredictBatch([][]float32{x})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// PredictBatch returns class probabilities for each row of X.
func (m *Model) PredictBatch(X [][]float32) ([][]float32, error) {
	if len(X) == 0 {
		return nil, nil
	}
	in, err := m.toMatrix(X)
	if err != nil {
		return nil, err
	}
	probs := m.forward(in, false, nil, nil)

	r, c := probs.Dims()
	out := make([][]float32, r)
	for i := 0; i < r; i++ {
		row := probs.RawRowView(i)
		out[i] = make([]float32, c)
		for j, p := range row {
			out[i][j] = float32(p)
		}
	}
	return out, nil
}

// Evaluate returns mean cross-entropy loss and accuracy over X, Y.
func (m *Model) Evaluate(X [][]float32, Y []int) (loss, accuracy float64, err error) {
	if len(X) == 0 {
		return 0, 0, errors.New("no samples to evaluate")
	}
	if len(X) != len(Y) {
		return 0, 0, fmt.Errorf("have %d inputs and %d labels", len(X), len(Y))
	}
	in, err := m.toMatrix(X)
	if err != nil {
		return 0, 0, err
	}
	probs := m.forward(in, false, nil, nil)
	loss, correct := crossEntropy(probs, Y)
	return loss, float64(correct) / float64(len(Y)), nil
}

func (m *Model) toMatrix(X [][]float32) (*mat.Dense, error) {
	data := make([]float64, 0, len(X)*m.inputDim)
	for i, row := range X {
		if len(row) != m.inputDim {
			return nil, fmt.Errorf("%w: row %d has %d values, model expects %d", ErrDimensionMismatch, i, len(row), m.inputDim)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(X), m.inputDim, data), nil
}

// layerCache keeps what backpropagation needs from the forward pass.
type layerCache struct {
	input *mat.Dense
	z     *mat.Dense
	mask  *mat.Dense
}

// forward runs the network. When train is set dropout is applied with
// inverted scaling and caches are filled.
func (m *Model) forward(x *mat.Dense, train bool, rng *rand.Rand, caches []layerCache) *mat.Dense {
	a := x
	for i, l := range m.layers {
		switch l.Kind {
		case KindDense:
			r, _ := a.Dims()
			z := mat.NewDense(r, l.Out, nil)
			z.Mul(a, l.W)
			for row := 0; row < r; row++ {
				v := z.RawRowView(row)
				for j := range v {
					v[j] += l.B[j]
				}
			}
			if caches != nil {
				caches[i] = layerCache{input: a, z: z}
			}
			a = activate(z, l.Activation)

		case KindDropout:
			if !train || l.Rate == 0 {
				continue
			}
			r, c := a.Dims()
			keep := 1 - l.Rate
			mask := mat.NewDense(r, c, nil)
			for row := 0; row < r; row++ {
				v := mask.RawRowView(row)
				for j := range v {
					if rng.Float64() < keep {
						v[j] = 1 / keep
					}
				}
			}
			out := mat.NewDense(r, c, nil)
			out.MulElem(a, mask)
			if caches != nil {
				caches[i] = layerCache{mask: mask}
			}
			a = out
		}
	}
	return a
}

func activate(z *mat.Dense, act Activation) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	switch act {
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
	case Softmax:
		for i := 0; i < r; i++ {
			softmax(out.RawRowView(i), z.RawRowView(i))
		}
	default:
		out.Copy(z)
	}
	return out
}

func softmax(dst, src []float64) {
	maxV := math.Inf(-1)
	for _, v := range src {
		maxV = math.Max(maxV, v)
	}
	var sum float64
	for j, v := range src {
		dst[j] = math.Exp(v - maxV)
		sum += dst[j]
	}
	for j := range dst {
		dst[j] /= sum
	}
}

// crossEntropy returns the mean sparse categorical cross-entropy and the
// number of argmax hits.
func crossEntropy(probs *mat.Dense, y []int) (float64, int) {
	const eps = 1e-7
	var loss float64
	correct := 0
	for i, label := range y {
		row := probs.RawRowView(i)
		p := math.Min(math.Max(row[label], eps), 1-eps)
		loss -= math.Log(p)
		if Argmax(row) == label {
			correct++
		}
	}
	return loss / float64(len(y)), correct
}

// Argmax returns the index of the largest value, or -1 for an empty slice.
func Argmax[T float32 | float64](v []T) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}
