// Package mobile converts trained models to the compact int8 format shipped
// with the mobile app, and runs inference on it.
package mobile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ayusman/seglo/internal/nn"
)

// Magic opens every quantized model file.
const Magic = "SGLQ"

// Version is the current file format version.
const Version uint16 = 1

var (
	// ErrModelNotFound is returned when the source model does not exist.
	ErrModelNotFound = errors.New("model not found")
	// ErrBadFormat is returned for files that are not quantized models.
	ErrBadFormat = errors.New("not a quantized model")
)

// activation codes on disk
const (
	actLinear uint8 = iota
	actReLU
	actSoftmax
)

// Layer is a dense layer with a symmetric int8 kernel.
type Layer struct {
	Activation nn.Activation
	In, Out    int
	Scale      float32
	Kernel     []int8 // row-major In×Out
	Bias       []float32
}

// QuantizedModel is a dense network with dynamic-range quantized kernels.
type QuantizedModel struct {
	inputDim int
	layers   []Layer
}

var _ nn.Predictor = (*QuantizedModel)(nil)

// Convert quantizes every dense kernel of m to int8 with one scale per
// layer (max-abs/127). Biases stay float32 and dropout layers are dropped.
func Convert(m *nn.Model) (*QuantizedModel, error) {
	q := &QuantizedModel{inputDim: m.InputDim()}
	for _, l := range m.Layers() {
		if l.Kind != nn.KindDense {
			continue
		}
		ql := Layer{Activation: l.Activation, In: l.In, Out: l.Out, Bias: make([]float32, l.Out)}

		var maxAbs float64
		for r := 0; r < l.In; r++ {
			for _, w := range l.W.RawRowView(r) {
				maxAbs = math.Max(maxAbs, math.Abs(w))
			}
		}
		scale := maxAbs / 127
		if scale == 0 {
			scale = 1
		}
		ql.Scale = float32(scale)

		ql.Kernel = make([]int8, 0, l.In*l.Out)
		for r := 0; r < l.In; r++ {
			for _, w := range l.W.RawRowView(r) {
				v := math.Round(w / scale)
				ql.Kernel = append(ql.Kernel, int8(math.Max(-127, math.Min(127, v))))
			}
		}
		for j, b := range l.B {
			ql.Bias[j] = float32(b)
		}
		q.layers = append(q.layers, ql)
	}
	if len(q.layers) == 0 {
		return nil, fmt.Errorf("%w: model has no dense layers", ErrBadFormat)
	}
	return q, nil
}

// ConvertFile loads the model at src, quantizes it and writes it to dst.
func ConvertFile(src, dst string) (*QuantizedModel, error) {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, src)
	}
	m, err := nn.Load(src)
	if err != nil {
		return nil, err
	}
	q, err := Convert(m)
	if err != nil {
		return nil, err
	}
	if err := Save(dst, q); err != nil {
		return nil, err
	}
	return q, nil
}

// InputDim returns the expected input length.
func (q *QuantizedModel) InputDim() int { return q.inputDim }

// NumClasses returns the number of outputs.
func (q *QuantizedModel) NumClasses() int { return q.layers[len(q.layers)-1].Out }

// Layers returns the quantized layers.
func (q *QuantizedModel) Layers() []Layer { return q.layers }

// Predict runs the network on x, dequantizing kernels on the fly.
func (q *QuantizedModel) Predict(x []float32) ([]float32, error) {
	if len(x) != q.inputDim {
		return nil, fmt.Errorf("%w: got %d values, model expects %d", nn.ErrDimensionMismatch, len(x), q.inputDim)
	}
	a := x
	for _, l := range q.layers {
		z := make([]float32, l.Out)
		copy(z, l.Bias)
		for i, v := range a {
			if v == 0 {
				continue
			}
			row := l.Kernel[i*l.Out : (i+1)*l.Out]
			s := v * l.Scale
			for j, w := range row {
				z[j] += s * float32(w)
			}
		}
		switch l.Activation {
		case nn.ReLU:
			for j := range z {
				if z[j] < 0 {
					z[j] = 0
				}
			}
		case nn.Softmax:
			softmax(z)
		}
		a = z
	}
	return a, nil
}

func softmax(z []float32) {
	maxV := float32(math.Inf(-1))
	for _, v := range z {
		maxV = max(maxV, v)
	}
	var sum float64
	for j, v := range z {
		e := math.Exp(float64(v - maxV))
		z[j] = float32(e)
		sum += e
	}
	for j := range z {
		z[j] = float32(float64(z[j]) / sum)
	}
}

// Size returns the encoded size in bytes.
func (q *QuantizedModel) Size() int {
	n := len(Magic) + 2 + 4 + 4
	for _, l := range q.layers {
		n += 1 + 4 + 4 + 4 + len(l.Kernel) + 4*len(l.Bias)
	}
	return n
}

type header struct {
	Version  uint16
	InputDim uint32
	Layers   uint32
}

type layerHeader struct {
	Activation uint8
	In, Out    uint32
	Scale      float32
}

// Write encodes q in little-endian order.
func Write(w io.Writer, q *QuantizedModel) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Magic); err != nil {
		return err
	}
	h := header{Version: Version, InputDim: uint32(q.inputDim), Layers: uint32(len(q.layers))}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	for _, l := range q.layers {
		act, err := activationCode(l.Activation)
		if err != nil {
			return err
		}
		lh := layerHeader{Activation: act, In: uint32(l.In), Out: uint32(l.Out), Scale: l.Scale}
		if err := binary.Write(bw, binary.LittleEndian, lh); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, l.Kernel); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, l.Bias); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read decodes a model written by Write.
func Read(r io.Reader) (*QuantizedModel, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(br, magic); err != nil || string(magic) != Magic {
		return nil, ErrBadFormat
	}
	var h header
	if err := binary.Read(br, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadFormat, err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, h.Version)
	}
	if h.InputDim == 0 || h.Layers == 0 || h.Layers > 64 {
		return nil, fmt.Errorf("%w: input dim %d, %d layers", ErrBadFormat, h.InputDim, h.Layers)
	}

	q := &QuantizedModel{inputDim: int(h.InputDim)}
	in := int(h.InputDim)
	for i := 0; i < int(h.Layers); i++ {
		var lh layerHeader
		if err := binary.Read(br, binary.LittleEndian, &lh); err != nil {
			return nil, fmt.Errorf("%w: layer %d: %v", ErrBadFormat, i, err)
		}
		if int(lh.In) != in || lh.Out == 0 || lh.Out > 1<<16 {
			return nil, fmt.Errorf("%w: layer %d has shape %dx%d", ErrBadFormat, i, lh.In, lh.Out)
		}
		act, err := activationName(lh.Activation)
		if err != nil {
			return nil, err
		}
		l := Layer{
			Activation: act,
			In:         int(lh.In),
			Out:        int(lh.Out),
			Scale:      lh.Scale,
			Kernel:     make([]int8, int(lh.In)*int(lh.Out)),
			Bias:       make([]float32, lh.Out),
		}
		if err := binary.Read(br, binary.LittleEndian, l.Kernel); err != nil {
			return nil, fmt.Errorf("%w: layer %d kernel: %v", ErrBadFormat, i, err)
		}
		if err := binary.Read(br, binary.LittleEndian, l.Bias); err != nil {
			return nil, fmt.Errorf("%w: layer %d bias: %v", ErrBadFormat, i, err)
		}
		q.layers = append(q.layers, l)
		in = l.Out
	}
	if q.layers[len(q.layers)-1].Activation != nn.Softmax {
		return nil, fmt.Errorf("%w: last layer is not softmax", ErrBadFormat)
	}
	return q, nil
}

// Save writes q to path, creating parent directories.
func Save(path string, q *QuantizedModel) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, q); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Load reads a quantized model from path.
func Load(path string) (*QuantizedModel, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func activationCode(a nn.Activation) (uint8, error) {
	switch a {
	case nn.Linear, "":
		return actLinear, nil
	case nn.ReLU:
		return actReLU, nil
	case nn.Softmax:
		return actSoftmax, nil
	}
	return 0, fmt.Errorf("unsupported activation %q", a)
}

func activationName(c uint8) (nn.Activation, error) {
	switch c {
	case actLinear:
		return nn.Linear, nil
	case actReLU:
		return nn.ReLU, nil
	case actSoftmax:
		return nn.Softmax, nil
	}
	return "", fmt.Errorf("%w: activation code %d", ErrBadFormat, c)
}
