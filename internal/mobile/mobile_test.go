package mobile

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/seglo/internal/nn"
)

func buildModel(t *testing.T) *nn.Model {
	t.Helper()
	m, err := nn.Build(8, 3, []nn.LayerSpec{{Units: 16, Dropout: 0.3}, {Units: 8}}, 5)
	require.NoError(t, err)
	return m
}

func TestConvertDropsDropout(t *testing.T) {
	q, err := Convert(buildModel(t))
	require.NoError(t, err)

	require.Len(t, q.Layers(), 3)
	assert.Equal(t, 8, q.InputDim())
	assert.Equal(t, 3, q.NumClasses())
	for _, l := range q.Layers() {
		assert.Len(t, l.Kernel, l.In*l.Out)
		assert.Len(t, l.Bias, l.Out)
		assert.Greater(t, l.Scale, float32(0))
	}
	assert.Equal(t, nn.Softmax, q.Layers()[2].Activation)
}

func TestConvertKernelRange(t *testing.T) {
	q, err := Convert(buildModel(t))
	require.NoError(t, err)

	for _, l := range q.Layers() {
		hitMax := false
		for _, k := range l.Kernel {
			assert.GreaterOrEqual(t, k, int8(-127))
			if k == 127 || k == -127 {
				hitMax = true
			}
		}
		assert.True(t, hitMax, "largest weight maps to ±127")
	}
}

func TestPredictMatchesFloatModel(t *testing.T) {
	m := buildModel(t)
	q, err := Convert(m)
	require.NoError(t, err)

	x := []float32{0.5, -1, 0.25, 2, 0, -0.5, 1, 0.1}
	want, err := m.Predict(x)
	require.NoError(t, err)
	got, err := q.Predict(x)
	require.NoError(t, err)

	require.Len(t, got, len(want))
	var sum float32
	for i := range want {
		assert.InDelta(t, want[i], got[i], 0.05)
		sum += got[i]
	}
	assert.InDelta(t, 1, sum, 1e-5)
}

func TestPredictDimensionMismatch(t *testing.T) {
	q, err := Convert(buildModel(t))
	require.NoError(t, err)

	_, err = q.Predict(make([]float32, 3))
	assert.ErrorIs(t, err, nn.ErrDimensionMismatch)
}

func TestWriteRead(t *testing.T) {
	q, err := Convert(buildModel(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, q))
	assert.Equal(t, q.Size(), buf.Len())
	assert.Equal(t, Magic, buf.String()[:4])

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, q.Layers(), got.Layers())
	assert.Equal(t, q.InputDim(), got.InputDim())
}

func TestReadRejects(t *testing.T) {
	q, err := Convert(buildModel(t))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, q))
	valid := buf.Bytes()

	badVersion := append([]byte(nil), valid...)
	badVersion[4] = 9

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("TFL3xxxxxxxxxxxx")},
		{"truncated", valid[:len(valid)-3]},
		{"version", badVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrBadFormat)
		})
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "final_static_model.json")
	dst := filepath.Join(dir, "out", "final_static_model.q8")
	require.NoError(t, buildModel(t).Save(src))

	q, err := ConvertFile(src, dst)
	require.NoError(t, err)

	loaded, err := Load(dst)
	require.NoError(t, err)
	assert.Equal(t, q.Layers(), loaded.Layers())
}

func TestConvertFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := ConvertFile(filepath.Join(dir, "nope.json"), filepath.Join(dir, "x.q8"))
	assert.True(t, errors.Is(err, ErrModelNotFound))

	_, err = Load(filepath.Join(dir, "nope.q8"))
	assert.True(t, errors.Is(err, ErrModelNotFound))
}
