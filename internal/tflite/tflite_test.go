package tflite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "final_static_model.tflite"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("Open() error = %v, want ErrModelNotFound", err)
	}
}

func TestElements(t *testing.T) {
	tests := []struct {
		shape []int
		want  int
	}{
		{nil, 1},
		{[]int{1, 126}, 126},
		{[]int{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := elements(tt.shape); got != tt.want {
			t.Errorf("elements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

// Needs a real model exported by the Python tooling.
func TestPredictExportedModel(t *testing.T) {
	path := os.Getenv("SEGLO_TFLITE_MODEL")
	if path == "" {
		t.Skip("SEGLO_TFLITE_MODEL not set")
	}

	m, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer m.Close()

	x := make([]float32, m.InputDim())
	out, err := m.Predict(x)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(out) != m.NumClasses() {
		t.Errorf("len(output) = %d, want %d", len(out), m.NumClasses())
	}

	if _, err := m.Predict(x[:1]); err == nil {
		t.Error("expected dimension error for short input")
	}
}
