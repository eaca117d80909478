// Package scaler standardizes landmark vectors to zero mean and unit variance.
package scaler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ErrNotFitted is returned when transforming with an empty scaler.
var ErrNotFitted = errors.New("scaler is not fitted")

// Scaler holds per-feature statistics. Std is the population standard
// deviation; features with zero variance are stored with Std 1.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
	// Samples is the number of rows the statistics were computed from.
	Samples int `json:"n_samples_seen"`
}

// Stats is the mean/std pair consumed by the mobile app.
type Stats struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Fit computes statistics over rows of X.
func Fit(X [][]float32) (*Scaler, error) {
	if len(X) == 0 {
		return nil, errors.New("cannot fit scaler on empty data")
	}

	dim := len(X[0])
	mean := make([]float64, dim)
	for i, row := range X {
		if len(row) != dim {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), dim)
		}
		for j, x := range row {
			mean[j] += float64(x)
		}
	}
	n := float64(len(X))
	for j := range mean {
		mean[j] /= n
	}

	std := make([]float64, dim)
	for _, row := range X {
		for j, x := range row {
			d := float64(x) - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 {
			std[j] = 1
		}
	}

	return &Scaler{Mean: mean, Std: std, Samples: len(X)}, nil
}

// Dim returns the number of features.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform standardizes one vector. Features whose std is zero map to zero.
func (s *Scaler) Transform(x []float32) ([]float32, error) {
	if s == nil || len(s.Mean) == 0 {
		return nil, ErrNotFitted
	}
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("vector has %d features, scaler expects %d", len(x), len(s.Mean))
	}

	out := make([]float32, len(x))
	for j, v := range x {
		if s.Std[j] == 0 {
			continue
		}
		out[j] = float32((float64(v) - s.Mean[j]) / s.Std[j])
	}
	return out, nil
}

// TransformAll standardizes every row of X.
func (s *Scaler) TransformAll(X [][]float32) ([][]float32, error) {
	out := make([][]float32, len(X))
	for i, row := range X {
		t, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Stats returns the exportable statistics.
func (s *Scaler) Stats() Stats {
	return Stats{Mean: s.Mean, Std: s.Std}
}

// Save writes the scaler as JSON.
func (s *Scaler) Save(path string) error {
	return writeJSON(path, s)
}

// Load reads a scaler written by Save.
func Load(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scaler %s: %w", path, err)
	}
	if len(s.Mean) != len(s.Std) {
		return nil, fmt.Errorf("scaler %s: mean has %d values, std has %d", path, len(s.Mean), len(s.Std))
	}
	return &s, nil
}

// ExportStats writes {"mean": [...], "std": [...]} for the mobile app.
func (s *Scaler) ExportStats(path string) error {
	return writeJSON(path, s.Stats())
}

// LoadStats reads exported statistics back into a Scaler. Zero std values
// are kept so Transform maps those features to zero.
func LoadStats(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scaler stats: %w", err)
	}
	var st Stats
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse scaler stats %s: %w", path, err)
	}
	if len(st.Mean) != len(st.Std) {
		return nil, fmt.Errorf("scaler stats %s: mean has %d values, std has %d", path, len(st.Mean), len(st.Std))
	}
	return &Scaler{Mean: st.Mean, Std: st.Std}, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
