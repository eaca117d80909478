// Package train loads the landmark dataset, fits the feature scaler and
// trains the static gesture model.
package train

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/scaler"
)

var (
	// ErrNoLabels is returned when the label map has no entries.
	ErrNoLabels = errors.New("label map is empty")
	// ErrTooFewLabels is returned when the label map has a single entry.
	ErrTooFewLabels = errors.New("at least two gestures are needed to train a classifier")
	// ErrUnlistedLabel is returned when a class directory names a label the map does not list.
	ErrUnlistedLabel = errors.New("dataset has a class the label map does not list")
)

// Data is the scaled dataset split into training and held-out samples.
type Data struct {
	Labels labels.Map
	// Names lists gesture names by class index.
	Names  []string
	Scaler *scaler.Scaler
	Train  *dataset.Samples
	Test   *dataset.Samples
	Total  int

	// Skipped lists sample files that encode no hands.
	Skipped []string
}

// Source locates the dataset and controls the split.
type Source struct {
	Store     *dataset.Store
	LabelMap  string
	TestSplit float64
	Seed      uint64
}

// Prepare loads the label map and every listed sample, fits a scaler on
// all of them and performs a stratified split of the scaled vectors.
// Evaluation calls it with the same Source to reproduce the training split.
func Prepare(ctx context.Context, src Source) (*Data, error) {
	m, err := labels.Load(src.LabelMap)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLabels, src.LabelMap)
	}
	if len(m) < 2 {
		return nil, fmt.Errorf("%w: %s only lists %q, record another with seglo collect", ErrTooFewLabels, src.LabelMap, m.Names()[0])
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid label map: %w", err)
	}

	counts, err := src.Store.Counts()
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		if c.Label == "" || c.Samples == 0 {
			continue
		}
		if _, ok := m[c.Label]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnlistedLabel, c.Dir)
		}
	}

	samples, err := src.Store.Load(ctx, m)
	if err != nil {
		return nil, err
	}

	sc, err := scaler.Fit(samples.X)
	if err != nil {
		return nil, err
	}
	scaled, err := sc.TransformAll(samples.X)
	if err != nil {
		return nil, err
	}

	trainSet, testSet, err := dataset.StratifiedSplit(&dataset.Samples{X: scaled, Y: samples.Y}, src.TestSplit, src.Seed)
	if err != nil {
		return nil, err
	}

	return &Data{
		Labels:  m,
		Names:   m.Names(),
		Scaler:  sc,
		Train:   trainSet,
		Test:    testSet,
		Total:   samples.Len(),
		Skipped: samples.Skipped,
	}, nil
}
