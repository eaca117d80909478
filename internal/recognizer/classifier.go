// Package recognizer turns camera frames into stable gesture predictions.
package recognizer

import (
	"fmt"
	"time"

	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/scaler"
	"github.com/ayusman/seglo/internal/vector"
)

// Prediction is the classifier output for one landmark vector.
type Prediction struct {
	Label         string    `json:"label"`
	Index         int       `json:"index"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float32 `json:"probabilities,omitempty"`
	Hands         int       `json:"hands"`
	Timestamp     time.Time `json:"timestamp"`
}

// Classifier scales landmark vectors and runs the model on them.
type Classifier struct {
	model  nn.Predictor
	scaler *scaler.Scaler
	labels labels.Map
	now    func() time.Time
}

// NewClassifier checks that model and scaler agree on the landmark vector
// size.
func NewClassifier(model nn.Predictor, sc *scaler.Scaler, lm labels.Map) (*Classifier, error) {
	if model.InputDim() != vector.Dim {
		return nil, fmt.Errorf("%w: model takes %d inputs, landmark vectors have %d", vector.ErrDimensionMismatch, model.InputDim(), vector.Dim)
	}
	if sc == nil || sc.Dim() != vector.Dim {
		return nil, fmt.Errorf("%w: scaler does not cover %d features", vector.ErrDimensionMismatch, vector.Dim)
	}
	return &Classifier{model: model, scaler: sc, labels: lm, now: time.Now}, nil
}

// NumClasses returns the number of model outputs.
func (c *Classifier) NumClasses() int { return c.model.NumClasses() }

// Classify encodes hands and predicts. Callers skip frames without hands.
func (c *Classifier) Classify(hands []detector.HandLandmarks) (Prediction, error) {
	v := vector.Encode(hands)
	p, err := c.ClassifyVector(v.Slice())
	if err != nil {
		return Prediction{}, err
	}
	p.Hands = min(len(hands), vector.MaxHands)
	return p, nil
}

// ClassifyVector predicts from a raw, unscaled landmark vector. An all-zero
// vector fails with vector.ErrNoHands.
func (c *Classifier) ClassifyVector(values []float32) (Prediction, error) {
	v, err := vector.FromSlice(values)
	if err != nil {
		return Prediction{}, err
	}
	if v.IsZero() {
		return Prediction{}, vector.ErrNoHands
	}
	scaled, err := c.scaler.Transform(values)
	if err != nil {
		return Prediction{}, err
	}
	probs, err := c.model.Predict(scaled)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}

	idx := nn.Argmax(probs)
	p := Prediction{
		Label:         c.labels.Name(idx),
		Index:         idx,
		Probabilities: probs,
		Hands:         v.Hands(),
		Timestamp:     c.now(),
	}
	if idx >= 0 {
		p.Confidence = float64(probs[idx])
	}
	return p, nil
}
