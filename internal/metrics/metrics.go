// Package metrics scores classifier predictions: confusion matrix,
// per-class precision/recall/F1 and the averaged summary rows.
package metrics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLengthMismatch is returned when targets and predictions differ in length.
var ErrLengthMismatch = errors.New("targets and predictions differ in length")

// ClassMetrics are the scores of one class.
type ClassMetrics struct {
	Name      string  `json:"name"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Average is a summary row.
type Average struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Report is a complete classification report.
type Report struct {
	Classes   []ClassMetrics `json:"classes"`
	Accuracy  float64        `json:"accuracy"`
	Macro     Average        `json:"macro_avg"`
	Weighted  Average        `json:"weighted_avg"`
	Support   int            `json:"support"`
	Confusion [][]int        `json:"confusion"`
}

// Confusion returns an n×n matrix where row is the true class and column
// the predicted one. Out-of-range indices are ignored.
func Confusion(yTrue, yPred []int, n int) ([][]int, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	cm := make([][]int, n)
	for i := range cm {
		cm[i] = make([]int, n)
	}
	for i, t := range yTrue {
		p := yPred[i]
		if t < 0 || t >= n || p < 0 || p >= n {
			continue
		}
		cm[t][p]++
	}
	return cm, nil
}

// Classify builds a report for class indices 0..len(names)-1. A zero
// denominator scores 0.
func Classify(yTrue, yPred []int, names []string) (*Report, error) {
	n := len(names)
	cm, err := Confusion(yTrue, yPred, n)
	if err != nil {
		return nil, err
	}

	r := &Report{Confusion: cm}
	correct := 0
	for i := 0; i < n; i++ {
		tp := cm[i][i]
		correct += tp

		support, predicted := 0, 0
		for j := 0; j < n; j++ {
			support += cm[i][j]
			predicted += cm[j][i]
		}

		c := ClassMetrics{
			Name:      names[i],
			Precision: ratio(tp, predicted),
			Recall:    ratio(tp, support),
			Support:   support,
		}
		if c.Precision+c.Recall > 0 {
			c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
		}
		r.Classes = append(r.Classes, c)
		r.Support += support
	}

	if r.Support > 0 {
		r.Accuracy = float64(correct) / float64(r.Support)
	}
	if n > 0 {
		for _, c := range r.Classes {
			r.Macro.Precision += c.Precision / float64(n)
			r.Macro.Recall += c.Recall / float64(n)
			r.Macro.F1 += c.F1 / float64(n)
			if r.Support > 0 {
				w := float64(c.Support) / float64(r.Support)
				r.Weighted.Precision += c.Precision * w
				r.Weighted.Recall += c.Recall * w
				r.Weighted.F1 += c.F1 * w
			}
		}
	}
	return r, nil
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// String renders the report in the familiar scikit-learn text layout.
func (r *Report) String() string {
	const last = "weighted avg"
	width := len(last)
	for _, c := range r.Classes {
		width = max(width, len(c.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, c.Name, c.Precision, c.Recall, c.F1, c.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Support)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, "macro avg", r.Macro.Precision, r.Macro.Recall, r.Macro.F1, r.Support)
	fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, last, r.Weighted.Precision, r.Weighted.Recall, r.Weighted.F1, r.Support)
	return b.String()
}
