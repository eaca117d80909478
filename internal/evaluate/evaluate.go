// Package evaluate scores a trained model on the held-out split.
package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/metrics"
	"github.com/ayusman/seglo/internal/models"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/store"
	"github.com/ayusman/seglo/internal/train"
)

// ErrClassMismatch is returned when the model and the label map disagree on
// the number of classes.
var ErrClassMismatch = errors.New("model output does not match label map")

// Evaluator scores one model file.
type Evaluator struct {
	Config *config.Config
	// Store records the evaluation when set.
	Store *store.Store
	// Heatmap is written to Config.ConfusionMatrixPath when true.
	Heatmap bool
	Out     io.Writer
	Logger  *zap.Logger
}

// Result is a finished evaluation.
type Result struct {
	Report     *metrics.Report
	Evaluation *store.Evaluation
	HeatmapPNG string
}

// Run evaluates the model at modelPath, the final model when empty.
func (e *Evaluator) Run(ctx context.Context, modelPath string) (*Result, error) {
	cfg := e.Config
	logger := logging.OrNop(e.Logger).Named("evaluate")
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	if modelPath == "" {
		modelPath = cfg.FinalModelPath()
	}

	data, err := train.Prepare(ctx, train.Source{
		Store:     dataset.NewStore(cfg.Paths.DataDir),
		LabelMap:  cfg.Paths.LabelMap,
		TestSplit: cfg.Training.TestSplit,
		Seed:      cfg.Training.Seed,
	})
	if err != nil {
		return nil, err
	}
	if len(data.Skipped) > 0 {
		logger.Warn("samples without hands left out", zap.Int("count", len(data.Skipped)))
	}

	model, err := models.Open(modelPath)
	if err != nil {
		return nil, err
	}
	defer model.Close()

	if model.NumClasses() != len(data.Names) {
		return nil, fmt.Errorf("%w: %d outputs, %d labels", ErrClassMismatch, model.NumClasses(), len(data.Names))
	}

	yPred := make([]int, data.Test.Len())
	for i, x := range data.Test.X {
		probs, err := model.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("predict sample %d: %w", i, err)
		}
		yPred[i] = nn.Argmax(probs)
	}

	report, err := metrics.Classify(data.Test.Y, yPred, data.Names)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "\nClassification Report:\n%s\n", report.String())
	fmt.Fprintf(out, "\nF1 Score (macro): %.4f\n", report.Macro.F1)
	fmt.Fprintf(out, "Accuracy: %.4f\n", report.Accuracy)

	res := &Result{Report: report}
	if e.Heatmap {
		path := cfg.ConfusionMatrixPath()
		if err := metrics.SaveConfusionPNG(path, report.Confusion, data.Names, metrics.DefaultHeatmapOptions()); err != nil {
			return nil, err
		}
		res.HeatmapPNG = path
		fmt.Fprintf(out, "Confusion matrix saved to %s\n", path)
	}

	logger.Info("evaluation complete",
		zap.String("model", modelPath),
		zap.String("format", model.Format()),
		zap.Int("samples", data.Test.Len()),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.Macro.F1))

	if e.Store != nil {
		eval, err := e.record(modelPath, report)
		if err != nil {
			return nil, err
		}
		res.Evaluation = eval
	}
	return res, nil
}

// record stores the report against the latest completed training run.
func (e *Evaluator) record(modelPath string, report *metrics.Report) (*store.Evaluation, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	eval := &store.Evaluation{
		ModelPath:  modelPath,
		Samples:    report.Support,
		Accuracy:   report.Accuracy,
		MacroF1:    report.Macro.F1,
		WeightedF1: report.Weighted.F1,
		Report:     body,
	}

	run, err := e.Store.Runs().LatestCompleted()
	switch {
	case err == nil:
		eval.RunID = run.ID
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	if err := e.Store.Evaluations().Create(eval); err != nil {
		return nil, fmt.Errorf("record evaluation: %w", err)
	}
	return eval, nil
}
