package train

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/nn"
	"github.com/ayusman/seglo/internal/store"
	"github.com/ayusman/seglo/internal/vector"
)

// Trainer runs one training job from configuration.
type Trainer struct {
	Config *config.Config
	// Runs records the job when set.
	Runs   *store.RunRepository
	Out    io.Writer
	Logger *zap.Logger
}

// Result is a finished training job.
type Result struct {
	Run     *store.Run
	Model   *nn.Model
	History *nn.History
	Data    *Data
}

// Run prepares the data, fits the model and writes the checkpoint, the
// final model and the scaler.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	cfg := t.Config
	logger := logging.OrNop(t.Logger).Named("train")
	out := t.Out
	if out == nil {
		out = io.Discard
	}

	snapshot, err := json.Marshal(cfg.Training)
	if err != nil {
		return nil, fmt.Errorf("encode training config: %w", err)
	}
	run := &store.Run{Config: snapshot}
	if t.Runs != nil {
		if err := t.Runs.Create(run); err != nil {
			return nil, fmt.Errorf("record training run: %w", err)
		}
	}

	res, err := t.fit(ctx, run, out, logger)
	if t.Runs != nil {
		status := store.RunCompleted
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = store.RunCancelled
		case err != nil:
			status = store.RunFailed
		}
		if ferr := t.Runs.Finish(run, status, err); ferr != nil {
			logger.Warn("failed to finish training run", zap.String("run_id", run.ID), zap.Error(ferr))
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (t *Trainer) fit(ctx context.Context, run *store.Run, out io.Writer, logger *zap.Logger) (*Result, error) {
	cfg := t.Config

	data, err := Prepare(ctx, Source{
		Store:     dataset.NewStore(cfg.Paths.DataDir),
		LabelMap:  cfg.Paths.LabelMap,
		TestSplit: cfg.Training.TestSplit,
		Seed:      cfg.Training.Seed,
	})
	if err != nil {
		return nil, err
	}
	for _, path := range data.Skipped {
		logger.Warn("skipping sample without hands", zap.String("path", path))
	}
	run.Classes = len(data.Names)
	run.Samples = data.Total
	run.TrainSamples = data.Train.Len()
	run.TestSamples = data.Test.Len()

	logger.Info("dataset loaded",
		zap.Int("classes", run.Classes),
		zap.Int("samples", run.Samples),
		zap.Int("train", run.TrainSamples),
		zap.Int("test", run.TestSamples))

	model, err := nn.Build(vector.Dim, len(data.Names), cfg.Training.Layers, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}

	checkpoint := cfg.CheckpointPath()
	opts := nn.FitOptions{
		Epochs:       cfg.Training.Epochs,
		BatchSize:    cfg.Training.BatchSize,
		LearningRate: cfg.Training.LearningRate,
		Seed:         cfg.Training.Seed,
		Checkpoint: func(m *nn.Model, s nn.EpochStats) error {
			logger.Debug("checkpoint", zap.Int("epoch", s.Epoch), zap.Float64("val_accuracy", s.ValAccuracy))
			return m.Save(checkpoint)
		},
		OnEpoch: func(s nn.EpochStats) error {
			fmt.Fprintf(out, "Epoch %d/%d - loss: %.4f - accuracy: %.4f - val_loss: %.4f - val_accuracy: %.4f\n",
				s.Epoch, cfg.Training.Epochs, s.Loss, s.Accuracy, s.ValLoss, s.ValAccuracy)
			logger.Info("epoch",
				zap.Int("epoch", s.Epoch),
				zap.Float64("loss", s.Loss),
				zap.Float64("accuracy", s.Accuracy),
				zap.Float64("val_loss", s.ValLoss),
				zap.Float64("val_accuracy", s.ValAccuracy),
				zap.Bool("improved", s.Improved),
				zap.Duration("duration", s.Duration))
			return nil
		},
	}

	start := time.Now()
	hist, err := model.Fit(ctx,
		nn.Dataset{X: data.Train.X, Y: data.Train.Y},
		nn.Dataset{X: data.Test.X, Y: data.Test.Y},
		opts)
	if hist != nil {
		run.Epochs = len(hist.Epochs)
		run.BestEpoch = hist.BestEpoch
		if hist.BestEpoch > 0 {
			run.BestValAccuracy = hist.BestValAccuracy
		}
		if n := len(hist.Epochs); n > 0 {
			run.FinalValAccuracy = hist.Epochs[n-1].ValAccuracy
			run.FinalLoss = hist.Epochs[n-1].Loss
		}
	}
	if err != nil {
		return nil, fmt.Errorf("training stopped: %w", err)
	}

	final := cfg.FinalModelPath()
	if err := model.Save(final); err != nil {
		return nil, err
	}
	run.ModelPath = final
	if err := data.Scaler.Save(cfg.ScalerPath()); err != nil {
		return nil, err
	}

	logger.Info("training complete",
		zap.String("model", final),
		zap.Int("best_epoch", hist.BestEpoch),
		zap.Float64("best_val_accuracy", hist.BestValAccuracy),
		zap.Duration("elapsed", time.Since(start)))
	fmt.Fprintf(out, "Training complete. Model saved to %s/\n", cfg.Paths.ModelsDir)

	return &Result{Run: run, Model: model, History: hist, Data: data}, nil
}
