package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/seglo/internal/evaluate"
	"github.com/ayusman/seglo/internal/train"
)

func newTrainCmd(a *app) *cobra.Command {
	var epochs int
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the static gesture model",
		Long: `Loads every sample listed in the label map, fits the feature scaler, splits
the data (stratified, training.test_split held out) and fits the dense
classifier. The best epoch is saved as the checkpoint, the last epoch as the
final model, together with the scaler.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if epochs > 0 {
				a.cfg.Training.Epochs = epochs
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signalContext(cmd)
			defer stop()

			t := &train.Trainer{
				Config: a.cfg,
				Runs:   st.Runs(),
				Out:    cmd.OutOrStdout(),
				Logger: a.logger,
			}
			res, err := t.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s: best val_accuracy %.4f at epoch %d\n",
				res.Run.ID, res.Run.BestValAccuracy, res.Run.BestEpoch)
			return nil
		},
	}
	cmd.Flags().IntVar(&epochs, "epochs", 0, "override training.epochs")
	return cmd
}

func newEvaluateCmd(a *app) *cobra.Command {
	var modelPath string
	var heatmap bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Print the classification report on the held-out split",
		Long: `Reproduces the training split, predicts every held-out sample and prints
per-class precision, recall, f1 and support, the macro F1 and the accuracy.
The confusion matrix heatmap is written to the evaluation directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signalContext(cmd)
			defer stop()

			e := &evaluate.Evaluator{
				Config:  a.cfg,
				Store:   st,
				Heatmap: heatmap,
				Out:     cmd.OutOrStdout(),
				Logger:  a.logger,
			}
			_, err = e.Run(ctx, modelPath)
			return err
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "model file (.json, .q8 or .tflite); final model when empty")
	cmd.Flags().BoolVar(&heatmap, "heatmap", true, "write the confusion matrix PNG")
	return cmd
}
