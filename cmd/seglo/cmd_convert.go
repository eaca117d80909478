package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/mobile"
	"github.com/ayusman/seglo/internal/models"
)

// checkSeed fixes the random input used by check.
const checkSeed = 42

func newConvertCmd(a *app) *cobra.Command {
	var src, dst string
	var check bool
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Quantize the final model for mobile",
		Long: `Converts the final float model to the int8 dynamic-range format read by the
mobile app. Dropout layers are removed and each kernel gets one scale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if src == "" {
				src = a.cfg.FinalModelPath()
			}
			if dst == "" {
				dst = a.cfg.MobileModelPath()
			}
			out := cmd.OutOrStdout()

			q, err := mobile.ConvertFile(src, dst)
			if err != nil {
				return err
			}
			a.logger.Info("model converted",
				zap.String("src", src),
				zap.String("dst", dst),
				zap.Int("layers", len(q.Layers())),
				zap.Int("bytes", q.Size()))
			fmt.Fprintf(out, "Mobile model saved to %s (%d bytes)\n", dst, q.Size())

			if !check {
				return nil
			}
			return runCheck(cmd, dst)
		},
	}
	cmd.Flags().StringVar(&src, "src", "", "float model to convert; final model when empty")
	cmd.Flags().StringVarP(&dst, "out", "o", "", "output path; models_dir/final_static_model.q8 when empty")
	cmd.Flags().BoolVar(&check, "check", false, "run the compatibility check on the converted model")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [model]",
		Short: "Load a model in its interpreter and run a random input",
		Long: `Prints the input and output tensor details of a .q8, .tflite or .json model,
then feeds one random [1, 126] float32 input and prints the output.
Without an argument the converted mobile model is checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.MobileModelPath()
			if len(args) == 1 {
				path = args[0]
			}
			return runCheck(cmd, path)
		},
	}
}

func runCheck(cmd *cobra.Command, path string) error {
	m, err := models.Open(path)
	if err != nil {
		return err
	}
	defer m.Close()

	report, err := models.Check(m, checkSeed)
	if err != nil {
		return err
	}
	report.Path = path
	report.Print(cmd.OutOrStdout())
	return nil
}
