// Command seglo records hand landmark samples, trains the static gesture
// model, converts it for mobile and runs real-time recognition.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/config"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/store"
)

// app carries the state shared by every subcommand. It is filled in by the
// root PersistentPreRunE.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "seglo",
		Short: "Static hand-sign recognition pipeline",
		Long: `seglo turns webcam hand landmarks into a trained gesture classifier.

Workflow:
  1. collect   record 126-value landmark vectors per gesture
  2. train     fit the dense classifier and the feature scaler
  3. evaluate  print the classification report on the held-out split
  4. convert   quantize the model for mobile and check it
  5. realtime  recognize gestures from the camera`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config %s: %w", a.configPath, err)
			}

			logger, _, err := logging.New(cfg.Logging, a.verbose)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			a.logger.Debug("config loaded", zap.String("path", a.configPath))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "seglo.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCollectCmd(a),
		newTrainCmd(a),
		newEvaluateCmd(a),
		newConvertCmd(a),
		newCheckCmd(a),
		newRealtimeCmd(a),
		newServeCmd(a),
		newCountCmd(a),
		newDeleteCmd(a),
		newExportScalerCmd(a),
		newLabelsCmd(a),
		newRunsCmd(a),
	)
	return root
}

// openStore opens the run history database.
func (a *app) openStore() (*store.Store, error) {
	st, err := store.New(a.cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
