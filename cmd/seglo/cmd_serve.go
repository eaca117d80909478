package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/models"
	"github.com/ayusman/seglo/internal/recognizer"
	"github.com/ayusman/seglo/internal/server"
	"github.com/ayusman/seglo/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API without a camera",
		Long: `Serves labels, sample counts, training runs and /api/predict. Prediction is
available when a trained model and scaler exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			clf, model, err := a.optionalClassifier()
			if err != nil {
				return err
			}
			if model != nil {
				defer model.Close()
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			srv := server.New(a.serverConfig(st, clf))
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", dashboardURL(addr))
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; server.addr when empty")
	return cmd
}

// optionalClassifier is loadClassifier for servers that can run without
// prediction. A missing model or scaler disables it with a warning.
func (a *app) optionalClassifier() (*recognizer.Classifier, models.Model, error) {
	clf, model, err := a.loadClassifier()
	switch {
	case errors.Is(err, models.ErrModelNotFound):
		a.logger.Warn("no trained model, /api/predict is disabled", zap.String("model", a.cfg.InferenceModelPath()))
	case errors.Is(err, os.ErrNotExist):
		a.logger.Warn("no fitted scaler, /api/predict is disabled", zap.String("scaler", a.cfg.ScalerPath()))
	case err != nil:
		return nil, nil, err
	default:
		return clf, model, nil
	}
	return nil, nil, nil
}

// serverConfig mounts the routes shared by serve and realtime --serve.
func (a *app) serverConfig(st *store.Store, clf *recognizer.Classifier) server.Config {
	return server.Config{
		StaticDir:  a.cfg.Server.StaticDir,
		LabelMap:   a.cfg.Paths.LabelMap,
		Data:       dataset.NewStore(a.cfg.Paths.DataDir),
		Store:      st,
		Classifier: clf,
		Logger:     a.logger,
	}
}
