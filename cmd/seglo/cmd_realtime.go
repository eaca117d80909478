package main

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/seglo/internal/hook"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/models"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/recognizer"
	"github.com/ayusman/seglo/internal/scaler"
	"github.com/ayusman/seglo/internal/server"
	"github.com/ayusman/seglo/internal/tray"
)

type realtimeOptions struct {
	model    string
	headless bool
	tray     bool
	serve    bool
}

func newRealtimeCmd(a *app) *cobra.Command {
	var opts realtimeOptions
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Recognize gestures from the camera",
		Long: `Runs the capture, detect, classify loop and overlays the prediction on the
camera window. Press 'q' in the window to quit.

A gesture becomes stable once it is predicted above
inference.confidence_threshold for inference.stable_frames consecutive
frames. Stable gestures are sent to the configured hooks, the tray menu and
the /api/predictions websocket.

--tray runs a system tray toggle instead of the window. --serve starts the
HTTP API with the live MJPEG stream at /api/stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRealtime(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model file; inference.model or the final model when empty")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "run without the camera window")
	cmd.Flags().BoolVar(&opts.tray, "tray", false, "show a system tray menu (implies --headless)")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "serve the HTTP API and live stream on server.addr")
	return cmd
}

func (a *app) runRealtime(cmd *cobra.Command, opts realtimeOptions) error {
	if opts.model != "" {
		a.cfg.Inference.Model = opts.model
	}
	clf, model, err := a.loadClassifier()
	if err != nil {
		return err
	}
	defer model.Close()

	det, err := newDetector(a)
	if err != nil {
		return err
	}
	defer det.Close()

	ctx, stop := signalContext(cmd)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := a.logger
	rcfg := recognizer.Config{
		Camera:     newCamera(a),
		Detector:   det,
		Classifier: clf,
		Stabilizer: recognizer.NewStabilizer(a.cfg.Inference.ConfidenceThreshold, a.cfg.Inference.StableFrames),
		Logger:     logger.Named("recognizer"),
		Sinks: []recognizer.Sink{recognizer.SinkFunc(func(p recognizer.Prediction) {
			fmt.Fprintf(cmd.OutOrStdout(), "Gesture: %s (%.2f)\n", p.Label, p.Confidence)
		})},
	}
	if !opts.headless && !opts.tray {
		win := overlay.NewWindow(recognizer.WindowTitle)
		defer win.Close()
		rcfg.Display = win
	}

	if len(a.cfg.Hooks.Bindings) > 0 {
		manager := hook.NewManager(a.cfg.Hooks.Dir, logger)
		if err := manager.Discover(); err != nil {
			return err
		}
		dispatcher := hook.NewDispatcher(manager, hook.NewExecutor(a.cfg.GetHookTimeout()),
			a.cfg.Hooks.Bindings, hook.DefaultMaxInFlight, logger)
		defer dispatcher.Close()
		rcfg.Sinks = append(rcfg.Sinks, dispatcher)
		logger.Info("hooks enabled",
			zap.Int("plugins", len(manager.List())),
			zap.Int("bindings", len(a.cfg.Hooks.Bindings)))
	}

	var srv *server.Server
	if opts.serve {
		st, err := a.openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		hub := server.NewHub(logger)
		frames := server.NewFrameBuffer()
		rcfg.Sinks = append(rcfg.Sinks, hub)
		rcfg.OnFrame = frames.Set
		scfg := a.serverConfig(st, clf)
		scfg.Frames = frames
		scfg.Hub = hub
		srv = server.New(scfg)
	}

	r := recognizer.New(rcfg)
	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(gctx, a.cfg.Server.Addr)
		})
	}

	if !opts.tray {
		// The window needs the calling goroutine on some platforms.
		err := r.Run(gctx)
		cancel()
		if werr := g.Wait(); err == nil {
			err = werr
		}
		return err
	}

	g.Go(func() error {
		defer cancel()
		return r.Run(gctx)
	})

	t := tray.New()
	r.AddSink(t)
	t.OnToggle(r.SetEnabled)
	t.OnQuit(cancel)
	if srv != nil {
		url := dashboardURL(a.cfg.Server.Addr)
		t.OnDashboard(func() {
			if err := openBrowser(url); err != nil {
				logger.Warn("failed to open dashboard", zap.String("url", url), zap.Error(err))
			}
		})
	}
	go func() {
		<-gctx.Done()
		t.Quit()
	}()
	t.Run()

	return g.Wait()
}

// loadClassifier opens the inference model with the scaler and label map
// written by train. The caller closes the returned model.
func (a *app) loadClassifier() (*recognizer.Classifier, models.Model, error) {
	model, err := models.Open(a.cfg.InferenceModelPath())
	if err != nil {
		return nil, nil, err
	}
	sc, err := scaler.Load(a.cfg.ScalerPath())
	if err != nil {
		model.Close()
		return nil, nil, err
	}
	lm, err := labels.Load(a.cfg.Paths.LabelMap)
	if err != nil {
		model.Close()
		return nil, nil, err
	}
	clf, err := recognizer.NewClassifier(model, sc, lm)
	if err != nil {
		model.Close()
		return nil, nil, err
	}
	return clf, model, nil
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
