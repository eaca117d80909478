package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/seglo/internal/capture"
	"github.com/ayusman/seglo/internal/collect"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/prompt"
	"github.com/ayusman/seglo/internal/store"
)

func newCollectCmd(a *app) *cobra.Command {
	var label, hand string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Record landmark samples for one gesture",
		Long: `Opens the camera and records one landmark vector per frame with a hand in view.

Press 'r' in the preview window to start recording after the countdown and
'q' to stop. Without --label and --hand the gesture and hand type are
asked for on stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCollect(cmd, label, hand)
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "gesture name")
	cmd.Flags().StringVar(&hand, "hand", "", "hand type: left, right or both")
	return cmd
}

func (a *app) runCollect(cmd *cobra.Command, label, hand string) error {
	out := cmd.OutOrStdout()
	p := prompt.New(cmd.InOrStdin(), out)

	var h dataset.Hand
	switch {
	case label == "" && hand == "":
		var err error
		if label, h, err = collect.AskTarget(p); err != nil {
			return err
		}
	case label == "" || hand == "":
		return errors.New("--label and --hand must be given together")
	default:
		var err error
		if h, err = dataset.ParseHand(hand); err != nil {
			return err
		}
	}

	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	det, err := newDetector(a)
	if err != nil {
		return err
	}
	defer det.Close()

	win := overlay.NewWindow(collect.WindowTitle)
	defer win.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	session := &collect.Session{
		Camera:          newCamera(a),
		Detector:        det,
		Display:         win,
		Store:           dataset.NewStore(a.cfg.Paths.DataDir),
		LabelMap:        a.cfg.Paths.LabelMap,
		Prompt:          p,
		Out:             out,
		Logger:          a.logger.Named("collect"),
		SamplesPerClass: a.cfg.Collection.SamplesPerClass,
		Countdown:       a.cfg.GetCountdown(),
	}
	res, err := session.Run(ctx, label, h)
	if err != nil {
		return err
	}

	if err := st.Sessions().Create(&store.Session{
		Label:      res.Label,
		Hand:       string(res.Hand),
		LabelIndex: res.Index,
		Existing:   res.Existing,
		Saved:      res.Saved,
		Total:      res.Total,
		Outcome:    string(res.Outcome),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}); err != nil {
		a.logger.Warn("failed to record collection session", zap.Error(err))
	}
	if res.NewLabel {
		fmt.Fprintf(out, "Added label %q with index %d\n", res.Label, res.Index)
	}
	return nil
}

func newCamera(a *app) capture.Camera {
	c := a.cfg.Camera
	return capture.NewCamera(capture.Config{
		DeviceID: c.DeviceID,
		Width:    c.Width,
		Height:   c.Height,
		FPS:      c.FPS,
		Mirror:   c.Mirror,
	})
}

func newDetector(a *app) (*detector.MediaPipeDetector, error) {
	d := a.cfg.Detector
	det, err := detector.NewMediaPipeDetector(detector.Config{
		MaxHands:        d.MaxHands,
		MinConfidence:   d.MinDetectionConfidence,
		MinTrackingConf: d.MinTrackingConfidence,
		Python:          d.Python,
		Script:          d.Script,
		IdleTimeout:     a.cfg.GetIdleTimeout(),
	}, a.logger.Named("detector"))
	if err != nil {
		return nil, fmt.Errorf("failed to start hand detector: %w", err)
	}
	return det, nil
}
