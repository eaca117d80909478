// Package collect records labeled landmark samples from a camera.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/seglo/internal/capture"
	"github.com/ayusman/seglo/internal/dataset"
	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/labels"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/prompt"
	"github.com/ayusman/seglo/internal/vector"
)

// WindowTitle is the title of the collection preview window.
const WindowTitle = "Collecting"

// ErrEmptyLabel is returned when the gesture name is blank.
var ErrEmptyLabel = errors.New("gesture name is empty")

// Outcome is how a session ended.
type Outcome string

const (
	// Completed means samples_per_class was reached.
	Completed Outcome = "completed"
	// Exited means the user quit from the preview without recording.
	Exited Outcome = "exited"
	// Interrupted means the user pressed q while recording.
	Interrupted Outcome = "interrupted"
	// Paused means the user declined to continue at the halfway prompt.
	Paused Outcome = "paused"
	// Cancelled means the context was cancelled.
	Cancelled Outcome = "cancelled"
)

// Result summarizes a session.
type Result struct {
	Label      string
	Hand       dataset.Hand
	Index      int
	NewLabel   bool
	Existing   int
	Saved      int
	Total      int
	Outcome    Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Session wires the camera, detector and display to the dataset store.
type Session struct {
	Camera   capture.Camera
	Detector detector.Detector
	Display  overlay.Display
	Store    *dataset.Store
	// LabelMap is the path of the label map JSON file.
	LabelMap string
	Prompt   *prompt.Prompter
	Out      io.Writer
	Logger   *zap.Logger

	SamplesPerClass int
	Countdown       time.Duration
	// Sleep waits between countdown ticks; time.Sleep when nil.
	Sleep func(time.Duration)
}

// AskTarget prompts for the gesture name and hand type.
func AskTarget(p *prompt.Prompter) (string, dataset.Hand, error) {
	name, err := p.Ask("Enter gesture name (e.g., Hello): ")
	if err != nil {
		return "", "", err
	}
	label := labels.Normalize(name)
	if label == "" {
		return "", "", ErrEmptyLabel
	}

	h, err := p.Ask("Hand type (left / right / both): ")
	if err != nil {
		return "", "", err
	}
	hand, err := dataset.ParseHand(h)
	if err != nil {
		return "", "", err
	}
	return label, hand, nil
}

// Run records samples for label and hand until samples_per_class is
// reached or the user stops.
func (s *Session) Run(ctx context.Context, label string, hand dataset.Hand) (*Result, error) {
	label = labels.Normalize(label)
	if label == "" {
		return nil, ErrEmptyLabel
	}
	hand, err := dataset.ParseHand(string(hand))
	if err != nil {
		return nil, err
	}
	if s.SamplesPerClass <= 0 {
		return nil, fmt.Errorf("samples per class must be positive, got %d", s.SamplesPerClass)
	}
	log := logging.OrNop(s.Logger).With(zap.String("label", label), zap.String("hand", string(hand)))

	lm, err := labels.Load(s.LabelMap)
	if err != nil {
		return nil, err
	}
	index, added := lm.Ensure(label)
	if added {
		if err := lm.Save(s.LabelMap); err != nil {
			return nil, err
		}
		log.Info("added label", zap.Int("index", index))
	}

	current, err := s.Store.CountSamples(label, hand)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Label:     label,
		Hand:      hand,
		Index:     index,
		NewLabel:  added,
		Existing:  current,
		StartedAt: time.Now(),
	}

	fmt.Fprintln(s.Out, "\nINSTRUCTIONS:")
	fmt.Fprintf(s.Out, "Press 'r' to begin recording (with a %d-second countdown).\n", int(s.countdown().Seconds()))
	fmt.Fprintln(s.Out, "Press 'q' anytime during recording to quit.")
	fmt.Fprintf(s.Out, "Existing samples: %d/%d\n\n", current, s.SamplesPerClass)

	if err := s.Camera.Open(); err != nil {
		return nil, err
	}
	defer s.Camera.Close()

	outcome, err := s.preview(ctx, label, current)
	if err == nil && outcome == "" {
		outcome, current, err = s.record(ctx, log, label, hand, current)
	}
	if err != nil {
		return nil, err
	}

	res.Outcome = outcome
	res.Total = current
	res.Saved = current - res.Existing
	res.FinishedAt = time.Now()

	fmt.Fprintf(s.Out, "Collection finished. Total samples: %d\n", current)
	log.Info("collection finished",
		zap.String("outcome", string(outcome)),
		zap.Int("saved", res.Saved),
		zap.Int("total", res.Total))
	return res, nil
}

// preview shows the camera until r (start) or q (exit). An empty outcome
// means recording should start.
func (s *Session) preview(ctx context.Context, label string, current int) (Outcome, error) {
	for {
		if ctx.Err() != nil {
			return Cancelled, nil
		}

		frame, hands, err := s.next()
		if err != nil {
			return "", err
		}
		if frame == nil {
			continue
		}
		overlay.Hands(frame, hands)
		overlay.Text(frame, s.status(label, current), overlay.Yellow, 0)
		s.Display.Show(frame)
		frame.Close()

		switch s.Display.Key(1) {
		case 'q':
			fmt.Fprintln(s.Out, "Exiting...")
			return Exited, nil
		case 'r':
			secs := int(s.countdown().Seconds())
			fmt.Fprintf(s.Out, "Recording will start in %d seconds...\n", secs)
			for i := secs; i > 0; i-- {
				fmt.Fprintln(s.Out, i)
				s.sleep(time.Second)
			}
			fmt.Fprintln(s.Out, "Recording started.")
			return "", nil
		}
	}
}

func (s *Session) record(ctx context.Context, log *zap.Logger, label string, hand dataset.Hand, current int) (Outcome, int, error) {
	half := s.SamplesPerClass / 2
	asked := false
	next := s.Store.NextSampleIndex(label, hand, current)

	for current < s.SamplesPerClass {
		if ctx.Err() != nil {
			return Cancelled, current, nil
		}

		frame, hands, err := s.next()
		if err != nil {
			return "", current, err
		}
		if frame == nil {
			continue
		}

		saved := false
		if len(hands) > 0 {
			next = s.Store.NextSampleIndex(label, hand, next)
			path, err := s.Store.SaveSample(label, hand, next, vector.Encode(hands))
			if err != nil {
				frame.Close()
				return "", current, err
			}
			log.Debug("saved sample", zap.String("path", path))
			fmt.Fprintf(s.Out, "[✓] Saved sample %d\n", current+1)
			current++
			next++
			saved = true
		}

		overlay.Hands(frame, hands)
		overlay.Text(frame, s.status(label, current), overlay.Green, 0)
		s.Display.Show(frame)
		frame.Close()

		if s.Display.Key(1) == 'q' {
			fmt.Fprintln(s.Out, "Recording interrupted by user.")
			return Interrupted, current, nil
		}

		if saved && !asked && half > 0 && current == half && current < s.SamplesPerClass {
			asked = true
			ok, err := s.Prompt.Confirm(fmt.Sprintf("\n%d samples collected. Do you want to continue? (y/n): ", current))
			if err != nil && !errors.Is(err, prompt.ErrNoInput) {
				return "", current, err
			}
			if !ok {
				fmt.Fprintln(s.Out, "Recording paused by user.")
				return Paused, current, nil
			}
		}
	}
	return Completed, current, nil
}

// next reads a frame and detects hands. A nil frame with a nil error means
// the device skipped a frame.
func (s *Session) next() (*gocv.Mat, []detector.HandLandmarks, error) {
	frame, err := s.Camera.ReadFrame()
	if errors.Is(err, capture.ErrReadFailed) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	hands, err := s.Detector.Detect(frame)
	if err != nil {
		frame.Close()
		return nil, nil, fmt.Errorf("detect hands: %w", err)
	}
	return frame, hands, nil
}

func (s *Session) status(label string, current int) string {
	return fmt.Sprintf("Label: %s (%d/%d)", label, current, s.SamplesPerClass)
}

func (s *Session) countdown() time.Duration {
	if s.Countdown <= 0 {
		return 3 * time.Second
	}
	return s.Countdown
}

func (s *Session) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}
