package recognizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/seglo/internal/capture"
	"github.com/ayusman/seglo/internal/detector"
	"github.com/ayusman/seglo/internal/logging"
	"github.com/ayusman/seglo/internal/overlay"
	"github.com/ayusman/seglo/internal/vector"
)

// WindowTitle is the title of the realtime preview window.
const WindowTitle = "Real-time Gesture Recognition"

const (
	// maxFailures consecutive failed frames stop the loop.
	maxFailures = 10
	// readRetryDelay is the pause after a failed camera read when there is
	// no window to poll.
	readRetryDelay = 10 * time.Millisecond
)

// Sink receives stable predictions. Publish must not block for long.
type Sink interface {
	Publish(p Prediction)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Prediction)

func (f SinkFunc) Publish(p Prediction) { f(p) }

// Config wires a Recognizer.
type Config struct {
	Camera     capture.Camera
	Detector   detector.Detector
	Classifier *Classifier
	Stabilizer *Stabilizer
	// Display is optional. Without one the loop runs until ctx is done.
	Display overlay.Display
	Sinks   []Sink
	// OnFrame, when set, receives every annotated frame. The Mat is only
	// valid during the call.
	OnFrame func(*gocv.Mat)
	Logger  *zap.Logger
}

// Recognizer runs the capture, detect, classify loop.
type Recognizer struct {
	cfg     Config
	log     *zap.Logger
	enabled atomic.Bool

	mu     sync.RWMutex
	latest *Prediction
	sinks  []Sink
}

// New creates a recognizer. Recognition starts enabled.
func New(cfg Config) *Recognizer {
	if cfg.Stabilizer == nil {
		cfg.Stabilizer = NewStabilizer(0.7, 3)
	}
	r := &Recognizer{cfg: cfg, log: logging.OrNop(cfg.Logger), sinks: append([]Sink(nil), cfg.Sinks...)}
	r.enabled.Store(true)
	return r
}

// AddSink registers another receiver of stable predictions.
func (r *Recognizer) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// SetEnabled pauses or resumes prediction. Frames are still shown while
// paused.
func (r *Recognizer) SetEnabled(on bool) {
	if r.enabled.Swap(on) != on {
		r.log.Info("recognition toggled", zap.Bool("enabled", on))
	}
}

// Enabled reports whether prediction is running.
func (r *Recognizer) Enabled() bool { return r.enabled.Load() }

// Latest returns the last stable prediction, or nil.
func (r *Recognizer) Latest() *Prediction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.latest == nil {
		return nil
	}
	p := *r.latest
	return &p
}

// Step processes one frame: detect, classify, annotate. It returns the raw
// prediction (nil when nothing was classified) and whether it was stable.
func (r *Recognizer) Step(frame *gocv.Mat) (*Prediction, bool, error) {
	if !r.Enabled() {
		r.cfg.Stabilizer.Reset()
		overlay.Text(frame, "Recognition paused", overlay.White, 0)
		return nil, false, nil
	}

	hands, err := r.cfg.Detector.Detect(frame)
	if err != nil {
		return nil, false, fmt.Errorf("detect hands: %w", err)
	}
	if len(hands) == 0 || vector.Encode(hands).IsZero() {
		r.cfg.Stabilizer.Reset()
		overlay.Text(frame, "No hands detected", overlay.Red, 0)
		return nil, false, nil
	}

	p, err := r.cfg.Classifier.Classify(hands)
	if err != nil {
		return nil, false, err
	}

	overlay.Hands(frame, hands)
	overlay.Text(frame, "Prediction: "+p.Label, overlay.Green, 0)

	stable := r.cfg.Stabilizer.Observe(p)
	if stable {
		r.publish(p)
	}
	return &p, stable, nil
}

func (r *Recognizer) publish(p Prediction) {
	r.mu.Lock()
	r.latest = &p
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()

	r.log.Info("stable prediction",
		zap.String("label", p.Label),
		zap.Int("index", p.Index),
		zap.Float64("confidence", p.Confidence))
	for _, s := range sinks {
		s.Publish(p)
	}
}

// Run opens the camera and processes frames until q is pressed on the
// display, the camera runs dry or ctx is cancelled.
func (r *Recognizer) Run(ctx context.Context) error {
	if err := r.cfg.Camera.Open(); err != nil {
		return err
	}
	defer r.cfg.Camera.Close()

	r.log.Info("recognizer started")
	defer r.log.Info("recognizer stopped")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := r.cfg.Camera.ReadFrame()
		if errors.Is(err, capture.ErrReadFailed) {
			if r.cfg.Display != nil {
				if r.cfg.Display.Key(1) == 'q' {
					return nil
				}
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}
		if err != nil {
			return err
		}

		if _, _, err := r.Step(frame); err != nil {
			failures++
			if failures >= maxFailures {
				frame.Close()
				return err
			}
			r.log.Warn("frame failed", zap.Error(err), zap.Int("failures", failures))
		} else {
			failures = 0
		}

		if r.cfg.OnFrame != nil {
			r.cfg.OnFrame(frame)
		}
		if r.cfg.Display != nil {
			r.cfg.Display.Show(frame)
		}
		frame.Close()

		if r.cfg.Display != nil && r.cfg.Display.Key(1) == 'q' {
			return nil
		}
	}
}
