package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// Configured frames are returned in order; once exhausted the last one repeats.
type MockDetector struct {
	mu     sync.Mutex
	frames [][]HandLandmarks
	err    error
	calls  int
	closed bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands makes every Detect call return hands.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = [][]HandLandmarks{hands}
}

// SetSequence makes successive Detect calls return the given per-frame results.
func (m *MockDetector) SetSequence(frames ...[]HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.calls
	m.calls++

	if m.err != nil {
		return nil, m.err
	}
	if len(m.frames) == 0 {
		return nil, nil
	}
	if idx >= len(m.frames) {
		idx = len(m.frames) - 1
	}
	return m.frames[idx], nil
}

// Calls reports how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ThumbsUpLandmarks returns a right hand with the thumb extended upward
// and the other fingers curled.
func ThumbsUpLandmarks() HandLandmarks {
	return handFromPoints("Right", 0.95, [NumLandmarks][3]float64{
		{0.50, 0.80, 0.00},
		{0.55, 0.75, 0.00}, {0.58, 0.65, 0.00}, {0.58, 0.50, 0.00}, {0.58, 0.35, 0.00},
		{0.55, 0.70, -0.02}, {0.55, 0.68, -0.05}, {0.52, 0.70, -0.04}, {0.50, 0.72, -0.02},
		{0.50, 0.68, -0.02}, {0.50, 0.66, -0.05}, {0.47, 0.68, -0.04}, {0.45, 0.70, -0.02},
		{0.45, 0.70, -0.02}, {0.45, 0.68, -0.05}, {0.42, 0.70, -0.04}, {0.40, 0.72, -0.02},
		{0.40, 0.72, -0.02}, {0.40, 0.70, -0.05}, {0.37, 0.72, -0.04}, {0.35, 0.74, -0.02},
	})
}

// OpenPalmLandmarks returns a right hand with all fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return handFromPoints("Right", 0.95, [NumLandmarks][3]float64{
		{0.50, 0.80, 0.00},
		{0.55, 0.75, 0.02}, {0.62, 0.70, 0.03}, {0.68, 0.65, 0.03}, {0.73, 0.60, 0.03},
		{0.55, 0.68, 0.00}, {0.57, 0.55, 0.00}, {0.58, 0.45, 0.00}, {0.58, 0.35, 0.00},
		{0.50, 0.66, 0.00}, {0.50, 0.52, 0.00}, {0.50, 0.40, 0.00}, {0.50, 0.28, 0.00},
		{0.45, 0.68, 0.00}, {0.43, 0.55, 0.00}, {0.42, 0.45, 0.00}, {0.42, 0.35, 0.00},
		{0.40, 0.70, 0.00}, {0.37, 0.60, 0.00}, {0.35, 0.50, 0.00}, {0.34, 0.42, 0.00},
	})
}

// Mirror returns the hand reflected horizontally with the opposite handedness.
func Mirror(h HandLandmarks) HandLandmarks {
	out := h
	for i := range out.Points {
		out.Points[i].X = 1 - out.Points[i].X
	}
	switch h.Handedness {
	case "Left":
		out.Handedness = "Right"
	case "Right":
		out.Handedness = "Left"
	}
	return out
}

func handFromPoints(handedness string, score float64, pts [NumLandmarks][3]float64) HandLandmarks {
	h := HandLandmarks{Handedness: handedness, Score: score}
	for i, p := range pts {
		h.Points[i] = Point3D{X: p[0], Y: p[1], Z: p[2]}
	}
	return h
}
