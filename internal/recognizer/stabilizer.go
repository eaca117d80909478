package recognizer

// Stabilizer reports a prediction as stable once the same label has topped
// the confidence threshold on enough consecutive confident frames. A
// stable label is reported once; it is reported again only after another
// label became stable or hands left the frame.
type Stabilizer struct {
	threshold float64
	frames    int

	last    string
	streak  int
	emitted string
}

// NewStabilizer returns a stabilizer. frames below 1 is treated as 1.
func NewStabilizer(threshold float64, frames int) *Stabilizer {
	return &Stabilizer{threshold: threshold, frames: max(frames, 1)}
}

// Observe feeds one prediction and reports whether it should be emitted.
// Predictions at or below the threshold are ignored and do not break a
// streak.
func (s *Stabilizer) Observe(p Prediction) bool {
	if p.Index < 0 || p.Confidence <= s.threshold {
		return false
	}

	if p.Label == s.last {
		s.streak++
	} else {
		s.last = p.Label
		s.streak = 1
	}

	if s.streak < s.frames || p.Label == s.emitted {
		return false
	}
	s.emitted = p.Label
	return true
}

// Reset forgets the current streak and the last emitted label.
func (s *Stabilizer) Reset() {
	s.last = ""
	s.streak = 0
	s.emitted = ""
}

// Streak returns the length of the current run of the same label.
func (s *Stabilizer) Streak() int { return s.streak }
