// Package vector encodes detected hands into the fixed landmark vector used
// for training and inference.
//
// Layout: up to two hands in detector order, each 21 landmarks of (x, y, z),
// giving 2*21*3 = 126 float32 values. Missing hands are zero-filled.
package vector

import (
	"errors"
	"fmt"

	"github.com/ayusman/seglo/internal/detector"
)

const (
	// MaxHands is the number of hand slots in a vector.
	MaxHands = 2
	// HandDim is the number of values per hand slot.
	HandDim = detector.NumLandmarks * 3
	// Dim is the total vector length.
	Dim = MaxHands * HandDim
)

var (
	// ErrDimensionMismatch is returned when a vector does not have Dim values.
	ErrDimensionMismatch = errors.New("landmark vector dimension mismatch")
	// ErrNoHands is returned for an all-zero vector, which encodes no hands.
	ErrNoHands = errors.New("landmark vector has no hands")
)

// Vector is a single landmark feature vector.
type Vector [Dim]float32

// Encode flattens hands into a Vector. Hands beyond MaxHands are ignored.
func Encode(hands []detector.HandLandmarks) Vector {
	var v Vector
	for h := 0; h < len(hands) && h < MaxHands; h++ {
		base := h * HandDim
		for i, p := range hands[h].Points {
			v[base+i*3] = float32(p.X)
			v[base+i*3+1] = float32(p.Y)
			v[base+i*3+2] = float32(p.Z)
		}
	}
	return v
}

// Decode recovers the hand slots that hold any non-zero value.
// Handedness and score are not part of the encoding and are left empty.
func Decode(v Vector) []detector.HandLandmarks {
	var hands []detector.HandLandmarks
	for h := 0; h < MaxHands; h++ {
		block := v[h*HandDim : (h+1)*HandDim]
		if isZero(block) {
			continue
		}
		var hand detector.HandLandmarks
		for i := range hand.Points {
			hand.Points[i] = detector.Point3D{
				X: float64(block[i*3]),
				Y: float64(block[i*3+1]),
				Z: float64(block[i*3+2]),
			}
		}
		hands = append(hands, hand)
	}
	return hands
}

// Slice returns the vector as a freshly allocated slice.
func (v Vector) Slice() []float32 {
	out := make([]float32, Dim)
	copy(out, v[:])
	return out
}

// Hands reports how many hand slots are populated.
func (v Vector) Hands() int {
	n := 0
	for h := 0; h < MaxHands; h++ {
		if !isZero(v[h*HandDim : (h+1)*HandDim]) {
			n++
		}
	}
	return n
}

// IsZero reports whether no hand was encoded.
func (v Vector) IsZero() bool {
	return isZero(v[:])
}

// FromSlice converts a raw slice into a Vector.
func FromSlice(values []float32) (Vector, error) {
	var v Vector
	if err := Validate(values); err != nil {
		return v, err
	}
	copy(v[:], values)
	return v, nil
}

// Validate checks that values has exactly Dim entries.
func Validate(values []float32) error {
	if len(values) != Dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(values), Dim)
	}
	return nil
}

func isZero(values []float32) bool {
	for _, x := range values {
		if x != 0 {
			return false
		}
	}
	return true
}
