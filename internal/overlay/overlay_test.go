package overlay

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/seglo/internal/detector"
)

func nonZero(t *testing.T, img gocv.Mat) int {
	t.Helper()
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}

func TestTextDrawsPixels(t *testing.T) {
	img := gocv.NewMatWithSize(120, 400, gocv.MatTypeCV8UC3)
	defer img.Close()

	Text(&img, "No hands detected", Red, 0)
	if nonZero(t, img) == 0 {
		t.Error("Text() drew nothing")
	}
}

func TestHandsDrawsSkeleton(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	Hands(&img, []detector.HandLandmarks{detector.OpenPalmLandmarks()})
	if nonZero(t, img) == 0 {
		t.Error("Hands() drew nothing")
	}

	blank := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer blank.Close()
	Hands(&blank, nil)
	if n := nonZero(t, blank); n != 0 {
		t.Errorf("Hands(nil) drew %d pixels", n)
	}
}

func TestHeadless(t *testing.T) {
	h := NewHeadless('r', 'q')

	if k := h.Key(1); k != 'r' {
		t.Errorf("Key() = %d, want 'r'", k)
	}
	if k := h.Key(1); k != 'q' {
		t.Errorf("Key() = %d, want 'q'", k)
	}
	if k := h.Key(1); k != -1 {
		t.Errorf("Key() after script = %d, want -1", k)
	}

	h.Idle('q')
	if k := h.Key(1); k != 'q' {
		t.Errorf("Key() idle = %d, want 'q'", k)
	}
	h.Push('x')
	if k := h.Key(1); k != 'x' {
		t.Errorf("Key() pushed = %d, want 'x'", k)
	}

	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()
	seen := 0
	h.OnShow = func(*gocv.Mat) { seen++ }
	h.Show(&img)
	h.Show(&img)
	if h.Shown() != 2 || seen != 2 {
		t.Errorf("Shown() = %d, OnShow calls = %d, want 2", h.Shown(), seen)
	}
}
