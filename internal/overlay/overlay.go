// Package overlay draws landmarks and status text on frames and shows them.
package overlay

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/seglo/internal/detector"
)

// Text colors.
var (
	Red    = color.RGBA{255, 0, 0, 0}
	Green  = color.RGBA{0, 255, 0, 0}
	Yellow = color.RGBA{255, 255, 0, 0}
	White  = color.RGBA{255, 255, 255, 0}

	boneColor  = color.RGBA{255, 255, 255, 0}
	jointColor = color.RGBA{255, 0, 0, 0}
)

const (
	font      = gocv.FontHersheySimplex
	fontScale = 1.0
	thickness = 2
	lineStep  = 40
)

// Text draws msg at line n (0 is the top line).
func Text(img *gocv.Mat, msg string, c color.RGBA, line int) {
	gocv.PutTextWithParams(img, msg, image.Pt(10, 30+line*lineStep), font, fontScale, c, thickness, gocv.LineAA, false)
}

// Hands draws the skeleton and joints of every hand. Landmark coordinates
// are normalized, so they are scaled to the frame size.
func Hands(img *gocv.Mat, hands []detector.HandLandmarks) {
	w, h := img.Cols(), img.Rows()
	for _, hand := range hands {
		pts := make([]image.Point, detector.NumLandmarks)
		for i, p := range hand.Points {
			pts[i] = image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
		}
		for _, c := range detector.HandConnections {
			gocv.Line(img, pts[c.From], pts[c.To], boneColor, 2)
		}
		for _, p := range pts {
			gocv.Circle(img, p, 4, jointColor, -1)
		}
	}
}

// Display shows frames and reports key presses.
type Display interface {
	Show(img *gocv.Mat)
	// Key waits up to delay ms and returns the pressed key, or -1.
	Key(delay int) int
	Close() error
}

// Window is a Display backed by an OpenCV HighGUI window.
type Window struct {
	w *gocv.Window
}

// NewWindow opens a window with the given title.
func NewWindow(title string) *Window {
	return &Window{w: gocv.NewWindow(title)}
}

func (w *Window) Show(img *gocv.Mat) { w.w.IMShow(*img) }

func (w *Window) Key(delay int) int {
	k := w.w.WaitKey(delay)
	if k < 0 {
		return -1
	}
	return k & 0xFF
}

func (w *Window) Close() error { return w.w.Close() }
