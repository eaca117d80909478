package metrics

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"gocv.io/x/gocv"
)

// blues is the matplotlib "Blues" colormap sampled at nine stops.
var blues = []color.RGBA{
	{247, 251, 255, 0},
	{222, 235, 247, 0},
	{198, 219, 239, 0},
	{158, 202, 225, 0},
	{107, 174, 214, 0},
	{66, 146, 198, 0},
	{33, 113, 181, 0},
	{8, 81, 156, 0},
	{8, 48, 107, 0},
}

// Blues maps t in [0, 1] onto the colormap.
func Blues(t float64) color.RGBA {
	if t <= 0 {
		return blues[0]
	}
	if t >= 1 {
		return blues[len(blues)-1]
	}
	pos := t * float64(len(blues)-1)
	i := int(pos)
	f := pos - float64(i)
	a, b := blues[i], blues[i+1]
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f + 0.5) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0}
}

// HeatmapOptions controls the rendered image.
type HeatmapOptions struct {
	Title  string
	XLabel string
	YLabel string
	Cell   int
}

// DefaultHeatmapOptions matches the evaluation figure.
func DefaultHeatmapOptions() HeatmapOptions {
	return HeatmapOptions{Title: "Confusion Matrix", XLabel: "Predicted", YLabel: "Actual", Cell: 60}
}

var (
	black = color.RGBA{0, 0, 0, 0}
	white = color.RGBA{255, 255, 255, 0}
)

const font = gocv.FontHersheySimplex

// RenderConfusion draws cm as an annotated heatmap with tick labels, axis
// labels, a title and a colorbar. The caller closes the returned Mat.
func RenderConfusion(cm [][]int, names []string, opts HeatmapOptions) (gocv.Mat, error) {
	n := len(cm)
	if n == 0 || len(names) != n {
		return gocv.NewMat(), fmt.Errorf("confusion matrix is %d×%d with %d names", n, n, len(names))
	}
	if opts.Cell <= 0 {
		opts.Cell = 60
	}

	maxCount := 0
	for _, row := range cm {
		if len(row) != n {
			return gocv.NewMat(), fmt.Errorf("confusion matrix row has %d columns, want %d", len(row), n)
		}
		for _, v := range row {
			maxCount = max(maxCount, v)
		}
	}

	const tickScale, labelScale, titleScale = 0.45, 0.6, 0.8
	tickWidth := 0
	for _, name := range names {
		tickWidth = max(tickWidth, gocv.GetTextSize(name, font, tickScale, 1).X)
	}

	left := 40 + tickWidth + 10
	top := 60
	grid := n * opts.Cell
	bottom := tickWidth + 60
	barWidth := 20
	right := 90
	width := left + grid + 20 + barWidth + right
	height := top + grid + bottom

	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	img.SetTo(gocv.NewScalar(255, 255, 255, 0))

	// cells
	for i, row := range cm {
		for j, v := range row {
			t := 0.0
			if maxCount > 0 {
				t = float64(v) / float64(maxCount)
			}
			r := image.Rect(left+j*opts.Cell, top+i*opts.Cell, left+(j+1)*opts.Cell, top+(i+1)*opts.Cell)
			gocv.Rectangle(&img, r, Blues(t), -1)

			text := strconv.Itoa(v)
			ink := black
			if t > 0.5 {
				ink = white
			}
			size := gocv.GetTextSize(text, font, labelScale, 1)
			org := image.Pt(r.Min.X+(opts.Cell-size.X)/2, r.Min.Y+(opts.Cell+size.Y)/2)
			gocv.PutText(&img, text, org, font, labelScale, ink, 1)
		}
	}

	// tick labels: rows on the left, columns rotated below
	for i, name := range names {
		size := gocv.GetTextSize(name, font, tickScale, 1)
		y := top + i*opts.Cell + (opts.Cell+size.Y)/2
		gocv.PutText(&img, name, image.Pt(left-10-size.X, y), font, tickScale, black, 1)

		x := left + i*opts.Cell + opts.Cell/2 - size.Y/2
		putVertical(&img, name, image.Pt(x, top+grid+8), tickScale, false)
	}

	// axis labels and title
	xl := gocv.GetTextSize(opts.XLabel, font, labelScale, 1)
	gocv.PutText(&img, opts.XLabel, image.Pt(left+(grid-xl.X)/2, height-15), font, labelScale, black, 1)
	yl := gocv.GetTextSize(opts.YLabel, font, labelScale, 1)
	putVertical(&img, opts.YLabel, image.Pt(10, top+(grid-yl.X)/2), labelScale, true)
	tl := gocv.GetTextSize(opts.Title, font, titleScale, 2)
	gocv.PutText(&img, opts.Title, image.Pt(left+(grid-tl.X)/2, top-20), font, titleScale, black, 2)

	// colorbar, dark at the top
	barX := left + grid + 20
	for y := 0; y < grid; y++ {
		t := 1 - float64(y)/float64(max(grid-1, 1))
		gocv.Line(&img, image.Pt(barX, top+y), image.Pt(barX+barWidth, top+y), Blues(t), 1)
	}
	gocv.Rectangle(&img, image.Rect(barX, top, barX+barWidth, top+grid), black, 1)
	gocv.PutText(&img, strconv.Itoa(maxCount), image.Pt(barX+barWidth+6, top+10), font, tickScale, black, 1)
	gocv.PutText(&img, "0", image.Pt(barX+barWidth+6, top+grid), font, tickScale, black, 1)

	return img, nil
}

// putVertical draws text rotated by 90 degrees with its top-left corner at
// org. ccw selects counter-clockwise rotation (reads bottom to top).
func putVertical(img *gocv.Mat, text string, org image.Point, scale float64, ccw bool) {
	size := gocv.GetTextSize(text, font, scale, 1)
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	pad := 4
	strip := gocv.NewMatWithSize(size.Y+2*pad, size.X, gocv.MatTypeCV8UC3)
	defer strip.Close()
	strip.SetTo(gocv.NewScalar(255, 255, 255, 0))
	gocv.PutText(&strip, text, image.Pt(0, size.Y+pad), font, scale, black, 1)

	rotated := gocv.NewMat()
	defer rotated.Close()
	code := gocv.Rotate90Clockwise
	if ccw {
		code = gocv.Rotate90CounterClockwise
	}
	gocv.Rotate(strip, &rotated, code)

	r := image.Rect(org.X, org.Y, org.X+rotated.Cols(), org.Y+rotated.Rows()).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if r.Empty() {
		return
	}
	src := rotated.Region(image.Rect(0, 0, r.Dx(), r.Dy()))
	defer src.Close()
	dst := img.Region(r)
	defer dst.Close()
	src.CopyTo(&dst)
}

// SaveConfusionPNG renders cm and writes it to path, creating parent
// directories.
func SaveConfusionPNG(path string, cm [][]int, names []string, opts HeatmapOptions) error {
	img, err := RenderConfusion(cm, names, opts)
	if err != nil {
		return err
	}
	defer img.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
