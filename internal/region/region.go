// Package region holds the bounding-box geometry of detected subjects.
package region

import (
	"image"
	"math"
	"sort"
)

// Region is a detected subject inside a frame.
type Region struct {
	Box        image.Rectangle
	Confidence float32

	// Seq is the sequence number of the frame the box was detected on.
	Seq uint64
}

func (r Region) Area() int {
	return r.Box.Dx() * r.Box.Dy()
}

// Guard rejects boxes that are too small to classify or so large that they are
// almost certainly a false positive covering the whole frame.
type Guard struct {
	MinSide     int
	MaxAreaFrac float64
	MaxSideFrac float64
}

func DefaultGuard() Guard {
	return Guard{
		MinSide:     24,
		MaxAreaFrac: 0.85,
		MaxSideFrac: 0.95,
	}
}

func (g Guard) Valid(box, frame image.Rectangle) bool {
	w, h := box.Dx(), box.Dy()
	if w < g.MinSide || h < g.MinSide {
		return false
	}

	fw, fh := frame.Dx(), frame.Dy()
	if fw <= 0 || fh <= 0 {
		return false
	}

	if float64(w*h)/float64(fw*fh) > g.MaxAreaFrac {
		return false
	}

	if float64(w) > g.MaxSideFrac*float64(fw) || float64(h) > g.MaxSideFrac*float64(fh) {
		return false
	}

	return true
}

// Clamp limits the corners of box to the last pixel row and column of frame
// and orders them so that Min <= Max.
func Clamp(box, frame image.Rectangle) image.Rectangle {
	maxX, maxY := frame.Max.X-1, frame.Max.Y-1

	x0, y0 := clampInt(box.Min.X, frame.Min.X, maxX), clampInt(box.Min.Y, frame.Min.Y, maxY)
	x1, y1 := clampInt(box.Max.X, frame.Min.X, maxX), clampInt(box.Max.Y, frame.Min.Y, maxY)

	// image.Rect swaps reversed coordinates.
	return image.Rect(x0, y0, x1, y1)
}

// DownscaledSize is the detection input size for a frame scaled by factor.
//
// A factor outside (0, 1) disables downscaling and returns the frame size.
func DownscaledSize(frame image.Point, factor float64) image.Point {
	if factor <= 0 || factor >= 1 {
		return frame
	}

	return image.Pt(
		maxInt(64, int(float64(frame.X)*factor)),
		maxInt(48, int(float64(frame.Y)*factor)),
	)
}

// Rescale maps boxes detected on an image of size from back onto an image of size to.
//
// The scale factors are computed per axis, corners are rounded to the nearest
// pixel and clamped. Boxes that collapse to nothing are dropped.
func Rescale(regions []Region, from, to image.Point) []Region {
	if from.X <= 0 || from.Y <= 0 {
		return nil
	}

	sx := float64(to.X) / float64(from.X)
	sy := float64(to.Y) / float64(from.Y)
	bounds := image.Rectangle{Max: to}

	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		box := image.Rect(
			int(math.Round(float64(r.Box.Min.X)*sx)),
			int(math.Round(float64(r.Box.Min.Y)*sy)),
			int(math.Round(float64(r.Box.Max.X)*sx)),
			int(math.Round(float64(r.Box.Max.Y)*sy)),
		)
		box = Clamp(box, bounds)
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}

		r.Box = box
		out = append(out, r)
	}

	return out
}

// SquareExpand grows box into a centred square whose side is scale times the
// longer side of the box, clamped to frame.
//
// When clamping leaves nothing the original box is returned.
func SquareExpand(box, frame image.Rectangle, scale float64) image.Rectangle {
	w := maxInt(1, box.Dx())
	h := maxInt(1, box.Dy())
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2

	side := int(math.Ceil(scale * float64(maxInt(w, h))))
	half := float64(side / 2)

	x0 := int(math.Round(cx - half))
	y0 := int(math.Round(cy - half))
	x1, y1 := x0+side, y0+side

	x0 = maxInt(frame.Min.X, x0)
	y0 = maxInt(frame.Min.Y, y0)
	x1 = minInt(frame.Max.X-1, x1)
	y1 = minInt(frame.Max.Y-1, y1)

	if x1 <= x0 || y1 <= y0 {
		return box
	}

	return image.Rect(x0, y0, x1, y1)
}

// SortByArea orders regions largest first. Ties keep their detection order.
func SortByArea(regions []Region) {
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Area() > regions[j].Area()
	})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
