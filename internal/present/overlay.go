package present

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/metrics"
)

// Annotation is everything drawn on or reported about one processed frame.
type Annotation struct {
	Seq     uint64
	Time    time.Time
	Results []classify.Result

	// Latency is the slowest inference of the frame; zero when nothing was classified.
	Latency time.Duration
	FPS     float64
	// Timings covers the steps up to and including drawing.
	Timings metrics.Timings
}

// Label is the text drawn for a result, e.g. "Happy (87%)".
func Label(r classify.Result) string {
	return fmt.Sprintf("%s (%.0f%%)", r.Label, float64(r.Confidence)*100)
}

type Style struct {
	Font      gocv.HersheyFont
	FontScale float64
	Thickness int
	Margin    int

	BoxColor  color.RGBA
	TextColor color.RGBA
	HUDColor  color.RGBA
	TextBG    color.RGBA
}

func DefaultStyle() Style {
	return Style{
		Font:      gocv.FontHersheySimplex,
		FontScale: 0.55,
		Thickness: 1,
		Margin:    6,

		BoxColor:  color.RGBA{R: 255, G: 0, B: 255, A: 255},
		TextColor: color.RGBA{R: 0, G: 220, B: 0, A: 255},
		HUDColor:  color.RGBA{R: 0, G: 255, B: 255, A: 255},
		TextBG:    color.RGBA{A: 255},
	}
}

// Overlay draws boxes, labels and the latency/FPS HUD in place.
type Overlay struct {
	Style Style

	// BlurRegions blurs the detected boxes before labels are drawn.
	BlurRegions bool
}

func NewOverlay() *Overlay {
	return &Overlay{Style: DefaultStyle()}
}

func (o *Overlay) Draw(frame *gocv.Mat, ann Annotation) error {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	s := o.Style

	for _, r := range ann.Results {
		box := r.Region.Box.Intersect(bounds)
		if box.Empty() {
			continue
		}

		if o.BlurRegions {
			if err := blur(frame, box); err != nil {
				return err
			}
		}

		if err := gocv.Rectangle(frame, box, s.BoxColor, 2); err != nil {
			return errors.Wrap(err, "failed to draw box")
		}

		text := Label(r)
		size, baseline := gocv.GetTextSizeWithBaseline(text, s.Font, s.FontScale, s.Thickness)
		origin, bg := LabelAnchor(box, size, baseline, s.Margin, bounds)
		if err := o.drawText(frame, text, origin, bg, s.TextColor); err != nil {
			return err
		}
	}

	y := 20
	if ann.Latency > 0 {
		y = o.drawHUDLine(frame, fmt.Sprintf("Infer: %.1f ms", float64(ann.Latency)/float64(time.Millisecond)), y)
	}
	if ann.FPS > 0 {
		o.drawHUDLine(frame, fmt.Sprintf("FPS: %.1f", ann.FPS), y)
	}

	return nil
}

// drawHUDLine draws text with its top at y in the top-left corner and returns
// where the next line starts.
func (o *Overlay) drawHUDLine(frame *gocv.Mat, text string, y int) int {
	s := o.Style
	size, baseline := gocv.GetTextSizeWithBaseline(text, s.Font, s.FontScale, s.Thickness)

	x := 10
	y += size.Y
	bg := image.Rect(x-2, y-size.Y-2, x+size.X+2, y+baseline+2)
	_ = o.drawText(frame, text, image.Pt(x, y), bg, s.HUDColor)

	return y + baseline + 8
}

func (o *Overlay) drawText(frame *gocv.Mat, text string, origin image.Point, bg image.Rectangle, c color.RGBA) error {
	s := o.Style
	if err := gocv.Rectangle(frame, bg, s.TextBG, -1); err != nil {
		return errors.Wrap(err, "failed to draw label background")
	}
	gocv.PutTextWithParams(frame, text, origin, s.Font, s.FontScale, c, s.Thickness, gocv.LineAA, false)
	return nil
}

func blur(frame *gocv.Mat, box image.Rectangle) error {
	roi := frame.Region(box)
	gocv.GaussianBlur(roi, &roi, image.Pt(75, 75), 0, 0, gocv.BorderDefault)
	return errors.Wrap(roi.Close(), "failed to close blurred region")
}
