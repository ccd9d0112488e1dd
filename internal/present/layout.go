// Package present draws results onto frames and hands annotated frames to sinks:
// a video file, an OpenCV window and live websocket viewers.
package present

import "image"

// LabelAnchor places a text label of size text (with baseline) for box.
//
// The label goes margin pixels above the box; when that would leave the frame
// it goes inside the box, below its top edge. bg is the label background,
// padded by 2 pixels and clamped to frame.
func LabelAnchor(box image.Rectangle, text image.Point, baseline, margin int, frame image.Rectangle) (origin image.Point, bg image.Rectangle) {
	x := box.Min.X
	y := box.Min.Y - margin
	if y-text.Y < frame.Min.Y {
		y = box.Min.Y + text.Y + margin
	}

	bg = image.Rect(
		maxInt(frame.Min.X, x-2),
		maxInt(frame.Min.Y, y-text.Y-2),
		minInt(frame.Max.X-1, x+text.X+2),
		minInt(frame.Max.Y-1, y+baseline+2),
	)
	return image.Pt(x, y), bg
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
