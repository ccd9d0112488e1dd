package present

import (
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
)

// Window shows annotated frames in an OpenCV HighGUI window.
//
// The window is created by the first Put, on the goroutine that keeps showing
// frames. Pressing q returns stage.ErrStop from Put.
type Window struct {
	Title string

	window *gocv.Window
}

func NewWindow(title string) *Window {
	return &Window{Title: title}
}

func (w *Window) Put(frame gocv.Mat, _ Annotation) error {
	if w.window == nil {
		w.window = gocv.NewWindow(w.Title)
	}

	w.window.IMShow(frame)
	if key := w.window.WaitKey(1); key == 'q' || key == 'Q' {
		return stage.ErrStop
	}
	return nil
}

func (w *Window) Close() error {
	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}
