package present

import (
	"encoding/json"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/metrics"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stage"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stream"
)

var vga = image.Rect(0, 0, 640, 480)

func TestLabelAnchorAboveBox(t *testing.T) {
	origin, bg := LabelAnchor(image.Rect(100, 100, 200, 200), image.Pt(50, 12), 4, 6, vga)
	assert.Equal(t, image.Pt(100, 94), origin)
	assert.Equal(t, image.Rect(98, 80, 152, 100), bg)
}

func TestLabelAnchorInsideBoxAtTop(t *testing.T) {
	origin, bg := LabelAnchor(image.Rect(100, 5, 200, 100), image.Pt(50, 12), 4, 6, vga)
	assert.Equal(t, image.Pt(100, 23), origin)
	assert.Equal(t, image.Rect(98, 9, 152, 29), bg)
}

func TestLabelAnchorClampsBackground(t *testing.T) {
	_, bg := LabelAnchor(image.Rect(0, 0, 40, 40), image.Pt(700, 12), 4, 6, vga)
	assert.Equal(t, 0, bg.Min.X)
	assert.Equal(t, 639, bg.Max.X)
	assert.True(t, bg.In(vga))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Happy (87%)", Label(classify.Result{Label: "Happy", Confidence: 0.87}))
	assert.Equal(t, "Sad (100%)", Label(classify.Result{Label: "Sad", Confidence: 1}))
}

func sampleAnnotation() Annotation {
	return Annotation{
		Seq:  12,
		Time: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		Results: []classify.Result{{
			Label:      "Surprise",
			Confidence: 0.5,
			Region:     region.Region{Box: image.Rect(10, 20, 110, 140), Confidence: 0.9},
			Box:        image.Rect(0, 10, 125, 150),
		}},
		Latency: 4500 * time.Microsecond,
		FPS:     29.5,
		Timings: metrics.Timings{Detect: 2 * time.Millisecond, Draw: 250 * time.Microsecond},
	}
}

func TestOverlayDrawsInsideFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	o := NewOverlay()
	o.BlurRegions = true
	require.NoError(t, o.Draw(&frame, sampleAnnotation()))

	// Something was drawn on the black frame.
	sum := frame.Sum()
	assert.Greater(t, sum.Val1+sum.Val2+sum.Val3, 0.0)
}

func TestOverlaySkipsBoxesOutsideFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	ann := Annotation{Results: []classify.Result{{
		Label:  "Happy",
		Region: region.Region{Box: image.Rect(200, 200, 300, 300)},
	}}}
	require.NoError(t, NewOverlay().Draw(&frame, ann))

	sum := frame.Sum()
	assert.Equal(t, 0.0, sum.Val1+sum.Val2+sum.Val3)
}

func TestNewFrameInfo(t *testing.T) {
	info := NewFrameInfo(sampleAnnotation())

	assert.Equal(t, uint64(12), info.Seq)
	assert.InDelta(t, 4.5, info.LatencyMs, 1e-9)
	assert.InDelta(t, 2.0, info.DetectMs, 1e-9)
	assert.InDelta(t, 0.25, info.DrawMs, 1e-9)
	if assert.Len(t, info.Results, 1) {
		assert.Equal(t, "Surprise", info.Results[0].Label)
		assert.Equal(t, [4]int{10, 20, 110, 140}, info.Results[0].Box)
	}
}

type fakeHub struct {
	clients int
	sent    [][]stream.Message
}

func (f *fakeHub) Broadcast(messages ...stream.Message) bool {
	f.sent = append(f.sent, messages)
	return true
}

func (f *fakeHub) ClientCount() int {
	return f.clients
}

func TestHubSinkSkipsWithoutViewers(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hub := &fakeHub{}
	sink := NewHubSink(hub, 0)
	require.NoError(t, sink.Put(frame, sampleAnnotation()))
	assert.Empty(t, hub.sent)
}

func TestHubSinkBroadcastsFrameAndInfo(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hub := &fakeHub{clients: 1}
	sink := NewHubSink(hub, 0)
	require.NoError(t, sink.Put(frame, sampleAnnotation()))
	require.Len(t, hub.sent, 1)

	msgs := hub.sent[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, websocket.BinaryMessage, msgs[0].Type)
	assert.Equal(t, []byte{0xFF, 0xD8}, msgs[0].Data[:2], "JPEG magic")

	assert.Equal(t, websocket.TextMessage, msgs[1].Type)
	var info FrameInfo
	require.NoError(t, json.Unmarshal(msgs[1].Data, &info))
	assert.Equal(t, uint64(12), info.Seq)
}

func TestHubSinkRateLimit(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	hub := &fakeHub{clients: 1}
	sink := NewHubSink(hub, 2)

	ann := sampleAnnotation()
	for i := 0; i < 4; i++ {
		ann.Time = ann.Time.Add(100 * time.Millisecond)
		require.NoError(t, sink.Put(frame, ann))
	}
	// 2 fps over 400ms with a burst of one.
	assert.Len(t, hub.sent, 1)
}

type recordingSink struct {
	puts   int
	err    error
	closed bool
}

func (r *recordingSink) Put(gocv.Mat, Annotation) error {
	r.puts++
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func TestMultiFeedsEverySinkDespiteErrors(t *testing.T) {
	frame := gocv.NewMat()
	defer frame.Close()

	a := &recordingSink{err: errors.New("boom")}
	b := &recordingSink{}
	c := &recordingSink{err: errors.New("bang")}
	m := Multi{a, b, c}

	for i := 0; i < 3; i++ {
		assert.EqualError(t, m.Put(frame, Annotation{}), "boom, bang")
	}
	assert.Equal(t, 3, a.puts)
	assert.Equal(t, 3, b.puts)
	assert.Equal(t, 3, c.puts)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.True(t, c.closed)
}

func TestMultiStopWinsOverErrors(t *testing.T) {
	frame := gocv.NewMat()
	defer frame.Close()

	failing := &recordingSink{err: errors.New("encoder broke")}
	window := &recordingSink{err: stage.ErrStop}
	m := Multi{failing, window}

	assert.Same(t, stage.ErrStop, m.Put(frame, Annotation{}))
	assert.Equal(t, 1, window.puts, "a sink after a failing one still gets the frame")
}

func TestVideoFileDisablesItselfWhenUnwritable(t *testing.T) {
	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	log, hook := test.NewNullLogger()
	v := NewVideoFile(filepath.Join(t.TempDir(), "missing", "out.mp4"), 10, log)

	for i := 0; i < 3; i++ {
		require.NoError(t, v.Put(frame, Annotation{Seq: uint64(i)}))
	}
	assert.True(t, v.Disabled())
	assert.NoError(t, v.Close())

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "the failure is reported once")
}
