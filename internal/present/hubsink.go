package present

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/stream"
)

// Broadcaster is the part of stream.Hub a HubSink needs.
type Broadcaster interface {
	Broadcast(messages ...stream.Message) bool
	ClientCount() int
}

// FrameInfo is the JSON text message sent after each JPEG frame.
type FrameInfo struct {
	Seq       uint64       `json:"seq"`
	Time      time.Time    `json:"time"`
	FPS       float64      `json:"fps"`
	LatencyMs float64      `json:"latency_ms"`
	DetectMs  float64      `json:"detect_ms"`
	DrawMs    float64      `json:"draw_ms"`
	Results   []ResultInfo `json:"results"`
}

type ResultInfo struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
	// Box is [x0, y0, x1, y1], the same as in stored events.
	Box [4]int `json:"box"`
}

// HubSink JPEG-encodes annotated frames and broadcasts them with their results.
//
// Frames are skipped while nobody is watching or when MaxFPS is exceeded.
type HubSink struct {
	hub     Broadcaster
	limiter *rate.Limiter
}

// NewHubSink limits broadcasts to maxFPS frames per second; zero means unlimited.
func NewHubSink(hub Broadcaster, maxFPS float64) *HubSink {
	limit := rate.Inf
	if maxFPS > 0 {
		limit = rate.Limit(maxFPS)
	}
	return &HubSink{
		hub:     hub,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (h *HubSink) Put(frame gocv.Mat, ann Annotation) error {
	if h.hub.ClientCount() == 0 || frame.Empty() {
		return nil
	}
	if !h.limiter.AllowN(ann.Time, 1) {
		return nil
	}

	buf, err := gocv.IMEncode(".jpg", frame)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	defer buf.Close()

	// The native buffer is freed on Close, the hub needs its own copy.
	jpeg := append([]byte(nil), buf.GetBytes()...)

	info, err := json.Marshal(NewFrameInfo(ann))
	if err != nil {
		return errors.Wrap(err, "failed to encode frame info")
	}

	h.hub.Broadcast(
		stream.Message{Type: websocket.BinaryMessage, Data: jpeg},
		stream.Message{Type: websocket.TextMessage, Data: info},
	)
	return nil
}

func (h *HubSink) Close() error {
	return nil
}

func NewFrameInfo(ann Annotation) FrameInfo {
	info := FrameInfo{
		Seq:       ann.Seq,
		Time:      ann.Time,
		FPS:       ann.FPS,
		LatencyMs: float64(ann.Latency) / float64(time.Millisecond),
		DetectMs:  float64(ann.Timings.Detect) / float64(time.Millisecond),
		DrawMs:    float64(ann.Timings.Draw) / float64(time.Millisecond),
		Results:   make([]ResultInfo, 0, len(ann.Results)),
	}
	for _, r := range ann.Results {
		b := r.Region.Box
		info.Results = append(info.Results, ResultInfo{
			Label:      r.Label,
			Confidence: r.Confidence,
			Box:        [4]int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y},
		})
	}
	return info
}
