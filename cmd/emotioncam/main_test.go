package main

import (
	"bytes"
	"context"
	"image"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/capture"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/classify"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/detect"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/present"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

func validOptions() *Options {
	opts := defaultOptions()
	opts.Model = "emotion.onnx"
	return opts
}

func TestDefaultOptionsValidate(t *testing.T) {
	opts := validOptions()
	require.NoError(t, opts.ValidateLogLevelString())
	require.NoError(t, opts.ValidatePipeline())

	assert.Equal(t, capture.BackendGocv, opts.captureBackend)
	assert.Equal(t, capture.Rotate0, opts.rotation)
	assert.Equal(t, detect.BackendYuNetHaar, opts.detectorBackend)
	assert.Equal(t, tensor.NormMean, opts.norm)
	assert.Equal(t, 5, opts.DetectInterval)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"capture backend", func(o *Options) { o.CaptureBackend = "dshow" }},
		{"rotation", func(o *Options) { o.RotationDeg = 45 }},
		{"detector", func(o *Options) { o.DetectorBackend = "mtcnn" }},
		{"negative interval", func(o *Options) { o.DetectInterval = -1 }},
		{"detect scale", func(o *Options) { o.DetectScale = 0 }},
		{"min side", func(o *Options) { o.MinSide = 0 }},
		{"max area", func(o *Options) { o.MaxAreaFrac = 1.5 }},
		{"no model", func(o *Options) { o.Model = "" }},
		{"channels", func(o *Options) { o.InputChannels = 4 }},
		{"norm", func(o *Options) { o.NormString = "zscore" }},
		{"show", func(o *Options) { o.Show = "fyne" }},
		{"cooldown", func(o *Options) { o.Cooldown = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.modify(opts)
			assert.Error(t, opts.ValidatePipeline())
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	opts := validOptions()
	opts.LogLevelString = "loud"
	assert.Error(t, opts.ValidateLogLevelString())

	opts.LogLevelString = "DEBUG"
	require.NoError(t, opts.ValidateLogLevelString())
	assert.Equal(t, "debug", opts.logLevel.String())
}

func TestAllLogLevels(t *testing.T) {
	assert.True(t, strings.HasPrefix(allLogLevels, "PANIC|FATAL|ERROR"))
	assert.True(t, strings.HasSuffix(allLogLevels, "TRACE"))
}

func TestDetectConfigCarriesGuard(t *testing.T) {
	opts := validOptions()
	opts.MinSide = 40
	require.NoError(t, opts.ValidatePipeline())

	cfg := opts.detectConfig()
	assert.Equal(t, 40, cfg.Guard.MinSide)
	assert.Equal(t, detect.BackendYuNetHaar, cfg.Backend)
	assert.InDelta(t, 0.6, float64(cfg.ScoreThreshold), 1e-6)
}

func TestResultsText(t *testing.T) {
	assert.Equal(t, "FPS: 12.5\nNo faces", resultsText(present.Annotation{FPS: 12.5}))

	ann := present.Annotation{
		FPS: 30,
		Results: []classify.Result{
			{Label: "Happy", Confidence: 0.9},
			{Label: "Sad", Confidence: 0.41},
		},
	}
	assert.Equal(t, "FPS: 30.0\nHappy (90%)\nSad (41%)", resultsText(ann))
}

func TestWriteEvents(t *testing.T) {
	var buf bytes.Buffer
	err := writeEvents(&buf, []store.Event{{
		Label:      "Happy",
		Confidence: 0.75,
		Box:        image.Rect(1, 2, 3, 4),
		FrameSeq:   9,
		SessionID:  "s1",
		CreatedAt:  time.Unix(0, 0),
	}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "LABEL")
	assert.Contains(t, lines[1], "Happy")
	assert.Contains(t, lines[1], "75%")
	assert.Contains(t, lines[1], "\t-\t", "no snapshot")
}

func TestWriteCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCounts(&buf, []store.LabelCount{{Label: "Happy", Count: 3}}))
	assert.Equal(t, "LABEL\tCOUNT\nHappy\t3\n", buf.String())
}

func TestEventsMainListsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	sess, err := db.StartSession(ctx, store.Session{Source: "0", Model: "emotion.onnx", Backend: "opencv/cpu"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	opts := defaultOptions()
	opts.Database = path
	opts.ShowSessions = true

	var buf bytes.Buffer
	require.NoError(t, eventsMain(ctx, &buf, opts))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "SESSION")
	assert.Contains(t, lines[1], sess.ID)
	assert.Contains(t, lines[1], "emotion.onnx")
}
