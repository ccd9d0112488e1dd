package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/capture"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/detect"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

// Options stores the parsed command line arguments.
type Options struct {
	// LogLevelString can be used to override the default log level.
	LogLevelString string

	// EnvFile is loaded into the environment before flags are read, if it exists.
	EnvFile string

	CaptureBackend string
	Device         string
	GstSource      string
	GstPipeline    string
	Width          int
	Height         int
	FPS            int
	RotationDeg    int

	DetectorBackend string
	YuNetModel      string
	CascadeFile     string
	ScoreThreshold  float64
	DetectScale     float64
	DetectInterval  int
	MinSide         int
	MaxAreaFrac     float64
	MaxSideFrac     float64

	Model         string
	ModelConfig   string
	LabelsFile    string
	InputWidth    int
	InputHeight   int
	InputChannels int
	NormString    string
	DNNBackend    string
	DNNTarget     string
	CropScale     float64

	Show        string
	OutputPath  string
	LogTimings  bool
	BlurRegions bool

	SnapshotDir string
	Database    string
	Cooldown    time.Duration
	TTSCommand  string

	Listen    string
	StreamFPS float64

	// events command
	SessionID    string
	Label        string
	Since        time.Duration
	Limit        int
	ShowCounts   bool
	ShowSessions bool

	logLevel        logrus.Level
	captureBackend  capture.Backend
	rotation        capture.Rotation
	detectorBackend detect.Backend
	norm            tensor.NormMode
}

func defaultOptions() *Options {
	guard := region.DefaultGuard()

	return &Options{
		LogLevelString: "INFO",
		EnvFile:        ".env",

		CaptureBackend: "gocv",
		Device:         "0",
		GstSource:      "v4l2",
		Width:          640,
		Height:         480,
		FPS:            30,

		DetectorBackend: "yunet+haar",
		YuNetModel:      "face_detection_yunet_2023mar.onnx",
		CascadeFile:     "haarcascade_frontalface_default.xml",
		ScoreThreshold:  0.6,
		DetectScale:     1,
		DetectInterval:  5,
		MinSide:         guard.MinSide,
		MaxAreaFrac:     guard.MaxAreaFrac,
		MaxSideFrac:     guard.MaxSideFrac,

		InputWidth:    224,
		InputHeight:   224,
		InputChannels: 3,
		NormString:    "mean",
		CropScale:     1.25,

		Show: "none",

		Cooldown: 5 * time.Second,
		Limit:    50,

		logLevel: logrus.InfoLevel,
	}
}

func (o *Options) ValidateLogLevelString() error {
	l, err := logrus.ParseLevel(o.LogLevelString)
	if err != nil {
		return err
	}

	o.logLevel = l
	return nil
}

// ValidatePipeline checks everything the run and gui commands need.
func (o *Options) ValidatePipeline() error {
	validators := []func() error{
		o.ValidateCapture,
		o.ValidateDetection,
		o.ValidateClassifier,
		o.ValidateOutput,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) ValidateCapture() error {
	var err error
	if o.captureBackend, err = capture.ParseBackend(o.CaptureBackend); err != nil {
		return err
	}
	if o.rotation, err = capture.ParseRotation(o.RotationDeg); err != nil {
		return err
	}
	if o.Width < 0 || o.Height < 0 || o.FPS < 0 {
		return errors.Errorf("capture size and rate must not be negative, got %dx%d @ %d", o.Width, o.Height, o.FPS)
	}
	return nil
}

func (o *Options) ValidateDetection() error {
	var err error
	if o.detectorBackend, err = detect.ParseBackend(o.DetectorBackend); err != nil {
		return err
	}
	if o.DetectInterval < 0 {
		return errors.Errorf("detect interval must not be negative, got %d", o.DetectInterval)
	}
	if o.DetectScale <= 0 || o.DetectScale > 1 {
		return errors.Errorf("detect scale must be in (0, 1], got %g", o.DetectScale)
	}
	if o.MinSide <= 0 {
		return errors.Errorf("min side must be positive, got %d", o.MinSide)
	}
	if o.MaxAreaFrac <= 0 || o.MaxAreaFrac > 1 || o.MaxSideFrac <= 0 || o.MaxSideFrac > 1 {
		return errors.Errorf("max area and max side fractions must be in (0, 1], got %g and %g", o.MaxAreaFrac, o.MaxSideFrac)
	}
	return nil
}

func (o *Options) ValidateClassifier() error {
	if o.Model == "" {
		return errors.New("no classifier model given")
	}
	if o.InputWidth <= 0 || o.InputHeight <= 0 {
		return errors.Errorf("model input size must be positive, got %dx%d", o.InputWidth, o.InputHeight)
	}
	if o.InputChannels != 1 && o.InputChannels != 3 {
		return errors.Errorf("model input must have 1 or 3 channels, got %d", o.InputChannels)
	}

	var err error
	o.norm, err = tensor.ParseNormMode(o.NormString)
	return err
}

func (o *Options) ValidateOutput() error {
	switch strings.ToLower(o.Show) {
	case "none", "cv":
	default:
		return errors.Errorf("unknown show mode '%s'", o.Show)
	}
	if o.Cooldown < 0 {
		return errors.Errorf("cooldown must not be negative, got %v", o.Cooldown)
	}
	if o.StreamFPS < 0 {
		return errors.Errorf("stream fps must not be negative, got %g", o.StreamFPS)
	}
	return nil
}

func (o *Options) guard() region.Guard {
	return region.Guard{
		MinSide:     o.MinSide,
		MaxAreaFrac: o.MaxAreaFrac,
		MaxSideFrac: o.MaxSideFrac,
	}
}

func (o *Options) captureConfig() capture.Config {
	return capture.Config{
		Backend:   o.captureBackend,
		Device:    o.Device,
		GstSource: o.GstSource,
		Pipeline:  o.GstPipeline,
		Width:     o.Width,
		Height:    o.Height,
		FPS:       o.FPS,
	}
}

func (o *Options) detectConfig() detect.Config {
	return detect.Config{
		Backend:        o.detectorBackend,
		YuNetModel:     o.YuNetModel,
		ScoreThreshold: float32(o.ScoreThreshold),
		CascadeFile:    o.CascadeFile,
		Scale:          o.DetectScale,
		Guard:          o.guard(),
	}
}
