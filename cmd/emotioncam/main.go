package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func envVars(name string) []string {
	return []string{"EMOTIONCAM_" + name}
}

func pipelineFlags(opts *Options) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "capture",
			Usage:       "capture backend: [gocv|gst]",
			Value:       opts.CaptureBackend,
			Destination: &opts.CaptureBackend,
			EnvVars:     envVars("CAPTURE"),
		},
		&cli.StringFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "source frame stream; e.g., device ID, device node, file name, URL, etc.",
			Value:       opts.Device,
			Destination: &opts.Device,
			EnvVars:     envVars("SOURCE"),
		},
		&cli.StringFlag{
			Name:        "gst-source",
			Usage:       "GStreamer camera element: [qti|v4l2]",
			Value:       opts.GstSource,
			Destination: &opts.GstSource,
			EnvVars:     envVars("GST_SOURCE"),
		},
		&cli.StringFlag{
			Name:        "gst-pipeline",
			Usage:       "custom GStreamer launch line ending in an RGB 'appsink name=appsink'",
			Destination: &opts.GstPipeline,
			EnvVars:     envVars("GST_PIPELINE"),
		},
		&cli.IntFlag{
			Name:        "width",
			Value:       opts.Width,
			Destination: &opts.Width,
			EnvVars:     envVars("WIDTH"),
		},
		&cli.IntFlag{
			Name:        "height",
			Value:       opts.Height,
			Destination: &opts.Height,
			EnvVars:     envVars("HEIGHT"),
		},
		&cli.IntFlag{
			Name:        "fps",
			Usage:       "requested capture rate, also the nominal rate of the FPS estimate",
			Value:       opts.FPS,
			Destination: &opts.FPS,
			EnvVars:     envVars("FPS"),
		},
		&cli.IntFlag{
			Name:        "rotate",
			Usage:       "rotate frames clockwise by [0|90|180|270] degrees",
			Value:       opts.RotationDeg,
			Destination: &opts.RotationDeg,
			EnvVars:     envVars("ROTATE"),
		},

		&cli.StringFlag{
			Name:        "detector",
			Usage:       "face detector: [yunet|haar|yunet+haar]",
			Value:       opts.DetectorBackend,
			Destination: &opts.DetectorBackend,
			EnvVars:     envVars("DETECTOR"),
		},
		&cli.StringFlag{
			Name:        "yunet-model",
			Value:       opts.YuNetModel,
			Destination: &opts.YuNetModel,
			EnvVars:     envVars("YUNET_MODEL"),
		},
		&cli.StringFlag{
			Name:        "cls-file",
			Aliases:     []string{"c"},
			Usage:       "cascade classifier file; e.g., ./haarcascade_frontalface_default.xml",
			Value:       opts.CascadeFile,
			Destination: &opts.CascadeFile,
			EnvVars:     envVars("CASCADE"),
		},
		&cli.Float64Flag{
			Name:        "score-threshold",
			Value:       opts.ScoreThreshold,
			Destination: &opts.ScoreThreshold,
			EnvVars:     envVars("SCORE_THRESHOLD"),
		},
		&cli.Float64Flag{
			Name:        "detect-scale",
			Usage:       "downscale factor for detection, 1 disables",
			Value:       opts.DetectScale,
			Destination: &opts.DetectScale,
			EnvVars:     envVars("DETECT_SCALE"),
		},
		&cli.IntFlag{
			Name:        "detect-interval",
			Usage:       "run the detector every N processed frames, 0 on every frame",
			Value:       opts.DetectInterval,
			Destination: &opts.DetectInterval,
			EnvVars:     envVars("DETECT_INTERVAL"),
		},
		&cli.IntFlag{
			Name:        "min-side",
			Value:       opts.MinSide,
			Destination: &opts.MinSide,
			EnvVars:     envVars("MIN_SIDE"),
		},
		&cli.Float64Flag{
			Name:        "max-area",
			Usage:       "largest accepted box area as a fraction of the frame",
			Value:       opts.MaxAreaFrac,
			Destination: &opts.MaxAreaFrac,
			EnvVars:     envVars("MAX_AREA"),
		},
		&cli.Float64Flag{
			Name:        "max-side",
			Usage:       "largest accepted box side as a fraction of the frame side",
			Value:       opts.MaxSideFrac,
			Destination: &opts.MaxSideFrac,
			EnvVars:     envVars("MAX_SIDE"),
		},

		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "classifier network; e.g., ./emotion.onnx",
			Required:    true,
			Destination: &opts.Model,
			EnvVars:     envVars("MODEL"),
		},
		&cli.StringFlag{
			Name:        "model-config",
			Usage:       "network configuration file, if the model format needs one",
			Destination: &opts.ModelConfig,
			EnvVars:     envVars("MODEL_CONFIG"),
		},
		&cli.StringFlag{
			Name:        "labels",
			Usage:       "label file with one class name per line",
			Destination: &opts.LabelsFile,
			EnvVars:     envVars("LABELS"),
		},
		&cli.IntFlag{
			Name:        "input-width",
			Value:       opts.InputWidth,
			Destination: &opts.InputWidth,
			EnvVars:     envVars("INPUT_WIDTH"),
		},
		&cli.IntFlag{
			Name:        "input-height",
			Value:       opts.InputHeight,
			Destination: &opts.InputHeight,
			EnvVars:     envVars("INPUT_HEIGHT"),
		},
		&cli.IntFlag{
			Name:        "input-channels",
			Value:       opts.InputChannels,
			Destination: &opts.InputChannels,
			EnvVars:     envVars("INPUT_CHANNELS"),
		},
		&cli.StringFlag{
			Name:        "norm",
			Usage:       "input normalization: [mean|unit]",
			Value:       opts.NormString,
			Destination: &opts.NormString,
			EnvVars:     envVars("NORM"),
		},
		&cli.StringFlag{
			Name:        "dnn-backend",
			Usage:       "preferred OpenCV DNN backend; e.g., cuda, openvino",
			Destination: &opts.DNNBackend,
			EnvVars:     envVars("DNN_BACKEND"),
		},
		&cli.StringFlag{
			Name:        "dnn-target",
			Usage:       "preferred OpenCV DNN target; e.g., cuda, cpu",
			Destination: &opts.DNNTarget,
			EnvVars:     envVars("DNN_TARGET"),
		},
		&cli.Float64Flag{
			Name:        "crop-scale",
			Value:       opts.CropScale,
			Destination: &opts.CropScale,
			EnvVars:     envVars("CROP_SCALE"),
		},

		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "record annotated frames to this video file",
			Destination: &opts.OutputPath,
			EnvVars:     envVars("OUTPUT"),
		},
		&cli.BoolFlag{
			Name:        "timing",
			Usage:       "log per-stage timings of every frame",
			Destination: &opts.LogTimings,
			EnvVars:     envVars("TIMING"),
		},
		&cli.BoolFlag{
			Name:        "blur",
			Usage:       "blur detected faces in the output",
			Destination: &opts.BlurRegions,
			EnvVars:     envVars("BLUR"),
		},

		&cli.StringFlag{
			Name:        "snapshot-dir",
			Usage:       "save a face crop per event into this directory",
			Destination: &opts.SnapshotDir,
			EnvVars:     envVars("SNAPSHOT_DIR"),
		},
		&cli.StringFlag{
			Name:        "db",
			Usage:       "record events into this SQLite database",
			Destination: &opts.Database,
			EnvVars:     envVars("DB"),
		},
		&cli.DurationFlag{
			Name:        "cooldown",
			Usage:       "minimum time between two events of the same label",
			Value:       opts.Cooldown,
			Destination: &opts.Cooldown,
			EnvVars:     envVars("COOLDOWN"),
		},
		&cli.StringFlag{
			Name:        "tts",
			Usage:       "text-to-speech command announcing each event; e.g., 'espeak {}'",
			Destination: &opts.TTSCommand,
			EnvVars:     envVars("TTS"),
		},

		&cli.StringFlag{
			Name:        "listen",
			Usage:       "serve live frames, metrics and events on this address; e.g., :8080",
			Destination: &opts.Listen,
			EnvVars:     envVars("LISTEN"),
		},
		&cli.Float64Flag{
			Name:        "stream-fps",
			Usage:       "maximum rate of frames sent to live viewers, 0 for no limit",
			Destination: &opts.StreamFPS,
			EnvVars:     envVars("STREAM_FPS"),
		},
	}
}

func newApp(opts *Options) *cli.App {
	return &cli.App{
		Name:  "emotioncam",
		Usage: "classify the facial expressions seen by a camera",

		Before: func(c *cli.Context) error {
			if err := opts.ValidateLogLevelString(); err != nil {
				return err
			}

			initLogger(opts.logLevel)
			return nil
		},

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       fmt.Sprintf("log level: [%s]", allLogLevels),
				Value:       opts.LogLevelString,
				Destination: &opts.LogLevelString,
				EnvVars:     envVars("LOG_LEVEL"),
			},
		},

		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the pipeline headless or with an OpenCV window",

				Flags: append(pipelineFlags(opts), &cli.StringFlag{
					Name:        "show",
					Usage:       "display mode: [none|cv]",
					Value:       opts.Show,
					Destination: &opts.Show,
					EnvVars:     envVars("SHOW"),
				}),

				Before: func(c *cli.Context) error {
					return opts.ValidatePipeline()
				},

				Action: func(c *cli.Context) error {
					logger.Debugf("Running with arguments: %+v", *opts)
					return runMain(c.Context, opts)
				},
			},

			{
				Name:  "gui",
				Usage: "Run the pipeline in a GUI window",

				Flags: pipelineFlags(opts),

				Before: func(c *cli.Context) error {
					return opts.ValidatePipeline()
				},

				Action: func(c *cli.Context) error {
					logger.Debugf("Running with arguments: %+v", *opts)
					return guiMain(c.Context, opts)
				},
			},

			{
				Name:  "events",
				Usage: "List recorded events",

				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "db",
						Usage:       "SQLite database written by the run command",
						Required:    true,
						Destination: &opts.Database,
						EnvVars:     envVars("DB"),
					},
					&cli.StringFlag{
						Name:        "session",
						Usage:       "only events of this session ID",
						Destination: &opts.SessionID,
					},
					&cli.StringFlag{
						Name:        "label",
						Destination: &opts.Label,
					},
					&cli.DurationFlag{
						Name:        "since",
						Usage:       "only events of this last period; e.g., 1h",
						Destination: &opts.Since,
					},
					&cli.IntFlag{
						Name:        "limit",
						Value:       opts.Limit,
						Destination: &opts.Limit,
					},
					&cli.BoolFlag{
						Name:        "counts",
						Usage:       "print per-label counts instead of single events",
						Destination: &opts.ShowCounts,
					},
					&cli.BoolFlag{
						Name:        "sessions",
						Usage:       "list recorded sessions instead of events",
						Destination: &opts.ShowSessions,
					},
				},

				Action: func(c *cli.Context) error {
					return eventsMain(c.Context, c.App.Writer, opts)
				},
			},
		},
	}
}

func main() {
	opts := defaultOptions()

	// A missing .env file is fine; flags and the real environment still apply.
	if path := os.Getenv("EMOTIONCAM_ENV_FILE"); path != "" {
		opts.EnvFile = path
	}
	_ = godotenv.Load(opts.EnvFile)

	err := newApp(opts).Run(os.Args)
	if err != nil {
		fmt.Println("Application failed:", err.Error())
		os.Exit(1)
	}
}
