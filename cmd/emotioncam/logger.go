package main

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

var allLogLevels = ""

func init() {
	names := make([]string, 0, len(logrus.AllLevels))
	for _, logLevel := range logrus.AllLevels {
		names = append(names, strings.ToUpper(logLevel.String()))
	}
	allLogLevels = strings.Join(names, "|")
}

func initLogger(lvl logrus.Level) {
	logger = &logrus.Logger{
		Out:   os.Stderr,
		Level: lvl,
		Hooks: make(logrus.LevelHooks),

		Formatter: &logrus.TextFormatter{
			DisableLevelTruncation: true,
			PadLevelText:           true,

			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		},
	}
}
