// Package detect finds face regions in BGR frames.
package detect

import (
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

// Detector returns the regions found in a BGR frame, in frame coordinates.
// A Detector is used by one goroutine only.
type Detector interface {
	Detect(frame gocv.Mat) ([]region.Region, error)
	Close() error
}

type Backend string

const (
	BackendYuNet     Backend = "yunet"
	BackendCascade   Backend = "haar"
	BackendYuNetHaar Backend = "yunet+haar"
)

var AllBackends = []Backend{BackendYuNet, BackendCascade, BackendYuNetHaar}

func ParseBackend(s string) (Backend, error) {
	for _, b := range AllBackends {
		if strings.EqualFold(s, string(b)) {
			return b, nil
		}
	}
	return "", errors.Errorf("unknown detector backend '%s'", s)
}

type Config struct {
	Backend Backend

	YuNetModel     string
	ScoreThreshold float32

	CascadeFile string

	// Scale downscales frames before detection, see region.DownscaledSize.
	Scale float64

	// Guard decides whether the primary detector found anything usable when a
	// secondary detector is configured.
	Guard region.Guard
}

// Open creates the detector described by cfg.
func Open(cfg Config) (Detector, error) {
	var (
		d   Detector
		err error
	)

	switch cfg.Backend {
	case BackendYuNet:
		d, err = NewYuNet(YuNetConfig{Model: cfg.YuNetModel, ScoreThreshold: cfg.ScoreThreshold})

	case BackendCascade:
		d, err = NewCascade(cfg.CascadeFile, cfg.Guard.MinSide)

	case BackendYuNetHaar:
		var primary, secondary Detector
		if primary, err = NewYuNet(YuNetConfig{Model: cfg.YuNetModel, ScoreThreshold: cfg.ScoreThreshold}); err != nil {
			break
		}
		if secondary, err = NewCascade(cfg.CascadeFile, cfg.Guard.MinSide); err != nil {
			primary.Close()
			break
		}
		d = &Fallback{Primary: primary, Secondary: secondary, Guard: cfg.Guard}

	default:
		err = errors.Errorf("unknown detector backend '%s'", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Scale > 0 && cfg.Scale < 1 {
		d = NewScaled(d, cfg.Scale)
	}
	return d, nil
}
