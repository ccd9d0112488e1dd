package sidefx

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Snapshot writes the event crop as a JPEG file into Dir.
type Snapshot struct {
	Dir     string
	Quality int
}

func NewSnapshot(dir string) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create snapshot directory '%s'", dir)
	}
	return &Snapshot{Dir: dir, Quality: 90}, nil
}

func (s *Snapshot) Name() string {
	return "snapshot"
}

func (s *Snapshot) Do(ctx context.Context, ev *Event) error {
	if ev.Crop == nil {
		return nil
	}

	name := fmt.Sprintf("%s_%s_%06d.jpg",
		ev.Time.Format("20060102_150405.000"), fileSafe(ev.Label), ev.FrameSeq)
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create '%s'", path)
	}

	if err := jpeg.Encode(f, ev.Crop, &jpeg.Options{Quality: s.Quality}); err != nil {
		f.Close()
		os.Remove(path)
		return errors.Wrapf(err, "failed to encode '%s'", path)
	}

	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to write '%s'", path)
	}

	ev.SnapshotPath = path
	return nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
