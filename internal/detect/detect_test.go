package detect

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
)

type fakeDetector struct {
	regions []region.Region
	err     error

	calls  int
	sizes  []image.Point
	closed bool
}

func (d *fakeDetector) Detect(frame gocv.Mat) ([]region.Region, error) {
	d.calls++
	d.sizes = append(d.sizes, image.Pt(frame.Cols(), frame.Rows()))
	return d.regions, d.err
}

func (d *fakeDetector) Close() error {
	d.closed = true
	return nil
}

func newFrame(t *testing.T, w, h int) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestFallbackPrefersPrimary(t *testing.T) {
	primary := &fakeDetector{regions: []region.Region{{Box: image.Rect(10, 10, 110, 110), Confidence: 0.9}}}
	secondary := &fakeDetector{}
	f := &Fallback{Primary: primary, Secondary: secondary, Guard: region.DefaultGuard()}

	got, err := f.Detect(newFrame(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, primary.regions, got)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackUsesSecondaryWhenNothingValid(t *testing.T) {
	tiny := []region.Region{{Box: image.Rect(0, 0, 10, 10)}}
	found := []region.Region{{Box: image.Rect(100, 100, 200, 200), Confidence: 1}}

	primary := &fakeDetector{regions: tiny}
	secondary := &fakeDetector{regions: found}
	f := &Fallback{Primary: primary, Secondary: secondary, Guard: region.DefaultGuard()}

	got, err := f.Detect(newFrame(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, found, got)

	primary.regions, primary.err = nil, errors.New("inference failed")
	got, err = f.Detect(newFrame(t, 640, 480))
	require.NoError(t, err)
	assert.Equal(t, found, got)

	secondary.err = errors.New("cascade failed")
	_, err = f.Detect(newFrame(t, 640, 480))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference failed")
	assert.Contains(t, err.Error(), "cascade failed")

	require.NoError(t, f.Close())
	assert.True(t, primary.closed)
	assert.True(t, secondary.closed)
}

func TestScaledMapsBoxesBack(t *testing.T) {
	inner := &fakeDetector{regions: []region.Region{{Box: image.Rect(10, 10, 50, 60), Confidence: 0.8}}}
	s := NewScaled(inner, 0.5)

	got, err := s.Detect(newFrame(t, 640, 480))
	require.NoError(t, err)

	assert.Equal(t, []image.Point{image.Pt(320, 240)}, inner.sizes)
	require.Len(t, got, 1)
	assert.Equal(t, image.Rect(20, 20, 100, 120), got[0].Box)
	assert.Equal(t, float32(0.8), got[0].Confidence)

	require.NoError(t, s.Close())
	assert.True(t, inner.closed)
}

func TestScaledPassThroughForSmallFrames(t *testing.T) {
	inner := &fakeDetector{}
	s := NewScaled(inner, 0.5)
	defer s.Close()

	// 100x80 scaled by 0.5 hits the 64x48 floor, which is still smaller.
	_, err := s.Detect(newFrame(t, 100, 80))
	require.NoError(t, err)
	assert.Equal(t, []image.Point{image.Pt(64, 48)}, inner.sizes)

	_, err = s.Detect(newFrame(t, 64, 48))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 48), inner.sizes[1])
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("YuNet+Haar")
	require.NoError(t, err)
	assert.Equal(t, BackendYuNetHaar, b)

	_, err = ParseBackend("mediapipe")
	assert.Error(t, err)
}

func TestOpenFailsOnMissingFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.onnx")

	_, err := Open(Config{Backend: BackendYuNet, YuNetModel: missing})
	assert.Error(t, err)

	_, err = Open(Config{Backend: BackendCascade, CascadeFile: missing})
	assert.Error(t, err)

	_, err = Open(Config{Backend: "nope"})
	assert.Error(t, err)
}
