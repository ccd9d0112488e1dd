package classify

import (
	"encoding/binary"
	"image"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

type DNNConfig struct {
	Model  string
	Config string

	Width    int
	Height   int
	Channels int

	// Backend and Target name the preferred OpenCV DNN backend and target,
	// e.g. "cuda"/"cuda", "openvino"/"cpu". Empty means default/cpu.
	Backend string
	Target  string
}

// DNNModel runs a network through the OpenCV DNN module.
//
// Input tensors are float NHWC; the blob conversion reorders them to NCHW.
type DNNModel struct {
	net    gocv.Net
	input  tensor.Info
	output tensor.Info
}

var _ Model = &DNNModel{}

// OpenDNN loads the network and settles on a backend. The preferred backend is
// probed with one forward pass; when that fails the network falls back to the
// default backend on the CPU. Loading errors are returned, never deferred.
func OpenDNN(cfg DNNConfig, log logrus.FieldLogger) (*DNNModel, Capability, error) {
	log = log.WithField("stage", "MODEL")

	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, Capability{}, errors.Wrapf(err, "model file '%s' not found", cfg.Model)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, Capability{}, errors.Errorf("invalid model input size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Channels != 1 && cfg.Channels != 3 {
		return nil, Capability{}, errors.Errorf("model input must have 1 or 3 channels, got %d", cfg.Channels)
	}

	net := gocv.ReadNet(cfg.Model, cfg.Config)
	if net.Empty() {
		net.Close()
		return nil, Capability{}, errors.Errorf("failed to load network '%s'", cfg.Model)
	}

	m := &DNNModel{
		net: net,
		input: tensor.Info{
			Shape:  []int{1, cfg.Height, cfg.Width, cfg.Channels},
			DType:  tensor.Float32,
			Layout: tensor.NHWC,
		},
	}

	capability, err := m.selectBackend(cfg.Backend, cfg.Target)
	if err != nil {
		net.Close()
		return nil, Capability{}, err
	}

	if capability.Fallback {
		log.Warnf("Preferred backend unavailable, using %s", capability)
	} else {
		log.Infof("Model '%s' loaded on %s, output %v", cfg.Model, capability, m.output.Shape)
	}

	return m, capability, nil
}

func (m *DNNModel) selectBackend(backend, target string) (Capability, error) {
	backend, target = normalizeName(backend, "default"), normalizeName(target, "cpu")

	preferred := Capability{Backend: backend, Target: target}
	err := m.use(gocv.ParseNetBackend(backend), gocv.ParseNetTarget(target))
	if err == nil {
		return preferred, nil
	}

	if backend == "default" && target == "cpu" {
		return Capability{}, errors.Wrap(err, "model does not run on the default backend")
	}

	fallback := Capability{Backend: "default", Target: "cpu", Fallback: true, Reason: err.Error()}
	if err := m.use(gocv.NetBackendDefault, gocv.NetTargetCPU); err != nil {
		return Capability{}, errors.Wrap(err, "model does not run on the default backend")
	}
	return fallback, nil
}

// use switches the network to backend/target and runs a probe forward pass on
// a zero input, which also discovers the output shape.
func (m *DNNModel) use(backend gocv.NetBackendType, target gocv.NetTargetType) error {
	if err := m.net.SetPreferableBackend(backend); err != nil {
		return errors.Wrap(err, "failed to set backend")
	}
	if err := m.net.SetPreferableTarget(target); err != nil {
		return errors.Wrap(err, "failed to set target")
	}

	out, err := m.forward(make([]float32, m.input.Elements()))
	if err != nil {
		return errors.Wrap(err, "probe inference failed")
	}

	m.output = tensor.Info{Shape: []int{1, len(out)}, DType: tensor.Float32}
	return nil
}

func (m *DNNModel) Input() tensor.Info {
	return m.input
}

func (m *DNNModel) Output() tensor.Info {
	return m.output
}

func (m *DNNModel) Invoke(in tensor.Tensor) (tensor.Tensor, error) {
	if in.DType != tensor.Float32 {
		return tensor.Tensor{}, errors.Errorf("model takes float32 input, got %s", in.DType)
	}
	if len(in.F32) != m.input.Elements() {
		return tensor.Tensor{}, errors.Errorf("input has %d values, model expects %d", len(in.F32), m.input.Elements())
	}

	out, err := m.forward(in.F32)
	if err != nil {
		return tensor.Tensor{}, err
	}
	return tensor.Tensor{Info: m.output, F32: out}, nil
}

func (m *DNNModel) forward(hwc []float32) ([]float32, error) {
	h, w, c := m.input.Shape[1], m.input.Shape[2], m.input.Shape[3]

	matType := gocv.MatTypeCV32FC3
	if c == 1 {
		matType = gocv.MatTypeCV32FC1
	}

	img, err := gocv.NewMatFromBytes(h, w, matType, float32Bytes(hwc))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build input image")
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0, image.Pt(w, h), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("network produced no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read network output")
	}

	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

func (m *DNNModel) Close() error {
	return errors.Wrap(m.net.Close(), "network teardown error")
}

func float32Bytes(values []float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.NativeEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func normalizeName(s, def string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	return s
}
