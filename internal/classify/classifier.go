package classify

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/region"
	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/tensor"
)

const DefaultCropScale = 1.25

type Config struct {
	Labels []string
	Norm   tensor.Norm

	// CropScale grows each region into a square crop, see region.SquareExpand.
	CropScale float64
}

// Result is the classification of one region.
type Result struct {
	Label      string
	Index      int
	Confidence float32
	Probs      []float32

	Region region.Region

	// Box is the square crop the model saw, in frame coordinates.
	Box image.Rectangle
}

// Timing is spent per step for one region.
type Timing struct {
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
}

// Batch is the outcome of classifying the regions of one frame.
type Batch struct {
	Results []Result

	// Timings has one entry per result, in the same order.
	Timings []Timing

	// Skipped counts regions dropped for a degenerate crop or a per-region error.
	Skipped int
}

// Total sums the per-region timings.
func (b Batch) Total() Timing {
	var t Timing
	for _, rt := range b.Timings {
		t.Preprocess += rt.Preprocess
		t.Inference += rt.Inference
		t.Postprocess += rt.Postprocess
	}
	return t
}

// MaxInference is the slowest single inference of the batch.
func (b Batch) MaxInference() time.Duration {
	var m time.Duration
	for _, rt := range b.Timings {
		if rt.Inference > m {
			m = rt.Inference
		}
	}
	return m
}

// Classifier turns frame regions into labelled results with one Model.
type Classifier struct {
	model Model
	cfg   Config
	log   logrus.FieldLogger

	input       tensor.Info
	inW, inH    int
	inC         int
	inputQuant  tensor.QuantParams
	outputQuant tensor.QuantParams

	crop    gocv.Mat
	resized gocv.Mat
	gray    gocv.Mat
}

func New(model Model, cfg Config, log logrus.FieldLogger) (*Classifier, error) {
	log = log.WithField("stage", "CLASSIFY")

	in := model.Input()
	w, h, c, err := in.ImageSize()
	if err != nil {
		return nil, errors.Wrap(err, "unsupported model input")
	}
	if c != 1 && c != 3 {
		return nil, errors.Errorf("model input must have 1 or 3 channels, got %d", c)
	}

	if cfg.CropScale <= 0 {
		cfg.CropScale = DefaultCropScale
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = EmotionLabels
	}
	if cfg.Norm.Mode == tensor.NormMean && cfg.Norm.Mean == nil {
		cfg.Norm.Mean = tensor.CaffeBGRMean
	}
	if cfg.Norm.Mode == tensor.NormMean && len(cfg.Norm.Mean) != c {
		if c != 1 {
			return nil, errors.Errorf("normalization mean has %d channels, model input has %d", len(cfg.Norm.Mean), c)
		}
		cfg.Norm.Mean = []float32{meanOf(cfg.Norm.Mean)}
	}

	inQuant, outQuant := in.Quant, model.Output().Quant
	if in.DType.Quantized() {
		var replaced bool
		if inQuant, replaced = inQuant.Sanitize(); replaced {
			log.Warn("Input quantization scale is 0, using 1.0")
		}
	}
	if model.Output().DType.Quantized() {
		var replaced bool
		if outQuant, replaced = outQuant.Sanitize(); replaced {
			log.Warn("Output quantization scale is 0, using 1.0")
		}
	}

	if n := model.Output().Elements(); n > 0 && n != len(cfg.Labels) {
		log.Warnf("Model has %d outputs but %d labels are configured", n, len(cfg.Labels))
	}

	return &Classifier{
		model:       model,
		cfg:         cfg,
		log:         log,
		input:       in,
		inW:         w,
		inH:         h,
		inC:         c,
		inputQuant:  inQuant,
		outputQuant: outQuant,
		resized:     gocv.NewMat(),
		gray:        gocv.NewMat(),
		crop:        gocv.NewMat(),
	}, nil
}

func meanOf(values []float32) float32 {
	var sum float32
	for _, v := range values {
		sum += v
	}
	return sum / float32(len(values))
}

// Classify runs the model on every region of frame. A region whose crop is
// degenerate or whose inference fails is skipped; the others are still classified.
func (c *Classifier) Classify(frame gocv.Mat, regions []region.Region) Batch {
	var batch Batch
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	for _, r := range regions {
		res, timing, err := c.classifyOne(frame, bounds, r)
		if err != nil {
			c.log.Debugf("Skipping region %v: %v", r.Box, err)
			batch.Skipped++
			continue
		}
		batch.Results = append(batch.Results, res)
		batch.Timings = append(batch.Timings, timing)
	}

	return batch
}

// Crop returns a copy of the square crop of result in frame. The caller closes it.
func (c *Classifier) Crop(frame gocv.Mat, res Result) gocv.Mat {
	roi := frame.Region(res.Box)
	defer roi.Close()
	return roi.Clone()
}

func (c *Classifier) classifyOne(frame gocv.Mat, bounds image.Rectangle, r region.Region) (Result, Timing, error) {
	var timing Timing

	t0 := time.Now()
	box := region.SquareExpand(r.Box, bounds, c.cfg.CropScale)
	if box.Dx() <= 1 || box.Dy() <= 1 || !box.In(bounds) {
		return Result{}, timing, errors.Errorf("degenerate crop %v", box)
	}

	in, err := c.preprocess(frame, box)
	if err != nil {
		return Result{}, timing, err
	}
	t1 := time.Now()

	out, err := c.model.Invoke(in)
	if err != nil {
		return Result{}, timing, errors.Wrap(err, "inference failed")
	}
	t2 := time.Now()

	idx, conf, probs, err := c.postprocess(out)
	if err != nil {
		return Result{}, timing, err
	}
	t3 := time.Now()

	timing = Timing{Preprocess: t1.Sub(t0), Inference: t2.Sub(t1), Postprocess: t3.Sub(t2)}
	return Result{
		Label:      labelFor(c.cfg.Labels, idx),
		Index:      idx,
		Confidence: conf,
		Probs:      probs,
		Region:     r,
		Box:        box,
	}, timing, nil
}

func (c *Classifier) preprocess(frame gocv.Mat, box image.Rectangle) (tensor.Tensor, error) {
	roi := frame.Region(box)
	roi.CopyTo(&c.crop)
	roi.Close()

	gocv.Resize(c.crop, &c.resized, image.Pt(c.inW, c.inH), 0, 0, gocv.InterpolationLinear)
	if c.resized.Empty() {
		return tensor.Tensor{}, errors.New("failed to resize crop")
	}

	img := c.resized
	if c.inC == 1 && img.Channels() != 1 {
		if err := gocv.CvtColor(img, &c.gray, gocv.ColorBGRToGray); err != nil {
			return tensor.Tensor{}, errors.Wrap(err, "failed to convert crop to grayscale")
		}
		img = c.gray
	}

	return c.prepare(img.ToBytes())
}

// prepare turns HWC 8-bit pixels of the model input size into the input tensor.
func (c *Classifier) prepare(pix []byte) (tensor.Tensor, error) {
	values, err := tensor.Normalize(pix, c.inW, c.inH, c.inC, c.cfg.Norm, c.input.Layout)
	if err != nil {
		return tensor.Tensor{}, errors.Wrap(err, "failed to normalize crop")
	}

	t := tensor.Tensor{Info: c.input}
	if c.input.DType.Quantized() {
		t.Q = tensor.Quantize(values, c.inputQuant, c.input.DType)
	} else {
		t.F32 = values
	}
	return t, nil
}

// postprocess dequantizes the scores when needed and picks the best class.
func (c *Classifier) postprocess(out tensor.Tensor) (int, float32, []float32, error) {
	var logits []float32
	if out.DType.Quantized() {
		logits = tensor.Dequantize(out.Q, c.outputQuant)
	} else {
		logits = out.F32
	}
	if len(logits) == 0 {
		return 0, 0, nil, errors.New("model produced no scores")
	}

	probs := tensor.Softmax(logits)
	idx, conf := tensor.ArgMax(probs)
	return idx, conf, probs, nil
}

func (c *Classifier) Close() error {
	c.resized.Close()
	c.gray.Close()
	return c.crop.Close()
}
