package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ErrShapeMismatch is returned in strict mode when the image does not match the model input.
var ErrShapeMismatch = errors.New("image does not match model input shape")

// ImageNet normalization (standard for torchvision models).
var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

type Layout string

const (
	LayoutAuto Layout = "auto"
	LayoutNHWC Layout = "nhwc"
	LayoutNCHW Layout = "nchw"
)

type ResizeMode string

const (
	// ResizeScale scales every image to the model's input resolution.
	ResizeScale ResizeMode = "resize"
	// ResizeStrict rejects images whose resolution differs from the model's.
	ResizeStrict ResizeMode = "strict"
)

type Normalization string

const (
	// NormalizeNone feeds raw 0..255 channel values.
	NormalizeNone     Normalization = "none"
	NormalizeUnit     Normalization = "unit"
	NormalizeImageNet Normalization = "imagenet"
)

// InputSpec describes the model's image input. Zero Height/Width mean the
// model accepts any resolution.
type InputSpec struct {
	Name     string
	Layout   Layout
	Height   int
	Width    int
	Channels int
}

// Batch is a single image wrapped in a leading dimension of one.
type Batch struct {
	Shape []int64
	Data  []float32
}

type PreprocessOptions struct {
	ResizeMode    ResizeMode
	Normalization Normalization
	// ImageSize is the square target used in resize mode when the model
	// does not declare a fixed resolution.
	ImageSize int
	// MaxPixels bounds width*height of a decoded upload. Zero disables the bound.
	MaxPixels int
}

type Preprocessor struct {
	spec InputSpec
	opts PreprocessOptions
}

func NewPreprocessor(spec InputSpec, opts PreprocessOptions) (*Preprocessor, error) {
	if spec.Layout != LayoutNHWC && spec.Layout != LayoutNCHW {
		return nil, fmt.Errorf("unsupported input layout %q", spec.Layout)
	}
	if spec.Channels != 1 && spec.Channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", spec.Channels)
	}
	if opts.ResizeMode == "" {
		opts.ResizeMode = ResizeScale
	}
	if opts.Normalization == "" {
		opts.Normalization = NormalizeNone
	}
	if opts.ResizeMode == ResizeScale && (spec.Height == 0 || spec.Width == 0) && opts.ImageSize <= 0 {
		return nil, fmt.Errorf("model input size is dynamic and no image size is configured")
	}
	if opts.Normalization == NormalizeImageNet && spec.Channels != 3 {
		return nil, fmt.Errorf("imagenet normalization needs 3 channels, model has %d", spec.Channels)
	}
	return &Preprocessor{spec: spec, opts: opts}, nil
}

// Decode decodes an upload under the configured pixel limit.
func (p *Preprocessor) Decode(data []byte) (image.Image, string, error) {
	return DecodeImage(data, p.opts.MaxPixels)
}

// Batch converts img into the model's layout, channel count and scale.
// Colour is taken un-premultiplied and alpha is discarded.
func (p *Preprocessor) Batch(img image.Image) (Batch, error) {
	height, width, err := p.targetSize(img.Bounds())
	if err != nil {
		return Batch{}, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if img.Bounds().Dx() == width && img.Bounds().Dy() == height {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	channels := p.spec.Channels
	out := make([]float32, channels*height*width)
	plane := height * width

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := dst.NRGBAAt(x, y)
			var px [3]float32
			if channels == 1 {
				g := color.GrayModel.Convert(color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}).(color.Gray)
				px[0] = float32(g.Y)
			} else {
				px = [3]float32{float32(c.R), float32(c.G), float32(c.B)}
			}

			pixel := y*width + x
			for ch := 0; ch < channels; ch++ {
				v := p.normalize(px[ch], ch)
				if p.spec.Layout == LayoutNCHW {
					out[ch*plane+pixel] = v
				} else {
					out[pixel*channels+ch] = v
				}
			}
		}
	}

	shape := []int64{1, int64(height), int64(width), int64(channels)}
	if p.spec.Layout == LayoutNCHW {
		shape = []int64{1, int64(channels), int64(height), int64(width)}
	}
	return Batch{Shape: shape, Data: out}, nil
}

func (p *Preprocessor) targetSize(bounds image.Rectangle) (int, int, error) {
	h, w := p.spec.Height, p.spec.Width
	switch p.opts.ResizeMode {
	case ResizeStrict:
		if h == 0 {
			h = bounds.Dy()
		}
		if w == 0 {
			w = bounds.Dx()
		}
		if bounds.Dy() != h || bounds.Dx() != w {
			return 0, 0, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrShapeMismatch, bounds.Dx(), bounds.Dy(), w, h)
		}
	default:
		if h == 0 {
			h = p.opts.ImageSize
		}
		if w == 0 {
			w = p.opts.ImageSize
		}
	}
	return h, w, nil
}

func (p *Preprocessor) normalize(v float32, ch int) float32 {
	switch p.opts.Normalization {
	case NormalizeUnit:
		return v / 255.0
	case NormalizeImageNet:
		return (v/255.0 - imagenetMean[ch]) / imagenetStd[ch]
	default:
		return v
	}
}

// ParseInputShape derives an InputSpec from a rank-4 model input shape.
// Negative dimensions are treated as dynamic. With LayoutAuto the channel
// axis is located by looking for a 1 or 3 in the last or second position.
func ParseInputShape(name string, dims []int64, layout Layout) (InputSpec, error) {
	if len(dims) != 4 {
		return InputSpec{}, fmt.Errorf("model input %q has rank %d, want 4", name, len(dims))
	}
	isChannels := func(d int64) bool { return d == 1 || d == 3 }

	if layout == LayoutAuto || layout == "" {
		switch {
		case isChannels(dims[3]):
			layout = LayoutNHWC
		case isChannels(dims[1]):
			layout = LayoutNCHW
		default:
			return InputSpec{}, fmt.Errorf("cannot infer layout of model input %q with shape %v", name, dims)
		}
	}

	var h, w, c int64
	switch layout {
	case LayoutNHWC:
		h, w, c = dims[1], dims[2], dims[3]
	case LayoutNCHW:
		c, h, w = dims[1], dims[2], dims[3]
	default:
		return InputSpec{}, fmt.Errorf("unsupported input layout %q", layout)
	}
	if !isChannels(c) {
		return InputSpec{}, fmt.Errorf("model input %q has %d channels, want 1 or 3", name, c)
	}

	return InputSpec{
		Name:     name,
		Layout:   layout,
		Height:   int(max(h, 0)),
		Width:    int(max(w, 0)),
		Channels: int(c),
	}, nil
}
