package vision

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader declares a w x h grayscale canvas without any pixel data.
func pngHeader(w, h uint32) []byte {
	var ihdr [13]byte
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8

	chunk := append([]byte("IHDR"), ihdr[:]...)
	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, uint32(len(ihdr)))
	out = append(out, chunk...)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(chunk))
}

func TestDecodeImageFormats(t *testing.T) {
	img := solidImage(8, 6, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	var jpg, gf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	require.NoError(t, gif.Encode(&gf, img, nil))

	for name, data := range map[string][]byte{
		"png":  encodePNG(t, img),
		"jpeg": jpg.Bytes(),
		"gif":  gf.Bytes(),
	} {
		t.Run(name, func(t *testing.T) {
			decoded, format, err := DecodeImage(data, 0)
			require.NoError(t, err)
			assert.Equal(t, name, format)
			assert.Equal(t, 8, decoded.Bounds().Dx())
			assert.Equal(t, 6, decoded.Bounds().Dy())
		})
	}
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, _, err := DecodeImage([]byte("definitely not an image"), 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, _, err = DecodeImage(nil, 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	truncated := encodePNG(t, solidImage(4, 4, color.White))[:20]
	_, _, err = DecodeImage(truncated, 0)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestDecodeImagePixelLimit(t *testing.T) {
	// 100000x100000 canvas declared in a few dozen bytes.
	_, _, err := DecodeImage(pngHeader(100000, 100000), 25_000_000)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.NotErrorIs(t, err, ErrUnsupportedImage)

	data := encodePNG(t, solidImage(20, 10, color.White))
	_, _, err = DecodeImage(data, 199)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	img, _, err := DecodeImage(data, 200)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 4, Width: 4, Channels: 3},
		PreprocessOptions{MaxPixels: 100})
	require.NoError(t, err)
	_, _, err = p.Decode(data)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestBatchNHWCRaw(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 4, Width: 4, Channels: 3}, PreprocessOptions{})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(4, 4, color.RGBA{R: 255, G: 128, B: 0, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 4, 4, 3}, batch.Shape)
	require.Len(t, batch.Data, 4*4*3)
	assert.Equal(t, []float32{255, 128, 0}, batch.Data[:3])
	assert.Equal(t, []float32{255, 128, 0}, batch.Data[len(batch.Data)-3:])
}

func TestBatchNCHWUnitPlanes(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNCHW, Height: 2, Width: 2, Channels: 3},
		PreprocessOptions{Normalization: NormalizeUnit})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(2, 2, color.RGBA{R: 255, G: 0, B: 255, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 2, 2}, batch.Shape)
	assert.Equal(t, []float32{1, 1, 1, 1, 0, 0, 0, 0, 1, 1, 1, 1}, batch.Data)
}

func TestBatchImageNet(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNCHW, Height: 1, Width: 1, Channels: 3},
		PreprocessOptions{Normalization: NormalizeImageNet})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(1, 1, color.White))
	require.NoError(t, err)

	for ch := 0; ch < 3; ch++ {
		want := (1 - imagenetMean[ch]) / imagenetStd[ch]
		assert.InDelta(t, want, batch.Data[ch], 1e-5)
	}
}

func TestBatchGrayscale(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 2, Width: 2, Channels: 1}, PreprocessOptions{})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(2, 2, color.White))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 2, 1}, batch.Shape)
	assert.Equal(t, []float32{255, 255, 255, 255}, batch.Data)
}

func TestBatchResizesToModelInput(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 16, Width: 16, Channels: 3}, PreprocessOptions{})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(40, 25, color.White))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 16, 16, 3}, batch.Shape)
	for _, v := range batch.Data {
		assert.InDelta(t, 255, v, 1)
	}
}

func TestBatchDynamicModelUsesImageSize(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Channels: 3}, PreprocessOptions{ImageSize: 8})
	require.NoError(t, err)

	batch, err := p.Batch(solidImage(3, 5, color.Black))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 8, 8, 3}, batch.Shape)
}

func TestBatchStrict(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 4, Width: 4, Channels: 3},
		PreprocessOptions{ResizeMode: ResizeStrict})
	require.NoError(t, err)

	_, err = p.Batch(solidImage(5, 4, color.White))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	batch, err := p.Batch(solidImage(4, 4, color.White))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 4, 3}, batch.Shape)

	dynamic, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Channels: 3},
		PreprocessOptions{ResizeMode: ResizeStrict})
	require.NoError(t, err)
	batch, err = dynamic.Batch(solidImage(7, 3, color.White))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 7, 3}, batch.Shape)
}

func TestBatchDropsAlpha(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 1, Width: 1, Channels: 3}, PreprocessOptions{})
	require.NoError(t, err)

	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	batch, err := p.Batch(img)
	require.NoError(t, err)
	assert.Len(t, batch.Data, 3)

	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 64})
	batch, err = p.Batch(img)
	require.NoError(t, err)
	assert.Equal(t, []float32{255, 255, 255}, batch.Data)

	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	batch, err = p.Batch(img)
	require.NoError(t, err)
	assert.Equal(t, []float32{200, 100, 50}, batch.Data)
}

func TestBatchScaledTranslucentKeepsColour(t *testing.T) {
	p, err := NewPreprocessor(InputSpec{Layout: LayoutNHWC, Height: 2, Width: 2, Channels: 3}, PreprocessOptions{})
	require.NoError(t, err)

	src := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 64})
		}
	}
	batch, err := p.Batch(src)
	require.NoError(t, err)
	for _, v := range batch.Data {
		assert.InDelta(t, 255, v, 2)
	}
}

func TestNewPreprocessorRejects(t *testing.T) {
	_, err := NewPreprocessor(InputSpec{Layout: LayoutAuto, Channels: 3, Height: 1, Width: 1}, PreprocessOptions{})
	assert.Error(t, err)

	_, err = NewPreprocessor(InputSpec{Layout: LayoutNHWC, Channels: 4, Height: 1, Width: 1}, PreprocessOptions{})
	assert.Error(t, err)

	_, err = NewPreprocessor(InputSpec{Layout: LayoutNHWC, Channels: 3}, PreprocessOptions{})
	assert.Error(t, err, "dynamic size needs ImageSize in resize mode")

	_, err = NewPreprocessor(InputSpec{Layout: LayoutNHWC, Channels: 1, Height: 1, Width: 1},
		PreprocessOptions{Normalization: NormalizeImageNet})
	assert.Error(t, err)
}

func TestParseInputShape(t *testing.T) {
	spec, err := ParseInputShape("input_layer", []int64{-1, 256, 256, 3}, LayoutAuto)
	require.NoError(t, err)
	assert.Equal(t, InputSpec{Name: "input_layer", Layout: LayoutNHWC, Height: 256, Width: 256, Channels: 3}, spec)

	spec, err = ParseInputShape("pixel_values", []int64{1, 3, 224, 224}, LayoutAuto)
	require.NoError(t, err)
	assert.Equal(t, LayoutNCHW, spec.Layout)
	assert.Equal(t, 224, spec.Height)

	spec, err = ParseInputShape("x", []int64{-1, -1, -1, 3}, LayoutAuto)
	require.NoError(t, err)
	assert.Zero(t, spec.Height)
	assert.Zero(t, spec.Width)

	spec, err = ParseInputShape("x", []int64{1, 3, 3, 3}, LayoutNCHW)
	require.NoError(t, err)
	assert.Equal(t, LayoutNCHW, spec.Layout)

	_, err = ParseInputShape("x", []int64{1, 256, 256}, LayoutAuto)
	assert.Error(t, err)

	_, err = ParseInputShape("x", []int64{1, 5, 5, 5}, LayoutAuto)
	assert.Error(t, err)

	_, err = ParseInputShape("x", []int64{1, 256, 256, 3}, LayoutNCHW)
	assert.Error(t, err, "256 channels is not an image")
}

func TestResolveOutputShape(t *testing.T) {
	shape, classes, err := resolveOutputShape(ort.NewShape(-1, 3), 3)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 3), shape)
	assert.Equal(t, 3, classes)

	shape, classes, err = resolveOutputShape(ort.NewShape(-1, -1), 3)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 3), shape)
	assert.Equal(t, 3, classes)

	_, _, err = resolveOutputShape(ort.NewShape(1, 1000), 3)
	assert.Error(t, err)

	_, _, err = resolveOutputShape(ort.NewShape(2, 3), 3)
	assert.Error(t, err)

	_, _, err = resolveOutputShape(ort.NewShape(-1, -1), 0)
	assert.Error(t, err)
}

func TestLoadClassifierMissingArtifact(t *testing.T) {
	_, err := LoadClassifier(ClassifierOptions{ModelPath: filepath.Join(t.TempDir(), "nope.onnx"), NumClasses: 3})
	assert.Error(t, err)
}

func TestFingerprintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	fp, err := fingerprintFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fp)
}

func TestArgmax(t *testing.T) {
	idx, v := Argmax([]float32{0.1, 0.7, 0.2})
	assert.Equal(t, 1, idx)
	assert.Equal(t, float32(0.7), v)

	idx, _ = Argmax([]float32{0.5, 0.5, 0})
	assert.Equal(t, 0, idx)

	idx, _ = Argmax(nil)
	assert.Equal(t, -1, idx)
}

func TestSoftmax(t *testing.T) {
	scores := []float32{2, 1, 0.1}
	Softmax(scores)

	var sum float32
	for _, s := range scores {
		assert.True(t, s > 0 && s < 1)
		sum += s
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.InDelta(t, 0.659, scores[0], 1e-3)

	big := []float32{1000, 1000}
	Softmax(big)
	assert.InDelta(t, 0.5, big[0], 1e-6)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 1.0, Clamp01(1.0000001))
	assert.Equal(t, 0.0, Clamp01(-0.1))
	assert.InDelta(t, 0.25, Clamp01(0.25), 1e-9)
}
