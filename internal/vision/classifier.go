package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

type OutputKind string

const (
	OutputProbabilities OutputKind = "probabilities"
	OutputLogits        OutputKind = "logits"
)

type ClassifierOptions struct {
	ModelPath      string
	SharedLibPath  string
	Layout         Layout
	Output         OutputKind
	IntraOpThreads int
	// NumClasses is checked against the model's output when it is static.
	NumClasses int
}

// Classifier holds an ONNX session for a single-input, single-output image
// model. It is read-only after LoadClassifier; Predict allocates its own
// tensors per call and is safe for concurrent use.
type Classifier struct {
	session     *ort.DynamicAdvancedSession
	input       InputSpec
	outputShape ort.Shape
	numClasses  int
	output      OutputKind
	fingerprint string
}

// LoadClassifier initializes the ONNX runtime and opens the model eagerly.
// Any error here means the process should not serve traffic.
func LoadClassifier(opts ClassifierOptions) (*Classifier, error) {
	fingerprint, err := fingerprintFile(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}

	if opts.SharedLibPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx init environment: %w", err)
		}
	}

	c, err := openSession(opts, fingerprint)
	if err != nil {
		_ = ort.DestroyEnvironment()
		return nil, err
	}

	log.WithFields(log.Fields{
		"model":       opts.ModelPath,
		"fingerprint": fingerprint,
		"input":       c.input.Name,
		"layout":      c.input.Layout,
		"height":      c.input.Height,
		"width":       c.input.Width,
		"channels":    c.input.Channels,
		"classes":     c.numClasses,
	}).Info("classifier loaded")
	return c, nil
}

func openSession(opts ClassifierOptions, fingerprint string) (*Classifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx model must have one input and at least one output, got %d/%d", len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("onnx model input %q is %v, want float32", inputs[0].Name, inputs[0].DataType)
	}

	spec, err := ParseInputShape(inputs[0].Name, inputs[0].Dimensions, opts.Layout)
	if err != nil {
		return nil, err
	}

	outputShape, numClasses, err := resolveOutputShape(outputs[0].Dimensions, opts.NumClasses)
	if err != nil {
		return nil, fmt.Errorf("onnx model output %q: %w", outputs[0].Name, err)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx new session options: %w", err)
	}
	defer sessionOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("onnx new session: %w", err)
	}

	kind := opts.Output
	if kind == "" {
		kind = OutputProbabilities
	}
	return &Classifier{
		session:     session,
		input:       spec,
		outputShape: outputShape,
		numClasses:  numClasses,
		output:      kind,
		fingerprint: fingerprint,
	}, nil
}

// resolveOutputShape pins a dynamic batch dimension to one and checks the
// class count when the model declares it.
func resolveOutputShape(dims ort.Shape, want int) (ort.Shape, int, error) {
	if len(dims) == 0 {
		return nil, 0, fmt.Errorf("scalar output")
	}
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	classes := int(dims[len(dims)-1])
	if classes <= 0 {
		if want <= 0 {
			return nil, 0, fmt.Errorf("dynamic class dimension and no expected class count")
		}
		classes = want
		shape[len(shape)-1] = int64(want)
	}
	if want > 0 && classes != want {
		return nil, 0, fmt.Errorf("model emits %d classes, label table has %d", classes, want)
	}
	if shape.FlattenedSize() != int64(classes) {
		return nil, 0, fmt.Errorf("output shape %v is not a single class vector", dims)
	}
	return shape, classes, nil
}

func (c *Classifier) InputSpec() InputSpec {
	return c.input
}

// Fingerprint is the hex SHA-256 of the model artifact.
func (c *Classifier) Fingerprint() string {
	return c.fingerprint
}

func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// Predict runs one forward pass over a batch of one and returns the class scores.
func (c *Classifier) Predict(ctx context.Context, batch Batch) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(batch.Shape...), batch.Data)
	if err != nil {
		return nil, fmt.Errorf("onnx new input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](c.outputShape)
	if err != nil {
		return nil, fmt.Errorf("onnx new output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	scores := make([]float32, c.numClasses)
	copy(scores, output.GetData())
	if c.output == OutputLogits {
		Softmax(scores)
	}
	return scores, nil
}

func (c *Classifier) Close() {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			log.WithError(err).Warn("destroy onnx session")
		}
	}
	if err := ort.DestroyEnvironment(); err != nil {
		log.WithError(err).Warn("destroy onnx environment")
	}
}

func fingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
