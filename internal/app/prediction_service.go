package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"leafguard/internal/model"
	"leafguard/internal/vision"
)

// Client errors.
var (
	ErrEmptyImage    = errors.New("uploaded file is empty")
	ErrInvalidImage  = errors.New("uploaded file is not a supported image")
	ErrImageShape    = errors.New("image does not match the model input")
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// Server errors.
var (
	ErrInference     = errors.New("inference failed")
	ErrLabelMismatch = errors.New("model output does not match the label table")
)

type Predictor interface {
	Predict(ctx context.Context, batch vision.Batch) ([]float32, error)
}

type PredictionCache interface {
	Get(ctx context.Context, digest string) (*model.Prediction, bool, error)
	Set(ctx context.Context, digest string, prediction *model.Prediction) error
}

type PredictionPublisher interface {
	Publish(ctx context.Context, event model.PredictionEvent) error
}

type PredictionRecorder interface {
	ObserveInference(d time.Duration)
	ObservePrediction(class string, cached bool)
}

type PredictionService struct {
	predictor        Predictor
	preprocessor     *vision.Preprocessor
	cache            PredictionCache
	publisher        PredictionPublisher
	recorder         PredictionRecorder
	modelFingerprint string
}

// NewPredictionService wires the request path. cache, publisher and recorder may be nil.
func NewPredictionService(
	predictor Predictor,
	preprocessor *vision.Preprocessor,
	cache PredictionCache,
	publisher PredictionPublisher,
	recorder PredictionRecorder,
	modelFingerprint string,
) *PredictionService {
	return &PredictionService{
		predictor:        predictor,
		preprocessor:     preprocessor,
		cache:            cache,
		publisher:        publisher,
		recorder:         recorder,
		modelFingerprint: modelFingerprint,
	}
}

// Predict classifies one uploaded image: decode, batch of one, forward pass,
// argmax, remedy lookup.
func (s *PredictionService) Predict(ctx context.Context, data []byte) (*model.Prediction, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	entry := log.WithField("image_sha256", digest[:12])

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, digest)
		if err != nil {
			entry.WithError(err).Warn("prediction cache lookup failed")
		} else if ok {
			s.finish(ctx, entry, cached, digest, "", len(data), true)
			return cached, nil
		}
	}

	prediction, format, err := s.classify(ctx, data)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, digest, prediction); err != nil {
			entry.WithError(err).Warn("prediction cache store failed")
		}
	}
	s.finish(ctx, entry, prediction, digest, format, len(data), false)
	return prediction, nil
}

// classify returns the prediction and the decoded image format.
func (s *PredictionService) classify(ctx context.Context, data []byte) (*model.Prediction, string, error) {
	img, format, err := s.preprocessor.Decode(data)
	if err != nil {
		if errors.Is(err, vision.ErrImageTooLarge) {
			return nil, "", fmt.Errorf("%w: %w", ErrImageTooLarge, err)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}

	batch, err := s.preprocessor.Batch(img)
	if err != nil {
		if errors.Is(err, vision.ErrShapeMismatch) {
			return nil, "", fmt.Errorf("%w: %w", ErrImageShape, err)
		}
		return nil, "", fmt.Errorf("%w: preprocess: %w", ErrInference, err)
	}

	start := time.Now()
	scores, err := s.predictor.Predict(ctx, batch)
	if s.recorder != nil {
		s.recorder.ObserveInference(time.Since(start))
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInference, err)
	}

	idx, score := vision.Argmax(scores)
	disease, ok := model.DiseaseAt(idx)
	if !ok || len(scores) != len(model.Diseases) {
		return nil, "", fmt.Errorf("%w: %d scores, argmax %d", ErrLabelMismatch, len(scores), idx)
	}
	return model.NewPrediction(disease, vision.Clamp01(score)), format, nil
}

func (s *PredictionService) finish(ctx context.Context, entry *log.Entry, p *model.Prediction, digest, format string, size int, cached bool) {
	if s.recorder != nil {
		s.recorder.ObservePrediction(p.Class, cached)
	}
	entry.WithFields(log.Fields{
		"class":      p.Class,
		"confidence": p.Confidence,
		"cached":     cached,
		"format":     format,
	}).Debug("prediction served")

	if s.publisher == nil {
		return
	}
	event := model.PredictionEvent{
		ID:               uuid.NewString(),
		Class:            p.Class,
		Confidence:       p.Confidence,
		ImageSHA256:      digest,
		ImageBytes:       size,
		Cached:           cached,
		ImageFormat:      format,
		ModelFingerprint: s.modelFingerprint,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		entry.WithError(err).Warn("publish prediction event failed")
	}
}
