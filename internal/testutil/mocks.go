package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"leafguard/internal/model"
	"leafguard/internal/vision"
)

// MockPredictor is a mock of app.Predictor.
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, batch vision.Batch) ([]float32, error) {
	args := m.Called(ctx, batch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockPredictionCache is a mock of app.PredictionCache.
type MockPredictionCache struct {
	mock.Mock
}

func (m *MockPredictionCache) Get(ctx context.Context, digest string) (*model.Prediction, bool, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Prediction), args.Bool(1), args.Error(2)
}

func (m *MockPredictionCache) Set(ctx context.Context, digest string, prediction *model.Prediction) error {
	args := m.Called(ctx, digest, prediction)
	return args.Error(0)
}

// MockPredictionPublisher is a mock of app.PredictionPublisher.
type MockPredictionPublisher struct {
	mock.Mock
}

func (m *MockPredictionPublisher) Publish(ctx context.Context, event model.PredictionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockRecorder is a mock of app.PredictionRecorder.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) ObserveInference(d time.Duration) {
	m.Called(d)
}

func (m *MockRecorder) ObservePrediction(class string, cached bool) {
	m.Called(class, cached)
}
