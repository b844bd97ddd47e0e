package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"leafguard/internal/app"
	"leafguard/internal/cache"
	"leafguard/internal/config"
	"leafguard/internal/metrics"
	"leafguard/internal/model"
	rabbitmqClient "leafguard/internal/platform/rabbitmq"
	redisClient "leafguard/internal/platform/redis"
	"leafguard/internal/vision"
)

// App is the process-wide state, built once at startup and read-only afterwards.
type App struct {
	Config           *config.Config
	Classifier       *vision.Classifier
	Predictions      *app.PredictionService
	Metrics          *metrics.Metrics
	Redis            *redis.Client
	MQConn           *amqp.Connection
	ModelFingerprint string

	StartedAt time.Time
}

// New loads the model and connects the optional dependencies. A failure to
// load the model is returned; the caller must not serve traffic.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	classifier, err := vision.LoadClassifier(vision.ClassifierOptions{
		ModelPath:      cfg.Vision.ModelPath,
		SharedLibPath:  cfg.Vision.ONNXSharedLibPath,
		Layout:         vision.Layout(cfg.Vision.Layout),
		Output:         vision.OutputKind(cfg.Vision.Output),
		IntraOpThreads: cfg.Vision.IntraOpThreads,
		NumClasses:     len(model.Diseases),
	})
	if err != nil {
		return nil, fmt.Errorf("load classifier failed: %w", err)
	}

	a := &App{
		Config:           cfg,
		Classifier:       classifier,
		ModelFingerprint: classifier.Fingerprint(),
		StartedAt:        time.Now(),
	}

	preprocessor, err := vision.NewPreprocessor(classifier.InputSpec(), vision.PreprocessOptions{
		ResizeMode:    vision.ResizeMode(cfg.Vision.ResizeMode),
		Normalization: vision.Normalization(cfg.Vision.Normalization),
		ImageSize:     cfg.Vision.ImageSize,
		MaxPixels:     cfg.Vision.MaxPixels,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build preprocessor failed: %w", err)
	}

	var recorder app.PredictionRecorder
	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		recorder = a.Metrics
	}

	var predictionCache app.PredictionCache
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Redis = client
		predictionCache = cache.NewPredictionCache(client, a.ModelFingerprint,
			time.Duration(cfg.Redis.PredictionTTLSeconds)*time.Second)
		log.WithField("addr", cfg.Redis.Addr).Info("prediction cache enabled")
	}

	var publisher app.PredictionPublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewPredictionPublisher(conn, cfg.RabbitMQ.PredictionQueue)
		log.WithField("queue", cfg.RabbitMQ.PredictionQueue).Info("prediction events enabled")
	}

	a.Predictions = app.NewPredictionService(classifier, preprocessor, predictionCache, publisher, recorder, a.ModelFingerprint)
	return a, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Classifier != nil {
		a.Classifier.Close()
	}
	return closeErr
}
