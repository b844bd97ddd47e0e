package model

import "time"

// Prediction is the /predict response body.
type Prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Remedy     string  `json:"remedy"`
}

func NewPrediction(d Disease, confidence float64) *Prediction {
	return &Prediction{
		Class:      d.Label(),
		Confidence: confidence,
		Remedy:     Remedy(d),
	}
}

// PredictionEvent is published to the broker after each successful prediction.
type PredictionEvent struct {
	ID               string    `json:"id"`
	Class            string    `json:"class"`
	Confidence       float64   `json:"confidence"`
	ImageSHA256      string    `json:"image_sha256"`
	ImageBytes       int       `json:"image_bytes"`
	Cached           bool      `json:"cached"`
	ImageFormat      string    `json:"image_format,omitempty"`
	ModelFingerprint string    `json:"model_fingerprint,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
