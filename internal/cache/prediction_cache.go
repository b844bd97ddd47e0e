package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"leafguard/internal/model"
)

const keyPrefix = "leafguard:prediction"

// PredictionCache stores predictions keyed by model fingerprint and image
// digest. Inference is deterministic, so a hit is the answer the model would give.
type PredictionCache struct {
	client *redisv9.Client
	model  string
	ttl    time.Duration
}

func NewPredictionCache(client *redisv9.Client, modelFingerprint string, ttl time.Duration) *PredictionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PredictionCache{
		client: client,
		model:  shortFingerprint(modelFingerprint),
		ttl:    ttl,
	}
}

func (c *PredictionCache) Get(ctx context.Context, digest string) (*model.Prediction, bool, error) {
	raw, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get prediction failed: %w", err)
	}

	var p model.Prediction
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached prediction failed: %w", err)
	}
	return &p, true, nil
}

func (c *PredictionCache) Set(ctx context.Context, digest string, prediction *model.Prediction) error {
	payload, err := json.Marshal(prediction)
	if err != nil {
		return fmt.Errorf("marshal prediction failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(digest), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set prediction failed: %w", err)
	}
	return nil
}

func (c *PredictionCache) key(digest string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, c.model, digest)
}

func shortFingerprint(fp string) string {
	if fp == "" {
		return "unknown"
	}
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}
