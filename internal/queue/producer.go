package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medscribe/internal/config"
	"medscribe/internal/model"
	"medscribe/internal/worker"

	"github.com/go-redis/redis/v8"
)

// RedisDispatcher admits a job once per dictation id and pushes it onto the transcription queue
type RedisDispatcher struct {
	client       *redis.Client
	queue        string
	admissionTTL time.Duration
}

func NewRedisDispatcher(redisClient *RedisClient, cfg config.RedisConfig) *RedisDispatcher {
	return &RedisDispatcher{
		client:       redisClient.Client(),
		queue:        cfg.TranscriptionQueue,
		admissionTTL: cfg.AdmissionTTL,
	}
}

func (p *RedisDispatcher) Dispatch(ctx context.Context, job model.TranscriptionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	key := admissionKey(job.DictationID.String())
	admitted, err := p.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), p.admissionTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to admit job: %w", err)
	}
	if !admitted {
		return worker.ErrDuplicateKey
	}

	if err := p.client.LPush(ctx, p.queue, data).Err(); err != nil {
		p.client.Del(context.Background(), key)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}
