package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"medscribe/internal/config"
	"medscribe/internal/logger"
	"medscribe/internal/model"
	"medscribe/internal/worker"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const submitRetryInterval = 200 * time.Millisecond

// Consumer moves jobs from the Redis queue into the local worker pool
type Consumer struct {
	client     *redis.Client
	queue      string
	dlq        string
	pollWindow time.Duration
	pool       *worker.WorkerPool
	handler    worker.Handler
	log        zerolog.Logger
}

func NewConsumer(redisClient *RedisClient, cfg config.RedisConfig, pool *worker.WorkerPool, handler worker.Handler) *Consumer {
	return &Consumer{
		client:     redisClient.Client(),
		queue:      cfg.TranscriptionQueue,
		dlq:        cfg.TranscriptionQueue + cfg.DLQSuffix,
		pollWindow: 5 * time.Second,
		pool:       pool,
		handler:    handler,
		log:        logger.Get().With().Str("queue", cfg.TranscriptionQueue).Logger(),
	}
}

// Run consumes until ctx is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("Starting transcription queue consumer")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, c.pollWindow, c.queue).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue // Timeout or shutdown, re-check ctx
			}
			c.log.Error().Err(err).Msg("Failed to consume message")
			time.Sleep(submitRetryInterval)
			continue
		}
		if len(result) < 2 {
			continue
		}

		if err := c.handle(ctx, result[1]); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message string) error {
	var job model.TranscriptionJob
	if err := json.Unmarshal([]byte(message), &job); err != nil {
		c.log.Error().Err(err).Msg("Undecodable job, moving to DLQ")
		c.toDLQ(message)
		return nil
	}

	key := job.DictationID.String()
	run := func(ctx context.Context) error {
		defer c.client.Del(context.Background(), admissionKey(key))
		return c.handler(ctx, job)
	}

	// Wait for a free slot instead of losing the message.
	for {
		err := c.pool.Submit(key, run)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, worker.ErrDuplicateKey):
			c.log.Warn().Str("dictation_id", key).Msg("Job already running, dropping duplicate")
			return nil
		case errors.Is(err, worker.ErrQueueFull):
			select {
			case <-ctx.Done():
				c.requeue(message)
				return ctx.Err()
			case <-time.After(submitRetryInterval):
			}
		default:
			c.requeue(message)
			return err
		}
	}
}

func (c *Consumer) toDLQ(message string) {
	if err := c.client.LPush(context.Background(), c.dlq, message).Err(); err != nil {
		c.log.Error().Err(err).Str("dlq", c.dlq).Msg("Failed to move message to DLQ")
	}
}

// requeue puts a message back at the consuming end of the queue
func (c *Consumer) requeue(message string) {
	if err := c.client.RPush(context.Background(), c.queue, message).Err(); err != nil {
		c.log.Error().Err(err).Msg("Failed to requeue message")
	}
}
