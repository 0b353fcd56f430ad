package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"medscribe/internal/config"
	"medscribe/internal/model"
	"medscribe/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient, config.RedisConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{
		URL:                "redis://" + mr.Addr(),
		TranscriptionQueue: "medscribe:transcription",
		DLQSuffix:          ":dlq",
		AdmissionTTL:       time.Hour,
	}
	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return mr, client, cfg
}

func TestRedisDispatcher_AdmitsOncePerDictation(t *testing.T) {
	mr, client, cfg := newTestRedis(t)
	dispatcher := NewRedisDispatcher(client, cfg)
	job := model.TranscriptionJob{DictationID: uuid.New(), AudioURL: "http://blob/a", MimeType: "audio/wav"}

	require.NoError(t, dispatcher.Dispatch(context.Background(), job))
	assert.ErrorIs(t, dispatcher.Dispatch(context.Background(), job), worker.ErrDuplicateKey)

	items, err := mr.List(cfg.TranscriptionQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)

	var queued model.TranscriptionJob
	require.NoError(t, json.Unmarshal([]byte(items[0]), &queued))
	assert.Equal(t, job, queued)

	assert.True(t, mr.Exists(admissionKey(job.DictationID.String())))
	assert.Equal(t, time.Hour, mr.TTL(admissionKey(job.DictationID.String())))
}

func TestConsumer_RunsQueuedJobs(t *testing.T) {
	mr, client, cfg := newTestRedis(t)

	pool := worker.NewWorkerPool(1, 4)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan model.TranscriptionJob, 1)
	consumer := NewConsumer(client, cfg, pool, func(ctx context.Context, job model.TranscriptionJob) error {
		done <- job
		return nil
	})
	consumer.pollWindow = 100 * time.Millisecond

	job := model.TranscriptionJob{DictationID: uuid.New(), AudioURL: "http://blob/a", MimeType: "audio/wav"}
	require.NoError(t, NewRedisDispatcher(client, cfg).Dispatch(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	select {
	case got := <-done:
		assert.Equal(t, job.DictationID, got.DictationID)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not consumed")
	}

	assert.Eventually(t, func() bool {
		return !mr.Exists(admissionKey(job.DictationID.String()))
	}, time.Second, 10*time.Millisecond)
}

func TestConsumer_UndecodableMessageGoesToDLQ(t *testing.T) {
	mr, client, cfg := newTestRedis(t)

	pool := worker.NewWorkerPool(1, 1)
	consumer := NewConsumer(client, cfg, pool, func(ctx context.Context, job model.TranscriptionJob) error {
		t.Fatal("handler must not run")
		return nil
	})

	require.NoError(t, consumer.handle(context.Background(), "{not json"))

	items, err := mr.List(cfg.TranscriptionQueue + cfg.DLQSuffix)
	require.NoError(t, err)
	assert.Equal(t, []string{"{not json"}, items)
}

func TestConsumer_RequeuesWhenShuttingDownWithFullPool(t *testing.T) {
	mr, client, cfg := newTestRedis(t)

	pool := worker.NewWorkerPool(1, 1)
	require.NoError(t, pool.Submit("busy", func(ctx context.Context) error { return nil }))

	consumer := NewConsumer(client, cfg, pool, func(ctx context.Context, job model.TranscriptionJob) error { return nil })
	data, _ := json.Marshal(model.TranscriptionJob{DictationID: uuid.New()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, consumer.handle(ctx, string(data)), context.Canceled)

	items, err := mr.List(cfg.TranscriptionQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{string(data)}, items)

	pool.Start(context.Background())
	pool.Stop()
}
