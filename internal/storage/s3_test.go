package storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"medscribe/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Store_SignedURL(t *testing.T) {
	store, err := NewS3Store(config.S3Config{
		Endpoint:  "minio.local:9000",
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "audio",
		Region:    "us-east-1",
	}, 10<<20)
	require.NoError(t, err)

	signed, err := store.SignedURL(context.Background(), AudioPath("abc", ".wav"), 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "minio.local:9000", u.Host)
	assert.Equal(t, "/audio/dictations/abc/audio.wav", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
