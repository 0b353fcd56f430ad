package storage

import (
	"context"
	"time"
)

// BlobStore holds uploaded audio and hands out time-limited read URLs for it.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// AudioPath is the blob path of a dictation's audio file.
func AudioPath(dictationID, ext string) string {
	return "dictations/" + dictationID + "/audio" + ext
}
