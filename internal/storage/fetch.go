package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// httpFetcher downloads signed URLs. maxBytes <= 0 disables the size limit.
type httpFetcher struct {
	client   *http.Client
	maxBytes int64
}

func (f httpFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	client := f.client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if err := f.checkSize(int64(len(data))); err != nil {
		return nil, err
	}
	return data, nil
}

func (f httpFetcher) checkSize(n int64) error {
	if f.maxBytes > 0 && n > f.maxBytes {
		return fmt.Errorf("blob exceeds the %d byte limit", f.maxBytes)
	}
	return nil
}
