package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"medscribe/pkg/errors"
)

// LocalStore keeps blobs on disk and signs URLs served by the API at /blobs/*path.
type LocalStore struct {
	httpFetcher
	dir     string
	baseURL string
	key     []byte
	now     func() time.Time
}

func NewLocalStore(dir, baseURL, signingKey string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStore{
		httpFetcher: httpFetcher{client: &http.Client{}, maxBytes: maxBytes},
		dir:         dir,
		baseURL:     strings.TrimRight(baseURL, "/"),
		key:         []byte(signingKey),
		now:         time.Now,
	}, nil
}

// Put writes the blob, creating parent directories as needed
func (s *LocalStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	dst, err := s.Resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// SignedURL returns <baseURL>/blobs/<path>?expires=<unix>&sig=<hmac>
func (s *LocalStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if _, err := s.Resolve(path); err != nil {
		return "", err
	}

	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.sign(path, expires))

	return s.baseURL + "/blobs/" + path + "?" + q.Encode(), nil
}

// Fetch reads URLs signed by this store straight from disk, so workers do not
// depend on the HTTP listener. Other URLs are downloaded.
func (s *LocalStore) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	prefix := s.baseURL + "/blobs/"
	if !strings.HasPrefix(rawURL, prefix) {
		return s.httpFetcher.Fetch(ctx, rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, rawQuery, _ := strings.Cut(strings.TrimPrefix(rawURL, prefix), "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, errors.ErrSignatureMismatch
	}
	if err := s.Verify(path, q.Get("expires"), q.Get("sig")); err != nil {
		return nil, err
	}

	file, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if err := s.checkSize(info.Size()); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Verify checks the signature and expiry of a URL produced by SignedURL
func (s *LocalStore) Verify(path, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return errors.ErrSignatureMismatch
	}
	if s.now().Unix() > exp {
		return errors.ErrSignatureMismatch
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(path, exp))) {
		return errors.ErrSignatureMismatch
	}
	return nil
}

// Resolve maps a blob path to a file below the storage directory
func (s *LocalStore) Resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" || clean != "/"+path {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) sign(path string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(path))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
