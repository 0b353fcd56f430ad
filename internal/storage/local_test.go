package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"medscribe/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/", "secret", 16)
	require.NoError(t, err)
	return store
}

func TestLocalStore_PutWritesBelowDir(t *testing.T) {
	store := newTestLocalStore(t)
	path := AudioPath("abc", ".wav")

	require.NoError(t, store.Put(context.Background(), path, []byte("RIFF"), "audio/wav"))

	file, err := store.Resolve(path)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data))
}

func TestLocalStore_ResolveRejectsTraversal(t *testing.T) {
	store := newTestLocalStore(t)

	for _, p := range []string{"../etc/passwd", "dictations/../../x", "", "/abs"} {
		_, err := store.Resolve(p)
		assert.Error(t, err, p)
	}
}

func TestLocalStore_SignedURLRoundTrip(t *testing.T) {
	store := newTestLocalStore(t)
	path := AudioPath("abc", ".mp3")

	signed, err := store.SignedURL(context.Background(), path, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "http://localhost:8080/blobs/dictations/abc/audio.mp3?"))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	assert.NoError(t, store.Verify(path, q.Get("expires"), q.Get("sig")))
	assert.ErrorIs(t, store.Verify("dictations/other/audio.mp3", q.Get("expires"), q.Get("sig")), errors.ErrSignatureMismatch)
	assert.ErrorIs(t, store.Verify(path, q.Get("expires"), "deadbeef"), errors.ErrSignatureMismatch)
	assert.ErrorIs(t, store.Verify(path, "not-a-number", q.Get("sig")), errors.ErrSignatureMismatch)
}

func TestLocalStore_SignedURLExpires(t *testing.T) {
	store := newTestLocalStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }
	path := AudioPath("abc", ".mp3")

	signed, err := store.SignedURL(context.Background(), path, time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(signed)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.ErrorIs(t, store.Verify(path, u.Query().Get("expires"), u.Query().Get("sig")), errors.ErrSignatureMismatch)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	store := newTestLocalStore(t)

	data, err := store.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))

	_, err = store.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "unexpected status 404")
}

func TestFetch_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", 17)))
	}))
	defer srv.Close()

	_, err := newTestLocalStore(t).Fetch(context.Background(), srv.URL)
	assert.ErrorContains(t, err, "exceeds the 16 byte limit")
}

func TestLocalStore_FetchOwnURLReadsFromDisk(t *testing.T) {
	// Nothing listens on the store's base URL, so a network fetch would fail.
	store := newTestLocalStore(t)
	path := AudioPath("abc", ".wav")
	require.NoError(t, store.Put(context.Background(), path, []byte("RIFF-audio"), "audio/wav"))

	signed, err := store.SignedURL(context.Background(), path, time.Minute)
	require.NoError(t, err)

	data, err := store.Fetch(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-audio", string(data))

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()
	q.Set("sig", strings.Repeat("0", 64))
	u.RawQuery = q.Encode()
	_, err = store.Fetch(context.Background(), u.String())
	assert.ErrorIs(t, err, errors.ErrSignatureMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Fetch(ctx, signed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStore_FetchOwnURLEnforcesLimit(t *testing.T) {
	store := newTestLocalStore(t)
	path := AudioPath("big", ".wav")
	require.NoError(t, store.Put(context.Background(), path, []byte(strings.Repeat("a", 17)), "audio/wav"))

	signed, err := store.SignedURL(context.Background(), path, time.Minute)
	require.NoError(t, err)

	_, err = store.Fetch(context.Background(), signed)
	assert.ErrorContains(t, err, "exceeds the 16 byte limit")
}
