package download_test

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"hlsget/internal/download"
	"hlsget/internal/playlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFetcher serves canned bodies keyed by URL and records every
// request it sees.
type countingFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.New("unexpected URL: " + url)
	}
	return body, nil
}

func baseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://cdn.example.com/v/playlist.m3u8")
	require.NoError(t, err)
	return u
}

func TestResolveKey_None(t *testing.T) {
	fetcher := &countingFetcher{}

	for _, key := range []*playlist.Key{
		nil,
		{Method: "NONE"},
		{Method: ""},
	} {
		material, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
		require.NoError(t, err)
		assert.Equal(t, download.MethodNone, material.Method)
	}

	assert.Empty(t, fetcher.calls, "no network calls expected for unencrypted playlists")
}

func TestResolveKey_AES128(t *testing.T) {
	rawKey := []byte("0123456789abcdef")
	fetcher := &countingFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/enc.key": rawKey,
	}}

	key := &playlist.Key{Method: "AES-128", URI: "enc.key"}
	material, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
	require.NoError(t, err)

	assert.Equal(t, download.MethodAES128, material.Method)
	assert.Equal(t, rawKey, material.Key)
	assert.Nil(t, material.IV)
	assert.True(t, material.SequenceIV, "missing IV must switch to sequence-derived IVs")
	assert.Equal(t, []string{"https://cdn.example.com/v/enc.key"}, fetcher.calls)
}

func TestResolveKey_ExplicitIV(t *testing.T) {
	fetcher := &countingFetcher{bodies: map[string][]byte{
		"https://keys.example.com/enc.key": []byte("0123456789abcdef"),
	}}

	key := &playlist.Key{
		Method: "AES-128",
		URI:    "https://keys.example.com/enc.key",
		IV:     "0x000102030405060708090a0b0c0d0e0f",
	}
	material, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
	require.NoError(t, err)

	assert.False(t, material.SequenceIV)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, material.IV)
}

func TestResolveKey_InvalidKeyLength(t *testing.T) {
	fetcher := &countingFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/enc.key": []byte("too short"),
	}}

	key := &playlist.Key{Method: "AES-128", URI: "enc.key"}
	_, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
	require.Error(t, err)

	var keyErr *download.KeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, download.ReasonInvalidKeyLength, keyErr.Reason)
}

func TestResolveKey_InvalidIVLength(t *testing.T) {
	fetcher := &countingFetcher{bodies: map[string][]byte{
		"https://cdn.example.com/v/enc.key": []byte("0123456789abcdef"),
	}}

	key := &playlist.Key{Method: "AES-128", URI: "enc.key", IV: "0xffff"}
	_, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
	require.Error(t, err)

	var keyErr *download.KeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, download.ReasonInvalidIVLength, keyErr.Reason)
}

func TestResolveKey_UnsupportedMethod(t *testing.T) {
	fetcher := &countingFetcher{}

	key := &playlist.Key{Method: "SAMPLE-AES", URI: "enc.key"}
	_, err := download.ResolveKey(context.Background(), fetcher, key, baseURL(t))
	require.Error(t, err)

	var keyErr *download.KeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, download.ReasonUnsupportedMethod, keyErr.Reason)
	assert.Empty(t, fetcher.calls, "no fetch expected for unsupported methods")
}
