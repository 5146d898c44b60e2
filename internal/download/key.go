package download

import (
	"context"
	"fmt"
	"net/url"

	"hlsget/internal/aes128"
	"hlsget/internal/playlist"
)

// Method is the encryption method of the resolved key material.
type Method int

const (
	// MethodNone means segments are copied through undecrypted.
	MethodNone Method = iota
	// MethodAES128 means segments are AES-128-CBC encrypted.
	MethodAES128
)

// KeyErrorReason classifies key resolution failures.
type KeyErrorReason int

const (
	ReasonInvalidKeyLength KeyErrorReason = iota
	ReasonInvalidIVLength
	ReasonUnsupportedMethod
)

// KeyError is a fatal key resolution failure; the whole download aborts
// before any segment work starts.
type KeyError struct {
	Reason KeyErrorReason
	Detail string
	Err    error
}

func (e *KeyError) Error() string {
	switch e.Reason {
	case ReasonInvalidKeyLength:
		return fmt.Sprintf("invalid encryption key: %s", e.Detail)
	case ReasonInvalidIVLength:
		return fmt.Sprintf("invalid IV: %s", e.Detail)
	case ReasonUnsupportedMethod:
		return fmt.Sprintf("unsupported encryption method: %s", e.Detail)
	default:
		return fmt.Sprintf("key resolution failed: %s", e.Detail)
	}
}

func (e *KeyError) Unwrap() error { return e.Err }

// KeyMaterial is the resolved encryption state of a download. It is built
// once before the worker pool starts and is read-only afterwards, so the
// workers share it without locking.
type KeyMaterial struct {
	Method Method
	// Key is the raw 16-byte AES key. Nil when Method is MethodNone.
	Key []byte
	// IV is the explicit playlist-level IV, shared by every segment. Nil
	// when the playlist declared none.
	IV []byte
	// SequenceIV is set when no explicit IV exists: each segment derives its
	// IV from the media sequence number instead.
	SequenceIV bool
}

// ResolveKey fetches and validates the playlist-level encryption key.
// A nil or NONE key reference yields passthrough material; any method other
// than AES-128 is fatal.
func ResolveKey(ctx context.Context, fetcher Fetcher, key *playlist.Key, base *url.URL) (*KeyMaterial, error) {
	if key == nil || key.Method == "" || key.Method == "NONE" {
		return &KeyMaterial{Method: MethodNone}, nil
	}

	if key.Method != "AES-128" {
		return nil, &KeyError{Reason: ReasonUnsupportedMethod, Detail: key.Method}
	}

	keyURL, err := playlist.ResolveURL(base, key.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key URI %q: %w", key.URI, err)
	}

	rawKey, err := fetcher.Fetch(ctx, keyURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch encryption key from %s: %w", keyURL, err)
	}
	if len(rawKey) != aes128.KeySize {
		return nil, &KeyError{
			Reason: ReasonInvalidKeyLength,
			Detail: fmt.Sprintf("got %d bytes from %s (expected %d)", len(rawKey), keyURL, aes128.KeySize),
		}
	}

	material := &KeyMaterial{Method: MethodAES128, Key: rawKey}

	if key.IV != "" {
		iv, err := aes128.ParseIV(key.IV)
		if err != nil {
			return nil, &KeyError{Reason: ReasonInvalidIVLength, Detail: key.IV, Err: err}
		}
		material.IV = iv
	} else {
		material.SequenceIV = true
	}

	return material, nil
}
