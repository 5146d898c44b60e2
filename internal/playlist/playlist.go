package playlist

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/grafov/m3u8"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic is the frame header of a zstd-compressed body. Some origins
// serve playlists zstd-encoded regardless of Accept-Encoding.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Fetcher downloads the raw bytes at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Key describes the encryption parameters attached to a playlist or to a
// single segment (EXT-X-KEY).
type Key struct {
	Method string
	URI    string
	IV     string
}

// Segment is one media segment of a media playlist.
type Segment struct {
	// Index is the 0-based ordinal position within the playlist. It drives
	// both output ordering and sequence-derived IV computation.
	Index int
	// URI is the segment location, absolute or relative to the playlist URL.
	URI      string
	Duration float64
	// Key is set only when this segment's encryption parameters differ from
	// the playlist-level default.
	Key *Key
}

// Media is a media playlist: the ordered segment list plus the metadata the
// download pipeline consumes.
type Media struct {
	Segments      []Segment
	MediaSequence uint64
	Key           *Key
	URL           *url.URL
}

// Variant is one entry of a master playlist.
type Variant struct {
	URI        string
	Bandwidth  uint32
	Resolution string
	Codecs     string
}

// Master is a master (multi-variant) playlist.
type Master struct {
	Variants []Variant
	URL      *url.URL
}

// Duration returns the total duration of all segments in seconds.
func (m *Media) Duration() float64 {
	var total float64
	for _, seg := range m.Segments {
		total += seg.Duration
	}
	return total
}

// EncryptionKey returns the playlist-level key reference: the top-level key
// if declared, otherwise the first segment's key. Nil means no encryption.
func (m *Media) EncryptionKey() *Key {
	if m.Key != nil {
		return m.Key
	}
	if len(m.Segments) > 0 {
		return m.Segments[0].Key
	}
	return nil
}

// SelectBest picks the variant with the highest bandwidth. Ties are broken
// by first appearance in the playlist.
func (m *Master) SelectBest() (*Variant, error) {
	if len(m.Variants) == 0 {
		return nil, fmt.Errorf("master playlist has no variants")
	}
	best := &m.Variants[0]
	for i := 1; i < len(m.Variants); i++ {
		if m.Variants[i].Bandwidth > best.Bandwidth {
			best = &m.Variants[i]
		}
	}
	return best, nil
}

// Fetch downloads and parses the playlist at rawURL. Exactly one of the
// returned playlists is non-nil.
func Fetch(ctx context.Context, fetcher Fetcher, rawURL string) (*Master, *Media, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse playlist URL %q: %w", rawURL, err)
	}

	body, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}

	return Decode(body, base)
}

// Decode parses a playlist body, transparently decompressing zstd-encoded
// responses, and adapts it to the internal model.
func Decode(body []byte, base *url.URL) (*Master, *Media, error) {
	body, err := maybeZstd(body)
	if err != nil {
		return nil, nil, err
	}

	pl, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		return adaptMaster(pl.(*m3u8.MasterPlaylist), base), nil, nil
	case m3u8.MEDIA:
		return nil, adaptMedia(pl.(*m3u8.MediaPlaylist), base), nil
	default:
		return nil, nil, fmt.Errorf("unrecognized playlist type")
	}
}

// ResolveURL resolves ref against base. Absolute refs pass through unchanged.
func ResolveURL(base *url.URL, ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", ref, err)
	}
	return base.ResolveReference(u), nil
}

func adaptMaster(pl *m3u8.MasterPlaylist, base *url.URL) *Master {
	master := &Master{URL: base}
	for _, v := range pl.Variants {
		if v == nil || v.Iframe {
			continue
		}
		master.Variants = append(master.Variants, Variant{
			URI:        v.URI,
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
			Codecs:     v.Codecs,
		})
	}
	return master
}

func adaptMedia(pl *m3u8.MediaPlaylist, base *url.URL) *Media {
	media := &Media{
		MediaSequence: pl.SeqNo,
		Key:           adaptKey(pl.Key),
		URL:           base,
	}
	for _, seg := range pl.Segments {
		// The parser allocates a fixed-capacity slice; the tail is nil.
		if seg == nil {
			continue
		}
		media.Segments = append(media.Segments, Segment{
			Index:    len(media.Segments),
			URI:      seg.URI,
			Duration: seg.Duration,
			Key:      adaptKey(seg.Key),
		})
	}
	return media
}

func adaptKey(key *m3u8.Key) *Key {
	if key == nil {
		return nil
	}
	return &Key{
		Method: key.Method,
		URI:    key.URI,
		IV:     key.IV,
	}
}

func maybeZstd(body []byte) ([]byte, error) {
	if !bytes.HasPrefix(body, zstdMagic) {
		return body, nil
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize zstd decoder: %w", err)
	}
	defer decoder.Close()

	decompressed, err := decoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress zstd playlist body: %w", err)
	}
	return decompressed, nil
}
