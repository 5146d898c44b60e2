package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher downloads the raw bytes at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Result is the playlist reference extracted from a generic video page.
type Result struct {
	PlaylistURL string
	// Name is the display name of the video, if the page declared one.
	Name string
}

// videoObject is the subset of the JSON-LD VideoObject schema the resolver
// consumes.
type videoObject struct {
	Type         string `json:"@type"`
	Name         string `json:"name"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// IsPlaylistURL reports whether raw already points at an HLS playlist, in
// which case no page scraping is needed.
func IsPlaylistURL(raw string) bool {
	return strings.Contains(raw, ".m3u8")
}

// Resolve fetches a generic web page and extracts the playlist URL from its
// JSON-LD structured data. The VideoObject's thumbnail sits next to the
// playlist on the CDN, so the playlist URL is the thumbnail URL with its
// last path element replaced by playlist.m3u8.
func Resolve(ctx context.Context, fetcher Fetcher, pageURL string) (*Result, error) {
	body, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}

	var video *videoObject
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var obj videoObject
		if err := json.Unmarshal([]byte(s.Text()), &obj); err != nil {
			return true
		}
		if obj.Type != "VideoObject" {
			return true
		}
		video = &obj
		return false
	})

	if video == nil {
		return nil, fmt.Errorf("no VideoObject structured data found at %s", pageURL)
	}
	if video.ThumbnailURL == "" {
		return nil, fmt.Errorf("VideoObject at %s has no thumbnailUrl to derive the playlist from", pageURL)
	}

	return &Result{
		PlaylistURL: playlistURLFromThumbnail(video.ThumbnailURL),
		Name:        strings.TrimSuffix(video.Name, ".mp4"),
	}, nil
}

// playlistURLFromThumbnail swaps the final path element for playlist.m3u8.
// The thumbnail file name varies, so only the directory part is trusted.
func playlistURLFromThumbnail(thumbnailURL string) string {
	parts := strings.Split(thumbnailURL, "/")
	parts[len(parts)-1] = "playlist.m3u8"
	return strings.Join(parts, "/")
}
