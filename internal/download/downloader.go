package download

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hlsget/internal/aes128"
	"hlsget/internal/logger"
	"hlsget/internal/playlist"
)

// progressInterval is how many completions pass between progress reports.
const progressInterval = 10

// ErrNoSegments is returned when the media playlist contains no segments.
var ErrNoSegments = errors.New("playlist has no segments")

// Fetcher downloads the raw bytes at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Stage identifies which step of segment processing failed.
type Stage string

const (
	StageDownload Stage = "download"
	StageDecrypt  Stage = "decrypt"
)

// SegmentError is a fatal per-segment failure. Any single segment error
// aborts the entire operation; there is no skip-and-continue mode.
type SegmentError struct {
	Index int
	Stage Stage
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %s failed: %v", e.Index, e.Stage, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// ProgressFunc observes download progress as (completed, total). Calls are
// serialized and completion counts arrive in increasing order.
type ProgressFunc func(completed, total int)

// Downloader fans segment fetch-decrypt tasks out across a bounded worker
// pool and reassembles the payloads in playlist order.
type Downloader struct {
	fetcher Fetcher
	logger  logger.Logger
	workers int

	// Progress, when set, is invoked at the same cadence as the progress
	// log lines: every tenth completion and on the final one.
	Progress ProgressFunc
}

// NewDownloader creates a downloader with the given pool size.
func NewDownloader(fetcher Fetcher, log logger.Logger, workers int) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		logger:  log,
		workers: workers,
	}
}

// Run downloads every segment of media and returns the payloads ordered by
// sequence index, regardless of completion order. The first segment failure
// cancels all queued work and is returned as the operation's single error;
// requests already in flight are left to finish and their results discarded.
func (d *Downloader) Run(ctx context.Context, media *playlist.Media, material *KeyMaterial) ([][]byte, error) {
	total := len(media.Segments)
	if total == 0 {
		return nil, ErrNoSegments
	}

	d.logger.Infof("downloading %d segments with %d workers", total, d.workers)

	poolCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu        sync.Mutex
		results   = make(map[int][]byte, total)
		completed int
		firstErr  error
	)

	jobs := make(chan playlist.Segment)
	var wg sync.WaitGroup

	workers := d.workers
	if workers > total {
		workers = total
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range jobs {
				// Once a segment has failed, drain the queue without
				// issuing further work.
				if poolCtx.Err() != nil {
					continue
				}

				data, err := d.processSegment(ctx, seg, media, material)

				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
					mu.Unlock()
					continue
				}
				if firstErr != nil {
					mu.Unlock()
					continue
				}
				results[seg.Index] = data
				completed++
				// Report while holding the lock so observers see completion
				// counts in order.
				if completed%progressInterval == 0 || completed == total {
					d.logger.Infof("progress: %d/%d segments (%d%%)", completed, total, completed*100/total)
					if d.Progress != nil {
						d.Progress(completed, total)
					}
				}
				mu.Unlock()
			}
		}()
	}

	for _, seg := range media.Segments {
		select {
		case jobs <- seg:
		case <-poolCtx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	ordered := make([][]byte, total)
	for i := 0; i < total; i++ {
		data, ok := results[i]
		if !ok {
			// Unreachable when every task reported success.
			return nil, fmt.Errorf("internal: segment %d missing from results", i)
		}
		ordered[i] = data
	}
	return ordered, nil
}

// processSegment resolves, downloads and (when encrypted) decrypts a single
// segment.
func (d *Downloader) processSegment(ctx context.Context, seg playlist.Segment, media *playlist.Media, material *KeyMaterial) ([]byte, error) {
	segURL, err := playlist.ResolveURL(media.URL, seg.URI)
	if err != nil {
		return nil, &SegmentError{Index: seg.Index, Stage: StageDownload, Err: err}
	}

	data, err := d.fetcher.Fetch(ctx, segURL.String())
	if err != nil {
		return nil, &SegmentError{Index: seg.Index, Stage: StageDownload, Err: err}
	}

	if material.Method == MethodNone {
		return data, nil
	}

	iv, err := segmentIV(seg, material, media.MediaSequence)
	if err != nil {
		return nil, &SegmentError{Index: seg.Index, Stage: StageDecrypt, Err: err}
	}

	plaintext, err := aes128.Decrypt(data, material.Key, iv)
	if err != nil {
		return nil, &SegmentError{Index: seg.Index, Stage: StageDecrypt, Err: err}
	}

	return aes128.StripPadding(plaintext), nil
}

// segmentIV determines the concrete IV for one segment, in priority order:
// segment-level override, then the playlist's explicit IV, then the
// big-endian encoding of the segment's media sequence number.
func segmentIV(seg playlist.Segment, material *KeyMaterial, mediaSequence uint64) ([]byte, error) {
	if seg.Key != nil && seg.Key.IV != "" {
		return aes128.ParseIV(seg.Key.IV)
	}
	if material.IV != nil {
		return material.IV, nil
	}
	return aes128.SequenceIV(mediaSequence + uint64(seg.Index)), nil
}
