package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"hlsget/internal/assemble"
	"hlsget/internal/config"
	"hlsget/internal/download"
	"hlsget/internal/logger"
	"hlsget/internal/media"
	"hlsget/internal/playlist"
	"hlsget/internal/scrape"
	"hlsget/internal/transport"
)

var cmd = &cobra.Command{
	Use:          "hlsget <url>",
	Short:        "Download an HLS VOD playlist into a single media file",
	Long:         "hlsget downloads a video delivered as an HLS playlist: it resolves the playlist URL (scraping generic video pages when needed), selects the best quality variant, downloads and decrypts every segment concurrently, and concatenates them into one output file.",
	Args:         cobra.ExactArgs(1),
	RunE:         run,
	SilenceUsage: true,
}

func main() {
	cmd.Flags().StringP("output", "o", "", "Output filename (optional)")
	cmd.Flags().StringP("dir", "d", ".", "Directory where the file will be stored")
	cmd.Flags().BoolP("quality", "q", false, "Show available quality variants and exit")
	cmd.Flags().StringP("config", "c", "", "Path to an optional JSON config file")
	cmd.Flags().StringP("log-level", "L", "info", "Log level (error, warn, info, debug)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(command *cobra.Command, args []string) error {
	rawURL := args[0]

	output, _ := command.Flags().GetString("output")
	dir, _ := command.Flags().GetString("dir")
	quality, _ := command.Flags().GetBool("quality")
	configPath, _ := command.Flags().GetString("config")
	logLevel, _ := command.Flags().GetString("log-level")

	log := logger.NewLogger(logLevel)

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	client := transport.New(log, cfg)

	// Step 1: resolve generic page URLs to a playlist URL.
	playlistURL := rawURL
	displayName := ""
	if !scrape.IsPlaylistURL(rawURL) {
		log.Infof("detected generic URL, extracting playlist reference from %s", rawURL)
		result, err := scrape.Resolve(ctx, client, rawURL)
		if err != nil {
			return fmt.Errorf("failed to resolve generic URL: %w", err)
		}
		playlistURL = result.PlaylistURL
		displayName = result.Name
		log.Infof("extracted playlist URL: %s", playlistURL)
		if displayName != "" {
			log.Infof("extracted video name: %s", displayName)
		}
	}

	// Step 2: fetch and parse the playlist.
	master, mediaPl, err := playlist.Fetch(ctx, client, playlistURL)
	if err != nil {
		return err
	}

	// Step 3: variant selection for master playlists.
	var codecs string
	if master != nil {
		if quality {
			printVariants(master)
			return nil
		}

		best, err := master.SelectBest()
		if err != nil {
			return err
		}
		codecs = best.Codecs
		log.Infof("master playlist detected, selected variant with bandwidth %d", best.Bandwidth)

		variantURL, err := playlist.ResolveURL(master.URL, best.URI)
		if err != nil {
			return err
		}
		_, mediaPl, err = playlist.Fetch(ctx, client, variantURL.String())
		if err != nil {
			return err
		}
		if mediaPl == nil {
			return fmt.Errorf("variant %s did not resolve to a media playlist", variantURL)
		}
	} else if quality {
		fmt.Println("media playlist: no quality variants available")
		return nil
	}

	log.Infof("total segments: %d, duration: %.2f seconds", len(mediaPl.Segments), mediaPl.Duration())

	// Step 4: resolve encryption key material before any segment work.
	material, err := download.ResolveKey(ctx, client, mediaPl.EncryptionKey(), mediaPl.URL)
	if err != nil {
		return err
	}
	if material.Method == download.MethodAES128 {
		log.Infof("encryption detected: AES-128")
		if material.SequenceIV {
			log.Infof("no IV specified in playlist, using segment sequence numbers as IV")
		}
	}

	// Step 5: pre-flight the output path.
	outPath := outputPath(dir, output, displayName, playlistURL, codecs)
	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("output file %s already exists", outPath)
	}
	log.Infof("output file: %s", outPath)

	// Step 6: download all segments.
	downloader := download.NewDownloader(client, log, cfg.Workers)
	bar := progressbar.Default(int64(len(mediaPl.Segments)), "downloading")
	downloader.Progress = func(completed, total int) {
		_ = bar.Set(completed)
	}

	payloads, err := downloader.Run(ctx, mediaPl, material)
	if err != nil {
		return err
	}

	// Step 7: assemble the output file.
	written, err := assemble.Write(payloads, outPath)
	if err != nil {
		return err
	}

	log.Infof("download complete: %s (%.2f MB)", outPath, float64(written)/(1024*1024))
	return nil
}

func printVariants(master *playlist.Master) {
	fmt.Printf("%-12s %-12s %s\n", "BANDWIDTH", "RESOLUTION", "CODECS")
	for _, v := range master.Variants {
		fmt.Printf("%-12d %-12s %s\n", v.Bandwidth, v.Resolution, v.Codecs)
	}
}

// outputPath determines the destination file: an explicit name wins, then
// the scraped display name, then a UUID embedded in the playlist URL, and
// finally a generic fallback. The extension is inferred from the selected
// variant's codec string.
func outputPath(dir, explicit, displayName, playlistURL, codecs string) string {
	ext := media.ExtensionForCodecs(codecs)

	var name string
	switch {
	case explicit != "":
		name = explicit
	case displayName != "":
		name = media.SanitizeFilename(displayName) + ext
	default:
		if uuid := media.ExtractUUID(playlistURL); uuid != "" {
			name = uuid + ext
		} else {
			name = "output" + ext
		}
	}

	if filepath.Ext(name) == "" {
		name += ext
	}
	return filepath.Join(dir, name)
}
