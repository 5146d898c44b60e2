package media

import (
	"regexp"
	"strings"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	uuidPattern          = regexp.MustCompile(`(?i)([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)
)

// videoCodecPrefixes are the codec identifiers that indicate MP4-compatible
// content. Anything else falls back to the generic transport stream
// extension.
var videoCodecPrefixes = []string{"avc1", "hvc1", "hev1", "mp4a", "ac-3"}

// SanitizeFilename replaces characters that are invalid on common
// filesystems and trims leading/trailing dots and spaces.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	return strings.Trim(name, ". ")
}

// ExtractUUID returns the first UUID embedded in the URL path, or "" when
// none is present. CDN playlist URLs commonly carry the video's UUID.
func ExtractUUID(url string) string {
	return uuidPattern.FindString(url)
}

// ExtensionForCodecs infers the output file extension from a variant's
// codec string. Recognized codecs map to .mp4; unrecognized or absent
// codecs fall back to the generic .ts container extension.
func ExtensionForCodecs(codecs string) string {
	for _, codec := range strings.Split(codecs, ",") {
		codec = strings.TrimSpace(codec)
		for _, prefix := range videoCodecPrefixes {
			if strings.HasPrefix(codec, prefix) {
				return ".mp4"
			}
		}
	}
	return ".ts"
}
