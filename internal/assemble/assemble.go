package assemble

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write concatenates the ordered segment payloads into a single file at
// path, creating parent directories as needed. The file is created
// exclusively; pre-flight existence checks are the caller's responsibility.
// It returns the total number of bytes written. On failure the partial file
// is left on disk.
func Write(payloads [][]byte, path string) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	var total int64
	for _, payload := range payloads {
		n, err := file.Write(payload)
		total += int64(n)
		if err != nil {
			file.Close()
			return total, fmt.Errorf("failed to write output file %s: %w", path, err)
		}
	}

	if err := file.Close(); err != nil {
		return total, fmt.Errorf("failed to close output file %s: %w", path, err)
	}
	return total, nil
}
