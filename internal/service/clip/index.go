package clip

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const tempMarker = ".tmp"

var clipName = regexp.MustCompile(`^detection_clip_\d{8}T\d{6}Z_(\d+)\.mp4$`)

// ParseIndex extracts the episode index from a clip path produced by FileName.
func ParseIndex(path string) (uint64, bool) {
	m := clipName.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	index, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return index, true
}

// NextIndex returns one past the highest episode index found among the
// logged clip paths and the clip files in dir, or 0 when there are none.
// A missing dir is not an error.
func NextIndex(dir string, logged []string) (uint64, error) {
	var (
		next  uint64
		found bool
	)
	consider := func(path string) {
		if index, ok := ParseIndex(path); ok && (!found || index+1 > next) {
			next, found = index+1, true
		}
	}

	for _, path := range logged {
		consider(path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("scan clip directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			consider(entry.Name())
		}
	}
	return next, nil
}

// RemoveStaleTemp deletes in-progress clip files left behind by an
// interrupted run and reports how many were removed.
func RemoveStaleTemp(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan clip directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, ".detection_clip_") || !strings.Contains(name, tempMarker+".") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}
