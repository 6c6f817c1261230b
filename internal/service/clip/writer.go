package clip

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sharkcam/internal/model"
)

// Sink receives encoded frames for one clip file.
type Sink interface {
	WriteFrame(data []byte) error
	Close() error
}

// Encoder opens a Sink for a destination file at a frame rate.
type Encoder interface {
	Open(path string, fps float64) (Sink, error)
}

// Writer turns a clip's frames into a video file. It never leaves a
// partially written file behind.
type Writer struct {
	encoder Encoder
}

// NewWriter creates a Writer using the given encoder.
func NewWriter(encoder Encoder) *Writer {
	return &Writer{encoder: encoder}
}

// FileName returns the clip file name for an episode.
func FileName(triggeredAt time.Time, index uint64) string {
	return fmt.Sprintf("detection_clip_%s_%d.mp4", triggeredAt.UTC().Format("20060102T150405Z"), index)
}

// Write encodes frames to path at fps and returns the path. An empty frame
// list is a no-op that returns an empty path. The encoder writes to a hidden
// temp file next to path which is renamed into place only after a clean
// Close; on any failure, including ctx expiring between frames, the temp file
// is removed and path is left untouched.
func (w *Writer) Write(ctx context.Context, frames []model.Frame, fps int, path string) (string, error) {
	if len(frames) == 0 {
		return "", nil
	}
	if fps <= 0 {
		return "", fmt.Errorf("invalid frame rate %d", fps)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create clip directory: %w", err)
	}

	tmp := TempPath(path)
	sink, err := w.encoder.Open(tmp, float64(fps))
	if err != nil {
		removePartial(tmp)
		return "", fmt.Errorf("open clip %s: %w", path, err)
	}

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			sink.Close()
			removePartial(tmp)
			return "", fmt.Errorf("write clip %s: %w", path, err)
		}
		if err := sink.WriteFrame(frame.Data); err != nil {
			sink.Close()
			removePartial(tmp)
			return "", fmt.Errorf("write frame %d of clip %s: %w", i, path, err)
		}
	}

	if err := sink.Close(); err != nil {
		removePartial(tmp)
		return "", fmt.Errorf("close clip %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		removePartial(tmp)
		return "", fmt.Errorf("rename clip %s: %w", path, err)
	}
	return path, nil
}

// TempPath returns the in-progress name for a clip. It keeps the extension
// so the encoder still picks the container from it.
func TempPath(path string) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+tempMarker+ext)
}

// removePartial deletes whatever the encoder left at path; a missing file is fine.
func removePartial(path string) {
	os.Remove(path)
}
