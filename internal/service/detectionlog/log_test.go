package detectionlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sharkcam/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(i int) model.Detection {
	alt := 42.5
	d := model.Detection{
		ID:        fmt.Sprintf("det-%d", i),
		Timestamp: time.Date(2025, 1, 2, 3, 4, i, 0, time.UTC),
		Clip:      fmt.Sprintf("detections/detection_clip_%d.mp4", i),
		Score:     0.5 + float64(i)/100,
	}
	if i%2 == 0 {
		d.Location = &model.Location{Lat: -33.9, Lon: 151.2, Alt: &alt}
	}
	return d
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "detections.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
	assert.False(t, l.Dirty())
}

func TestOpen_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id": "a"`), 0644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestAppend_ReloadAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "detections.json")
	var want []model.Detection

	for i := 0; i < 5; i++ {
		// Reopen before every append, as if the process restarted in between.
		l, err := Open(path)
		require.NoError(t, err)
		require.Equal(t, i, l.Len())

		e := entry(i)
		require.NoError(t, l.Append(e))
		want = append(want, e)
	}

	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, want, l.Entries())
}

func TestAppend_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Append(entry(1)))
	require.NoError(t, l.Append(entry(2)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Nil(t, raw[0]["gps"], "missing location is stored as null")
	assert.Equal(t, "2025-01-02T03:04:01Z", raw[0]["timestamp_utc"])
	assert.Equal(t, "detections/detection_clip_1.mp4", raw[0]["clip"])
	gps := raw[1]["gps"].(map[string]interface{})
	assert.Equal(t, -33.9, gps["lat"])
	assert.Equal(t, 42.5, gps["alt"])
}

func TestAppend_PersistFailureKeepsEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(entry(0)))

	diskFull := errors.New("no space left on device")
	l.persist = func(string, []byte) error { return diskFull }

	err = l.Append(entry(1))
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, 2, l.Len(), "entry must stay in memory")
	assert.True(t, l.Dirty())

	onDisk, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 1, onDisk.Len())

	l.persist = writeFileAtomic
	require.NoError(t, l.Flush())
	assert.False(t, l.Dirty())

	onDisk, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{entry(0), entry(1)}, onDisk.Entries())
}

func TestAppend_RetryOnNextAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	l, err := Open(path)
	require.NoError(t, err)

	l.persist = func(string, []byte) error { return errors.New("read-only file system") }
	assert.Error(t, l.Append(entry(0)))

	l.persist = writeFileAtomic
	require.NoError(t, l.Append(entry(1)))

	onDisk, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{entry(0), entry(1)}, onDisk.Entries())
}

func TestFlush_NoopWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.json")
	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Flush())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "flushing a clean log must not create a file")
}

func TestAppend_InterruptedPersistLeavesPreviousState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detections.json")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(entry(0)))
	require.NoError(t, l.Append(entry(1)))

	// Crash after half of the new document reached the temp file, before rename.
	l.persist = func(p string, data []byte) error {
		tmp := filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".tmp-crash")
		if err := os.WriteFile(tmp, data[:len(data)/2], 0644); err != nil {
			return err
		}
		return errors.New("killed")
	}
	assert.Error(t, l.Append(entry(2)))

	reloaded, err := Open(path)
	require.NoError(t, err, "durable file must stay well-formed")
	assert.Equal(t, []model.Detection{entry(0), entry(1)}, reloaded.Entries())

	// The next successful write produces the complete new state.
	l.persist = writeFileAtomic
	require.NoError(t, l.Flush())
	reloaded, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Detection{entry(0), entry(1), entry(2)}, reloaded.Entries())
}

func TestWriteFileAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detections.json")

	require.NoError(t, writeFileAtomic(path, []byte(`[]`)))
	require.NoError(t, writeFileAtomic(path, []byte(`[{"id":"x"}]`)))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "detections.json", files[0].Name())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"x"}]`, string(data))
}

func TestWriteFileAtomic_RenameFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory at the destination makes the rename fail.
	path := filepath.Join(dir, "detections.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "child"), 0755))

	assert.Error(t, writeFileAtomic(path, []byte(`[]`)))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1, "temp file must be removed")
}
