package clip

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sharkcam/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder appends raw frame bytes to the destination file and can be
// told to fail at a given frame.
type fakeEncoder struct {
	openErr   error
	failAt    int
	closeErr  error
	closed    int
	onWritten func(n int)
}

type fakeSink struct {
	enc     *fakeEncoder
	file    *os.File
	written int
}

func (e *fakeEncoder) Open(path string, fps float64) (Sink, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &fakeSink{enc: e, file: f}, nil
}

func (s *fakeSink) WriteFrame(data []byte) error {
	if s.enc.failAt > 0 && s.written+1 == s.enc.failAt {
		return errors.New("input/output error")
	}
	if _, err := s.file.Write(data); err != nil {
		return err
	}
	s.written++
	if s.enc.onWritten != nil {
		s.enc.onWritten(s.written)
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.enc.closed++
	s.file.Close()
	return s.enc.closeErr
}

func frames(n int) []model.Frame {
	out := make([]model.Frame, n)
	for i := range out {
		out[i] = model.Frame{Seq: uint64(i), Data: []byte{byte('a' + i)}}
	}
	return out
}

func TestWrite_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clips", "a.mp4")
	enc := &fakeEncoder{}

	got, err := NewWriter(enc).Write(context.Background(), frames(3), 10, path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 1, enc.closed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestWrite_EmptyIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")

	got, err := NewWriter(&fakeEncoder{}).Write(context.Background(), nil, 10, path)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_InvalidFPS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	_, err := NewWriter(&fakeEncoder{}).Write(context.Background(), frames(1), 0, path)
	assert.Error(t, err)
}

func TestWrite_OpenFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	enc := &fakeEncoder{openErr: errors.New("permission denied")}

	_, err := NewWriter(enc).Write(context.Background(), frames(2), 10, path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWrite_MidWriteFailureRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	enc := &fakeEncoder{failAt: 3}

	_, err := NewWriter(enc).Write(context.Background(), frames(5), 10, path)
	assert.ErrorContains(t, err, "input/output error")
	assert.Equal(t, 1, enc.closed, "sink must be closed on error paths")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "partial clip must be removed")
	assert.NoFileExists(t, TempPath(path))
}

func TestWrite_CloseFailureRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	enc := &fakeEncoder{closeErr: errors.New("flush failed")}

	_, err := NewWriter(enc).Write(context.Background(), frames(2), 10, path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.NoFileExists(t, TempPath(path))
}

func TestWrite_ContextCancelledMidClip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	enc := &fakeEncoder{onWritten: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	_, err := NewWriter(enc).Write(ctx, frames(4), 10, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, enc.closed)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assert.NoFileExists(t, TempPath(path))
}

func TestWrite_FinalNameAppearsOnlyAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detection_clip_20250704T030509Z_3.mp4")
	var seenDuringWrite []string
	enc := &fakeEncoder{onWritten: func(n int) {
		entries, _ := os.ReadDir(dir)
		for _, e := range entries {
			seenDuringWrite = append(seenDuringWrite, e.Name())
		}
	}}

	_, err := NewWriter(enc).Write(context.Background(), frames(1), 10, path)
	require.NoError(t, err)

	assert.Equal(t, []string{".detection_clip_20250704T030509Z_3.tmp.mp4"}, seenDuringWrite)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestWrite_FailureKeepsExistingClip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(path, []byte("logged clip"), 0644))

	_, err := NewWriter(&fakeEncoder{failAt: 1}).Write(context.Background(), frames(2), 10, path)
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "logged clip", string(data))
	assert.NoFileExists(t, TempPath(path))
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", ".clip_1.tmp.mp4"), TempPath(filepath.Join("out", "clip_1.mp4")))
}

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 7, 4, 13, 5, 9, 500, time.FixedZone("AEST", 10*3600))
	assert.Equal(t, "detection_clip_20250704T030509Z_12.mp4", FileName(ts, 12))
}
