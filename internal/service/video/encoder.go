package video

import (
	"fmt"
	"image"
	"os"

	"sharkcam/internal/service/clip"

	"gocv.io/x/gocv"
)

// Encoder writes clips with OpenCV's VideoWriter.
type Encoder struct {
	Codec string
}

// NewEncoder returns an encoder producing mp4v-encoded files.
func NewEncoder() *Encoder {
	return &Encoder{Codec: "mp4v"}
}

// Open checks that path is writable. The video writer itself is opened on
// the first frame, once the frame size is known.
func (e *Encoder) Open(path string, fps float64) (clip.Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	f.Close()

	return &videoSink{path: path, codec: e.Codec, fps: fps}, nil
}

type videoSink struct {
	path   string
	codec  string
	fps    float64
	writer *gocv.VideoWriter
	width  int
	height int
}

func (s *videoSink) WriteFrame(data []byte) error {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return fmt.Errorf("failed to decode frame: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return fmt.Errorf("decoded frame is empty")
	}

	if s.writer == nil {
		s.width, s.height = mat.Cols(), mat.Rows()
		writer, err := gocv.VideoWriterFile(s.path, s.codec, s.fps, s.width, s.height, true)
		if err != nil {
			return fmt.Errorf("failed to open video writer: %v", err)
		}
		if !writer.IsOpened() {
			writer.Close()
			return fmt.Errorf("video writer could not open %s", s.path)
		}
		s.writer = writer
	}

	if mat.Cols() != s.width || mat.Rows() != s.height {
		resized := gocv.NewMat()
		defer resized.Close()
		if err := gocv.Resize(mat, &resized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear); err != nil {
			return fmt.Errorf("failed to resize frame: %v", err)
		}
		return s.writer.Write(resized)
	}

	return s.writer.Write(mat)
}

func (s *videoSink) Close() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}
