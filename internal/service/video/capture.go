package video

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"sharkcam/internal/model"

	"gocv.io/x/gocv"
)

// CaptureSource reads frames from a camera index, a video file or a stream
// URL through OpenCV and hands them on as JPEG-encoded frames.
type CaptureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	seq     uint64
}

// OpenCapture opens source. A purely numeric source is a camera index.
func OpenCapture(source string) (*CaptureSource, error) {
	var device interface{} = source
	if index, err := strconv.Atoi(source); err == nil {
		device = index
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("could not open video source %s: %w", source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("could not open video source %s", source)
	}

	return &CaptureSource{capture: capture, mat: gocv.NewMat()}, nil
}

// FPS reports the frame rate advertised by the source, 0 when unknown.
func (s *CaptureSource) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Next reads and encodes the next frame. It returns io.EOF when the source
// has no more frames.
func (s *CaptureSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return model.Frame{}, io.EOF
	}
	capturedAt := time.Now().UTC()

	buf, err := gocv.IMEncode(".jpg", s.mat)
	if err != nil {
		return model.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	frame := model.Frame{
		Seq:        s.seq,
		CapturedAt: capturedAt,
		Data:       data,
		Width:      s.mat.Cols(),
		Height:     s.mat.Rows(),
	}
	s.seq++
	return frame, nil
}

// Close releases the capture device.
func (s *CaptureSource) Close() error {
	s.mat.Close()
	return s.capture.Close()
}
