package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"sharkcam/internal/logger"
	"sharkcam/internal/model"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// UDPSource reassembles JPEG frames sent by network cameras as a sequence of
// UDP packets. A frame starts with a packet beginning with the JPEG SOI
// marker and ends with a packet ending with the EOI marker.
type UDPSource struct {
	conn        *net.UDPConn
	cameraNames map[string]string
	camera      string
	maxFrame    int
	logger      *logger.Logger

	frames    chan model.Frame
	done      chan struct{}
	closeOnce sync.Once
	seq       uint64
}

// ListenUDP starts receiving camera packets on addr. Only frames from camera
// are forwarded; an empty camera locks onto the first sender seen. A frame
// that grows past maxFrameBytes is dropped.
func ListenUDP(addr string, cameraNames map[string]string, camera string, maxFrameBytes int, logger *logger.Logger) (*UDPSource, error) {
	if maxFrameBytes <= 0 {
		return nil, fmt.Errorf("max frame size must be positive, got %d", maxFrameBytes)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}

	s := &UDPSource{
		conn:        conn,
		cameraNames: cameraNames,
		camera:      camera,
		maxFrame:    maxFrameBytes,
		logger:      logger,
		frames:      make(chan model.Frame, 8),
		done:        make(chan struct{}),
	}
	go s.receive()

	logger.Info("UDP camera source listening on %s", conn.LocalAddr())
	return s, nil
}

// Addr returns the local listening address.
func (s *UDPSource) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Next returns the next complete frame.
func (s *UDPSource) Next(ctx context.Context) (model.Frame, error) {
	select {
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return model.Frame{}, io.EOF
		}
		return frame, nil
	}
}

// Close stops listening; Next returns io.EOF afterwards.
func (s *UDPSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *UDPSource) receive() {
	defer close(s.frames)

	buffer := make([]byte, 65536)
	cameraBuffers := make(map[string]*bytes.Buffer)
	// Cameras whose current frame overflowed; packets are skipped until the next SOI.
	discarding := make(map[string]bool)

	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Error reading UDP packet: %v", err)
			continue
		}

		cameraName := s.cameraName(remoteAddr)
		if s.camera == "" {
			s.camera = cameraName
			s.logger.Info("UDP source locked onto camera %s", cameraName)
		}
		if cameraName != s.camera {
			continue
		}

		data := buffer[:n]
		imgBuffer, ok := cameraBuffers[cameraName]
		if !ok {
			imgBuffer = new(bytes.Buffer)
			cameraBuffers[cameraName] = imgBuffer
		}

		if bytes.HasPrefix(data, jpegHeader) {
			imgBuffer.Reset()
			discarding[cameraName] = false
		}
		if discarding[cameraName] {
			continue
		}
		if imgBuffer.Len()+len(data) > s.maxFrame {
			s.logger.Warning("Dropping frame from %s: exceeds %d bytes without end marker", cameraName, s.maxFrame)
			imgBuffer.Reset()
			discarding[cameraName] = true
			continue
		}
		imgBuffer.Write(data)

		if bytes.HasSuffix(data, jpegFooter) {
			fullFrame := make([]byte, imgBuffer.Len())
			copy(fullFrame, imgBuffer.Bytes())
			imgBuffer.Reset()
			s.emit(fullFrame)
		}
	}
}

func (s *UDPSource) emit(data []byte) {
	frame := model.Frame{
		Seq:        s.seq,
		CapturedAt: time.Now().UTC(),
		Data:       data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		frame.Width, frame.Height = cfg.Width, cfg.Height
	} else {
		s.logger.Warning("Dropping malformed JPEG frame (%d bytes): %v", len(data), err)
		return
	}
	s.seq++
	select {
	case s.frames <- frame:
	case <-s.done:
	}
}

func (s *UDPSource) cameraName(addr *net.UDPAddr) string {
	ip := addr.IP.String()
	if name, ok := s.cameraNames[ip]; ok {
		return name
	}
	return "unknown_" + strings.ReplaceAll(ip, ":", "_")
}
