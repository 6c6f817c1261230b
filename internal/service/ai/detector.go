package ai

import (
	"fmt"
	"image"
	"os"
	"sync"

	"sharkcam/internal/logger"
	"sharkcam/internal/model"

	"gocv.io/x/gocv"
)

// Supported model backends.
const (
	BackendTensorflow = "tensorflow"
	BackendONNX       = "onnx"
)

// Supported input preprocessing modes.
const (
	// PreprocessDefault scales pixels to [0,1].
	PreprocessDefault = "default"
	// PreprocessMobileNetV2 scales pixels to [-1,1].
	PreprocessMobileNetV2 = "mobilenetv2"
)

// DetectorService scores frames with a single-output sigmoid classifier.
// The backend is fixed when the network is loaded.
type DetectorService struct {
	net       gocv.Net
	backend   string
	inputSize int
	scale     float64
	mean      gocv.Scalar
	mu        sync.Mutex
	logger    *logger.Logger
}

// NewDetectorService loads the model at modelPath with the given backend.
func NewDetectorService(backend, modelPath string, inputSize int, preprocess string, logger *logger.Logger) (*DetectorService, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("invalid model input size %d", inputSize)
	}

	var net gocv.Net
	switch backend {
	case BackendTensorflow:
		net = gocv.ReadNetFromTensorflow(modelPath)
	case BackendONNX:
		net = gocv.ReadNetFromONNX(modelPath)
	default:
		return nil, fmt.Errorf("unknown model backend %q", backend)
	}

	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	s := &DetectorService{
		net:       net,
		backend:   backend,
		inputSize: inputSize,
		logger:    logger,
	}
	switch preprocess {
	case PreprocessMobileNetV2:
		s.scale = 1.0 / 127.5
		s.mean = gocv.NewScalar(127.5, 127.5, 127.5, 0)
	default:
		s.scale = 1.0 / 255.0
		s.mean = gocv.NewScalar(0, 0, 0, 0)
	}

	logger.Info("Detection network initialized (%s, %dx%d, %s)", backend, inputSize, inputSize, preprocess)
	return s, nil
}

// Score returns the shark confidence for a frame, clamped to [0,1].
func (s *DetectorService) Score(frame model.Frame) (float64, error) {
	mat, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return 0, fmt.Errorf("decoded image is empty")
	}

	// Resize, BGR->RGB and scale in one step.
	blob := gocv.BlobFromImage(mat, s.scale, image.Pt(s.inputSize, s.inputSize), s.mean, true, false)
	defer blob.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	if output.Total() == 0 {
		return 0, fmt.Errorf("network produced no output")
	}

	// Single sigmoid output; flatten whatever shape the backend produced.
	flat := output.Reshape(1, 1)
	defer flat.Close()

	score := float64(flat.GetFloatAt(0, 0))
	switch {
	case score < 0:
		score = 0
	case score > 1:
		score = 1
	}
	return score, nil
}

// Backend returns the backend the network was loaded with.
func (s *DetectorService) Backend() string {
	return s.backend
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
