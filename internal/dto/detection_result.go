package dto

import (
	"encoding/base64"
	"time"

	"sharkcam/internal/model"
)

// SharkReport is the payload posted to the remote detection collector.
// Field names, including the "lattitude" spelling, match the collector API.
type SharkReport struct {
	DroneName string         `json:"droneName"`
	SharkType string         `json:"sharkType"`
	Size      float64        `json:"size"`
	Latitude  *float64       `json:"lattitude"`
	Longitude *float64       `json:"longitude"`
	Accuracy  float64        `json:"accuracy"`
	Metadata  ReportMetadata `json:"metadata"`
}

// ReportMetadata carries the capture time, clip path and triggering frame.
type ReportMetadata struct {
	Timestamp       string `json:"timestamp"`
	Clip            string `json:"clip"`
	FrameJPEGBase64 string `json:"frame_jpeg_base64,omitempty"`
}

// NewSharkReport builds a collector payload for a logged detection.
func NewSharkReport(droneName string, detection model.Detection, frame []byte) SharkReport {
	report := SharkReport{
		DroneName: droneName,
		SharkType: "unknown",
		Accuracy:  detection.Score,
		Metadata: ReportMetadata{
			Timestamp: detection.Timestamp.UTC().Format(time.RFC3339Nano),
			Clip:      detection.Clip,
		},
	}
	if detection.Location != nil {
		lat, lon := detection.Location.Lat, detection.Location.Lon
		report.Latitude = &lat
		report.Longitude = &lon
	}
	if len(frame) > 0 {
		report.Metadata.FrameJPEGBase64 = base64.StdEncoding.EncodeToString(frame)
	}
	return report
}

// LiveMessage is pushed to live-view websocket clients.
type LiveMessage struct {
	Type      string           `json:"type"` // "frame" or "detection"
	Camera    string           `json:"camera,omitempty"`
	Score     float64          `json:"score,omitempty"`
	Image     string           `json:"image,omitempty"`
	Detection *model.Detection `json:"detection,omitempty"`
}

// DetectionsPage is the response of the detection listing endpoint.
type DetectionsPage struct {
	Detections  []model.Detection `json:"detections"`
	OutputDir   string            `json:"output_dir"`
	Length      int               `json:"length"`
	TotalPages  int               `json:"total_pages"`
	CurrentPage int               `json:"current_page"`
	Limit       int               `json:"limit"`
}
