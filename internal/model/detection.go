package model

import "time"

// Location is a position fix reported by a location provider.
type Location struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt"`
}

// Detection is one entry of the detection log. A nil Location means no fix
// was available when the clip was written.
type Detection struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp_utc"`
	Clip      string    `json:"clip"`
	Score     float64   `json:"score"`
	Location  *Location `json:"gps"`
}

// DetectionFilter narrows detection index queries.
type DetectionFilter struct {
	MinScore float64
	After    time.Time
	Before   time.Time
	Limit    int
	Offset   int
}

// DetectionStats summarizes the detection index.
type DetectionStats struct {
	TotalDetections int     `json:"total_detections"`
	MaxScore        float64 `json:"max_score"`
	WithLocation    int     `json:"with_location"`
}
