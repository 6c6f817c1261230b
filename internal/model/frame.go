package model

import "time"

// Frame is one JPEG-encoded image sample taken from the live stream.
// Data must not be modified after the frame is produced; the ring buffer
// and in-progress clips share the same backing array.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Data       []byte
	Width      int
	Height     int
}

// Clip is the ordered frame sequence collected for one detection episode.
type Clip struct {
	Index        uint64
	Frames       []Frame
	TriggerScore float64
	TriggeredAt  time.Time
	TriggerFrame int  // position of the triggering frame in Frames
	Partial      bool // stream ended before the post-trigger window filled
}

// Trigger returns the frame whose score started the episode.
func (c *Clip) Trigger() (Frame, bool) {
	if c.TriggerFrame < 0 || c.TriggerFrame >= len(c.Frames) {
		return Frame{}, false
	}
	return c.Frames[c.TriggerFrame], true
}

// TriggerEvent is the per-frame threshold comparison fed to the state machine.
type TriggerEvent struct {
	Score     float64
	Threshold float64
	Exceeded  bool
}
