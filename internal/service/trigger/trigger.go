package trigger

import (
	"sharkcam/internal/model"
	"sharkcam/internal/service/buffer"
)

// State is the recording state of the machine.
type State int

const (
	// Watching waits for a score above the threshold.
	Watching State = iota
	// Recording collects post-trigger frames for the current episode.
	Recording
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Config holds the trigger parameters.
type Config struct {
	Threshold        float64
	PostTriggerCount int
	// FlushPartial emits the in-progress clip on Close instead of discarding it.
	FlushPartial bool
	// FirstIndex is the episode index assigned to the first clip.
	FirstIndex uint64
}

// Machine decides when a clip starts and when it is complete. It reads
// the pre-trigger window from the ring buffer it is given and is owned by
// a single goroutine.
type Machine struct {
	cfg       Config
	ring      *buffer.RingBuffer
	state     State
	clip      *model.Clip
	postCount int
	nextIndex uint64
}

// NewMachine creates a machine in the Watching state.
func NewMachine(cfg Config, ring *buffer.RingBuffer) *Machine {
	return &Machine{
		cfg:       cfg,
		ring:      ring,
		state:     Watching,
		nextIndex: cfg.FirstIndex,
	}
}

// Evaluate compares a score against the configured threshold.
func (m *Machine) Evaluate(score float64) model.TriggerEvent {
	return model.TriggerEvent{
		Score:     score,
		Threshold: m.cfg.Threshold,
		Exceeded:  score > m.cfg.Threshold,
	}
}

// Observe feeds one frame and its score. The frame must already have been
// pushed to the ring buffer. It returns the finished clip when this frame
// completes an episode.
func (m *Machine) Observe(frame model.Frame, score float64) (*model.Clip, bool) {
	event := m.Evaluate(score)

	if m.state == Watching {
		if !event.Exceeded {
			return nil, false
		}
		m.start(frame, score)
	} else {
		// Scores above the threshold while recording neither restart nor extend the window.
		m.clip.Frames = append(m.clip.Frames, frame)
		m.postCount++
	}

	if m.postCount >= m.cfg.PostTriggerCount {
		return m.finish(false), true
	}
	return nil, false
}

// Close signals end of stream. A partial episode is returned only when
// FlushPartial is set; otherwise it is dropped.
func (m *Machine) Close() (*model.Clip, bool) {
	if m.state != Recording {
		return nil, false
	}
	if !m.cfg.FlushPartial {
		m.reset()
		return nil, false
	}
	return m.finish(true), true
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// PostCount returns how many post-trigger frames the current episode has.
func (m *Machine) PostCount() int {
	return m.postCount
}

func (m *Machine) start(frame model.Frame, score float64) {
	m.state = Recording
	m.postCount = 0
	frames := m.ring.Snapshot()
	m.clip = &model.Clip{
		Index:        m.nextIndex,
		Frames:       frames,
		TriggerScore: score,
		TriggeredAt:  frame.CapturedAt,
		TriggerFrame: len(frames) - 1,
	}
	m.nextIndex++
}

func (m *Machine) finish(partial bool) *model.Clip {
	clip := m.clip
	clip.Partial = partial
	m.reset()
	return clip
}

func (m *Machine) reset() {
	m.state = Watching
	m.clip = nil
	m.postCount = 0
}
