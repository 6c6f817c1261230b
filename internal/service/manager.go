package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"sharkcam/internal/config"
	"sharkcam/internal/dto"
	"sharkcam/internal/logger"
	"sharkcam/internal/model"
	"sharkcam/internal/repository"
	"sharkcam/internal/service/buffer"
	"sharkcam/internal/service/clip"
	"sharkcam/internal/service/detectionlog"
	"sharkcam/internal/service/location"
	"sharkcam/internal/service/notify"
	"sharkcam/internal/service/source"
	"sharkcam/internal/service/trigger"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned when frames are fed to a stopped manager.
var ErrQueueClosed = errors.New("clip queue closed")

// Scorer returns the detection confidence of a frame in [0, 1].
type Scorer interface {
	Score(frame model.Frame) (float64, error)
}

// ClipWriter encodes a clip's frames to a video file.
type ClipWriter interface {
	Write(ctx context.Context, frames []model.Frame, fps int, path string) (string, error)
}

// Overlay annotates a frame with its score for the live view, the stream
// recording and notifications.
type Overlay interface {
	Draw(img []byte, score float64, at time.Time) ([]byte, error)
}

// Broadcaster pushes a message to live-view clients.
type Broadcaster interface {
	Broadcast(message []byte)
}

// Recorder receives every annotated frame of the stream.
type Recorder interface {
	WriteFrame(img []byte) error
	Close() error
}

// Dependencies are the collaborators of a Manager. Scorer, Writer and Log
// are required; the rest may be left nil.
type Dependencies struct {
	Scorer   Scorer
	Writer   ClipWriter
	Log      *detectionlog.Log
	Index    repository.DetectionRepository
	Location location.Provider
	Notifier notify.Notifier
	Hub      Broadcaster
	Overlay  Overlay
	Recorder Recorder
	Camera   string
}

// Manager runs the recording pipeline. One goroutine calls Run (or
// HandleFrame) and owns the ring buffer and trigger machine; completed clips
// are handed to a single background worker that writes, logs, indexes and
// announces them in completion order.
type Manager struct {
	deps    Dependencies
	ring    *buffer.RingBuffer
	machine *trigger.Machine
	logger  *logger.Logger

	fps           int
	outputDir     string
	writeTimeout  time.Duration
	notifyTimeout time.Duration
	liveEveryNth  int
	frameCount    int
	recording     bool

	clipQueue chan *model.Clip
	stopped   atomic.Bool
	stopOnce  sync.Once
	wg        sync.WaitGroup
	notifyWg  sync.WaitGroup
}

// NewManager builds the pipeline and starts the clip worker. Episode
// indexes continue after the highest index in the detection log or the
// output directory, so a clip that failed to log is never overwritten.
func NewManager(cfg *config.Config, deps Dependencies, logger *logger.Logger) (*Manager, error) {
	if deps.Scorer == nil || deps.Writer == nil || deps.Log == nil {
		return nil, fmt.Errorf("%w: scorer, clip writer and detection log are required", config.ErrInvalidConfig)
	}
	if deps.Location == nil {
		deps.Location = location.Unavailable{}
	}

	ring, err := buffer.NewRingBuffer(cfg.BufferSize)
	if err != nil {
		return nil, err
	}

	queueSize := cfg.ClipQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	if removed, err := clip.RemoveStaleTemp(cfg.OutputDirectory); err != nil {
		logger.Warning("Failed to clean up unfinished clips: %v", err)
	} else if removed > 0 {
		logger.Warning("Removed %d unfinished clip(s) from %s", removed, cfg.OutputDirectory)
	}

	var logged []string
	for _, entry := range deps.Log.Entries() {
		logged = append(logged, entry.Clip)
	}
	nextIndex, err := clip.NextIndex(cfg.OutputDirectory, logged)
	if err != nil {
		return nil, err
	}

	machine := trigger.NewMachine(trigger.Config{
		Threshold:        cfg.Threshold,
		PostTriggerCount: cfg.PostTrigger,
		FlushPartial:     cfg.FlushPartialClips,
		FirstIndex:       nextIndex,
	}, ring)

	m := &Manager{
		deps:          deps,
		ring:          ring,
		machine:       machine,
		logger:        logger,
		fps:           cfg.FPS,
		outputDir:     cfg.OutputDirectory,
		writeTimeout:  cfg.ClipWriteTimeoutDuration(),
		notifyTimeout: cfg.NotifyTimeoutDuration(),
		liveEveryNth:  cfg.LiveViewInterval,
		clipQueue:     make(chan *model.Clip, queueSize),
		recording:     deps.Recorder != nil,
	}

	m.wg.Add(1)
	go m.clipWorker()

	m.logger.Info("Manager started - buffer %d frames, %d post-trigger frames, threshold %.2f, next clip #%d",
		ring.Cap(), cfg.PostTrigger, cfg.Threshold, nextIndex)
	return m, nil
}

// Run reads frames from src until it is exhausted or ctx is done. A source
// error other than io.EOF is returned; Stop must still be called afterwards.
func (m *Manager) Run(ctx context.Context, src source.FrameSource) error {
	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		if err := m.HandleFrame(frame); err != nil {
			return err
		}
	}
}

// HandleFrame pushes one frame through the ring buffer, scorer and trigger
// machine. When the clip queue is full it blocks until the worker catches up.
func (m *Manager) HandleFrame(frame model.Frame) error {
	if m.stopped.Load() {
		return ErrQueueClosed
	}

	m.ring.Push(frame)

	score, err := m.deps.Scorer.Score(frame)
	if err != nil {
		m.logger.Warning("Scoring frame %d failed, using 0: %v", frame.Seq, err)
		score = 0
	}

	// Live view and recording share one overlay render.
	var annotated []byte
	image := func() []byte {
		if annotated == nil {
			annotated = m.annotate(frame, score)
		}
		return annotated
	}
	m.sendToViewers(score, image)
	m.record(image)

	if c, ok := m.machine.Observe(frame, score); ok {
		m.enqueue(c)
	}
	return nil
}

// State reports the trigger machine state.
func (m *Manager) State() trigger.State {
	return m.machine.State()
}

func (m *Manager) enqueue(c *model.Clip) {
	select {
	case m.clipQueue <- c:
		return
	default:
	}
	m.logger.Warning("Clip queue full - waiting for writer before queuing clip #%d", c.Index)
	m.clipQueue <- c
}

func (m *Manager) sendToViewers(score float64, image func() []byte) {
	if m.deps.Hub == nil || m.liveEveryNth <= 0 {
		return
	}
	m.frameCount++
	if m.frameCount%m.liveEveryNth != 0 {
		return
	}
	m.frameCount = 0

	msg, err := json.Marshal(dto.LiveMessage{
		Type:   "frame",
		Camera: m.deps.Camera,
		Score:  score,
		Image:  base64.StdEncoding.EncodeToString(image()),
	})
	if err != nil {
		m.logger.Error("Failed to encode live frame: %v", err)
		return
	}
	m.deps.Hub.Broadcast(msg)
}

// record appends the annotated frame to the full-stream recording. The
// recording is abandoned after the first write error.
func (m *Manager) record(image func() []byte) {
	if !m.recording {
		return
	}
	if err := m.deps.Recorder.WriteFrame(image()); err != nil {
		m.logger.Error("Stream recording stopped: %v", err)
		m.recording = false
	}
}

// annotate draws the score overlay on a frame, falling back to the raw image.
func (m *Manager) annotate(frame model.Frame, score float64) []byte {
	if m.deps.Overlay == nil {
		return frame.Data
	}
	drawn, err := m.deps.Overlay.Draw(frame.Data, score, frame.CapturedAt)
	if err != nil {
		m.logger.Warning("Failed to draw overlay: %v", err)
		return frame.Data
	}
	return drawn
}

func (m *Manager) clipWorker() {
	defer m.wg.Done()

	for c := range m.clipQueue {
		m.saveClip(c)
	}
}

func (m *Manager) saveClip(c *model.Clip) {
	path := filepath.Join(m.outputDir, clip.FileName(c.TriggeredAt, c.Index))

	ctx := context.Background()
	if m.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.writeTimeout)
		defer cancel()
	}

	written, err := m.deps.Writer.Write(ctx, c.Frames, m.fps, path)
	if err != nil {
		m.logger.Error("Failed to write clip #%d: %v", c.Index, err)
		return
	}
	if written == "" {
		return
	}

	entry := model.Detection{
		ID:        uuid.NewString(),
		Timestamp: c.TriggeredAt.UTC(),
		Clip:      written,
		Score:     c.TriggerScore,
	}
	if loc, ok := m.deps.Location.Locate(); ok {
		entry.Location = &loc
	}

	if err := m.deps.Log.Append(entry); err != nil {
		m.logger.Error("Failed to persist detection log (entry kept, will retry): %v", err)
	}
	if c.Partial {
		m.logger.Warning("Saved partial clip %s (%d frames, score %.2f)", written, len(c.Frames), c.TriggerScore)
	} else {
		m.logger.Info("Saved clip %s (%d frames, score %.2f)", written, len(c.Frames), c.TriggerScore)
	}

	if m.deps.Index != nil {
		if _, err := m.deps.Index.Insert(&entry); err != nil {
			m.logger.Error("Failed to index detection %s: %v", entry.ID, err)
		}
	}

	m.notify(c, entry)
}

func (m *Manager) notify(c *model.Clip, entry model.Detection) {
	if m.deps.Notifier == nil {
		return
	}
	event := notify.Event{Detection: entry}
	if frame, ok := c.Trigger(); ok {
		event.Frame = m.annotate(frame, c.TriggerScore)
	}

	m.notifyWg.Add(1)
	go func() {
		defer m.notifyWg.Done()

		ctx := context.Background()
		if m.notifyTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.notifyTimeout)
			defer cancel()
		}
		if err := m.deps.Notifier.Notify(ctx, event); err != nil {
			m.logger.Warning("Detection notification failed: %v", err)
		}
	}()
}

// Stop ends ingestion and shuts the pipeline down: the in-progress episode
// is flushed or discarded, queued clips are written, the detection log is
// flushed and notifiers are closed once in-flight notifications finish.
// It must not be called concurrently with Run or HandleFrame.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.stopped.Store(true)

		if m.machine.State() == trigger.Recording {
			m.logger.Info("Stream ended %d post-trigger frame(s) into an episode", m.machine.PostCount())
		}
		if c, ok := m.machine.Close(); ok {
			m.logger.Info("Stream ended while recording - flushing partial clip #%d", c.Index)
			m.enqueue(c)
		}
		close(m.clipQueue)
		m.wg.Wait()

		if err := m.deps.Log.Flush(); err != nil {
			m.logger.Error("Failed to flush detection log: %v", err)
		}

		if m.deps.Recorder != nil {
			if err := m.deps.Recorder.Close(); err != nil {
				m.logger.Error("Failed to close stream recording: %v", err)
			}
		}

		m.notifyWg.Wait()
		if m.deps.Notifier != nil {
			if err := m.deps.Notifier.Close(); err != nil {
				m.logger.Error("Failed to close notifier: %v", err)
			}
		}
		m.logger.Info("Manager stopped")
	})
}
