package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sharkcam/internal/dto"
	"sharkcam/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(withLocation bool) Event {
	d := model.Detection{
		ID:        "5c1b",
		Timestamp: time.Date(2025, 2, 1, 6, 30, 0, 0, time.UTC),
		Clip:      "detections/detection_clip_20250201T063000Z_0.mp4",
		Score:     0.91,
	}
	if withLocation {
		d.Location = &model.Location{Lat: -33.89, Lon: 151.27}
	}
	return Event{Detection: d, Frame: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
}

func TestHTTPNotifier_PostsReport(t *testing.T) {
	var got dto.SharkReport
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL, "drone-7", time.Second)
	defer n.Close()

	require.NoError(t, n.Notify(context.Background(), sampleEvent(true)))

	assert.Equal(t, "drone-7", got.DroneName)
	assert.Equal(t, "unknown", got.SharkType)
	assert.Equal(t, 0.91, got.Accuracy)
	require.NotNil(t, got.Latitude)
	assert.Equal(t, -33.89, *got.Latitude)
	assert.Equal(t, "2025-02-01T06:30:00Z", got.Metadata.Timestamp)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0xFF, 0xD9}), got.Metadata.FrameJPEGBase64)
}

func TestHTTPNotifier_NullLocation(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &raw))
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL, "drone-1", time.Second)
	require.NoError(t, n.Notify(context.Background(), sampleEvent(false)))

	assert.Contains(t, raw, "lattitude")
	assert.Nil(t, raw["lattitude"])
	assert.Nil(t, raw["longitude"])
}

func TestHTTPNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewHTTPNotifier(server.URL, "drone-1", time.Second)
	assert.ErrorContains(t, n.Notify(context.Background(), sampleEvent(false)), "502")
}

func TestHTTPNotifier_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	n := NewHTTPNotifier(server.URL, "drone-1", 50*time.Millisecond)
	assert.Error(t, n.Notify(context.Background(), sampleEvent(false)))
}

type recordingBroadcaster struct {
	messages [][]byte
}

func (b *recordingBroadcaster) Broadcast(message []byte) {
	b.messages = append(b.messages, message)
}

func TestHubNotifier(t *testing.T) {
	hub := &recordingBroadcaster{}
	n := NewHubNotifier(hub)

	require.NoError(t, n.Notify(context.Background(), sampleEvent(true)))
	require.Len(t, hub.messages, 1)

	var msg dto.LiveMessage
	require.NoError(t, json.Unmarshal(hub.messages[0], &msg))
	assert.Equal(t, "detection", msg.Type)
	require.NotNil(t, msg.Detection)
	assert.Equal(t, "5c1b", msg.Detection.ID)
	assert.Empty(t, msg.Image, "detection messages do not carry the frame")
}

type stubNotifier struct {
	err      error
	notified int
	closed   int
}

func (s *stubNotifier) Notify(context.Context, Event) error { s.notified++; return s.err }
func (s *stubNotifier) Close() error                        { s.closed++; return s.err }

func TestMulti_CallsEveryNotifier(t *testing.T) {
	failing := &stubNotifier{err: errors.New("collector down")}
	ok := &stubNotifier{}
	m := Multi{failing, ok}

	err := m.Notify(context.Background(), sampleEvent(false))
	assert.ErrorContains(t, err, "collector down")
	assert.Equal(t, 1, failing.notified)
	assert.Equal(t, 1, ok.notified, "a failing notifier must not stop the others")

	assert.Error(t, m.Close())
	assert.Equal(t, 1, ok.closed)

	assert.NoError(t, Multi{}.Notify(context.Background(), sampleEvent(false)))
}
