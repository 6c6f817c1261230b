package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"sharkcam/internal/dto"
)

// Broadcaster sends a message to every connected live viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// HubNotifier announces detections to live-view clients.
type HubNotifier struct {
	hub Broadcaster
}

func NewHubNotifier(hub Broadcaster) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) Notify(ctx context.Context, event Event) error {
	detection := event.Detection
	msg, err := json.Marshal(dto.LiveMessage{
		Type:      "detection",
		Score:     detection.Score,
		Detection: &detection,
	})
	if err != nil {
		return fmt.Errorf("failed to encode detection message: %w", err)
	}
	n.hub.Broadcast(msg)
	return nil
}

func (n *HubNotifier) Close() error {
	return nil
}
