package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sharkcam/internal/dto"
)

// HTTPNotifier posts a SharkReport to a collector URL.
type HTTPNotifier struct {
	url       string
	droneName string
	client    *http.Client
}

// NewHTTPNotifier creates a notifier posting to url with a per-request timeout.
func NewHTTPNotifier(url, droneName string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		url:       url,
		droneName: droneName,
		client:    &http.Client{Timeout: timeout},
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(dto.NewSharkReport(n.droneName, event.Detection, event.Frame))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post detection to %s: %w", n.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post detection to %s: unexpected status %s", n.url, resp.Status)
	}
	return nil
}

func (n *HTTPNotifier) Close() error {
	n.client.CloseIdleConnections()
	return nil
}
