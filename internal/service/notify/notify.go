// Package notify forwards completed detections to outside consumers. Every
// notifier is best effort: callers log a returned error and carry on.
package notify

import (
	"context"
	"errors"

	"sharkcam/internal/model"
)

// Event is one logged detection plus the frame that triggered it.
type Event struct {
	Detection model.Detection
	Frame     []byte
}

// Notifier delivers detection events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
	Close() error
}

// Multi fans an event out to several notifiers.
type Multi []Notifier

// Notify calls every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every notifier and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
