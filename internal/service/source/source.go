package source

import (
	"context"

	"sharkcam/internal/model"
)

// FrameSource produces frames in capture order.
//
// Next blocks until a frame is available and returns io.EOF once the stream
// has ended. Close releases the underlying device or socket and makes a
// pending Next return.
type FrameSource interface {
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}
