package ai

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

var (
	green = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	red   = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// ScoreOverlay draws the capture time and current score onto frames for
// the live view.
type ScoreOverlay struct {
	threshold float64
}

// NewScoreOverlay creates an overlay that turns red above threshold.
func NewScoreOverlay(threshold float64) *ScoreOverlay {
	return &ScoreOverlay{threshold: threshold}
}

// Draw returns a re-encoded JPEG with the score label and, above the
// threshold, a red border. The input slice is not modified.
func (o *ScoreOverlay) Draw(img []byte, score float64, at time.Time) ([]byte, error) {
	mat, err := gocv.IMDecode(img, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	label := fmt.Sprintf("%s | Shark: %.2f", at.Format("2006-01-02 15:04:05"), score)
	textColor := green
	if score > o.threshold {
		textColor = red
		label += " | Shark Spotted"

		border := image.Rect(0, 0, mat.Cols(), mat.Rows())
		if err := gocv.Rectangle(&mat, border, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}
	}

	if err := gocv.PutText(&mat, label, image.Pt(10, 30), gocv.FontHersheySimplex, 0.6, textColor, 2); err != nil {
		return nil, fmt.Errorf("failed to draw text: %v", err)
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
