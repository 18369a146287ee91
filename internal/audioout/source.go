// Package audioout drives the audio hardware pull. The hardware (or, in
// headless builds, a ticker) asks for bytes at real-time pace and the
// playback session answers through Source.
package audioout

import (
	"context"
	"time"

	"github.com/example/castreceiver/internal/audio"
)

// Source is implemented by playback.Surface. Fill must always write len(p)
// bytes, padding with silence, and never block on producers.
type Source interface {
	Fill(p []byte) int
}

// DefaultPeriod is the pull interval used when no hardware sets the pace.
const DefaultPeriod = 10 * time.Millisecond

// Discard pulls one period of audio from src every period and throws it
// away, keeping the session's ring draining when there is no output device.
// It returns when ctx is done. Each pull is a whole number of frames.
func Discard(ctx context.Context, src Source, format audio.Format, period time.Duration) {
	if period <= 0 {
		period = DefaultPeriod
	}
	frame := format.BytesPerFrame()
	n := format.BytesFor(period) / frame * frame
	if n == 0 {
		n = frame
	}
	buf := make([]byte, n)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			src.Fill(buf)
		}
	}
}
