// Package window hosts the playback surface on screen and runs the display
// refresh loop that drives Render.
package window

import (
	"context"
	"time"

	"github.com/example/castreceiver/internal/playback"
)

// Renderer is the part of playback.Surface the window drives.
type Renderer interface {
	SetPresenter(p playback.Presenter)
	Resize(width, height int)
	RenderCurrent()
}

// refreshLoop renders once per interval until ctx is done.
func refreshLoop(ctx context.Context, interval time.Duration, r Renderer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RenderCurrent()
		}
	}
}
