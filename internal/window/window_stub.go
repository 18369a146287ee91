//go:build !windows

package window

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/example/castreceiver/internal/config"
	"github.com/example/castreceiver/internal/logging"
	"github.com/example/castreceiver/internal/playback"
)

// Window is headless on this platform: the refresh loop runs at the
// configured rate and rendered frames are counted, not shown.
type Window struct {
	cfg      config.Config
	renderer Renderer
	frames   atomic.Uint64
}

func NewWindow(cfg config.Config, r Renderer) (*Window, error) {
	return &Window{cfg: cfg, renderer: r}, nil
}

func (w *Window) Run(ctx context.Context) error {
	w.renderer.SetPresenter(playback.PresenterFunc(func(*image.RGBA) error {
		w.frames.Add(1)
		return nil
	}))
	defer w.renderer.SetPresenter(nil)
	w.renderer.Resize(w.cfg.InitialWidth, w.cfg.InitialHeight)

	logging.Infof("No display on this platform; rendering headless at %dx%d", w.cfg.InitialWidth, w.cfg.InitialHeight)
	refreshLoop(ctx, w.cfg.RefreshInterval(), w.renderer)
	logging.Infof("Headless window stopped after %d frames", w.frames.Load())
	return nil
}

// Frames returns the number of frames presented so far.
func (w *Window) Frames() uint64 {
	return w.frames.Load()
}
