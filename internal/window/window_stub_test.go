//go:build !windows

package window

import (
	"context"
	"testing"
	"time"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/config"
	"github.com/example/castreceiver/internal/playback"
)

func TestHeadlessWindowDrivesRender(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.InitialWidth, cfg.InitialHeight = 64, 36
	cfg.RefreshRate = 200

	s := playback.New(playback.Options{})
	if err := s.Open(audio.DefaultFormat); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	w, err := NewWindow(cfg, s)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	if w.Frames() == 0 {
		t.Fatal("no frames presented")
	}
	if width, height := s.Size(); width != 64 || height != 36 {
		t.Fatalf("surface size = %dx%d", width, height)
	}
	if got := s.Stats().FramesRendered; got != w.Frames() {
		t.Fatalf("rendered %d, presented %d", got, w.Frames())
	}
}
