package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/castreceiver/internal/audioout"
	"github.com/example/castreceiver/internal/config"
	"github.com/example/castreceiver/internal/gpu"
	"github.com/example/castreceiver/internal/ingest"
	"github.com/example/castreceiver/internal/logging"
	"github.com/example/castreceiver/internal/playback"
	"github.com/example/castreceiver/internal/window"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.DefaultConfig()

	flag.StringVar(&cfg.WindowTitle, "title", cfg.WindowTitle, "Window title")
	flag.IntVar(&cfg.InitialWidth, "width", cfg.InitialWidth, "Initial window width")
	flag.IntVar(&cfg.InitialHeight, "height", cfg.InitialHeight, "Initial window height")
	flag.BoolVar(&cfg.KeepAspect, "keep-aspect", cfg.KeepAspect, "Keep the initial aspect ratio while resizing")
	flag.IntVar(&cfg.RefreshRate, "fps", cfg.RefreshRate, "Display refresh rate")
	flag.StringVar(&cfg.WSAddr, "ws", cfg.WSAddr, "WebSocket ingest address (empty to disable)")
	flag.StringVar(&cfg.UDPAddr, "udp", cfg.UDPAddr, "UDP ingest address (empty to disable)")
	flag.IntVar(&cfg.SampleRate, "rate", cfg.SampleRate, "Audio sample rate")
	flag.IntVar(&cfg.Channels, "channels", cfg.Channels, "Audio channel count")
	flag.StringVar(&cfg.SampleFormat, "sample-format", cfg.SampleFormat, "Audio sample format (f32le, s16le)")
	flag.DurationVar(&cfg.BufferDuration, "buffer", cfg.BufferDuration, "Audio ring buffer length")
	flag.StringVar(&cfg.Background, "background", cfg.Background, "Letterbox colour (#rrggbb)")
	flag.StringVar(&cfg.ScaleFilter, "filter", cfg.ScaleFilter, "Scale filter (nearest, approx-bilinear, bilinear, catmull-rom)")
	flag.IntVar(&cfg.TextureBudget, "texture-budget", cfg.TextureBudget, "Texture memory budget in bytes (0 = unlimited)")
	flag.StringVar(&cfg.SplashImage, "splash", cfg.SplashImage, "Image shown until the first frame (WebP, PNG, JPEG, GIF)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		logging.SetDebug(true)
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatalf("Invalid configuration: %v", err)
	}
	format, _ := cfg.AudioFormat()
	background, _ := cfg.BackgroundColor()
	filter, _ := cfg.Filter()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Infof("Received %v, shutting down", sig)
		cancel()
	}()

	device := gpu.NewSoftwareDevice(cfg.TextureBudget)
	defer device.Close()

	surface := playback.New(playback.Options{
		Device:         device,
		Background:     background,
		Filter:         filter,
		BufferDuration: cfg.BufferDuration,
		OnStatus: func(e playback.Event) {
			if e.Err != nil {
				logging.Warnf("Playback %s: %v", e.Status, e.Err)
			}
		},
	})
	if err := surface.Open(format); err != nil {
		logging.Fatalf("Failed to open playback session: %v", err)
	}
	defer surface.Close()

	if cfg.SplashImage != "" {
		if err := showSplash(surface, cfg.SplashImage); err != nil {
			logging.Warnf("Splash image: %v", err)
		}
	}

	player, err := audioout.NewPlayer(format, surface)
	if err != nil {
		logging.Fatalf("Failed to open audio output: %v", err)
	}
	defer player.Close()
	player.Start()

	w, err := window.NewWindow(cfg, surface)
	if err != nil {
		logging.Fatalf("Failed to create window: %v", err)
	}

	logging.Infof("Starting cast receiver: audio %s, ws %q, udp %q", format, cfg.WSAddr, cfg.UDPAddr)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.WSAddr != "" {
		wsSrv := ingest.NewWebSocketServer(cfg.WSAddr, surface, func() any { return surface.Stats() })
		g.Go(func() error {
			return wsSrv.Start(ctx)
		})
	}
	if cfg.UDPAddr != "" {
		udpSrv := ingest.NewUDPServer(cfg.UDPAddr, surface)
		g.Go(func() error {
			return udpSrv.Start(ctx)
		})
	}

	// Closing the window ends the receiver.
	g.Go(func() error {
		defer cancel()
		return w.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		logging.Errorf("Receiver error: %v", err)
		os.Exit(1)
	}
	logging.Infof("Receiver stopped: %+v", surface.Stats())
}

func showSplash(surface *playback.Surface, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f, err := ingest.DecodeStill(data)
	if err != nil {
		return err
	}
	return surface.PushVideoFrame(f)
}
