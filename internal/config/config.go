package config

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/video"
)

type Config struct {
	WindowTitle    string
	InitialWidth   int
	InitialHeight  int
	MinSize        int
	KeepAspect     bool
	BorderGrabSize int
	RefreshRate    int

	WSAddr  string
	UDPAddr string

	SampleRate     int
	Channels       int
	SampleFormat   string
	BufferDuration time.Duration

	// Background is the letterbox colour as #rrggbb.
	Background    string
	ScaleFilter   string
	TextureBudget int
	// SplashImage is shown until the first video frame arrives.
	SplashImage string
}

func DefaultConfig() Config {
	return Config{
		WindowTitle:    "Cast Receiver",
		InitialWidth:   1280,
		InitialHeight:  720,
		MinSize:        160,
		KeepAspect:     false,
		BorderGrabSize: 8,
		RefreshRate:    60,
		WSAddr:         ":8080",
		UDPAddr:        ":8081",
		SampleRate:     audio.DefaultFormat.SampleRate,
		Channels:       audio.DefaultFormat.Channels,
		SampleFormat:   audio.DefaultFormat.SampleFormat.String(),
		BufferDuration: audio.DefaultBufferDuration,
		Background:     "#000000",
		ScaleFilter:    video.FilterApproxBiLinear.String(),
		TextureBudget:  0,
	}
}

var ErrInvalid = errors.New("config: invalid")

func (c Config) Validate() error {
	if c.InitialWidth <= 0 || c.InitialHeight <= 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.InitialWidth, c.InitialHeight)
	}
	if c.RefreshRate <= 0 || c.RefreshRate > 240 {
		return fmt.Errorf("%w: refresh rate %d", ErrInvalid, c.RefreshRate)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("%w: buffer duration %v", ErrInvalid, c.BufferDuration)
	}
	if c.TextureBudget < 0 {
		return fmt.Errorf("%w: texture budget %d", ErrInvalid, c.TextureBudget)
	}
	if _, err := c.AudioFormat(); err != nil {
		return err
	}
	if _, err := c.BackgroundColor(); err != nil {
		return err
	}
	if _, err := c.Filter(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// AudioFormat returns the session format the receiver opens with.
func (c Config) AudioFormat() (audio.Format, error) {
	sf, err := audio.ParseSampleFormat(c.SampleFormat)
	if err != nil {
		return audio.Format{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	f := audio.Format{SampleRate: c.SampleRate, Channels: c.Channels, SampleFormat: sf}
	if err := f.Validate(); err != nil {
		return audio.Format{}, err
	}
	return f, nil
}

func (c Config) BackgroundColor() (color.RGBA, error) {
	s := strings.TrimPrefix(c.Background, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("%w: background %q", ErrInvalid, c.Background)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: background %q", ErrInvalid, c.Background)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func (c Config) Filter() (video.Filter, error) {
	return video.ParseFilter(c.ScaleFilter)
}

// RefreshInterval is the display refresh period.
func (c Config) RefreshInterval() time.Duration {
	return time.Second / time.Duration(c.RefreshRate)
}
