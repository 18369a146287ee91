// Package audio holds the byte FIFO that sits between decoded audio arriving
// from the network and the audio hardware pulling fixed-size buffers.
package audio

import (
	"errors"
	"fmt"
	"time"
)

// SampleFormat is the encoding of one interleaved sample.
type SampleFormat int

const (
	SampleFormatF32 SampleFormat = iota // 32-bit float, little endian
	SampleFormatS16                     // signed 16-bit PCM, little endian
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatF32:
		return "f32le"
	case SampleFormatS16:
		return "s16le"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatF32:
		return 4
	case SampleFormatS16:
		return 2
	default:
		return 0
	}
}

// ParseSampleFormat accepts the names returned by SampleFormat.String.
func ParseSampleFormat(s string) (SampleFormat, error) {
	switch s {
	case "f32le", "f32", "float":
		return SampleFormatF32, nil
	case "s16le", "s16", "pcm":
		return SampleFormatS16, nil
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// ErrInvalidFormat is returned by Format.Validate.
var ErrInvalidFormat = errors.New("audio: invalid format")

// Format describes the interleaved stream fixed when a session opens.
type Format struct {
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat
}

// DefaultFormat is 48 kHz stereo float, the format receivers negotiate.
var DefaultFormat = Format{
	SampleRate:   48000,
	Channels:     2,
	SampleFormat: SampleFormatF32,
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrInvalidFormat, f.Channels)
	}
	if f.SampleFormat.BytesPerSample() == 0 {
		return fmt.Errorf("%w: sample format %d", ErrInvalidFormat, f.SampleFormat)
	}
	return nil
}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.SampleFormat.BytesPerSample()
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// BytesFor returns the byte length of d worth of audio, rounded down to a
// whole frame.
func (f Format) BytesFor(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	return frames * f.BytesPerFrame()
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.SampleFormat)
}
