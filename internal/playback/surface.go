// Package playback owns a single playback session: the audio ring buffer,
// the device texture set and the compositor. Producers push decoded audio
// and video into it; the audio hardware callback and the display refresh
// loop pull from it, each on its own goroutine.
package playback

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/gpu"
	"github.com/example/castreceiver/internal/logging"
	"github.com/example/castreceiver/internal/video"
)

// ErrClosed is returned by the ingest entry points when no session is open.
var ErrClosed = errors.New("playback: session not open")

// Options configures a Surface. Zero values select defaults.
type Options struct {
	// Device allocates video textures. The Surface does not close it.
	Device         gpu.Device
	Background     color.Color
	Filter         video.Filter
	BufferDuration time.Duration
	OnStatus       StatusFunc
}

// Surface is the playback session. Every entry point holds the read side of
// gate for its whole duration; Close takes the write side, so it returns
// only after in-flight calls have finished and later calls observe the
// closed session as a no-op.
type Surface struct {
	opts       Options
	stager     *video.Stager
	compositor *video.Compositor

	gate   sync.RWMutex
	status Status
	format audio.Format
	ring   *audio.RingBuffer

	// renderMu belongs to the display refresh goroutine. It is taken
	// before gate.
	renderMu  sync.Mutex
	drawable  *image.RGBA
	presenter Presenter

	width  atomic.Int32
	height atomic.Int32

	framesRendered atomic.Uint64
	presentErrors  atomic.Uint64
}

func New(opts Options) *Surface {
	if opts.Device == nil {
		opts.Device = gpu.NewSoftwareDevice(0)
	}
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.BufferDuration <= 0 {
		opts.BufferDuration = audio.DefaultBufferDuration
	}
	return &Surface{
		opts:       opts,
		stager:     video.NewStager(opts.Device),
		compositor: video.NewCompositor(opts.Background, opts.Filter),
		status:     StatusIdle,
	}
}

func (s *Surface) emit(st Status, err error) {
	if s.opts.OnStatus == nil {
		return
	}
	s.opts.OnStatus(Event{Status: st, Err: err, Time: time.Now()})
}

// Open starts a session with the given audio format. Opening an already
// open session restarts the stream: unread audio is discarded and the ring
// is resized if the format changed.
func (s *Surface) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	s.gate.Lock()
	if s.ring != nil && s.format == format {
		s.ring.Clear()
	} else {
		s.ring = audio.NewRingBufferFor(format, s.opts.BufferDuration)
	}
	s.format = format
	s.status = StatusOpen
	capacity := s.ring.Capacity()
	s.gate.Unlock()

	logging.Infof("Playback session open: audio %s, ring %d bytes", format, capacity)
	s.emit(StatusOpen, nil)
	return nil
}

// Close ends the session and releases the ring buffer and textures once no
// call is in flight. Closing a session that is not open is a no-op.
func (s *Surface) Close() error {
	s.gate.Lock()
	if s.status != StatusOpen {
		s.gate.Unlock()
		return nil
	}
	s.status = StatusClosed
	s.ring = nil
	s.stager.Release()
	s.gate.Unlock()

	logging.Infof("Playback session closed")
	s.emit(StatusClosed, nil)
	return nil
}

func (s *Surface) Status() Status {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.status
}

// PushAudio appends interleaved samples in the session format. Overflow
// evicts the oldest unread audio and is not an error.
func (s *Surface) PushAudio(p []byte) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.status != StatusOpen {
		return ErrClosed
	}
	if dropped := s.ring.Write(p); dropped > 0 {
		logging.Debugf("audio overrun: dropped %d bytes", dropped)
	}
	return nil
}

// PushVideoFrame stages a decoded frame. The frame's planes are not retained
// after the call returns. Device allocation failures are also reported
// through the status callback; the previous frame stays on screen.
func (s *Surface) PushVideoFrame(f video.Frame) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.status != StatusOpen {
		return ErrClosed
	}
	err := s.stager.Stage(f)
	switch {
	case err == nil, errors.Is(err, video.ErrSlotBusy):
	case errors.Is(err, video.ErrInvalidFrame):
		logging.Warnf("rejected video frame: %v", err)
	default:
		logging.Errorf("video staging failed: %v", err)
		s.emit(StatusOpen, fmt.Errorf("stage video frame: %w", err))
	}
	return err
}

// Fill is the audio hardware pull. It copies up to len(p) bytes of queued
// audio and zero-fills the rest, returning the bytes that were real audio.
// With no open session it returns silence.
func (s *Surface) Fill(p []byte) int {
	s.gate.RLock()
	defer s.gate.RUnlock()

	if s.status != StatusOpen {
		clear(p)
		return 0
	}
	return s.ring.Fill(p)
}

// Resize records the drawable size used by RenderCurrent. It does not touch
// audio or texture contents.
func (s *Surface) Resize(width, height int) {
	s.width.Store(int32(width))
	s.height.Store(int32(height))
}

// Size returns the last size passed to Resize.
func (s *Surface) Size() (int, int) {
	return int(s.width.Load()), int(s.height.Load())
}

func (s *Surface) SetPresenter(p Presenter) {
	s.renderMu.Lock()
	s.presenter = p
	s.renderMu.Unlock()
}

// RenderCurrent renders at the size last passed to Resize.
func (s *Surface) RenderCurrent() {
	w, h := s.Size()
	s.Render(w, h)
}

// Render composites the most recently staged frame into a width by height
// drawable and hands it to the presenter. It is called once per display
// refresh and never waits on producers. The session gate is released
// before Present so a slow display call cannot hold up Open, Close or the
// audio pull queued behind them.
func (s *Surface) Render(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}

	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	if !s.composite(width, height) {
		return
	}

	s.framesRendered.Add(1)
	if s.presenter == nil {
		return
	}
	if err := s.presenter.Present(s.drawable); err != nil {
		if s.presentErrors.Add(1) == 1 {
			logging.Warnf("present failed: %v", err)
		}
	}
}

// composite draws into s.drawable under the session gate. renderMu must be
// held. It reports false when no session is open.
func (s *Surface) composite(width, height int) bool {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.status != StatusOpen {
		return false
	}

	if s.drawable == nil || s.drawable.Rect.Dx() != width || s.drawable.Rect.Dy() != height {
		s.drawable = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	set, release := s.stager.Acquire()
	s.compositor.Render(s.drawable, set)
	release()
	return true
}

func (s *Surface) Stats() Stats {
	// The stager is read under the gate too: Close releases its textures.
	s.gate.RLock()
	st := Stats{
		Status:     s.status.String(),
		ColorRange: video.ColorRange,
	}
	if s.ring != nil {
		st.AudioFormat = s.format.String()
		st.Audio = s.ring.Stats()
	}
	st.Video = s.stager.Stats()
	st.VideoWidth, st.VideoHeight = s.stager.Dimensions()
	s.gate.RUnlock()

	st.FramesRendered = s.framesRendered.Load()
	st.PresentErrors = s.presentErrors.Load()
	return st
}
