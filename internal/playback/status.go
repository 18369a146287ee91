package playback

import (
	"image"
	"time"

	"github.com/example/castreceiver/internal/audio"
	"github.com/example/castreceiver/internal/video"
)

// Status is the lifecycle state of a playback session.
type Status int

const (
	StatusIdle Status = iota
	StatusOpen
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is delivered to the StatusFunc on every status change and whenever
// the session hits a reportable failure (Err non-nil) while staying in the
// same status.
type Event struct {
	Status Status
	Err    error
	Time   time.Time
}

// StatusFunc receives session events. It is called synchronously from the
// goroutine that caused the event and must not block or call back into the
// Surface.
type StatusFunc func(Event)

// Presenter takes a rendered drawable to the screen. The image is only valid
// for the duration of the call.
type Presenter interface {
	Present(frame *image.RGBA) error
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(frame *image.RGBA) error

func (f PresenterFunc) Present(frame *image.RGBA) error {
	return f(frame)
}

// Stats is a snapshot of the session for diagnostics.
type Stats struct {
	Status         string            `json:"status"`
	AudioFormat    string            `json:"audioFormat,omitempty"`
	Audio          audio.Stats       `json:"audio"`
	Video          video.StagerStats `json:"video"`
	VideoWidth     int               `json:"videoWidth"`
	VideoHeight    int               `json:"videoHeight"`
	FramesRendered uint64            `json:"framesRendered"`
	PresentErrors  uint64            `json:"presentErrors"`
	ColorRange     string            `json:"colorRange"`
}
