package video

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/example/castreceiver/internal/gpu"
	"github.com/example/castreceiver/internal/logging"
)

// ErrSlotBusy is returned when the only slot a frame could be staged into is
// still being sampled by a render. The frame is dropped; the next one will
// find the slot free.
var ErrSlotBusy = errors.New("video: texture slot busy")

// TextureSet is one generation of the three planar textures.
type TextureSet struct {
	Y, U, V *gpu.Texture
	Width   int
	Height  int
}

// YCbCr returns a 4:2:0 image view over the textures without copying.
func (s *TextureSet) YCbCr() *image.YCbCr {
	return &image.YCbCr{
		Y:              s.Y.Pix,
		Cb:             s.U.Pix,
		Cr:             s.V.Pix,
		YStride:        s.Y.Stride,
		CStride:        s.U.Stride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, s.Width, s.Height),
	}
}

type slot struct {
	set     TextureSet
	readers atomic.Int32
}

// StagerStats counts staging outcomes.
type StagerStats struct {
	Staged        uint64 `json:"staged"`
	Rejected      uint64 `json:"rejected"`
	DroppedBusy   uint64 `json:"droppedBusy"`
	Reallocations uint64 `json:"reallocations"`
	AllocFailures uint64 `json:"allocFailures"`
}

// Stager uploads frames into a two-slot texture set. Producers always write
// the slot that is not active and publish it with a single atomic store of
// the active index, so a render sampling the active slot never sees a
// partially uploaded frame and never takes a lock.
type Stager struct {
	device gpu.Device

	mu     sync.Mutex // serializes producers
	slots  [2]slot
	active atomic.Int32 // -1 until the first frame is staged

	staged        atomic.Uint64
	rejected      atomic.Uint64
	droppedBusy   atomic.Uint64
	reallocations atomic.Uint64
	allocFailures atomic.Uint64
}

func NewStager(device gpu.Device) *Stager {
	s := &Stager{device: device}
	s.active.Store(-1)
	return s
}

// Stage validates f, uploads its planes into the inactive slot honouring each
// plane's stride, and makes that slot current. On any error the currently
// displayed frame is left untouched.
func (s *Stager) Stage(f Frame) error {
	if err := f.Validate(); err != nil {
		s.rejected.Add(1)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := int32(0)
	if s.active.Load() == 0 {
		next = 1
	}
	sl := &s.slots[next]
	if sl.readers.Load() != 0 {
		s.droppedBusy.Add(1)
		return ErrSlotBusy
	}

	if sl.set.Width != f.Width || sl.set.Height != f.Height {
		if err := s.allocate(&sl.set, f.Width, f.Height); err != nil {
			s.allocFailures.Add(1)
			return err
		}
		s.reallocations.Add(1)
	}

	_, ch := ChromaSize(f.Width, f.Height)
	sl.set.Y.ReplaceRegion(f.Y, f.YStride, f.Height)
	sl.set.U.ReplaceRegion(f.U, f.UStride, ch)
	sl.set.V.ReplaceRegion(f.V, f.VStride, ch)

	s.active.Store(next)
	s.staged.Add(1)
	return nil
}

func (s *Stager) releaseSet(set *TextureSet) {
	s.device.Release(set.Y)
	s.device.Release(set.U)
	s.device.Release(set.V)
	*set = TextureSet{}
}

func (s *Stager) allocate(set *TextureSet, width, height int) error {
	s.releaseSet(set)

	cw, ch := ChromaSize(width, height)
	y, err := s.device.NewTexture(width, height)
	if err != nil {
		return fmt.Errorf("allocate Y texture %dx%d: %w", width, height, err)
	}
	u, err := s.device.NewTexture(cw, ch)
	if err != nil {
		s.device.Release(y)
		return fmt.Errorf("allocate U texture %dx%d: %w", cw, ch, err)
	}
	v, err := s.device.NewTexture(cw, ch)
	if err != nil {
		s.device.Release(y)
		s.device.Release(u)
		return fmt.Errorf("allocate V texture %dx%d: %w", cw, ch, err)
	}
	if u.Stride != v.Stride {
		s.device.Release(y)
		s.device.Release(u)
		s.device.Release(v)
		return fmt.Errorf("chroma textures have different pitches %d and %d", u.Stride, v.Stride)
	}

	*set = TextureSet{Y: y, U: u, V: v, Width: width, Height: height}
	logging.Debugf("video: allocated texture set %dx%d", width, height)
	return nil
}

// Acquire pins the current texture set for sampling. The returned release
// func must be called when the render is done with it. Acquire returns a nil
// set if no frame has been staged yet.
func (s *Stager) Acquire() (*TextureSet, func()) {
	for {
		i := s.active.Load()
		if i < 0 {
			return nil, func() {}
		}
		sl := &s.slots[i]
		sl.readers.Add(1)
		// The slot may have been swapped out between the load and the pin;
		// only a slot that is still active is safe from the producer.
		if s.active.Load() == i {
			return &sl.set, func() { sl.readers.Add(-1) }
		}
		sl.readers.Add(-1)
	}
}

// Dimensions returns the size of the current frame, or 0, 0.
func (s *Stager) Dimensions() (int, int) {
	set, release := s.Acquire()
	defer release()
	if set == nil {
		return 0, 0
	}
	return set.Width, set.Height
}

func (s *Stager) Stats() StagerStats {
	return StagerStats{
		Staged:        s.staged.Load(),
		Rejected:      s.rejected.Load(),
		DroppedBusy:   s.droppedBusy.Load(),
		Reallocations: s.reallocations.Load(),
		AllocFailures: s.allocFailures.Load(),
	}
}

// Release frees every texture. The caller must ensure no Stage or render is
// in flight.
func (s *Stager) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.Store(-1)
	for i := range s.slots {
		s.releaseSet(&s.slots[i].set)
	}
}
