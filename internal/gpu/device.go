// Package gpu models the device that owns texture memory for the video
// compositor. The receiver is handed a Device by its host; SoftwareDevice is
// the CPU-backed implementation used when no accelerator is available and in
// tests.
package gpu

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutOfMemory is returned when a texture allocation exceeds the
	// device's memory budget.
	ErrOutOfMemory = errors.New("gpu: out of texture memory")
	// ErrDeviceClosed is returned by a device after Close.
	ErrDeviceClosed = errors.New("gpu: device closed")
)

// rowAlignment is the pitch alignment applied to texture rows.
const rowAlignment = 64

// Device allocates single-channel textures. Release must accept nil.
type Device interface {
	NewTexture(width, height int) (*Texture, error)
	Release(t *Texture)
	Close() error
}

// Texture is a single-channel (R8) surface. Stride is the device row pitch
// and may exceed Width.
type Texture struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// ReplaceRegion uploads rows of src into the texture starting at row 0.
// srcStride is the source row pitch; only Width bytes of each source row are
// copied. rows is clamped to the texture height.
func (t *Texture) ReplaceRegion(src []byte, srcStride, rows int) {
	rows = min(rows, t.Height)
	for y := 0; y < rows; y++ {
		s := src[y*srcStride : y*srcStride+t.Width]
		copy(t.Pix[y*t.Stride:y*t.Stride+t.Width], s)
	}
}

// Size returns the bytes of device memory the texture occupies.
func (t *Texture) Size() int {
	return len(t.Pix)
}

// SoftwareDevice keeps textures in process memory. A zero Budget means
// unlimited.
type SoftwareDevice struct {
	mu     sync.Mutex
	budget int
	inUse  int
	closed bool
}

func NewSoftwareDevice(budget int) *SoftwareDevice {
	return &SoftwareDevice{budget: budget}
}

func alignedStride(width int) int {
	return (width + rowAlignment - 1) / rowAlignment * rowAlignment
}

func (d *SoftwareDevice) NewTexture(width, height int) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gpu: invalid texture size %dx%d", width, height)
	}
	stride := alignedStride(width)
	size := stride * height

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDeviceClosed
	}
	if d.budget > 0 && d.inUse+size > d.budget {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrOutOfMemory, size, d.inUse, d.budget)
	}
	d.inUse += size

	return &Texture{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, size),
	}, nil
}

// Release returns a texture's memory to the budget. Releasing nil is a no-op.
func (d *SoftwareDevice) Release(t *Texture) {
	if t == nil {
		return
	}
	d.mu.Lock()
	d.inUse -= len(t.Pix)
	d.mu.Unlock()
	t.Pix = nil
}

// InUse reports the bytes currently allocated.
func (d *SoftwareDevice) InUse() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse
}

func (d *SoftwareDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
