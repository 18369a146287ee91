// Package video stages decoded planar YUV 4:2:0 frames into device textures
// and composites the most recent one, aspect-fit, onto the display surface.
package video

import (
	"errors"
	"fmt"
)

// ErrInvalidFrame is returned for frames that violate the planar layout
// contract (non-positive size, missing planes, strides narrower than a row,
// planes too short for their rows).
var ErrInvalidFrame = errors.New("video: invalid frame")

// Frame describes one decoded YUV420P picture. The planes belong to the
// caller and are only read for the duration of the call that receives it.
type Frame struct {
	Y, U, V                   []byte
	YStride, UStride, VStride int
	Width, Height             int
}

// ChromaSize returns the dimensions of the U and V planes for a luma size:
// half in each direction, rounded up.
func ChromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

func checkPlane(name string, plane []byte, stride, width, height int) error {
	if len(plane) == 0 {
		return fmt.Errorf("%w: %s plane missing", ErrInvalidFrame, name)
	}
	if stride < width {
		return fmt.Errorf("%w: %s stride %d narrower than row of %d", ErrInvalidFrame, name, stride, width)
	}
	if need := stride*(height-1) + width; len(plane) < need {
		return fmt.Errorf("%w: %s plane has %d bytes, need %d", ErrInvalidFrame, name, len(plane), need)
	}
	return nil
}

// Validate reports whether f can be staged.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	cw, ch := ChromaSize(f.Width, f.Height)
	if err := checkPlane("Y", f.Y, f.YStride, f.Width, f.Height); err != nil {
		return err
	}
	if err := checkPlane("U", f.U, f.UStride, cw, ch); err != nil {
		return err
	}
	return checkPlane("V", f.V, f.VStride, cw, ch)
}
