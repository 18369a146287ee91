//go:build windows

package window

import (
	"fmt"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	gdi32                  = windows.NewLazySystemDLL("gdi32.dll")
	procCreateDIBSection   = gdi32.NewProc("CreateDIBSection")
	procCreateCompatibleDC = gdi32.NewProc("CreateCompatibleDC")
	procSelectObject       = gdi32.NewProc("SelectObject")
	procDeleteObject       = gdi32.NewProc("DeleteObject")
	procDeleteDC           = gdi32.NewProc("DeleteDC")
)

const (
	BI_RGB         = 0
	DIB_RGB_COLORS = 0
)

type BITMAPINFOHEADER struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type BITMAPINFO struct {
	BmiHeader BITMAPINFOHEADER
	BmiColors [1]uint32
}

// dib is a top-down 32-bit BGRA DIB section selected into a memory DC, the
// source surface for UpdateLayeredWindow.
type dib struct {
	hdc    windows.Handle
	bitmap windows.Handle
	pixels []byte
	stride int
	width  int
	height int
}

func newDIB(width, height int) (*dib, error) {
	hdcPtr, _, e := procCreateCompatibleDC.Call(0)
	if hdcPtr == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC failed: %v", e)
	}

	bmi := BITMAPINFO{
		BmiHeader: BITMAPINFOHEADER{
			BiSize:        uint32(unsafe.Sizeof(BITMAPINFOHEADER{})),
			BiWidth:       int32(width),
			BiHeight:      int32(-height), // top-down
			BiPlanes:      1,
			BiBitCount:    32,
			BiCompression: BI_RGB,
		},
	}

	var bits unsafe.Pointer
	bitmapPtr, _, e := procCreateDIBSection.Call(
		hdcPtr,
		uintptr(unsafe.Pointer(&bmi)),
		DIB_RGB_COLORS,
		uintptr(unsafe.Pointer(&bits)),
		0, 0,
	)
	if bitmapPtr == 0 {
		procDeleteDC.Call(hdcPtr)
		return nil, fmt.Errorf("CreateDIBSection failed: %v", e)
	}
	procSelectObject.Call(hdcPtr, bitmapPtr)

	stride := width * 4
	return &dib{
		hdc:    windows.Handle(hdcPtr),
		bitmap: windows.Handle(bitmapPtr),
		pixels: unsafe.Slice((*byte)(bits), stride*height),
		stride: stride,
		width:  width,
		height: height,
	}, nil
}

// copyRGBA converts a rendered frame of the same size into the DIB.
// Rendered frames are opaque, so no premultiplication is needed.
func (d *dib) copyRGBA(frame *image.RGBA) bool {
	if frame.Rect.Dx() != d.width || frame.Rect.Dy() != d.height {
		return false
	}
	for y := 0; y < d.height; y++ {
		src := frame.Pix[y*frame.Stride : y*frame.Stride+d.width*4]
		dst := d.pixels[y*d.stride : y*d.stride+d.width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i+0] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i+0]
			dst[i+3] = src[i+3]
		}
	}
	return true
}

func (d *dib) release() {
	if d == nil {
		return
	}
	if d.bitmap != 0 {
		procDeleteObject.Call(uintptr(d.bitmap))
	}
	if d.hdc != 0 {
		procDeleteDC.Call(uintptr(d.hdc))
	}
	d.pixels = nil
}
