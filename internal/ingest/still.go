package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/example/castreceiver/internal/video"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// MaxStillDimension bounds decoded stills so a small file cannot expand
// into an unbounded allocation.
const MaxStillDimension = 8192

var ErrUndecodable = errors.New("ingest: undecodable still image")

// DecodeStill decodes a WebP, PNG, JPEG or GIF image into a YUV420P frame
// using full-range BT.601, the inverse of the compositor's conversion.
// Transparent pixels come out black.
func DecodeStill(data []byte) (video.Frame, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return video.Frame{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxStillDimension || cfg.Height > MaxStillDimension {
		return video.Frame{}, fmt.Errorf("%w: %dx%d", ErrUndecodable, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return video.Frame{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgbaToFrame(rgba), nil
}

func rgbaToFrame(img *image.RGBA) video.Frame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	cw, ch := video.ChromaSize(w, h)
	f := video.Frame{
		Y:       make([]byte, w*h),
		U:       make([]byte, cw*ch),
		V:       make([]byte, cw*ch),
		YStride: w,
		UStride: cw,
		VStride: cw,
		Width:   w,
		Height:  h,
	}

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			f.Y[y*w+x], _, _ = color.RGBToYCbCr(row[x*4], row[x*4+1], row[x*4+2])
		}
	}

	// Chroma is the average over each 2x2 block, clipped at odd edges.
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var r, g, b, n int
			for y := cy * 2; y < min(cy*2+2, h); y++ {
				for x := cx * 2; x < min(cx*2+2, w); x++ {
					p := img.Pix[y*img.Stride+x*4:]
					r += int(p[0])
					g += int(p[1])
					b += int(p[2])
					n++
				}
			}
			_, f.U[cy*cw+cx], f.V[cy*cw+cx] = color.RGBToYCbCr(uint8(r/n), uint8(g/n), uint8(b/n))
		}
	}
	return f
}
