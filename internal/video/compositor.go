package video

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// ColorRange names the YUV to RGB conversion applied when sampling the
// planar textures: BT.601 coefficients over the full 0-255 range (JFIF), as
// implemented by image/color.YCbCrToRGB and the x/image/draw samplers. It is
// fixed for the whole receiver.
const ColorRange = "bt601-full"

// Filter selects the sampler used to scale the video into the viewport.
type Filter int

const (
	FilterApproxBiLinear Filter = iota
	FilterNearest
	FilterBiLinear
	FilterCatmullRom
)

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterApproxBiLinear:
		return "approx-bilinear"
	case FilterBiLinear:
		return "bilinear"
	case FilterCatmullRom:
		return "catmull-rom"
	default:
		return "unknown"
	}
}

func ParseFilter(s string) (Filter, error) {
	for _, f := range []Filter{FilterApproxBiLinear, FilterNearest, FilterBiLinear, FilterCatmullRom} {
		if f.String() == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown scale filter %q", s)
}

func (f Filter) interpolator() draw.Interpolator {
	switch f {
	case FilterNearest:
		return draw.NearestNeighbor
	case FilterBiLinear:
		return draw.BiLinear
	case FilterCatmullRom:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}

// Viewport returns the largest rectangle with the video's aspect ratio that
// fits a w by h drawable, centred. Any non-positive input yields an empty
// rectangle.
func Viewport(w, h, videoW, videoH int) image.Rectangle {
	if w <= 0 || h <= 0 || videoW <= 0 || videoH <= 0 {
		return image.Rectangle{}
	}
	scale := math.Min(float64(w)/float64(videoW), float64(h)/float64(videoH))
	dw := min(int(math.Round(float64(videoW)*scale)), w)
	dh := min(int(math.Round(float64(videoH)*scale)), h)
	x := (w - dw) / 2
	y := (h - dh) / 2
	return image.Rect(x, y, x+dw, y+dh)
}

// Compositor draws the current texture set onto a drawable each refresh.
type Compositor struct {
	background *image.Uniform
	sampler    draw.Interpolator
}

// NewCompositor returns a compositor filling letterbox/pillarbox bars with bg.
func NewCompositor(bg color.Color, filter Filter) *Compositor {
	return &Compositor{
		background: image.NewUniform(bg),
		sampler:    filter.interpolator(),
	}
}

// Render fills dst with the background and, when set is non-nil, samples
// the planar textures into the aspect-fit viewport. It returns the viewport
// drawn, in dst coordinates.
func (c *Compositor) Render(dst *image.RGBA, set *TextureSet) image.Rectangle {
	b := dst.Bounds()
	draw.Draw(dst, b, c.background, image.Point{}, draw.Src)

	if set == nil {
		return image.Rectangle{}
	}
	vp := Viewport(b.Dx(), b.Dy(), set.Width, set.Height)
	if vp.Empty() {
		return vp
	}
	vp = vp.Add(b.Min)

	src := set.YCbCr()
	c.sampler.Scale(dst, vp, src, src.Bounds(), draw.Src, nil)
	return vp
}
