package videoframe

import (
	"fmt"
	"image"
)

type Dimensions struct {
	W, H int
}

func (d Dimensions) IsZero() bool {
	return d.W <= 0 || d.H <= 0
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%d x %d", d.W, d.H)
}

type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatGray8
	FormatGray16
	FormatRGBA8
	FormatRGBA16
)

func (p PixelFormat) String() string {
	switch p {
	case FormatGray8:
		return "GRAY8"
	case FormatGray16:
		return "GRAY16"
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGBA16:
		return "RGBA16"
	default:
		return "UNKNOWN"
	}
}

// BytesPerPixel is zero for formats which cannot be decoded into a frame.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatGray8:
		return 1
	case FormatGray16:
		return 2
	case FormatRGBA8:
		return 4
	case FormatRGBA16:
		return 8
	default:
		return 0
	}
}

func (p PixelFormat) Supported() bool {
	return p.BytesPerPixel() > 0
}

// Info describes every frame of a sequence, read once from its first frame.
type Info struct {
	Dim              Dimensions
	FrameRate        float64
	UncompressedSize uint64
	Format           PixelFormat
	Compression      string
}

// Frame is a decoded image plus the metadata needed to upload it.
type Frame struct {
	Image  image.Image
	Dim    Dimensions
	Format PixelFormat
	Stride int
}

func New(img image.Image, format PixelFormat, stride int) *Frame {
	b := img.Bounds()
	return &Frame{
		Image:  img,
		Dim:    Dimensions{W: b.Dx(), H: b.Dy()},
		Format: format,
		Stride: stride,
	}
}

func (f *Frame) Size() uint64 {
	if f == nil {
		return 0
	}
	return uint64(f.Stride) * uint64(f.Dim.H)
}
