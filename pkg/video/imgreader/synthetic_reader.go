package imgreader

import (
	"hash/fnv"
	"image"
	"image/color"
	"path/filepath"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// syntheticReader renders a labelled test card per path instead of
// touching the disk, for demo sequences and tests.
type syntheticReader struct {
	dim videoframe.Dimensions
	fps float64

	fontOnce sync.Once
	font     *truetype.Font
	fontErr  error
}

func (r *syntheticReader) GetFrameInfo(path string) (videoframe.Info, error) {
	format := videoframe.FormatRGBA8
	return videoframe.Info{
		Dim:              r.dim,
		FrameRate:        r.fps,
		UncompressedSize: uint64(r.dim.W) * uint64(r.dim.H) * uint64(format.BytesPerPixel()),
		Format:           format,
		Compression:      "none",
	}, nil
}

func (r *syntheticReader) ReadFrame(path string) (*videoframe.Frame, error) {
	if r.dim.IsZero() {
		return nil, xerror.New("synthetic frame dimensions must be non zero")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, r.dim.W, r.dim.H))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: backgroundFor(path)}, image.Point{}, draw.Src)

	if err := r.drawLabel(canvas, filepath.Base(path)); err != nil {
		return nil, err
	}

	return videoframe.New(canvas, videoframe.FormatRGBA8, canvas.Stride), nil
}

func backgroundFor(path string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(path)) //nolint
	sum := h.Sum32()
	return color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}
}

func (r *syntheticReader) drawLabel(canvas *image.RGBA, text string) error {
	r.fontOnce.Do(func() {
		r.font, r.fontErr = freetype.ParseFont(goregular.TTF)
	})
	if r.fontErr != nil {
		return xerror.Errorf("unable to parse label font: %w", r.fontErr)
	}

	// labels smaller than a pixel row are pointless
	fontSize := float64(canvas.Bounds().Dy()) / 6
	if fontSize < 1 {
		return nil
	}

	drawer := &font.Drawer{
		Dst: canvas,
		Src: image.White,
		Face: truetype.NewFace(r.font, &truetype.Options{
			Size:    fontSize,
			Hinting: font.HintingFull,
		}),
	}
	bounds, _ := drawer.BoundString(text)
	textHeight := bounds.Max.Y - bounds.Min.Y
	drawer.Dot = fixed.Point26_6{
		X: fixed.I(canvas.Bounds().Dx() / 20),
		Y: fixed.I(canvas.Bounds().Dy()/2) + textHeight/2,
	}
	drawer.DrawString(text)
	return nil
}
