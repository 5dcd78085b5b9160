package imgreader

import (
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type fileReader struct{}

func (r *fileReader) GetFrameInfo(path string) (videoframe.Info, error) {
	file, err := fs.Open(path)
	if err != nil {
		return videoframe.Info{}, xerror.Errorf("unable to open frame file: %w", err)
	}
	defer file.Close()

	cfg, compression, err := image.DecodeConfig(file)
	if err != nil {
		return videoframe.Info{}, xerror.Errorf("unable to read frame header %s: %w", path, err)
	}

	format := formatFromModel(cfg.ColorModel)
	return videoframe.Info{
		Dim:              videoframe.Dimensions{W: cfg.Width, H: cfg.Height},
		UncompressedSize: uint64(cfg.Width) * uint64(cfg.Height) * uint64(format.BytesPerPixel()),
		Format:           format,
		Compression:      compression,
	}, nil
}

func (r *fileReader) ReadFrame(path string) (*videoframe.Frame, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, xerror.Errorf("unable to open frame file: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, xerror.Errorf("unable to decode frame %s: %w", path, err)
	}

	return canonicalFrame(img)
}

func formatFromModel(m color.Model) videoframe.PixelFormat {
	if _, ok := m.(color.Palette); ok {
		return videoframe.FormatRGBA8
	}

	switch m {
	case color.GrayModel:
		return videoframe.FormatGray8
	case color.Gray16Model:
		return videoframe.FormatGray16
	case color.RGBA64Model, color.NRGBA64Model:
		return videoframe.FormatRGBA16
	case color.RGBAModel, color.NRGBAModel, color.YCbCrModel, color.NYCbCrAModel, color.CMYKModel:
		return videoframe.FormatRGBA8
	default:
		return videoframe.FormatUnknown
	}
}

// canonicalFrame converts whatever the decoder produced into one of the
// four buffer layouts a frame can carry.
func canonicalFrame(img image.Image) (*videoframe.Frame, error) {
	format := formatFromModel(img.ColorModel())
	b := img.Bounds()

	switch format {
	case videoframe.FormatGray8:
		dst, ok := img.(*image.Gray)
		if !ok {
			dst = image.NewGray(b)
			draw.Draw(dst, b, img, b.Min, draw.Src)
		}
		return videoframe.New(dst, format, dst.Stride), nil
	case videoframe.FormatGray16:
		dst, ok := img.(*image.Gray16)
		if !ok {
			dst = image.NewGray16(b)
			draw.Draw(dst, b, img, b.Min, draw.Src)
		}
		return videoframe.New(dst, format, dst.Stride), nil
	case videoframe.FormatRGBA16:
		dst, ok := img.(*image.RGBA64)
		if !ok {
			dst = image.NewRGBA64(b)
			draw.Draw(dst, b, img, b.Min, draw.Src)
		}
		return videoframe.New(dst, format, dst.Stride), nil
	case videoframe.FormatRGBA8:
		dst, ok := img.(*image.RGBA)
		if !ok {
			dst = image.NewRGBA(b)
			draw.Draw(dst, b, img, b.Min, draw.Src)
		}
		return videoframe.New(dst, format, dst.Stride), nil
	}

	return nil, xerror.Errorf("unsupported pixel layout: %T", img)
}
