package imgreader

import (
	"github.com/spf13/afero"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
)

var fs = afero.NewOsFs()

// Reader decodes single frame files. GetFrameInfo is called once when a
// sequence is opened, ReadFrame from worker goroutines. One reader
// instance serves one sequence.
type Reader interface {
	GetFrameInfo(path string) (videoframe.Info, error)
	ReadFrame(path string) (*videoframe.Frame, error)
}

func Default() Reader {
	return File()
}

func File() Reader {
	return &fileReader{}
}

func Synthetic(dim videoframe.Dimensions, fps float64) Reader {
	return &syntheticReader{dim: dim, fps: fps}
}

// Resolve returns a constructor for the named reader kind so that
// each opened sequence gets its own instance.
func Resolve(kind string) func() Reader {
	switch kind {
	case "synthetic":
		return func() Reader {
			return Synthetic(videoframe.Dimensions{W: 640, H: 360}, 0)
		}
	default:
		return Default
	}
}
