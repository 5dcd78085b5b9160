package imgseq

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
)

// frameCache holds decoded frames by index, evicting the least recently
// touched one once full. A capacity of zero caches nothing.
type frameCache struct {
	capacity int
	frames   *lru.Cache[int, *videoframe.Frame]
}

func newFrameCache(capacity int) *frameCache {
	c := frameCache{}
	if capacity <= 0 {
		return &c
	}
	frames, err := lru.New[int, *videoframe.Frame](capacity)
	if err != nil {
		return &c
	}
	c.capacity = capacity
	c.frames = frames
	return &c
}

// Get looks a frame up and marks it as most recently used.
func (c *frameCache) Get(index int) (*videoframe.Frame, bool) {
	if c.frames == nil {
		return nil, false
	}
	return c.frames.Get(index)
}

func (c *frameCache) Touch(index int) bool {
	_, ok := c.Get(index)
	return ok
}

func (c *frameCache) Add(index int, frame *videoframe.Frame) {
	if c.frames == nil || frame == nil {
		return
	}
	c.frames.Add(index, frame)
}

func (c *frameCache) Len() int {
	if c.frames == nil {
		return 0
	}
	return c.frames.Len()
}

func (c *frameCache) Indices() []int {
	if c.frames == nil {
		return nil
	}
	return c.frames.Keys()
}

func (c *frameCache) Purge() {
	if c.frames == nil {
		return
	}
	c.frames.Purge()
}
