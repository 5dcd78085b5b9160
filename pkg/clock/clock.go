// Package clock drives playback. Every tick it hands the elapsed wall time
// to its sinks in registration order, so sinks that request frames should be
// added before the ones that fetch them.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/tauraamui/dragonreel/pkg/process"
)

const DefaultInterval = 16 * time.Millisecond

type Timecode struct {
	Tick    uint64
	Elapsed time.Duration
}

type Sink interface {
	TickFetch(delta time.Duration, tc Timecode)
}

type Clock struct {
	interval time.Duration
	mu       sync.Mutex
	sinks    []Sink
	tc       Timecode
	proc     process.Process
}

func New(interval time.Duration) *Clock {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := Clock{interval: interval}
	c.proc = process.New(process.Settings{
		WaitForShutdownMsg: "Stopping playback clock...",
		Process:            c.run,
	})
	return &c
}

func (c *Clock) Interval() time.Duration { return c.interval }

func (c *Clock) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.sinks {
		if existing == s {
			return
		}
	}
	c.sinks = append(c.sinks, s)
}

func (c *Clock) RemoveSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.sinks {
		if existing == s {
			c.sinks = append(c.sinks[:i], c.sinks[i+1:]...)
			return
		}
	}
}

func (c *Clock) Timecode() Timecode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc
}

// Advance runs a single tick. Sinks are called without the clock lock held
// so they are free to add or remove sinks.
func (c *Clock) Advance(delta time.Duration) {
	c.mu.Lock()
	c.tc.Tick++
	c.tc.Elapsed += delta
	tc := c.tc
	sinks := make([]Sink, len(c.sinks))
	copy(sinks, c.sinks)
	c.mu.Unlock()

	for _, s := range sinks {
		s.TickFetch(delta, tc)
	}
}

func (c *Clock) Start() { c.proc.Start() }

func (c *Clock) Stop() { c.proc.Stop() }

func (c *Clock) Wait() { c.proc.Wait() }

func (c *Clock) run(ctx context.Context) []chan interface{} {
	stopped := make(chan interface{})
	go func(ctx context.Context, stopped chan interface{}) {
		defer close(stopped)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				c.Advance(now.Sub(last))
				last = now
			}
		}
	}(ctx, stopped)
	return []chan interface{}{stopped}
}
