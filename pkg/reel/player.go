package reel

import (
	"sync"
	"time"

	"github.com/tauraamui/dragonreel/pkg/clock"
	"github.com/tauraamui/dragonreel/pkg/configdef"
	"github.com/tauraamui/dragonreel/pkg/database/models"
	"github.com/tauraamui/dragonreel/pkg/imgseq"
	"github.com/tauraamui/dragonreel/pkg/log"
)

// player moves one sequence's playhead on every clock tick and pulls
// whatever frame is resident for the new position. The frame under the
// playhead is never prefetched itself, so a paused player only shows a frame
// once something else has cached it.
type player struct {
	title    string
	path     string
	rate     float64
	loop     bool
	loader   *imgseq.Loader
	duration time.Duration

	mu       sync.Mutex
	position time.Duration
	shown    int
}

func newPlayer(seq configdef.Sequence, loader *imgseq.Loader) *player {
	if seq.PlayRate == 0 {
		log.Info("Sequence [%s] is paused, its frame shows only once neighbouring playback has cached it", seq.Title)
	}
	return &player{
		title:    seq.Title,
		path:     seq.Path,
		rate:     seq.PlayRate,
		loop:     seq.Loop,
		loader:   loader,
		duration: loader.Duration(),
		shown:    -1,
	}
}

func (p *player) TickFetch(delta time.Duration, tc clock.Timecode) {
	p.mu.Lock()
	p.position = advance(p.position, delta, p.rate, p.duration, p.loop)
	position := p.position
	p.mu.Unlock()

	p.loader.RequestFrame(position, p.rate, p.loop)
	sample := p.loader.GetFrameSample(position)
	if sample == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sample.Index != p.shown {
		p.shown = sample.Index
		log.Debug("Sequence [%s] showing frame %d at tick %d", p.title, sample.Index, tc.Tick)
	}
}

// advance moves position by delta scaled by rate. Looping sequences wrap
// around their duration, others stop on the last frame or the first.
func advance(position, delta time.Duration, rate float64, duration time.Duration, loop bool) time.Duration {
	if duration <= 0 {
		return 0
	}

	next := position + time.Duration(float64(delta)*rate)
	if loop {
		next %= duration
		if next < 0 {
			next += duration
		}
		return next
	}

	if next < 0 {
		return 0
	}
	if next >= duration {
		return duration - 1
	}
	return next
}

func (p *player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *player) session() models.PlaybackSession {
	stats := p.loader.Stats()
	return models.PlaybackSession{
		Title:           p.title,
		Path:            p.path,
		Frames:          p.loader.NumFrames(),
		CacheCapacity:   stats.CacheCapacity,
		SampleHits:      stats.SampleHits,
		SampleMisses:    stats.SampleMisses,
		FramesLoaded:    stats.FramesLoaded,
		FramesDiscarded: stats.FramesDiscarded,
		FailedReads:     stats.FailedReads,
	}
}
