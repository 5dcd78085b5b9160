// Package imgseq keeps a window of decoded frames around the playhead of an
// image sequence resident in memory. A Loader decides which frames it wants
// and hands reads for them to the shared prefetch scheduler as work items.
package imgseq

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tauraamui/dragonreel/pkg/log"
	"github.com/tauraamui/dragonreel/pkg/prefetch"
	"github.com/tauraamui/dragonreel/pkg/sysmem"
	"github.com/tauraamui/dragonreel/pkg/video/imgreader"
	"github.com/tauraamui/dragonreel/pkg/video/videoframe"
	"github.com/tauraamui/dragonreel/pkg/weakref"
	"github.com/tauraamui/xerror"
)

var availableMemory = sysmem.Available

// Registrar is the part of the scheduler a loader talks to.
type Registrar interface {
	RegisterLoader(*prefetch.SourceRef)
	UnregisterLoader(*prefetch.SourceRef)
}

type Settings struct {
	// CacheBudget is the most memory in bytes the frame cache may use.
	CacheBudget uint64
	// BehindFraction is the share of the cache spent behind the playhead.
	BehindFraction   float64
	DefaultFrameRate float64
}

type Sample struct {
	Frame    *videoframe.Frame
	Index    int
	Time     time.Duration
	Duration time.Duration
}

type Stats struct {
	CacheCapacity   int
	CachedFrames    int
	NumLoadAhead    int
	NumLoadBehind   int
	WindowUpdates   int
	FramesLoaded    int
	FramesDiscarded int
	FailedReads     int
	SampleHits      int
	SampleMisses    int
}

type Loader struct {
	registrar Registrar
	reader    imgreader.Reader
	settings  Settings
	self      *weakref.Ref[*Loader]
	sourceRef *prefetch.SourceRef

	mu            sync.Mutex
	initialized   bool
	closed        bool
	path          string
	description   string
	info          videoframe.Info
	frameRate     float64
	paths         []string
	loop          bool
	numLoadAhead  int
	numLoadBehind int
	cache         *frameCache
	pending       []int
	queued        map[int]struct{}
	workPool      []*workItem
	lastRequested int
	stats         Stats
}

func NewLoader(registrar Registrar, reader imgreader.Reader, settings Settings) *Loader {
	l := Loader{
		registrar:     registrar,
		reader:        reader,
		settings:      settings,
		cache:         newFrameCache(0),
		queued:        map[int]struct{}{},
		lastRequested: -1,
	}
	l.self = weakref.New(&l)
	l.sourceRef = weakref.New[prefetch.Source](&l)
	return &l
}

// Initialize opens the sequence at path and sizes the cache. Any failure is
// logged and leaves the loader uninitialized, in which case the returned
// description is empty and every query comes back empty.
func (l *Loader) Initialize(path string, fpsOverride float64, loop bool) string {
	description, err := l.initialize(path, fpsOverride, loop)
	if err != nil {
		log.Error("Unable to open image sequence [%s]: %s", path, err.Error())
		return ""
	}
	return description
}

func (l *Loader) initialize(path string, fpsOverride float64, loop bool) (string, error) {
	l.mu.Lock()
	if l.initialized || l.closed {
		defer l.mu.Unlock()
		if l.closed {
			return "", xerror.New("loader has been closed")
		}
		return l.description, nil
	}
	l.mu.Unlock()

	paths, err := enumerateFrames(path)
	if err != nil {
		return "", err
	}

	info, err := l.reader.GetFrameInfo(paths[0])
	if err != nil {
		return "", xerror.Errorf("unable to read first frame: %w", err)
	}
	if info.Dim.IsZero() {
		return "", xerror.Errorf("first frame has invalid dimensions: %s", info.Dim)
	}
	if info.UncompressedSize == 0 {
		return "", xerror.New("first frame has zero size")
	}
	if !info.Format.Supported() {
		return "", xerror.Errorf("pixel format %s is not supported on this platform", info.Format)
	}

	frameRate := fpsOverride
	if frameRate <= 0 {
		frameRate = info.FrameRate
	}
	if frameRate <= 0 {
		frameRate = l.settings.DefaultFrameRate
	}
	if frameRate <= 0 {
		return "", xerror.New("unable to resolve sequence frame rate")
	}

	budget := l.settings.CacheBudget
	if avail, ok := availableMemory(); ok && avail < budget {
		budget = avail
	}
	capacity := cacheCapacity(budget, info.UncompressedSize, len(paths))
	numLoadBehind := int(math.Round(float64(capacity) * clampFraction(l.settings.BehindFraction)))
	numLoadAhead := capacity - numLoadBehind

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", xerror.New("loader was closed while opening")
	}
	l.initialized = true
	l.path = path
	l.info = info
	l.frameRate = frameRate
	l.paths = paths
	l.loop = loop
	l.numLoadAhead = numLoadAhead
	l.numLoadBehind = numLoadBehind
	l.cache = newFrameCache(capacity)
	l.stats.CacheCapacity = capacity
	l.stats.NumLoadAhead = numLoadAhead
	l.stats.NumLoadBehind = numLoadBehind
	l.description = describe(path, info, len(paths), frameRate, fpsOverride > 0, budget, capacity, numLoadAhead, numLoadBehind)
	description := l.description
	l.mu.Unlock()

	if l.registrar != nil {
		l.registrar.RegisterLoader(l.sourceRef)
	}

	log.Info("Opened image sequence [%s] with %d frames, caching %d (%d ahead, %d behind)",
		path, len(paths), capacity, numLoadAhead, numLoadBehind)
	return description, nil
}

func cacheCapacity(budget, frameSize uint64, numFrames int) int {
	if frameSize == 0 || numFrames <= 0 {
		return 0
	}
	capacity := budget / frameSize
	if capacity > uint64(numFrames) {
		return numFrames
	}
	return int(capacity)
}

func clampFraction(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func describe(
	path string, info videoframe.Info, numFrames int, frameRate float64, overridden bool,
	budget uint64, capacity, ahead, behind int,
) string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Image Sequence\n")
	fmt.Fprintf(&b, "    Path: %s\n", path)
	fmt.Fprintf(&b, "    Dimension: %s\n", info.Dim)
	fmt.Fprintf(&b, "    Format: %s\n", info.Format)
	fmt.Fprintf(&b, "    Compression: %s\n", info.Compression)
	fmt.Fprintf(&b, "    Frames: %d\n", numFrames)
	if overridden {
		fmt.Fprintf(&b, "    Frame Rate: %.2f (override)\n", frameRate)
	} else {
		fmt.Fprintf(&b, "    Frame Rate: %.2f\n", frameRate)
	}
	fmt.Fprintf(&b, "    Frame Size: %s\n", humanize.IBytes(info.UncompressedSize))
	fmt.Fprintf(&b, "    Cache Budget: %s\n", humanize.IBytes(budget))
	fmt.Fprintf(&b, "    Cache: %d frames, %d ahead, %d behind\n", capacity, ahead, behind)
	return b.String()
}

func (l *Loader) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initialized && !l.closed
}

func (l *Loader) Info() videoframe.Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info
}

func (l *Loader) Description() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.description
}

func (l *Loader) NumFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}

func (l *Loader) FrameRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frameRate
}

// Duration is the playback length of the whole sequence.
func (l *Loader) Duration() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frameRate <= 0 {
		return 0
	}
	return frameTime(len(l.paths), l.frameRate)
}

// RequestFrame moves the playhead to the frame shown at time t. Polling the
// same frame again is a no-op and reports false, as does a loader which
// failed to open.
func (l *Loader) RequestFrame(t time.Duration, playRate float64, loop bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized || l.closed {
		return false
	}

	index := frameAt(t, l.frameRate)
	if loop {
		index, _ = boundIndex(index, len(l.paths), true)
	} else {
		index = clampIndex(index, len(l.paths))
	}

	if index == l.lastRequested {
		return false
	}
	l.lastRequested = index
	l.loop = loop

	l.update(index, playRate, loop)
	return true
}

func clampIndex(index, numFrames int) int {
	if index < 0 {
		return 0
	}
	if index >= numFrames {
		return numFrames - 1
	}
	return index
}

// Update recomputes which frames are wanted around playhead, unlike
// RequestFrame it always rebuilds the window even for the same frame.
func (l *Loader) Update(playhead int, playRate float64, loop bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized || l.closed {
		return
	}
	if loop {
		playhead, _ = boundIndex(playhead, len(l.paths), true)
	} else {
		playhead = clampIndex(playhead, len(l.paths))
	}
	l.lastRequested = playhead
	l.loop = loop
	l.update(playhead, playRate, loop)
}

// update must be called with l.mu held. Queued frames that fell out of the
// window stop being tracked, so their reads are thrown away on arrival.
// Pending is rebuilt look-ahead first, each side nearest first.
func (l *Loader) update(playhead int, playRate float64, loop bool) {
	l.stats.WindowUpdates++

	ahead, behind := desiredWindow(playhead, len(l.paths), l.numLoadAhead, l.numLoadBehind, playRate, loop)
	desired := make(map[int]struct{}, len(ahead)+len(behind))
	for _, index := range ahead {
		desired[index] = struct{}{}
	}
	for _, index := range behind {
		desired[index] = struct{}{}
	}

	for index := range l.queued {
		if _, ok := desired[index]; !ok {
			delete(l.queued, index)
		}
	}

	l.pending = l.pending[:0]
	for _, side := range [][]int{ahead, behind} {
		for _, index := range side {
			if l.cache.Touch(index) {
				continue
			}
			if _, ok := l.queued[index]; ok {
				continue
			}
			l.pending = append(l.pending, index)
		}
	}
}

// GetWork hands out a read for the most urgent pending frame, nil when there
// is nothing left to fetch.
func (l *Loader) GetWork() prefetch.Work {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || len(l.pending) == 0 {
		return nil
	}

	index := l.pending[0]
	l.pending = l.pending[1:]
	l.queued[index] = struct{}{}

	item := l.takeWorkItem()
	item.Initialize(index, l.paths[index])
	return item
}

func (l *Loader) takeWorkItem() *workItem {
	if n := len(l.workPool); n > 0 {
		item := l.workPool[n-1]
		l.workPool = l.workPool[:n-1]
		return item
	}
	return newWorkItem(l.self, l.reader)
}

// notifyWorkComplete only caches the frame if it was still wanted, a read
// whose frame left the window while in flight is discarded.
func (l *Loader) notifyWorkComplete(item *workItem, index int, frame *videoframe.Frame, failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	_, wanted := l.queued[index]
	delete(l.queued, index)

	if failed {
		l.stats.FailedReads++
	}
	if wanted && frame != nil {
		l.cache.Add(index, frame)
		l.stats.FramesLoaded++
	} else if frame != nil {
		l.stats.FramesDiscarded++
	}

	l.workPool = append(l.workPool, item)
}

// GetFrameSample returns the cached frame shown at time t. It never reads
// from disk, a frame which is not resident yet is reported as nil.
func (l *Loader) GetFrameSample(t time.Duration) *Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized || l.closed {
		return nil
	}

	index, ok := boundIndex(frameAt(t, l.frameRate), len(l.paths), l.loop)
	if !ok {
		return nil
	}

	frame, ok := l.cache.Get(index)
	if !ok {
		l.stats.SampleMisses++
		return nil
	}
	l.stats.SampleHits++

	start := frameTime(index, l.frameRate)
	return &Sample{
		Frame:    frame,
		Index:    index,
		Time:     start,
		Duration: frameTime(index+1, l.frameRate) - start,
	}
}

// GetBusyTimeRanges covers frames currently being read.
func (l *Loader) GetBusyTimeRanges() []TimeRange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return timeRanges(l.queuedIndices(), l.frameRate)
}

// GetCompletedTimeRanges covers frames resident in the cache.
func (l *Loader) GetCompletedTimeRanges() []TimeRange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return timeRanges(l.cache.Indices(), l.frameRate)
}

// GetPendingTimeRanges covers frames wanted but not yet handed to a worker.
func (l *Loader) GetPendingTimeRanges() []TimeRange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return timeRanges(l.pending, l.frameRate)
}

func (l *Loader) queuedIndices() []int {
	indices := make([]int, 0, len(l.queued))
	for index := range l.queued {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := l.stats
	stats.CachedFrames = l.cache.Len()
	return stats
}

// Close detaches the loader from the scheduler and drops every frame. Reads
// still in flight finish against an expired reference and are discarded.
func (l *Loader) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.cache.Purge()
	l.pending = nil
	l.queued = map[int]struct{}{}
	l.workPool = nil
	path := l.path
	l.mu.Unlock()

	if l.registrar != nil {
		l.registrar.UnregisterLoader(l.sourceRef)
	}
	l.sourceRef.Release()
	l.self.Release()
	log.Debug("Closed image sequence [%s]", path)
}
