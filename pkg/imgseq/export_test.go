package imgseq

import (
	"sort"

	"github.com/spf13/afero"
	"github.com/tauraamui/dragonreel/pkg/prefetch"
)

func OverloadFS(overload afero.Fs) func() {
	fsRef := fs
	fs = overload
	return func() { fs = fsRef }
}

func OverloadAvailableMemory(overload func() (uint64, bool)) func() {
	availableMemoryRef := availableMemory
	availableMemory = overload
	return func() { availableMemory = availableMemoryRef }
}

func DesiredWindow(playhead, numFrames, numAhead, numBehind int, playRate float64, loop bool) ([]int, []int) {
	return desiredWindow(playhead, numFrames, numAhead, numBehind, playRate, loop)
}

func WorkIndex(w prefetch.Work) int {
	return w.(*workItem).index
}

func (l *Loader) PendingIndices() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	indices := make([]int, len(l.pending))
	copy(indices, l.pending)
	return indices
}

func (l *Loader) QueuedIndices() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queuedIndices()
}

func (l *Loader) CachedIndices() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	indices := append([]int{}, l.cache.Indices()...)
	sort.Ints(indices)
	return indices
}

func (l *Loader) WorkPoolSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workPool)
}

func (l *Loader) FramePaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.paths...)
}
