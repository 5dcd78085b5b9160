package prefetch

import (
	"runtime"
	"sync"
	"time"

	"github.com/tauraamui/dragonreel/pkg/clock"
	"github.com/tauraamui/dragonreel/pkg/log"
)

// Ticker is the clock the scheduler feeds its idle workers from.
type Ticker interface {
	AddSink(clock.Sink)
	RemoveSink(clock.Sink)
}

type Scheduler struct {
	mu          sync.Mutex
	initialized bool
	shutdown    bool
	ticker      Ticker
	workers     []*Worker
	idle        []*Worker
	sources     []*SourceRef
	cursor      int
}

func New() *Scheduler {
	return &Scheduler{}
}

// DefaultWorkerCount leaves one core for the playback thread.
func DefaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// Initialize starts the worker pool and subscribes to the ticker. A
// non-positive worker count selects DefaultWorkerCount. Calling it again
// has no effect.
func (s *Scheduler) Initialize(numWorkers int, ticker Ticker) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = true
	s.shutdown = false

	if numWorkers <= 0 {
		numWorkers = DefaultWorkerCount()
	}

	log.Info("Starting %d prefetch workers...", numWorkers)
	for i := 0; i < numWorkers; i++ {
		w := NewWorker(i, s)
		s.workers = append(s.workers, w)
		s.idle = append(s.idle, w)
		w.Start()
	}
	s.ticker = ticker
	s.mu.Unlock()

	if ticker != nil {
		ticker.AddSink(s)
	}
}

// Shutdown stops and joins every worker regardless of what they are doing.
// Registered sources are forgotten, their pending work stays pending.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = false
	s.shutdown = true
	workers := s.workers
	ticker := s.ticker
	s.workers, s.idle, s.sources = nil, nil, nil
	s.cursor = 0
	s.ticker = nil
	s.mu.Unlock()

	if ticker != nil {
		ticker.RemoveSink(s)
	}

	log.Info("Stopping %d prefetch workers...", len(workers))
	for _, w := range workers {
		w.Stop()
	}
	for _, w := range workers {
		w.Wait()
	}
}

func (s *Scheduler) RegisterLoader(ref *SourceRef) {
	if ref == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sources {
		if existing == ref {
			return
		}
	}
	s.sources = append(s.sources, ref)
}

func (s *Scheduler) UnregisterLoader(ref *SourceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.sources {
		if existing == ref {
			s.removeSourceAt(i)
			return
		}
	}
}

// removeSourceAt keeps the cursor on the same next source, or wraps it
// when the list shrank beneath it. Must be called with s.mu held.
func (s *Scheduler) removeSourceAt(i int) {
	s.sources = append(s.sources[:i], s.sources[i+1:]...)
	if i < s.cursor {
		s.cursor--
	}
	if s.cursor >= len(s.sources) {
		s.cursor = 0
	}
}

// TickFetch hands work to idle workers until either runs out. Workers feed
// themselves after this, so this is the only place new work enters the pool.
func (s *Scheduler) TickFetch(delta time.Duration, tc clock.Timecode) {
	for {
		w := s.popIdle()
		if w == nil {
			return
		}

		work := s.GetWorkOrReturnToPool(w)
		if work == nil {
			return
		}

		w.QueueWork(work)
	}
}

func (s *Scheduler) popIdle() *Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown || len(s.idle) == 0 {
		return nil
	}
	w := s.idle[len(s.idle)-1]
	s.idle = s.idle[:len(s.idle)-1]
	return w
}

// GetWorkOrReturnToPool asks each registered source for work once, starting
// from the round-robin cursor. The scheduler lock is only held while picking
// the next source, never while calling into it. When nothing turns up the
// given worker (if any) is marked idle.
func (s *Scheduler) GetWorkOrReturnToPool(w *Worker) Work {
	s.mu.Lock()
	attempts := len(s.sources)
	s.mu.Unlock()

	for i := 0; i < attempts; i++ {
		source := s.nextSource()
		if source == nil {
			break
		}
		if work := source.GetWork(); work != nil {
			return work
		}
	}

	if w != nil {
		s.mu.Lock()
		if !s.shutdown {
			s.idle = append(s.idle, w)
		}
		s.mu.Unlock()
	}
	return nil
}

// nextSource returns the source under the cursor and moves the cursor past
// it, pruning any whose owner has gone away.
func (s *Scheduler) nextSource() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.sources) > 0 {
		if s.cursor >= len(s.sources) {
			s.cursor = 0
		}
		source, ok := s.sources[s.cursor].Get()
		if !ok || source == nil {
			s.removeSourceAt(s.cursor)
			continue
		}
		s.cursor = (s.cursor + 1) % len(s.sources)
		return source
	}
	return nil
}

func (s *Scheduler) NumWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

func (s *Scheduler) NumIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idle)
}

func (s *Scheduler) NumLoaders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}
