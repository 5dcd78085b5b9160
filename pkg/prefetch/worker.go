package prefetch

import (
	"context"
	"runtime"
	"sync"

	"github.com/tauraamui/dragonreel/pkg/log"
)

type workSource interface {
	GetWorkOrReturnToPool(*Worker) Work
}

// Worker executes one item at a time on its own OS thread. New work is
// handed over through a single slot, never queued.
type Worker struct {
	id       int
	source   workSource
	slot     chan Work
	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan interface{}

	// mu makes handing over work and exiting mutually exclusive, an item
	// accepted into the slot is always either executed or abandoned.
	mu     sync.Mutex
	exited bool
}

func NewWorker(id int, source workSource) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		id:       id,
		source:   source,
		slot:     make(chan Work, 1),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan interface{}),
	}
}

func (w *Worker) ID() int { return w.id }

func (w *Worker) Start() {
	go w.run()
}

// QueueWork hands work to an idle worker. A worker which already holds an
// item refuses the new one, abandons it and reports false.
func (w *Worker) QueueWork(work Work) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exited || w.ctx.Err() != nil {
		work.Abandon()
		return false
	}

	select {
	case w.slot <- work:
		return true
	default:
		log.Error("Worker [%d] was handed work while busy, abandoning item...", w.id)
		work.Abandon()
		return false
	}
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.stopping)

	for {
		select {
		case <-w.ctx.Done():
			w.mu.Lock()
			w.exited = true
			w.abandonSlot()
			w.mu.Unlock()
			return
		case work := <-w.slot:
			w.drain(work)
		}
	}
}

// drain keeps executing for as long as the scheduler has work, by the time
// it returns the scheduler has already put this worker back on its idle list.
func (w *Worker) drain(work Work) {
	for work != nil {
		work.Execute()
		if w.ctx.Err() != nil {
			return
		}
		work = w.source.GetWorkOrReturnToPool(w)
	}
}

func (w *Worker) abandonSlot() {
	select {
	case work := <-w.slot:
		log.Debug("Worker [%d] abandoning unstarted work on shutdown...", w.id)
		work.Abandon()
	default:
	}
}

func (w *Worker) Stop() {
	w.cancel()
}

func (w *Worker) Wait() {
	<-w.stopping
}
