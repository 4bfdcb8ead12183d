// Package background runs best-effort work off the request path, such
// as table backups after a successful allocation.
package background

import (
	"sync"

	"go.uber.org/zap"
)

// Worker executes submitted funcs one at a time on a single goroutine.
type Worker struct {
	jobs chan func()
	log  *zap.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewWorker starts a worker with a bounded queue of size queueLen.
func NewWorker(queueLen int, log *zap.Logger) *Worker {
	w := &Worker{
		jobs: make(chan func(), queueLen),
		log:  log,
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	for job := range w.jobs {
		job()
	}
}

// Submit enqueues fn without blocking. When the queue is full the job
// is dropped and logged; callers must treat submitted work as best
// effort.
func (w *Worker) Submit(fn func()) {
	select {
	case w.jobs <- fn:
	default:
		w.log.Warn("background queue full, dropping job")
	}
}

// Close stops accepting work and waits for queued jobs to finish.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.jobs) })
	<-w.done
}
