// Package jobs runs periodic background work for the server process.
package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is one periodic unit of background work
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a plain function to Task
type TaskFunc func(ctx context.Context) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Worker runs a Task every interval until stopped. Stop may be called more
// than once, and before Start has ever run.
type Worker struct {
	name     string
	task     Task
	interval time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
	started  chan struct{}
	startMu  sync.Mutex
}

// NewWorker creates a new Worker instance. name only appears in logs.
func NewWorker(name string, task Task, interval time.Duration) *Worker {
	return &Worker{
		name:     name,
		task:     task,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		started:  make(chan struct{}),
	}
}

// Start blocks, running the task on every tick, until Stop is called or
// ctx is cancelled. A second call returns immediately.
func (w *Worker) Start(ctx context.Context) {
	w.startMu.Lock()
	select {
	case <-w.started:
		w.startMu.Unlock()
		return
	default:
		close(w.started)
	}
	w.startMu.Unlock()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s: started with interval %v", w.name, w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s: stopped, context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s: stopped, stop signal received", w.name)
			return
		case <-ticker.C:
			if err := w.task.Run(ctx); err != nil {
				log.Printf("%s: %v", w.name, err)
			}
		}
	}
}

// Stop signals the loop and waits for the current run to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })

	w.startMu.Lock()
	select {
	case <-w.started:
	default:
		// never started; make any later Start return at once
		close(w.started)
		w.startMu.Unlock()
		return
	}
	w.startMu.Unlock()

	<-w.doneChan
	log.Printf("%s: shutdown complete", w.name)
}
