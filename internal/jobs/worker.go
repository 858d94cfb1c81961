package jobs

import (
	"context"
	"log"
	"time"
)

// Sweep is one unit of background maintenance, run repeatedly on a timer.
type Sweep interface {
	Sweep(ctx context.Context) error
}

// Worker drives a maintenance sweep on a fixed interval until stopped. The
// embedding store relies on it to stay consistent with the catalog, so a
// failed pass is logged and retried on the next tick rather than aborting.
type Worker struct {
	sweep    Sweep
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWorker creates a worker that runs sweep every interval.
func NewWorker(sweep Sweep, interval time.Duration) *Worker {
	return &Worker{
		sweep:    sweep,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until the context ends or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("maintenance worker started (interval %v)", w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("maintenance worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Println("maintenance worker stopped: stop signal received")
			return
		case <-ticker.C:
			if err := w.sweep.Sweep(ctx); err != nil {
				log.Printf("sweep failed: %v", err)
			}
		}
	}
}

// Stop halts the loop and waits for the current pass to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	log.Println("maintenance worker shutdown complete")
}
