package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ticker enqueues the same job on a fixed interval until its context ends.
// It drives recurring maintenance work such as the overdue-loan sweep.
type Ticker struct {
	queue    *Queue
	jobType  string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTicker builds a ticker bound to the queue.
func NewTicker(queue *Queue, jobType string, interval time.Duration, logger *zap.Logger) *Ticker {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{queue: queue, jobType: jobType, interval: interval, logger: logger}
}

// Start launches the tick loop. The first job fires after one interval.
func (t *Ticker) Start(ctx context.Context) {
	if t.done != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		seq := 0
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				seq++
				job := Job{
					ID:       fmt.Sprintf("%s-%d", t.jobType, seq),
					Type:     t.jobType,
					Enqueued: now.UTC(),
				}
				if err := t.queue.Enqueue(job); err != nil {
					t.logger.Sugar().Warnw("failed to enqueue periodic job",
						"type", t.jobType, "error", err)
				}
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit.
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}
