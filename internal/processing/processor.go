// Package processing runs best-effort background work, such as removing
// finished priority jobs, on a small bounded pool of goroutines.
package processing

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is a named unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Processor consumes Jobs on a fixed number of workers.
type Processor struct {
	queue   chan Job
	workers int
	logger  *log.Entry
	wg      sync.WaitGroup
	once    sync.Once
}

// New builds a Processor with queue capacity tied to worker count.
func New(workers int, logger *log.Entry) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Processor{
		queue:   make(chan Job, workers*16),
		workers: workers,
		logger:  logger,
	}
}

// Start launches the workers. They exit when ctx is cancelled; queued jobs
// are then abandoned. Calling Start more than once has no effect.
func (p *Processor) Start(ctx context.Context) {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
	})
}

// Wait blocks until every worker has exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Submit queues a job. It returns false and drops the job when the queue is
// full.
func (p *Processor) Submit(name string, run func(ctx context.Context) error) bool {
	select {
	case p.queue <- Job{Name: name, Run: run}:
		return true
	default:
		p.logger.WithField("job", name).Warn("processor queue full, dropping job")
		return false
	}
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	if err := job.Run(ctx); err != nil {
		p.logger.WithError(err).WithField("job", job.Name).Warn("background job failed")
	}
}
