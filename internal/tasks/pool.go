package tasks

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/data-analyst/backend/pkg/logger"
)

type job struct {
	name string
	fn   func(ctx context.Context)
}

// Pool runs detached best-effort work on a bounded set of workers. Jobs are
// fire-and-forget: nothing awaits their outcome, failures are only logged,
// and a full queue drops the job rather than blocking or failing the caller.
// Jobs get a background context on purpose; the request that spawned them
// has usually already returned.
type Pool struct {
	queue chan job
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool

	onDrop func(name string)
}

func NewPool(workers, queueLen int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueLen <= 0 {
		queueLen = 64
	}

	p := &Pool{queue: make(chan job, queueLen)}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info("Task pool started", zap.Int("workers", workers), zap.Int("queue_len", queueLen))
	return p
}

// OnDrop installs a hook called whenever a job is dropped, used for metrics.
func (p *Pool) OnDrop(fn func(name string)) {
	p.onDrop = fn
}

// Submit enqueues a job without blocking. It reports false when the job was
// dropped because the pool is stopped or the queue is full.
func (p *Pool) Submit(name string, fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.drop(name, "pool stopped")
		return false
	}

	select {
	case p.queue <- job{name: name, fn: fn}:
		p.mu.Unlock()
		return true
	default:
		p.mu.Unlock()
		p.drop(name, "queue full")
		return false
	}
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	logger.Info("Task pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for j := range p.queue {
		p.run(id, j)
	}
}

func (p *Pool) run(workerID int, j job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked",
				zap.String("task", j.name),
				zap.Int("worker", workerID),
				zap.Any("panic", r),
			)
		}
	}()

	logger.Debug("Task started", zap.String("task", j.name), zap.Int("worker", workerID))
	j.fn(context.Background())
	logger.Debug("Task finished", zap.String("task", j.name))
}

func (p *Pool) drop(name, reason string) {
	logger.Warn("Task dropped", zap.String("task", name), zap.String("reason", reason))
	if p.onDrop != nil {
		p.onDrop(name)
	}
}
