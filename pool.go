package waveline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/solstice-audio/waveline/internal/werr"
)

// Config adjusts a running Pool's scheduling and memory parameters; set via
// Tune.
type Config struct {
	MaxConcurrent int   // 0 leaves the current value unchanged
	MemoryBudget  int64 // per-worker byte budget; 0 leaves the current value unchanged
}

const defaultMaxConcurrent = 4
const defaultMemoryBudget = 64 << 20 // 64 MiB per worker

// Pool schedules waveform jobs onto a bounded number of concurrently running
// workers. Submit never blocks the caller; jobs queue until a worker slot
// frees up. The zero value is not usable — construct with NewPool.
type Pool struct {
	mu            sync.Mutex
	maxConcurrent int
	memoryBudget  int64
	nextID        uint64

	counters poolCounters

	sem   chan struct{}
	group *errgroup.Group
	ctx   context.Context
	stop  context.CancelFunc
}

// NewPool constructs a Pool with the given starting concurrency and
// per-worker memory budget; zero values fall back to the package defaults.
func NewPool(maxConcurrent int, memoryBudget int64) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if memoryBudget <= 0 {
		memoryBudget = defaultMemoryBudget
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Pool{
		maxConcurrent: maxConcurrent,
		memoryBudget:  memoryBudget,
		sem:           make(chan struct{}, maxConcurrent),
		group:         group,
		ctx:           ctx,
		stop:          cancel,
	}
}

// Submit queues job for processing and returns a handle immediately. Work
// starts as soon as a worker slot is free; until then the job sits in the
// pool's queue, reflected in Stats().QueuedJobs.
func (p *Pool) Submit(job JobDescriptor) *JobHandle {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()

	handle := &JobHandle{
		id:       id,
		progress: make(chan ProgressEvent, 4),
		done:     make(chan struct{}),
		cancel:   make(chan struct{}),
	}

	p.counters.jobQueued()
	p.group.Go(func() error {
		defer p.counters.jobDequeued()

		sem := p.currentSem()
		select {
		case sem <- struct{}{}:
		case <-p.ctx.Done():
			handle.resultErr = werr.ErrCancelled
			close(handle.progress)
			close(handle.done)
			return nil
		}
		defer func() { <-sem }()

		w := newWorker(handle, job, newMemoryWatchdog(p.currentMemoryBudget()), &p.counters)
		w.run()
		return nil
	})

	return handle
}

// Cancel requests cooperative cancellation of handle's job. Safe to call more
// than once and safe to call after the job has already resolved.
func (p *Pool) Cancel(handle *JobHandle) {
	select {
	case <-handle.cancel:
	default:
		close(handle.cancel)
	}
}

// Stats returns a snapshot of the pool's current activity.
func (p *Pool) Stats() PoolStats {
	active, queued, completed, failed, bytesInFlight, peakBytesInUse := p.counters.snapshot()
	return PoolStats{
		ActiveWorkers:  active,
		QueuedJobs:     queued,
		CompletedJobs:  completed,
		FailedJobs:     failed,
		BytesInFlight:  bytesInFlight,
		PeakBytesInUse: peakBytesInUse,
	}
}

// Tune adjusts MaxConcurrent and MemoryBudget at runtime. A MaxConcurrent
// change takes effect for jobs submitted after the call; jobs already
// occupying a semaphore slot are unaffected. A zero field leaves that
// parameter unchanged.
func (p *Pool) Tune(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cfg.MaxConcurrent > 0 && cfg.MaxConcurrent != p.maxConcurrent {
		p.maxConcurrent = cfg.MaxConcurrent
		p.sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	if cfg.MemoryBudget > 0 {
		p.memoryBudget = cfg.MemoryBudget
	}
}

func (p *Pool) currentMemoryBudget() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memoryBudget
}

func (p *Pool) currentSem() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sem
}

// Close resolves jobs still waiting for a worker slot with ErrCancelled
// (their progress channel closes without a final event) and waits for
// running jobs to finish. Submit must not be called after Close returns.
func (p *Pool) Close() {
	p.stop()
	p.group.Wait()
}
