package rigid3d

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// ThreadDispatcher runs per-step parallel-for workloads (the solver's
// prestep, warm-start and iteration passes) across a worker pool, spec.md
// §5's concurrency model. Grounded on the worker-pool/atomic-counter
// pattern in the pack's 0x5844-physics2D engine (its WorkerPool drains a
// channel of queued tasks with atomic active/total job counters); this
// dispatcher simplifies that to the narrower "parallel for" shape the
// solver's bundle loop actually needs: workers pull increasing job indices
// off one shared atomic counter instead of draining a persistent queue,
// since every step's jobs are known up front.
//
// Deterministic forces every dispatch onto the calling goroutine, the
// Open Question resolution recorded in DESIGN.md: reproducible replays and
// tests need a single fixed iteration order.
type ThreadDispatcher struct {
	WorkerCount   int
	Deterministic bool
}

// NewThreadDispatcher returns a dispatcher sized to the host's available
// parallelism, or to workerCount if positive.
func NewThreadDispatcher(workerCount int) *ThreadDispatcher {
	if workerCount <= 0 {
		workerCount = runtime.GOMAXPROCS(0)
	}
	return &ThreadDispatcher{WorkerCount: workerCount}
}

// DispatchWorkers calls body(worker) once per worker id in [0, WorkerCount),
// concurrently unless Deterministic is set.
func (d *ThreadDispatcher) DispatchWorkers(body func(worker int)) {
	if d.WorkerCount <= 1 {
		body(0)
		return
	}
	if d.Deterministic {
		for w := 0; w < d.WorkerCount; w++ {
			body(w)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(d.WorkerCount)
	for w := 0; w < d.WorkerCount; w++ {
		go func(worker int) {
			defer wg.Done()
			body(worker)
		}(w)
	}
	wg.Wait()
}

// For runs body(worker, job) for every job in [0, jobCount), distributing
// jobs across workers by having each worker pull the next index off a
// shared atomic counter. Order across jobs is unspecified when not
// Deterministic; callers needing a commutative reduction (e.g. velocity
// scatter into disjoint-by-construction batches) rely on that, never on
// completion order.
func (d *ThreadDispatcher) For(jobCount int, body func(worker, job int)) {
	if jobCount <= 0 {
		return
	}
	if d.Deterministic || d.WorkerCount <= 1 {
		for job := 0; job < jobCount; job++ {
			body(0, job)
		}
		return
	}

	var next int64
	var wg sync.WaitGroup
	workers := d.WorkerCount
	if workers > jobCount {
		workers = jobCount
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for {
				job := int(atomic.AddInt64(&next, 1)) - 1
				if job >= jobCount {
					return
				}
				body(worker, job)
			}
		}(w)
	}
	wg.Wait()
}
