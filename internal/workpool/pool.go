// Package workpool implements the crawl's work-stealing executor: a fixed
// pool of workers, each with a local deque, that steal from one another
// when idle and park once there is nothing left to do anywhere. This
// model is chosen over a single global queue because description of one
// node frequently spawns many children, and locally-enqueued children
// exhibit cache locality for the describer (same flake evaluation state
// already warm).
package workpool

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
)

// Handle is passed to a Handler so it can enqueue newly-discovered work
// onto the worker that found it, rather than placing it on a randomly
// chosen worker like an external Submit does.
type Handle interface {
	Submit(path string)
}

// Handler processes one work unit. It receives a Handle so it can enqueue
// dependency paths discovered while handling path.
type Handler func(ctx context.Context, path string, h Handle)

// Pool is a fixed set of worker goroutines sharing a work-stealing
// dispatch. The zero value is not usable; construct with New.
type Pool struct {
	workers []*worker
	handler Handler

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	parked  int
	started bool
}

type worker struct {
	id   int
	pool *Pool
	dq   deque
}

// Submit implements Handle for a worker's own queue.
func (w *worker) Submit(path string) {
	w.pool.mu.Lock()
	w.pool.pending++
	w.pool.mu.Unlock()

	w.dq.pushBack(path)
	w.pool.wake()
}

// New creates a pool of n workers (n <= 0 defaults to runtime.NumCPU())
// that will invoke handler for every submitted path.
func New(n int, handler Handler) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{handler: handler}
	p.cond = sync.NewCond(&p.mu)
	p.workers = make([]*worker, n)
	for i := range p.workers {
		p.workers[i] = &worker{id: i, pool: p}
	}
	return p
}

// Submit enqueues path for processing on the local queue of a randomly
// chosen worker. Used by callers outside the pool (the discovery pipeline
// seeding top-level paths); a Handler running inside a worker should use
// the Handle passed to it instead, to keep children local to the worker
// that found them.
func (p *Pool) Submit(path string) {
	p.mu.Lock()
	p.pending++
	n := len(p.workers)
	target := rand.IntN(n)
	p.mu.Unlock()

	p.workers[target].dq.pushBack(path)
	p.wake()
}

// Hold marks one unit of work pending without enqueuing anything, so the
// pool will not consider itself drained. Pair with a matching Release once
// the caller has finished seeding work that Submit calls alone could race:
// workers may start parking before the first Submit lands, and without a
// Hold in place they could see "nothing pending, nobody working" and
// terminate before any seed is enqueued.
func (p *Pool) Hold() {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()
}

// Release undoes a Hold, waking parked workers so they can re-check for
// termination now that seeding (or some other held-open phase) has ended.
func (p *Pool) Release() {
	p.mu.Lock()
	p.pending--
	done := p.pending == 0
	p.mu.Unlock()
	if done {
		p.wake()
	}
}

func (p *Pool) wake() {
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// steal samples peers in random order looking for work, so that many
// simultaneously-idle workers don't all hammer worker 0 first.
func (w *worker) steal() (string, bool) {
	peers := w.pool.workers
	n := len(peers)
	start := rand.IntN(n)
	for i := 0; i < n; i++ {
		peer := peers[(start+i)%n]
		if peer.id == w.id {
			continue
		}
		if path, ok := peer.dq.popFront(); ok {
			return path, true
		}
	}
	return "", false
}

// RunUntilDrained blocks until every submitted unit (including ones
// submitted by handlers while running) has been processed and every
// worker is idle. Unless the pool is held open with Hold, it must be
// called after the run's initial Submit calls, since with nothing pending
// the workers exit at once; further Submits racing in concurrently (e.g.
// from a discovery pipeline still streaming Finder results) are tolerated.
func (p *Pool) RunUntilDrained(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(len(p.workers))
	for _, w := range p.workers {
		go func(w *worker) {
			defer wg.Done()
			p.runWorker(ctx, w)
		}(w)
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, w *worker) {
	for {
		if ctx.Err() != nil {
			return
		}

		path, ok := w.dq.popBack()
		if !ok {
			path, ok = w.steal()
		}
		if ok {
			p.handler(ctx, path, w)
			p.mu.Lock()
			p.pending--
			done := p.pending == 0
			p.mu.Unlock()
			if done {
				p.wake()
			}
			continue
		}

		if p.parkAndMaybeExit(w) {
			return
		}
	}
}

// parkAndMaybeExit marks w idle and waits for either new work or pool-wide
// termination. It returns true when the whole pool should exit: every
// worker parked with nothing pending anywhere.
func (p *Pool) parkAndMaybeExit(w *worker) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.parked++
	for {
		if p.parked == len(p.workers) && p.pending == 0 {
			p.cond.Broadcast() // wake every other parked worker so they exit too
			return true
		}
		// Someone might have pushed work onto w's own queue, or stolen
		// work might now be available; check before re-waiting.
		if w.dq.len() > 0 {
			p.parked--
			return false
		}
		p.cond.Wait()
		if p.parked == len(p.workers) && p.pending == 0 {
			return true
		}
		if w.dq.len() > 0 || p.anyWorkAvailable(w) {
			p.parked--
			return false
		}
	}
}

func (p *Pool) anyWorkAvailable(self *worker) bool {
	for _, peer := range p.workers {
		if peer.id != self.id && peer.dq.len() > 0 {
			return true
		}
	}
	return false
}
