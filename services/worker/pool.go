package worker

import (
	"sync"
	"time"
)

// pool runs comparison lookups with bounded concurrency and a minimum
// interval between job starts, so parallel lookups never hammer the
// remote marketplace faster than a single sequential scraper would.
type pool struct {
	semaphore   chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	rateLimit   time.Duration
	lastRequest time.Time
}

func newPool(maxWorkers int, rateLimit time.Duration) *pool {
	return &pool{
		semaphore:   make(chan struct{}, maxWorkers),
		rateLimit:   rateLimit,
		lastRequest: time.Now().Add(-rateLimit),
	}
}

// submit enqueues a job, blocking while all workers are busy.
func (p *pool) submit(job func()) {
	p.wg.Add(1)
	p.semaphore <- struct{}{}

	go func() {
		defer p.wg.Done()
		defer func() { <-p.semaphore }()

		p.enforceRateLimit()
		job()
	}()
}

// wait blocks until all submitted jobs have completed.
func (p *pool) wait() {
	p.wg.Wait()
}

func (p *pool) enforceRateLimit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := time.Since(p.lastRequest)
	if elapsed < p.rateLimit {
		time.Sleep(p.rateLimit - elapsed)
	}
	p.lastRequest = time.Now()
}
