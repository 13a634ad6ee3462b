package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type GeocodeJob struct {
	ID  int64
	Lat float64
	Lng float64
}

type GeocodeResult struct {
	ID      int64
	Address string
	Err     error
}

// GeocodePool resolves addresses with a fixed number of workers. Results are
// delivered on Results() until the pool is stopped.
type GeocodePool struct {
	geocoder ReverseGeocoder
	jobs     chan GeocodeJob
	results  chan GeocodeResult
	poolSize int
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	queued    sync.WaitGroup
	closeOnce sync.Once
}

func NewGeocodePool(geocoder ReverseGeocoder, poolSize int, timeout time.Duration, logger *slog.Logger) *GeocodePool {
	if poolSize <= 0 {
		poolSize = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeocodePool{
		geocoder: geocoder,
		jobs:     make(chan GeocodeJob, 100),
		results:  make(chan GeocodeResult, 100),
		poolSize: poolSize,
		timeout:  timeout,
		logger:   logger,
	}
}

func (p *GeocodePool) Results() <-chan GeocodeResult {
	return p.results
}

// Start launches the workers. They run until Stop or ctx is done.
func (p *GeocodePool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.poolSize; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker(ctx)
		}()
	}
}

// Stop cancels the workers, waits for them and closes the results channel.
func (p *GeocodePool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	// Workers are gone and Submit is closed, so the queue only shrinks.
	for len(p.jobs) > 0 {
		<-p.jobs
		p.queued.Done()
	}
	p.closeOnce.Do(func() { close(p.results) })
}

// Drain stops accepting jobs, gives the queued ones up to timeout to finish
// and then stops the pool. It reports whether every queued job completed.
func (p *GeocodePool) Drain(timeout time.Duration) bool {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.queued.Wait()
		close(done)
	}()

	drained := true
	select {
	case <-done:
	case <-time.After(timeout):
		drained = false
		p.logger.Warn("geocode drain timed out, dropping queued jobs", slog.Int("queued", len(p.jobs)))
	}
	p.Stop()
	return drained
}

// Run is Start followed by Stop once ctx is done.
func (p *GeocodePool) Run(ctx context.Context) {
	p.Start(ctx)
	<-ctx.Done()
	p.Stop()
}

// Submit queues a job without blocking. It reports false when the queue is
// full or the pool is not running; the address then simply stays empty.
func (p *GeocodePool) Submit(job GeocodeJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return false
	}
	p.queued.Add(1)
	select {
	case p.jobs <- job:
		return true
	default:
		p.queued.Done()
		p.logger.Warn("geocode queue full, job dropped", slog.Int64("id", job.ID))
		return false
	}
}

func (p *GeocodePool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.processJob(ctx, job)
			p.queued.Done()
		}
	}
}

func (p *GeocodePool) processJob(ctx context.Context, job GeocodeJob) {
	jobCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr, err := p.geocoder.ReverseGeocode(jobCtx, job.Lat, job.Lng)
	if err != nil {
		p.logger.Debug("reverse geocode failed", slog.Int64("id", job.ID), slog.Any("error", err))
	}

	select {
	case p.results <- GeocodeResult{ID: job.ID, Address: addr, Err: err}:
	case <-ctx.Done():
	}
}
