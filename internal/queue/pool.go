package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Handler runs one job. A returned error requeues the job until MaxAttempts
// is reached; handlers that settle failures themselves return nil.
type Handler func(ctx context.Context, job Job) error

// PoolConfig bounds the pool. JobTimeout caps one handler run; zero means
// no cap.
type PoolConfig struct {
	Workers     int
	RatePerSec  float64
	MaxAttempts int
	PollTimeout time.Duration
	JobTimeout  time.Duration
}

// Pool runs Workers goroutines against one queue. All workers share a
// single rate limiter, so RatePerSec bounds the pool as a whole.
type Pool struct {
	q       *Queue
	handler Handler
	cfg     PoolConfig
	limiter *rate.Limiter
}

func NewPool(q *Queue, handler Handler, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}
	return &Pool{q: q, handler: handler, cfg: cfg, limiter: rate.NewLimiter(limit, burst)}
}

// Run blocks until ctx is cancelled. It recovers jobs orphaned by a previous
// run before starting the workers.
func (p *Pool) Run(ctx context.Context) error {
	if n, err := p.q.Recover(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to recover in-flight jobs")
	} else if n > 0 {
		log.Info().Int("jobs", n).Msg("Recovered in-flight jobs")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			p.work(gctx, worker)
			return nil
		})
	}
	log.Info().Int("workers", p.cfg.Workers).Float64("rate_per_sec", p.cfg.RatePerSec).Msg("Worker pool started")
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		r, err := p.q.Reserve(ctx, p.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Int("worker", worker).Msg("Failed to reserve job")
			sleep(ctx, time.Second)
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			// shutting down; the job stays in flight and is recovered on restart
			return
		}
		p.execute(ctx, worker, r)
	}
}

// execute runs a reserved job to completion. Shutdown does not cancel a
// running handler; Run returns once it has settled.
func (p *Pool) execute(ctx context.Context, worker int, r *Reserved) {
	settleCtx := context.WithoutCancel(ctx)
	jobCtx := settleCtx
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(settleCtx, p.cfg.JobTimeout)
		defer cancel()
	}

	err := p.safeHandle(jobCtx, r.Job)

	if err == nil {
		if err := p.q.Ack(settleCtx, r); err != nil {
			log.Error().Err(err).Str("job_id", r.ID).Msg("Failed to ack job")
		}
		return
	}

	logger := log.With().Err(err).Int("worker", worker).Str("job_id", r.ID).Str("job", r.Name).Int("attempt", r.Attempts+1).Logger()
	if r.Attempts+1 < p.cfg.MaxAttempts {
		logger.Warn().Msg("Job failed, requeueing")
		if err := p.q.Requeue(settleCtx, r); err != nil {
			logger.Error().AnErr("requeue_error", err).Msg("Failed to requeue job")
		}
		return
	}

	logger.Error().Msg("Job failed permanently, dropping")
	if err := p.q.Ack(settleCtx, r); err != nil {
		logger.Error().AnErr("ack_error", err).Msg("Failed to drop job")
	}
}

func (p *Pool) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return p.handler(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
