package sweeper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatflowers/billing/internal/app/service/ledger"
	"github.com/fatflowers/billing/pkg/config"
	"github.com/fatflowers/billing/pkg/logctx"
	"github.com/fatflowers/billing/pkg/tool"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const pageSize = 100

// Runner sweeps every linked, non-cancelled subscription on an interval. Processor
// calls are bounded by a worker limit and a rate limiter.
type Runner struct {
	cfg     config.SweeperConfig
	store   ledger.Store
	sweeper *Service
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg *config.Config, store ledger.Store, sweeper *Service, log *zap.SugaredLogger) *Runner {
	sc := cfg.Sweeper
	if sc.Concurrency <= 0 {
		sc.Concurrency = 1
	}
	limit := rate.Inf
	burst := sc.Concurrency
	if sc.RatePerSecond > 0 {
		limit = rate.Limit(sc.RatePerSecond)
	}
	return &Runner{
		cfg:     sc,
		store:   store,
		sweeper: sweeper,
		limiter: rate.NewLimiter(limit, burst),
		log:     log,
	}
}

// RunOnce sweeps all candidates and returns the total backfilled. Failures on
// one subscription are logged and do not stop the pass.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	ctx = logctx.WithTraceID(ctx, "sweep-"+tool.GenerateUUIDV7())
	lg := logctx.FromCtx(ctx, r.log)
	start := time.Now()

	var total, failed atomic.Int64
	afterID := ""
	for {
		subs, err := r.store.ListSweepableSubscriptions(ctx, afterID, pageSize)
		if err != nil {
			return int(total.Load()), err
		}
		if len(subs) == 0 {
			break
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for _, sub := range subs {
			g.Go(func() error {
				if err := r.limiter.Wait(gctx); err != nil {
					return err
				}
				n, err := r.sweeper.SweepSubscription(gctx, sub, r.cfg.MaxInvoices, TriggerPeriodic)
				if err != nil {
					failed.Add(1)
					lg.Warnw("periodic_sweep_failed", "company_id", sub.CompanyID, "err", err)
					return nil
				}
				total.Add(int64(n))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(total.Load()), err
		}
		afterID = subs[len(subs)-1].ID
		if len(subs) < pageSize {
			break
		}
	}
	lg.Infow("periodic_sweep_done", "backfilled", total.Load(), "failed", failed.Load(), "elapsed_ms", time.Since(start).Milliseconds())
	return int(total.Load()), nil
}

func (r *Runner) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		r.log.Infow("periodic sweeper disabled")
		return
	}
	ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(r.cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
					r.log.Errorw("periodic sweep aborted", "err", err)
				}
			}
		}
	}()
	r.log.Infow("periodic sweeper started", "interval", r.cfg.Interval, "concurrency", r.cfg.Concurrency)
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func registerRunner(lc fx.Lifecycle, r *Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			r.Start(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})
}
