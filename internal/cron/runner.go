package cronrunner

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner schedules named background jobs. Every job gets the process base
// context, so a shutdown signal reaches jobs already in flight.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, r.wrap(name, job))
}

// wrap pins the base context to the job and keeps a panicking job from
// taking down the scheduler goroutine.
func (r *Runner) wrap(name string, job func(context.Context)) func() {
	return func() {
		ctx := context.Background()
		if r != nil && r.baseCtx != nil {
			ctx = r.baseCtx
		}
		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				if r != nil && r.logger != nil {
					r.logger.Error("cron job panicked",
						zap.String("job", name),
						zap.Any("panic", rec),
					)
				}
				return
			}
			if r != nil && r.logger != nil {
				r.logger.Debug("cron job finished",
					zap.String("job", name),
					zap.Duration("duration", time.Since(start)),
				)
			}
		}()
		job(ctx)
	}
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

// Stop waits for jobs already running to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
