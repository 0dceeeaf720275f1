package scheduler

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

// registerLifecycle ties the reconcile loop to the application. With the
// scheduler disabled nothing is started; a paused reconcile config keeps the
// loop ticking but skips the job. Stop waits for the running tick to return.
func registerLifecycle(lc fx.Lifecycle, cfg Config, sched *Scheduler, log *zap.Logger) {
	log = log.Named("scheduler")
	if !cfg.Enabled {
		log.Info("scheduler disabled; run `ledgercore reconcile` to match vouchers manually")
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("scheduler started",
				zap.Duration("interval", cfg.RunInterval),
				zap.Duration("job_timeout", cfg.JobTimeout),
				zap.Strings("jobs", cfg.EnabledJobs),
			)
			go func() {
				defer close(done)
				sched.RunForever(loopCtx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				log.Info("scheduler stopped")
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}
