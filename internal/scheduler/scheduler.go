package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/config"
	obsmetrics "github.com/smallbiznis/ledgercore/internal/observability/metrics"
	reconciledomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobAutoReconcile = "auto_reconcile"

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	ReconcileSvc reconciledomain.Service
	Metrics      *obsmetrics.SchedulerMetrics  `optional:"true"`
	Config       Config                        `optional:"true"`
	Reconcile    *config.ReconcileConfigHolder `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	reconcileSvc reconciledomain.Service
	reconcileCfg *config.ReconcileConfigHolder
	metrics      *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.ReconcileSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		reconcileSvc: p.ReconcileSvc,
		reconcileCfg: p.Reconcile,
		metrics:      p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick retries from scratch.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{jobAutoReconcile, s.AutoReconcileJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		if s.isJobPaused(job.Name) {
			s.log.Debug("job paused by reconcile config", zap.String("job", job.Name))
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// isJobPaused rereads the reconcile config on every tick so a reload takes
// effect without a restart.
func (s *Scheduler) isJobPaused(jobName string) bool {
	if jobName != jobAutoReconcile || s.reconcileCfg == nil {
		return false
	}
	return s.reconcileCfg.Get().PauseAutoReconcile
}

// AutoReconcileJob runs the matcher for every tenant that holds unmatched
// vouchers. A failing tenant is logged and does not stop the others.
func (s *Scheduler) AutoReconcileJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobAutoReconcile)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	tenants, err := s.reconcileSvc.TenantsWithOpenVouchers(ctx)
	if err != nil {
		return err
	}

	var failures error
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.reconcileSvc.RunAutoReconcile(s.withLogContext(ctx, tenantID), tenantID)
		run.AddProcessed(result.Proposed)
		s.metrics.AddBatchProcessed(jobAutoReconcile, "matches", result.Proposed)
		s.metrics.AddAccountsSkipped(jobAutoReconcile, countSkipped(result))
		if err != nil {
			s.logSchedulerError(ctx, run, "auto reconcile failed", jobAutoReconcile, tenantID, err,
				zap.String("reconcile_run_id", result.RunID),
			)
			failures = errors.Join(failures, fmt.Errorf("tenant %s: %w", tenantID, err))
		}
	}
	return failures
}

func countSkipped(result reconciledomain.RunResult) int {
	skipped := 0
	for _, account := range result.Accounts {
		if account.Status == reconciledomain.AccountRunSkipped {
			skipped++
		}
	}
	return skipped
}
