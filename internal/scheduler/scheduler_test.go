package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/config"
	obsmetrics "github.com/smallbiznis/ledgercore/internal/observability/metrics"
	reconciledomain "github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

type mockReconcileSvc struct {
	mock.Mock
	reconciledomain.Service
}

func (m *mockReconcileSvc) TenantsWithOpenVouchers(ctx context.Context) ([]snowflake.ID, error) {
	args := m.Called(ctx)
	tenants, _ := args.Get(0).([]snowflake.ID)
	return tenants, args.Error(1)
}

func (m *mockReconcileSvc) RunAutoReconcile(ctx context.Context, tenantID snowflake.ID) (reconciledomain.RunResult, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(reconciledomain.RunResult), args.Error(1)
}

func newTestScheduler(t *testing.T, svc reconciledomain.Service) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "ledgercore", Environment: "test"})
	s, err := New(Params{
		Log:          zap.NewNop(),
		Clock:        clock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		ReconcileSvc: svc,
		Metrics:      m,
	})
	require.NoError(t, err)
	return s, registry
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAutoReconcileJobRunsEveryTenant(t *testing.T) {
	svc := &mockReconcileSvc{}
	svc.On("TenantsWithOpenVouchers", mock.Anything).Return([]snowflake.ID{1, 2}, nil)
	svc.On("RunAutoReconcile", mock.Anything, snowflake.ID(1)).Return(reconciledomain.RunResult{
		RunID:    "r1",
		Proposed: 3,
		Accounts: []reconciledomain.AccountRunResult{
			{Status: reconciledomain.AccountRunCompleted, Proposed: 3},
			{Status: reconciledomain.AccountRunSkipped},
		},
	}, nil)
	svc.On("RunAutoReconcile", mock.Anything, snowflake.ID(2)).Return(reconciledomain.RunResult{RunID: "r2", Proposed: 1}, nil)

	s, registry := newTestScheduler(t, svc)
	require.NoError(t, s.RunOnce(context.Background()))

	svc.AssertExpectations(t)
	labels := map[string]string{"service": "ledgercore", "env": "test", "job": jobAutoReconcile}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgercore_scheduler_job_runs_total", labels))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgercore_reconcile_accounts_skipped_total", labels))

	processed := map[string]string{"service": "ledgercore", "env": "test", "job": jobAutoReconcile, "resource": "matches"}
	assert.Equal(t, float64(4), getCounterValue(t, registry, "ledgercore_scheduler_batch_processed_total", processed))
}

func TestAutoReconcileJobContinuesAfterTenantFailure(t *testing.T) {
	svc := &mockReconcileSvc{}
	svc.On("TenantsWithOpenVouchers", mock.Anything).Return([]snowflake.ID{1, 2}, nil)
	svc.On("RunAutoReconcile", mock.Anything, snowflake.ID(1)).
		Return(reconciledomain.RunResult{}, reconciledomain.ErrConcurrentUpdate)
	svc.On("RunAutoReconcile", mock.Anything, snowflake.ID(2)).
		Return(reconciledomain.RunResult{Proposed: 2}, nil)

	s, registry := newTestScheduler(t, svc)
	err := s.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, reconciledomain.ErrConcurrentUpdate)
	svc.AssertNumberOfCalls(t, "RunAutoReconcile", 2)

	errorLabels := map[string]string{
		"service": "ledgercore",
		"env":     "test",
		"job":     jobAutoReconcile,
		"reason":  obsmetrics.SchedulerJobReasonConflict,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgercore_scheduler_job_errors_total", errorLabels))
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	s, registry := newTestScheduler(t, &mockReconcileSvc{})

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "ledgercore", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgercore_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "ledgercore",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ledgercore_scheduler_job_errors_total", errorLabels))
}

func TestDisabledJobIsSkipped(t *testing.T) {
	svc := &mockReconcileSvc{}
	s, _ := newTestScheduler(t, svc)
	s.cfg.EnabledJobs = []string{"something_else"}

	require.NoError(t, s.RunOnce(context.Background()))
	svc.AssertNotCalled(t, "TenantsWithOpenVouchers", mock.Anything)
}

func TestPausedReconcileConfigSkipsJob(t *testing.T) {
	svc := &mockReconcileSvc{}
	svc.On("TenantsWithOpenVouchers", mock.Anything).Return([]snowflake.ID{}, nil)
	s, _ := newTestScheduler(t, svc)

	paused := config.DefaultReconcileConfig()
	paused.PauseAutoReconcile = true
	s.reconcileCfg = config.NewStaticReconcileConfigHolder(paused)
	require.NoError(t, s.RunOnce(context.Background()))
	svc.AssertNotCalled(t, "TenantsWithOpenVouchers", mock.Anything)

	s.reconcileCfg = config.NewStaticReconcileConfigHolder(config.DefaultReconcileConfig())
	require.NoError(t, s.RunOnce(context.Background()))
	svc.AssertNumberOfCalls(t, "TenantsWithOpenVouchers", 1)
}

func TestLifecycleRunsAndStopsLoop(t *testing.T) {
	svc := &mockReconcileSvc{}
	called := make(chan struct{}, 1)
	svc.On("TenantsWithOpenVouchers", mock.Anything).Return([]snowflake.ID{}, nil).Run(func(mock.Arguments) {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	s, _ := newTestScheduler(t, svc)

	lc := fxtest.NewLifecycle(t)
	registerLifecycle(lc, Config{Enabled: true, RunInterval: time.Hour}, s, zap.NewNop())
	lc.RequireStart()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop did not run")
	}
	lc.RequireStop()
}

func TestLifecycleDisabledStartsNothing(t *testing.T) {
	svc := &mockReconcileSvc{}
	s, _ := newTestScheduler(t, svc)

	lc := fxtest.NewLifecycle(t)
	registerLifecycle(lc, Config{Enabled: false}, s, zap.NewNop())
	lc.RequireStart()
	lc.RequireStop()

	svc.AssertNotCalled(t, "TenantsWithOpenVouchers", mock.Anything)
}

func TestTenantListFailureSurfaces(t *testing.T) {
	svc := &mockReconcileSvc{}
	svc.On("TenantsWithOpenVouchers", mock.Anything).Return(nil, errors.New("db down"))

	s, _ := newTestScheduler(t, svc)
	err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
