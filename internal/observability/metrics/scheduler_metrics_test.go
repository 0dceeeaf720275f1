package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: fmt.Errorf("post: %w", &pgconn.PgError{Code: "40001"}), want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "conflict", err: errs.Conflict("match_not_pending", "match is not pending"), want: SchedulerJobReasonConflict},
		{name: "consistency", err: errs.Consistency("ledger_imbalanced", "trial balance does not balance"), want: SchedulerJobReasonConsistency},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSchedulerMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg, Config{ServiceName: "ledgercore", Environment: "test"})

	m.IncJobRun("reconcile")
	m.IncJobError("reconcile", context.DeadlineExceeded)
	m.AddBatchProcessed("reconcile", "intermediary_account", 3)
	m.AddAccountsSkipped("reconcile", 1)
	m.ObserveJobDuration("reconcile", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("reconcile")); got != 1 {
		t.Fatalf("expected 1 job run, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("reconcile", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 deadline error, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchProcessed.WithLabelValues("reconcile", "intermediary_account")); got != 3 {
		t.Fatalf("expected 3 processed, got %v", got)
	}
	if got := testutil.ToFloat64(m.accountSkipped.WithLabelValues("reconcile")); got != 1 {
		t.Fatalf("expected 1 skipped, got %v", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("reconcile")
	m.IncJobError("reconcile", errors.New("x"))
}
