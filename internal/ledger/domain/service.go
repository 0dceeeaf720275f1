package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"gorm.io/gorm"
)

type Service interface {
	GetAccountStatement(ctx context.Context, tenantID, accountID snowflake.ID, from, to time.Time) (AccountStatement, error)
	GetTrialBalance(ctx context.Context, tenantID snowflake.ID, asOf time.Time) (TrialBalance, error)
	GetAccountBalance(ctx context.Context, tenantID, accountID snowflake.ID) (AccountBalance, error)
}

// Repository reads postings of visible entries. Bounds are inclusive dates;
// nil means unbounded.
type Repository interface {
	ListPostings(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID, from, to *time.Time) ([]Posting, error)
	ListPostingsBefore(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID, before time.Time) ([]Posting, error)
	ListEntryTotals(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, to *time.Time) ([]EntryTotals, error)
}

var (
	ErrInvalidTenant   = errs.Validation("invalid_tenant", "tenant id is required")
	ErrInvalidRange    = errs.Validation("invalid_range", "from must not be after to")
	ErrInvalidAsOf     = errs.Validation("invalid_as_of", "as-of date is required")
	ErrTrialImbalance  = errs.Consistency("trial_balance_mismatch", "trial balance debit total differs from credit total")
	ErrEntryImbalanced = errs.Consistency("entry_imbalanced", "a posted entry is imbalanced")
	ErrBalanceDrift    = errs.Consistency("balance_drift", "stored account balance differs from its postings")
)
