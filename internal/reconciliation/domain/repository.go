package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertAccount(ctx context.Context, db *gorm.DB, account *IntermediaryAccount) error
	FindAccount(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*IntermediaryAccount, error)
	ListAccounts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, activeOnly bool) ([]*IntermediaryAccount, error)
	AddAccountBalance(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, delta decimal.Decimal, now time.Time) (bool, error)

	InsertVoucher(ctx context.Context, db *gorm.DB, voucher *Voucher) error
	FindVouchers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*Voucher, error)
	// ListUnmatchedVouchers returns the open pool of an intermediary account
	// ordered by voucher date and id.
	ListUnmatchedVouchers(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) ([]*Voucher, error)
	ListVouchers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListVoucherRequest, afterID *snowflake.ID, limit int) ([]*Voucher, error)
	// SetVoucherStatus moves vouchers still in from to to and returns how many
	// rows changed.
	SetVoucherStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, from, to VoucherStatus, now time.Time) (int64, error)
	TenantsWithUnmatched(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)

	InsertMatches(ctx context.Context, db *gorm.DB, matches []ReconciliationMatch) error
	FindMatch(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*ReconciliationMatch, error)
	FindMatchForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*ReconciliationMatch, error)
	// ResolveMatch moves a pending match to status; false means it was no
	// longer pending.
	ResolveMatch(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status MatchStatus, resolvedAt time.Time) (bool, error)
	ListRejectedMatches(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) ([]*ReconciliationMatch, error)
	ListMatches(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListMatchRequest, afterID *snowflake.ID, limit int) ([]*ReconciliationMatch, error)
}
