package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *domain.IntermediaryAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindAccount(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.IntermediaryAccount, error) {
	var accounts []domain.IntermediaryAccount
	err := db.WithContext(ctx).
		Model(&domain.IntermediaryAccount{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (r *repo) ListAccounts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, activeOnly bool) ([]*domain.IntermediaryAccount, error) {
	var accounts []*domain.IntermediaryAccount
	stmt := db.WithContext(ctx).
		Model(&domain.IntermediaryAccount{}).
		Where("tenant_id = ?", tenantID)
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("code asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// AddAccountBalance reads the current balance under a row lock and writes the
// sum back, keeping decimal arithmetic out of SQL.
func (r *repo) AddAccountBalance(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, delta decimal.Decimal, now time.Time) (bool, error) {
	var accounts []domain.IntermediaryAccount
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&domain.IntermediaryAccount{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&accounts).Error
	if err != nil {
		return false, err
	}
	if len(accounts) == 0 {
		return false, nil
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE intermediary_accounts SET balance = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		accounts[0].Balance.Add(delta),
		now,
		tenantID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) InsertVoucher(ctx context.Context, db *gorm.DB, voucher *domain.Voucher) error {
	return db.WithContext(ctx).Create(voucher).Error
}

func (r *repo) FindVouchers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*domain.Voucher, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var vouchers []*domain.Voucher
	err := db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id asc").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) ListUnmatchedVouchers(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) ([]*domain.Voucher, error) {
	var vouchers []*domain.Voucher
	err := db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("tenant_id = ? AND intermediary_account_id = ? AND status = ?", tenantID, accountID, domain.VoucherUnmatched).
		Order("voucher_date asc").
		Order("id asc").
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) ListVouchers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListVoucherRequest, afterID *snowflake.ID, limit int) ([]*domain.Voucher, error) {
	var vouchers []*domain.Voucher
	stmt := db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Where("tenant_id = ?", tenantID)
	if filter.IntermediaryAccountID != nil {
		stmt = stmt.Where("intermediary_account_id = ?", *filter.IntermediaryAccountID)
	}
	if filter.Direction != "" {
		stmt = stmt.Where("direction = ?", filter.Direction)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if afterID != nil {
		stmt = stmt.Where("id < ?", *afterID)
	}
	if err := stmt.Order("id desc").Limit(limit).Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *repo) SetVoucherStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID, from, to domain.VoucherStatus, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE vouchers SET status = ?, updated_at = ? WHERE tenant_id = ? AND id IN ? AND status = ?`,
		to,
		now,
		tenantID,
		ids,
		from,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) TenantsWithUnmatched(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var tenants []snowflake.ID
	err := db.WithContext(ctx).
		Model(&domain.Voucher{}).
		Distinct("tenant_id").
		Where("status = ?", domain.VoucherUnmatched).
		Order("tenant_id asc").
		Pluck("tenant_id", &tenants).Error
	if err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) InsertMatches(ctx context.Context, db *gorm.DB, matches []domain.ReconciliationMatch) error {
	if len(matches) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&matches).Error
}

func (r *repo) FindMatch(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.ReconciliationMatch, error) {
	return r.findMatch(db.WithContext(ctx), tenantID, id)
}

func (r *repo) FindMatchForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.ReconciliationMatch, error) {
	return r.findMatch(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *repo) findMatch(db *gorm.DB, tenantID, id snowflake.ID) (*domain.ReconciliationMatch, error) {
	var matches []domain.ReconciliationMatch
	err := db.Model(&domain.ReconciliationMatch{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (r *repo) ResolveMatch(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, status domain.MatchStatus, resolvedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE reconciliation_matches SET status = ?, resolved_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		status,
		resolvedAt,
		tenantID,
		id,
		domain.MatchPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListRejectedMatches(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) ([]*domain.ReconciliationMatch, error) {
	var matches []*domain.ReconciliationMatch
	err := db.WithContext(ctx).
		Model(&domain.ReconciliationMatch{}).
		Where("tenant_id = ? AND intermediary_account_id = ? AND status = ?", tenantID, accountID, domain.MatchRejected).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *repo) ListMatches(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListMatchRequest, afterID *snowflake.ID, limit int) ([]*domain.ReconciliationMatch, error) {
	var matches []*domain.ReconciliationMatch
	stmt := db.WithContext(ctx).
		Model(&domain.ReconciliationMatch{}).
		Where("tenant_id = ?", tenantID)
	if filter.IntermediaryAccountID != nil {
		stmt = stmt.Where("intermediary_account_id = ?", *filter.IntermediaryAccountID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.RunID != "" {
		stmt = stmt.Where("run_id = ?", filter.RunID)
	}
	if afterID != nil {
		stmt = stmt.Where("id < ?", *afterID)
	}
	if err := stmt.Order("id desc").Limit(limit).Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}
