package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgercore/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const accountColumns = `id, tenant_id, code, name, local_name, category, nature, parent_id, level,
	is_parent, currency, opening_balance, is_active, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.TenantID,
		account.Code,
		account.Name,
		account.LocalName,
		account.Category,
		account.Nature,
		account.ParentID,
		account.Level,
		account.IsParent,
		account.Currency,
		account.OpeningBalance,
		account.IsActive,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET code = ?, name = ?, local_name = ?, nature = ?, currency = ?, opening_balance = ?,
		     is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		account.Code,
		account.Name,
		account.LocalName,
		account.Nature,
		account.Currency,
		account.OpeningBalance,
		account.IsActive,
		account.UpdatedAt,
		account.TenantID,
		account.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM accounts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND code = ?`,
		tenantID,
		code,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ids []snowflake.ID) ([]*domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var accounts []*domain.Account
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListAccountRequest) ([]*domain.Account, error) {
	var accounts []*domain.Account
	stmt := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("tenant_id = ?", tenantID)
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.ParentID != nil {
		stmt = stmt.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if filter.LeafOnly {
		stmt = stmt.Where("is_parent = ?", false)
	}
	if err := stmt.Order("code asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *repo) CountChildren(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM accounts WHERE tenant_id = ? AND parent_id = ?`,
		tenantID,
		id,
	).Scan(&count).Error
	return count, err
}

func (r *repo) CountLineReferences(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, postedOnly bool) (int64, error) {
	query := `SELECT COUNT(1) FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.tenant_id = ? AND l.account_id = ?`
	if postedOnly {
		query += ` AND e.status IN ('posted', 'reversed')`
	}
	var count int64
	err := db.WithContext(ctx).Raw(query, tenantID, id).Scan(&count).Error
	return count, err
}
