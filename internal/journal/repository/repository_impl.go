package repository

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/journal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.JournalEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO journal_entries (id, tenant_id, entry_number, sequence, period, entry_date, type,
			description, status, source_module, source_id, event_type, metadata, reversal_of_id,
			reversed_by_id, total_debit, total_credit, posted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.EntryNumber,
		entry.Sequence,
		entry.Period,
		entry.EntryDate,
		entry.Type,
		entry.Description,
		entry.Status,
		entry.SourceModule,
		entry.SourceID,
		entry.EventType,
		entry.Metadata,
		entry.ReversalOfID,
		entry.ReversedByID,
		entry.TotalDebit,
		entry.TotalCredit,
		entry.PostedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []domain.JournalLine) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) DeleteLines(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM journal_lines WHERE tenant_id = ? AND entry_id = ?`,
		tenantID,
		entryID,
	).Error
}

func (r *repo) DeleteEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM journal_entries WHERE tenant_id = ? AND id = ? AND status = ?`,
		tenantID,
		entryID,
		domain.StatusDraft,
	).Error
}

func (r *repo) UpdateDraftHeader(ctx context.Context, db *gorm.DB, entry *domain.JournalEntry) error {
	return db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		 SET entry_date = ?, period = ?, type = ?, description = ?, total_debit = ?, total_credit = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		entry.EntryDate,
		entry.Period,
		entry.Type,
		entry.Description,
		entry.TotalDebit,
		entry.TotalCredit,
		entry.UpdatedAt,
		entry.TenantID,
		entry.ID,
		domain.StatusDraft,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.JournalEntry, error) {
	return r.findOne(db.WithContext(ctx), tenantID, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.JournalEntry, error) {
	return r.findOne(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func (r *repo) findOne(db *gorm.DB, tenantID, id snowflake.ID) (*domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	err := db.Model(&domain.JournalEntry{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) FindBySource(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sourceModule, sourceID, eventType string) (*domain.JournalEntry, error) {
	var entries []domain.JournalEntry
	err := db.WithContext(ctx).
		Model(&domain.JournalEntry{}).
		Where("tenant_id = ? AND source_module = ? AND source_id = ? AND event_type = ?", tenantID, sourceModule, sourceID, eventType).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) ([]domain.JournalLine, error) {
	var lines []domain.JournalLine
	err := db.WithContext(ctx).
		Model(&domain.JournalLine{}).
		Where("tenant_id = ? AND entry_id = ?", tenantID, entryID).
		Order("line_no asc").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListEntryRequest, afterID *snowflake.ID, limit int) ([]*domain.JournalEntry, error) {
	var entries []*domain.JournalEntry
	stmt := db.WithContext(ctx).
		Model(&domain.JournalEntry{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.SourceModule != "" {
		stmt = stmt.Where("source_module = ?", filter.SourceModule)
	}
	if filter.From != nil {
		stmt = stmt.Where("entry_date >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("entry_date <= ?", *filter.To)
	}
	if afterID != nil {
		stmt = stmt.Where("id < ?", *afterID)
	}
	err := stmt.
		Order("id desc").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) MarkPosted(ctx context.Context, db *gorm.DB, entry *domain.JournalEntry) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE journal_entries
		 SET status = ?, entry_number = ?, sequence = ?, period = ?, total_debit = ?, total_credit = ?,
		     posted_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		domain.StatusPosted,
		entry.EntryNumber,
		entry.Sequence,
		entry.Period,
		entry.TotalDebit,
		entry.TotalCredit,
		entry.PostedAt,
		entry.UpdatedAt,
		entry.TenantID,
		entry.ID,
		domain.StatusDraft,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, tenantID, id, reversedByID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE journal_entries SET status = ?, reversed_by_id = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		domain.StatusReversed,
		reversedByID,
		time.Now().UTC(),
		tenantID,
		id,
		domain.StatusPosted,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, period string) (int64, error) {
	tx := db.WithContext(ctx)
	seq := domain.EntrySequence{TenantID: tenantID, Period: period}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return 0, err
	}

	// The increment takes the row lock; the read below sees our own write.
	if err := tx.Exec(
		`UPDATE entry_sequences SET last_value = last_value + 1 WHERE tenant_id = ? AND period = ?`,
		tenantID,
		period,
	).Error; err != nil {
		return 0, err
	}

	var value int64
	err := tx.Raw(
		`SELECT last_value FROM entry_sequences WHERE tenant_id = ? AND period = ?`,
		tenantID,
		period,
	).Scan(&value).Error
	return value, err
}

func (r *repo) LockBalances(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID) (map[snowflake.ID]domain.AccountBalance, error) {
	ids := make([]snowflake.ID, len(accountIDs))
	copy(ids, accountIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	tx := db.WithContext(ctx)
	now := time.Now().UTC()
	seed := make([]domain.AccountBalance, 0, len(ids))
	for _, id := range ids {
		seed = append(seed, domain.AccountBalance{
			AccountID:   id,
			TenantID:    tenantID,
			PostedDelta: decimal.Zero,
			UpdatedAt:   now,
		})
	}
	if len(seed) > 0 {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return nil, err
		}
	}

	var rows []domain.AccountBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Model(&domain.AccountBalance{}).
		Where("tenant_id = ? AND account_id IN ?", tenantID, ids).
		Order("account_id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[snowflake.ID]domain.AccountBalance, len(rows))
	for _, row := range rows {
		out[row.AccountID] = row
	}
	return out, nil
}

func (r *repo) ApplyBalanceDelta(ctx context.Context, db *gorm.DB, balance domain.AccountBalance, delta decimal.Decimal) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE account_balances SET posted_delta = ?, version = version + 1, updated_at = ?
		 WHERE tenant_id = ? AND account_id = ? AND version = ?`,
		balance.PostedDelta.Add(delta),
		time.Now().UTC(),
		balance.TenantID,
		balance.AccountID,
		balance.Version,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) (*domain.AccountBalance, error) {
	var rows []domain.AccountBalance
	err := db.WithContext(ctx).
		Model(&domain.AccountBalance{}).
		Where("tenant_id = ? AND account_id = ?", tenantID, accountID).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
