package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	"github.com/smallbiznis/ledgercore/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Entries that reached posted stay visible after reversal; their mirror
// entry carries the offset. Drafts are never visible.
var visibleStatuses = []journaldomain.Status{journaldomain.StatusPosted, journaldomain.StatusReversed}

const postingColumns = `e.id AS entry_id, e.entry_number, e.entry_date, e.type AS entry_type, e.status,
	l.id AS line_id, l.line_no, l.account_id, l.debit, l.credit, l.description`

func (r *repo) ListPostings(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID, from, to *time.Time) ([]domain.Posting, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	stmt := db.WithContext(ctx).
		Table("journal_lines AS l").
		Select(postingColumns).
		Joins("JOIN journal_entries e ON e.id = l.entry_id").
		Where("l.tenant_id = ? AND e.tenant_id = ?", tenantID, tenantID).
		Where("l.account_id IN ?", accountIDs).
		Where("e.status IN ?", visibleStatuses)
	if from != nil {
		stmt = stmt.Where("e.entry_date >= ?", *from)
	}
	if to != nil {
		stmt = stmt.Where("e.entry_date <= ?", *to)
	}

	var postings []domain.Posting
	err := stmt.
		Order("e.entry_date asc").
		Order("e.id asc").
		Order("l.line_no asc").
		Scan(&postings).Error
	if err != nil {
		return nil, err
	}
	return postings, nil
}

func (r *repo) ListPostingsBefore(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID, before time.Time) ([]domain.Posting, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}
	var postings []domain.Posting
	err := db.WithContext(ctx).
		Table("journal_lines AS l").
		Select(postingColumns).
		Joins("JOIN journal_entries e ON e.id = l.entry_id").
		Where("l.tenant_id = ? AND e.tenant_id = ?", tenantID, tenantID).
		Where("l.account_id IN ?", accountIDs).
		Where("e.status IN ?", visibleStatuses).
		Where("e.entry_date < ?", before).
		Scan(&postings).Error
	if err != nil {
		return nil, err
	}
	return postings, nil
}

type entryLineRow struct {
	EntryID     snowflake.ID
	EntryNumber string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// ListEntryTotals returns one row per visible entry with its cached totals
// and the sums of its lines.
func (r *repo) ListEntryTotals(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, to *time.Time) ([]domain.EntryTotals, error) {
	stmt := db.WithContext(ctx).
		Table("journal_entries AS e").
		Select(`e.id AS entry_id, e.entry_number, e.total_debit, e.total_credit, l.debit, l.credit`).
		Joins("JOIN journal_lines l ON l.entry_id = e.id").
		Where("e.tenant_id = ?", tenantID).
		Where("e.status IN ?", visibleStatuses)
	if to != nil {
		stmt = stmt.Where("e.entry_date <= ?", *to)
	}

	var rows []entryLineRow
	if err := stmt.Order("e.id asc").Scan(&rows).Error; err != nil {
		return nil, err
	}

	var out []domain.EntryTotals
	for _, row := range rows {
		if len(out) == 0 || out[len(out)-1].EntryID != row.EntryID {
			out = append(out, domain.EntryTotals{
				EntryID:     row.EntryID,
				EntryNumber: row.EntryNumber,
				TotalDebit:  row.TotalDebit,
				TotalCredit: row.TotalCredit,
			})
		}
		last := &out[len(out)-1]
		last.LineDebit = last.LineDebit.Add(row.Debit)
		last.LineCredit = last.LineCredit.Add(row.Credit)
	}
	return out, nil
}
