package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEntry(ctx context.Context, db *gorm.DB, entry *JournalEntry) error
	InsertLines(ctx context.Context, db *gorm.DB, lines []JournalLine) error
	DeleteLines(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) error
	DeleteEntry(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) error
	UpdateDraftHeader(ctx context.Context, db *gorm.DB, entry *JournalEntry) error

	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*JournalEntry, error)
	// FindByIDForUpdate locks the entry row until the transaction ends.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*JournalEntry, error)
	FindBySource(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, sourceModule, sourceID, eventType string) (*JournalEntry, error)
	ListLines(ctx context.Context, db *gorm.DB, tenantID, entryID snowflake.ID) ([]JournalLine, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListEntryRequest, afterID *snowflake.ID, limit int) ([]*JournalEntry, error)

	// MarkPosted flips a draft to posted; it reports false when the entry is
	// no longer a draft.
	MarkPosted(ctx context.Context, db *gorm.DB, entry *JournalEntry) (bool, error)
	MarkReversed(ctx context.Context, db *gorm.DB, tenantID, id, reversedByID snowflake.ID) (bool, error)

	NextSequence(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, period string) (int64, error)

	// LockBalances creates missing balance rows and locks all of them in
	// account id order.
	LockBalances(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, accountIDs []snowflake.ID) (map[snowflake.ID]AccountBalance, error)
	ApplyBalanceDelta(ctx context.Context, db *gorm.DB, balance AccountBalance, delta decimal.Decimal) (bool, error)
	FindBalance(ctx context.Context, db *gorm.DB, tenantID, accountID snowflake.ID) (*AccountBalance, error)
}
