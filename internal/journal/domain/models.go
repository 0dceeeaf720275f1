package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type EntryType string

const (
	EntryTypeManual       EntryType = "manual"
	EntryTypeAdjustment   EntryType = "adjustment"
	EntryTypeClosing      EntryType = "closing"
	EntryTypeOpening      EntryType = "opening"
	EntryTypeReversal     EntryType = "reversal"
	EntryTypeAutoSales    EntryType = "auto_sales"
	EntryTypeAutoReceipt  EntryType = "auto_receipt"
	EntryTypeAutoPurchase EntryType = "auto_purchase"
	EntryTypeAutoPayroll  EntryType = "auto_payroll"
	EntryTypeAutoAsset    EntryType = "auto_asset"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypeManual, EntryTypeAdjustment, EntryTypeClosing, EntryTypeOpening, EntryTypeReversal,
		EntryTypeAutoSales, EntryTypeAutoReceipt, EntryTypeAutoPurchase, EntryTypeAutoPayroll, EntryTypeAutoAsset:
		return true
	}
	return false
}

// UserCreatable reports whether callers may create drafts of this type.
// Reversals come only from Reverse.
func (t EntryType) UserCreatable() bool {
	return t.Valid() && t != EntryTypeReversal
}

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPosted   Status = "posted"
	StatusReversed Status = "reversed"
)

type JournalEntry struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID     snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	EntryNumber  string            `gorm:"size:32;not null" json:"entry_number"`
	Sequence     *int64            `json:"sequence,omitempty"`
	Period       string            `gorm:"size:7;not null" json:"period"`
	EntryDate    time.Time         `gorm:"type:date;not null;index" json:"entry_date"`
	Type         EntryType         `gorm:"size:32;not null" json:"type"`
	Description  string            `gorm:"size:500" json:"description"`
	Status       Status            `gorm:"size:16;not null;index" json:"status"`
	SourceModule *string           `gorm:"size:64" json:"source_module,omitempty"`
	SourceID     *string           `gorm:"size:128" json:"source_id,omitempty"`
	EventType    *string           `gorm:"size:64" json:"event_type,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	ReversalOfID *snowflake.ID     `json:"reversal_of_id,omitempty"`
	ReversedByID *snowflake.ID     `json:"reversed_by_id,omitempty"`
	TotalDebit   decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"total_debit"`
	TotalCredit  decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"total_credit"`
	PostedAt     *time.Time        `json:"posted_at,omitempty"`
	CreatedAt    time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`

	Lines []JournalLine `gorm:"-" json:"lines,omitempty"`
}

func (JournalEntry) TableName() string { return "journal_entries" }

type JournalLine struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	EntryID     snowflake.ID    `gorm:"not null;index" json:"entry_id"`
	TenantID    snowflake.ID    `gorm:"not null" json:"tenant_id"`
	LineNo      int             `gorm:"not null" json:"line_no"`
	AccountID   snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Debit       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"debit"`
	Credit      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"credit"`
	Description string          `gorm:"size:500" json:"description,omitempty"`
}

func (JournalLine) TableName() string { return "journal_lines" }

// Amount returns the tagged side of a stored line.
func (l JournalLine) Amount() (Amount, error) {
	return AmountFromColumns(l.Debit, l.Credit)
}

// AccountBalance accumulates the signed deltas of posted lines. Only the
// posting path writes it.
type AccountBalance struct {
	AccountID   snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"account_id"`
	TenantID    snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	PostedDelta decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"posted_delta"`
	Version     int64           `gorm:"not null" json:"version"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (AccountBalance) TableName() string { return "account_balances" }

// EntrySequence is the per tenant and period entry number counter.
type EntrySequence struct {
	TenantID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Period    string       `gorm:"primaryKey;size:7"`
	LastValue int64        `gorm:"not null"`
}

func (EntrySequence) TableName() string { return "entry_sequences" }

// PeriodOf returns the YYYY-MM accounting period of a date.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// FormatEntryNumber renders a sequence value as JV-YYYYMM-NNNNN.
func FormatEntryNumber(period string, seq int64) string {
	compact := period
	if len(period) == 7 {
		compact = period[:4] + period[5:]
	}
	return fmt.Sprintf("JV-%s-%05d", compact, seq)
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
