package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
)

type LineInput struct {
	AccountID   snowflake.ID
	Amount      Amount
	Description string
}

type CreateEntryRequest struct {
	EntryDate   time.Time
	Type        EntryType
	Description string
	Lines       []LineInput

	// Source identifies the business event behind a system entry. The triple
	// is unique per tenant.
	SourceModule string
	SourceID     string
	EventType    string
	Metadata     map[string]any
}

// UpdateEntryRequest edits a draft. Nil fields are left untouched; a non-nil
// Lines slice replaces every line.
type UpdateEntryRequest struct {
	EntryDate   *time.Time
	Type        *EntryType
	Description *string
	Lines       []LineInput
}

type ListEntryRequest struct {
	pagination.Pagination
	Status       Status
	Type         EntryType
	SourceModule string
	From         *time.Time
	To           *time.Time
}

type ListEntryResponse struct {
	pagination.PageInfo
	Entries []JournalEntry `json:"entries"`
}

type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateEntryRequest) (JournalEntry, error)
	UpdateDraft(ctx context.Context, tenantID, id snowflake.ID, req UpdateEntryRequest) (JournalEntry, error)
	DeleteDraft(ctx context.Context, tenantID, id snowflake.ID) error
	Post(ctx context.Context, tenantID, id snowflake.ID) (JournalEntry, error)
	Reverse(ctx context.Context, tenantID, id snowflake.ID) (JournalEntry, error)
	CreateAndPost(ctx context.Context, tenantID snowflake.ID, req CreateEntryRequest) (JournalEntry, error)
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (JournalEntry, error)
	FindBySource(ctx context.Context, tenantID snowflake.ID, sourceModule, sourceID, eventType string) (*JournalEntry, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListEntryRequest) (ListEntryResponse, error)
}

var (
	ErrInvalidTenant     = errs.Validation("invalid_tenant", "tenant id is required")
	ErrInvalidEntryType  = errs.Validation("invalid_entry_type", "unknown or reserved entry type")
	ErrInvalidEntryDate  = errs.Validation("invalid_entry_date", "entry date is required")
	ErrNoLines           = errs.Validation("no_lines", "an entry needs at least one line")
	ErrTooFewLines       = errs.Validation("too_few_lines", "a posted entry needs at least two lines")
	ErrImbalanced        = errs.Validation("imbalanced", "total debit does not equal total credit")
	ErrInvalidLine       = errs.Validation("invalid_line", "line is malformed")
	ErrZeroAmount        = errs.Validation("zero_amount", "line amount must be strictly positive")
	ErrNegativeAmount    = errs.Validation("negative_amount", "line amounts cannot be negative")
	ErrBothSides         = errs.Validation("both_sides", "a line carries either a debit or a credit, not both")
	ErrAmountScale       = errs.Validation("amount_scale", "line amounts carry at most 4 decimal places")
	ErrUnknownAccount    = errs.Validation("unknown_account", "line references an unknown account")
	ErrIncompleteSource  = errs.Validation("incomplete_source", "source module, source id and event type go together")
	ErrInvalidPageToken  = errs.Validation("invalid_page_token", "page token is malformed")
	ErrNotFound          = errs.NotFound("entry_not_found", "journal entry not found")
	ErrNotDraft          = errs.Conflict("entry_not_draft", "only draft entries can be changed")
	ErrAlreadyPosted     = errs.Conflict("entry_already_posted", "entry is already posted")
	ErrNotPosted         = errs.Conflict("entry_not_posted", "only posted entries can be reversed")
	ErrAlreadyReversed   = errs.Conflict("entry_already_reversed", "entry is already reversed")
	ErrDuplicateSource   = errs.Conflict("duplicate_source", "an entry already exists for this source event")
	ErrConcurrentUpdate  = errs.Conflict("concurrent_update", "the record changed during the operation")
	ErrEntryInconsistent = errs.Consistency("entry_inconsistent", "a posted entry is imbalanced")
	ErrBalanceMismatch   = errs.Consistency("balance_mismatch", "stored balance differs from posted lines")
	ErrReverseOfReversal = errs.Conflict("reversal_not_reversible", "a reversal entry cannot itself be reversed")
)
