package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
)

type CreateIntermediaryAccountRequest struct {
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	FromSubsystem     string           `json:"from_subsystem"`
	ToSubsystem       string           `json:"to_subsystem"`
	Currency          string           `json:"currency"`
	AmountEpsilon     *decimal.Decimal `json:"amount_epsilon"`
	DateToleranceDays *int             `json:"date_tolerance_days"`
}

// RecordVoucherRequest registers a payment or receipt. The direction follows
// from which side of the intermediary account the subsystem sits on.
type RecordVoucherRequest struct {
	IntermediaryAccountID snowflake.ID    `json:"intermediary_account_id"`
	Subsystem             string          `json:"subsystem"`
	Reference             string          `json:"reference"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	VoucherDate           time.Time       `json:"voucher_date"`
}

type ListVoucherRequest struct {
	pagination.Pagination
	IntermediaryAccountID *snowflake.ID
	Direction             Direction
	Status                VoucherStatus
}

type ListVoucherResponse struct {
	pagination.PageInfo
	Vouchers []Voucher `json:"vouchers"`
}

type ListMatchRequest struct {
	pagination.Pagination
	IntermediaryAccountID *snowflake.ID
	Status                MatchStatus
	RunID                 string
}

type ListMatchResponse struct {
	pagination.PageInfo
	Matches []ReconciliationMatch `json:"matches"`
}

type AccountRunStatus string

const (
	AccountRunCompleted AccountRunStatus = "completed"
	AccountRunSkipped   AccountRunStatus = "skipped"
	AccountRunFailed    AccountRunStatus = "failed"
)

type AccountRunResult struct {
	IntermediaryAccountID snowflake.ID     `json:"intermediary_account_id"`
	Code                  string           `json:"code"`
	Status                AccountRunStatus `json:"status"`
	Proposed              int              `json:"proposed"`
	Error                 string           `json:"error,omitempty"`
}

type RunResult struct {
	RunID    string             `json:"run_id"`
	Proposed int                `json:"proposed"`
	Accounts []AccountRunResult `json:"accounts"`
}

type Service interface {
	CreateIntermediaryAccount(ctx context.Context, tenantID snowflake.ID, req CreateIntermediaryAccountRequest) (IntermediaryAccount, error)
	GetIntermediaryAccount(ctx context.Context, tenantID, id snowflake.ID) (IntermediaryAccount, error)
	ListIntermediaryAccounts(ctx context.Context, tenantID snowflake.ID) ([]IntermediaryAccount, error)
	RecordVoucher(ctx context.Context, tenantID snowflake.ID, req RecordVoucherRequest) (Voucher, error)
	ListVouchers(ctx context.Context, tenantID snowflake.ID, req ListVoucherRequest) (ListVoucherResponse, error)

	// RunAutoReconcile proposes pending matches for every active intermediary
	// account of the tenant. Each account is processed all-or-nothing; a
	// failed account does not stop the others and is reported in the result
	// and the returned error.
	RunAutoReconcile(ctx context.Context, tenantID snowflake.ID) (RunResult, error)
	ConfirmMatch(ctx context.Context, tenantID, id snowflake.ID) (ReconciliationMatch, error)
	RejectMatch(ctx context.Context, tenantID, id snowflake.ID) (ReconciliationMatch, error)
	GetMatch(ctx context.Context, tenantID, id snowflake.ID) (ReconciliationMatch, error)
	ListReconciliations(ctx context.Context, tenantID snowflake.ID, req ListMatchRequest) (ListMatchResponse, error)

	// TenantsWithOpenVouchers lists tenants holding unmatched vouchers.
	TenantsWithOpenVouchers(ctx context.Context) ([]snowflake.ID, error)
}

var (
	ErrInvalidTenant      = errs.Validation("invalid_tenant", "tenant id is required")
	ErrInvalidCode        = errs.Validation("invalid_code", "intermediary account code is required")
	ErrInvalidName        = errs.Validation("invalid_name", "intermediary account name is required")
	ErrInvalidSubsystems  = errs.Validation("invalid_subsystems", "from and to subsystems are required and must differ")
	ErrInvalidCurrency    = errs.Validation("invalid_currency", "currency must be a 3-letter code")
	ErrInvalidTolerance   = errs.Validation("invalid_tolerance", "tolerances cannot be negative")
	ErrInvalidReference   = errs.Validation("invalid_reference", "voucher reference is required")
	ErrInvalidAmount      = errs.Validation("invalid_amount", "voucher amount must be strictly positive")
	ErrInvalidVoucherDate = errs.Validation("invalid_voucher_date", "voucher date is required")
	ErrUnknownSubsystem   = errs.Validation("unknown_subsystem", "subsystem is not a side of the intermediary account")
	ErrCurrencyMismatch   = errs.Validation("currency_mismatch", "voucher currency differs from the intermediary account")
	ErrAccountInactive    = errs.Validation("intermediary_account_inactive", "intermediary account is inactive")
	ErrInvalidPageToken   = errs.Validation("invalid_page_token", "page token is malformed")
	ErrAccountNotFound    = errs.NotFound("intermediary_account_not_found", "intermediary account not found")
	ErrMatchNotFound      = errs.NotFound("match_not_found", "reconciliation match not found")
	ErrDuplicateCode      = errs.Conflict("duplicate_intermediary_code", "intermediary account code already exists")
	ErrDuplicateVoucher   = errs.Conflict("duplicate_voucher", "a voucher with this reference already exists")
	ErrMatchNotPending    = errs.Conflict("match_not_pending", "only pending matches can be resolved")
	ErrVoucherTaken       = errs.Conflict("voucher_taken", "a voucher is already part of a live match")
	ErrConcurrentUpdate   = errs.Conflict("concurrent_update", "the record changed during the operation")
	ErrVoucherStateDrift  = errs.Consistency("voucher_state_drift", "voucher status disagrees with its match")
)
