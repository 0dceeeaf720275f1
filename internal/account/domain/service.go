package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/errs"
)

type CreateAccountRequest struct {
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	LocalName      string          `json:"local_name"`
	Category       Category        `json:"category"`
	Nature         Nature          `json:"nature"`
	ParentID       *snowflake.ID   `json:"parent_id"`
	IsParent       bool            `json:"is_parent"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// UpdateAccountRequest carries optional changes. Nil fields are left untouched.
type UpdateAccountRequest struct {
	Code           *string          `json:"code"`
	Name           *string          `json:"name"`
	LocalName      *string          `json:"local_name"`
	Nature         *Nature          `json:"nature"`
	Currency       *string          `json:"currency"`
	OpeningBalance *decimal.Decimal `json:"opening_balance"`
	IsActive       *bool            `json:"is_active"`
	ParentID       *snowflake.ID    `json:"parent_id"`
}

type ListAccountRequest struct {
	Category   Category
	ParentID   *snowflake.ID
	ActiveOnly bool
	LeafOnly   bool
}

type SeedResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateAccountRequest) (Account, error)
	Update(ctx context.Context, tenantID, id snowflake.ID, req UpdateAccountRequest) (Account, error)
	Delete(ctx context.Context, tenantID, id snowflake.ID) error
	GetByID(ctx context.Context, tenantID, id snowflake.ID) (Account, error)
	FindByCode(ctx context.Context, tenantID snowflake.ID, code string) (Account, error)
	List(ctx context.Context, tenantID snowflake.ID, req ListAccountRequest) ([]Account, error)
	GetTree(ctx context.Context, tenantID snowflake.ID) ([]*AccountNode, error)
	ResolveLeaf(ctx context.Context, tenantID, id snowflake.ID) (Account, error)
	EnsureSubAccount(ctx context.Context, tenantID snowflake.ID, parentCode, partyRef, partyName string) (Account, error)
	SeedDefaultChart(ctx context.Context, tenantID snowflake.ID) (SeedResult, error)
}

var (
	ErrInvalidTenant        = errs.Validation("invalid_tenant", "tenant id is required")
	ErrInvalidCode          = errs.Validation("invalid_code", "account code is required")
	ErrInvalidName          = errs.Validation("invalid_name", "account name is required")
	ErrInvalidCategory      = errs.Validation("invalid_category", "unknown account category")
	ErrInvalidNature        = errs.Validation("invalid_nature", "nature must be debit or credit")
	ErrInvalidCurrency      = errs.Validation("invalid_currency", "currency must be a 3-letter code")
	ErrInvalidParent        = errs.Validation("invalid_parent", "parent account does not exist")
	ErrParentNotGroup       = errs.Validation("parent_not_group", "parent account is not marked as a parent")
	ErrParentOpeningBalance = errs.Validation("parent_opening_balance", "parent accounts cannot carry an opening balance")
	ErrParentImmutable      = errs.Validation("parent_immutable", "the parent of an account cannot change")
	ErrInvalidPartyRef      = errs.Validation("invalid_party_ref", "party reference is required")
	ErrAccountIsParent      = errs.Validation("account_is_parent", "parent accounts cannot receive postings")
	ErrAccountInactive      = errs.Validation("account_inactive", "account is inactive")
	ErrNotFound             = errs.NotFound("account_not_found", "account not found")
	ErrDuplicateCode        = errs.Conflict("duplicate_account_code", "account code already exists")
	ErrHasPostings          = errs.Conflict("account_has_postings", "account is referenced by journal lines")
	ErrHasChildren          = errs.Conflict("account_has_children", "account has child accounts")
	ErrStructuralChange     = errs.Conflict("structural_change", "code, nature, currency and opening balance are fixed after the first posting")
	ErrTreeInconsistent     = errs.Consistency("account_tree_inconsistent", "accounts unreachable from any root")
)
