package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
)

// Posting is one line of a posted entry as seen from the ledger.
type Posting struct {
	EntryID     snowflake.ID            `json:"entry_id"`
	EntryNumber string                  `json:"entry_number"`
	EntryDate   time.Time               `json:"entry_date"`
	EntryType   journaldomain.EntryType `json:"entry_type"`
	Status      journaldomain.Status    `json:"status"`
	LineID      snowflake.ID            `json:"line_id"`
	LineNo      int                     `json:"line_no"`
	AccountID   snowflake.ID            `json:"account_id"`
	Debit       decimal.Decimal         `json:"debit"`
	Credit      decimal.Decimal         `json:"credit"`
	Description string                  `json:"description,omitempty"`
}

// EntryTotals carries the cached and recomputed totals of one visible entry.
type EntryTotals struct {
	EntryID     snowflake.ID
	EntryNumber string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	LineDebit   decimal.Decimal
	LineCredit  decimal.Decimal
}

// Balanced reports whether both the cached and the recomputed totals agree.
func (t EntryTotals) Balanced() bool {
	return t.TotalDebit.Equal(t.TotalCredit) &&
		t.LineDebit.Equal(t.LineCredit) &&
		t.TotalDebit.Equal(t.LineDebit)
}

type StatementLine struct {
	Posting
	SignedDelta    decimal.Decimal `json:"signed_delta"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

type AccountStatement struct {
	Account        accountdomain.Account `json:"account"`
	From           time.Time             `json:"from"`
	To             time.Time             `json:"to"`
	OpeningBalance decimal.Decimal       `json:"opening_balance"`
	TotalDebit     decimal.Decimal       `json:"total_debit"`
	TotalCredit    decimal.Decimal       `json:"total_credit"`
	ClosingBalance decimal.Decimal       `json:"closing_balance"`
	Lines          []StatementLine       `json:"lines"`
}

// TrialBalanceRow shows a balance in the debit or credit column according to
// its sign, whatever the nature of the account.
type TrialBalanceRow struct {
	AccountID snowflake.ID           `json:"account_id"`
	ParentID  *snowflake.ID          `json:"parent_id,omitempty"`
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	Category  accountdomain.Category `json:"category"`
	Nature    accountdomain.Nature   `json:"nature"`
	Level     int                    `json:"level"`
	IsParent  bool                   `json:"is_parent"`
	Balance   decimal.Decimal        `json:"balance"`
	Debit     decimal.Decimal        `json:"debit"`
	Credit    decimal.Decimal        `json:"credit"`
}

// TrialBalance totals the leaf rows, opening balances included. A report is
// only returned when both totals are equal.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

type AccountBalance struct {
	AccountID      snowflake.ID         `json:"account_id"`
	Code           string               `json:"code"`
	Nature         accountdomain.Nature `json:"nature"`
	OpeningBalance decimal.Decimal      `json:"opening_balance"`
	PostedDelta    decimal.Decimal      `json:"posted_delta"`
	Balance        decimal.Decimal      `json:"balance"`
}
