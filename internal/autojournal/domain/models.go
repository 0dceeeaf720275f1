package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/errs"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
)

type EventType string

const (
	EventInvoiceIssued        EventType = "invoice.issued"
	EventPaymentReceived      EventType = "payment.received"
	EventPrepaidRecharged     EventType = "prepaid.recharged"
	EventInventoryReceived    EventType = "inventory.received"
	EventSupplierPaid         EventType = "supplier.paid"
	EventPayrollDisbursed     EventType = "payroll.disbursed"
	EventMeterReplaced        EventType = "meter.replaced"
	EventSubscriptionUpgraded EventType = "subscription.upgraded"
	EventAssetDepreciated     EventType = "asset.depreciated"
)

// Selector picks the account of one side of a template: either a fixed
// account code or the party sub-account below a parent code.
type Selector struct {
	Code        string `json:"code"`
	PartyParent bool   `json:"party_parent"`
}

func Fixed(code string) Selector      { return Selector{Code: code} }
func PartyUnder(code string) Selector { return Selector{Code: code, PartyParent: true} }

type Rule struct {
	EventType   EventType               `json:"event_type"`
	EntryType   journaldomain.EntryType `json:"entry_type"`
	Debit       Selector                `json:"debit"`
	Credit      Selector                `json:"credit"`
	AmountField string                  `json:"amount_field"`
	Description string                  `json:"description"`
}

// NeedsParty reports whether either side resolves to a party sub-account.
func (r Rule) NeedsParty() bool {
	return r.Debit.PartyParent || r.Credit.PartyParent
}

// BusinessEvent is the payload a subsystem sends when something with a
// financial effect happened.
type BusinessEvent struct {
	EventType    EventType                  `json:"event_type"`
	SourceModule string                     `json:"source_module"`
	SourceID     string                     `json:"source_id"`
	PartyRef     string                     `json:"party_ref"`
	PartyName    string                     `json:"party_name"`
	Currency     string                     `json:"currency"`
	OccurredAt   time.Time                  `json:"occurred_at"`
	Description  string                     `json:"description"`
	Amounts      map[string]decimal.Decimal `json:"amounts"`
	Attributes   map[string]any             `json:"attributes"`
}

type Result struct {
	Entry   journaldomain.JournalEntry `json:"entry"`
	Created bool                       `json:"created"`
}

type Service interface {
	RecordBusinessEvent(ctx context.Context, tenantID snowflake.ID, event BusinessEvent) (Result, error)
	Rules() []Rule
}

var (
	ErrInvalidTenant    = errs.Validation("invalid_tenant", "tenant id is required")
	ErrUnknownEventType = errs.Validation("unknown_event_type", "no rule for this event type")
	ErrMissingSource    = errs.Validation("missing_source", "source module and source id are required")
	ErrMissingAmount    = errs.Validation("missing_amount", "the amount field of the rule is missing")
	ErrInvalidAmount    = errs.Validation("invalid_amount", "event amount must be strictly positive")
	ErrPartyRequired    = errs.Validation("party_required", "this event needs a party reference")
	ErrCurrencyMismatch = errs.Validation("currency_mismatch", "event currency differs from the account currency")
)
