package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	accountservice "github.com/smallbiznis/ledgercore/internal/account/service"
	"github.com/smallbiznis/ledgercore/internal/autojournal/domain"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/errs"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	"github.com/smallbiznis/ledgercore/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	outcomeCreated   = "created"
	outcomeDuplicate = "duplicate"
	outcomeConflict  = "conflict"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	AccountSvc accountdomain.Service
	JournalSvc journaldomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	accountSvc accountdomain.Service
	journalSvc journaldomain.Service
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("autojournal.service"),
		clock:      p.Clock,
		accountSvc: p.AccountSvc,
		journalSvc: p.JournalSvc,
		metrics:    p.Metrics,
	}
}

func (s *Service) Rules() []domain.Rule {
	out := make([]domain.Rule, len(rules))
	copy(out, rules)
	return out
}

// RecordBusinessEvent turns an event into a posted two-line entry. Repeating
// an event returns the entry recorded the first time.
func (s *Service) RecordBusinessEvent(ctx context.Context, tenantID snowflake.ID, event domain.BusinessEvent) (domain.Result, error) {
	result, err := s.record(ctx, tenantID, event)

	outcome := outcomeCreated
	switch {
	case err == nil && !result.Created:
		outcome = outcomeDuplicate
	case errors.Is(err, errs.ErrConflict):
		outcome = outcomeConflict
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrNotFound):
		outcome = outcomeRejected
	case err != nil:
		outcome = outcomeFailed
	}
	s.metrics.RecordBusinessEvent(ctx, string(event.EventType), outcome)

	fields := []zap.Field{
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_type", string(event.EventType)),
		zap.String("source_module", event.SourceModule),
		zap.String("source_id", event.SourceID),
		zap.String("outcome", outcome),
	}
	switch outcome {
	case outcomeCreated, outcomeDuplicate:
		s.log.Info("business event recorded", append(fields, zap.String("entry_number", result.Entry.EntryNumber))...)
	case outcomeFailed:
		s.log.Error("business event failed", append(fields, zap.Error(err))...)
	default:
		s.log.Warn("business event refused", append(fields, zap.Error(err))...)
	}
	return result, err
}

func (s *Service) record(ctx context.Context, tenantID snowflake.ID, event domain.BusinessEvent) (domain.Result, error) {
	if tenantID == 0 {
		return domain.Result{}, domain.ErrInvalidTenant
	}
	rule, ok := rulesByEvent[event.EventType]
	if !ok {
		return domain.Result{}, domain.ErrUnknownEventType.With("no rule for event type %q", event.EventType)
	}

	sourceModule := strings.TrimSpace(event.SourceModule)
	sourceID := strings.TrimSpace(event.SourceID)
	if sourceModule == "" || sourceID == "" {
		return domain.Result{}, domain.ErrMissingSource
	}
	amount, ok := event.Amounts[rule.AmountField]
	if !ok {
		return domain.Result{}, domain.ErrMissingAmount.With("amount field %q is missing", rule.AmountField)
	}
	if !amount.IsPositive() {
		return domain.Result{}, domain.ErrInvalidAmount
	}
	if rule.NeedsParty() && strings.TrimSpace(event.PartyRef) == "" {
		return domain.Result{}, domain.ErrPartyRequired
	}

	existing, err := s.journalSvc.FindBySource(ctx, tenantID, sourceModule, sourceID, string(rule.EventType))
	if err != nil {
		return domain.Result{}, err
	}
	if existing != nil {
		return domain.Result{Entry: *existing, Created: false}, nil
	}

	// Both sides are checked before a party sub-account may be created, so a
	// refused event leaves the chart untouched.
	for _, sel := range []domain.Selector{rule.Debit, rule.Credit} {
		if err := s.check(ctx, tenantID, sel, event); err != nil {
			return domain.Result{}, err
		}
	}
	debit, err := s.resolve(ctx, tenantID, rule.Debit, event)
	if err != nil {
		return domain.Result{}, err
	}
	credit, err := s.resolve(ctx, tenantID, rule.Credit, event)
	if err != nil {
		return domain.Result{}, err
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	description := strings.TrimSpace(event.Description)
	if description == "" {
		description = rule.Description + " " + sourceID
	}

	entry, err := s.journalSvc.CreateAndPost(ctx, tenantID, journaldomain.CreateEntryRequest{
		EntryDate:    occurredAt,
		Type:         rule.EntryType,
		Description:  description,
		SourceModule: sourceModule,
		SourceID:     sourceID,
		EventType:    string(rule.EventType),
		Metadata:     metadata(rule, event),
		Lines: []journaldomain.LineInput{
			{AccountID: debit.ID, Amount: journaldomain.Debit(amount), Description: rule.Description},
			{AccountID: credit.ID, Amount: journaldomain.Credit(amount), Description: rule.Description},
		},
	})
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{Entry: entry, Created: true}, nil
}

// check validates a selector without writing. For a party selector the
// parent group stands in for the sub-account it would create.
func (s *Service) check(ctx context.Context, tenantID snowflake.ID, sel domain.Selector, event domain.BusinessEvent) error {
	account, err := s.accountSvc.FindByCode(ctx, tenantID, sel.Code)
	if err != nil {
		return err
	}
	if sel.PartyParent {
		if !account.IsParent {
			return accountdomain.ErrParentNotGroup.With("account %s cannot hold party sub-accounts", account.Code)
		}
		if !account.IsActive {
			return accountdomain.ErrAccountInactive.With("account %s is inactive", account.Code)
		}
	} else if err := accountservice.CheckPostable(account); err != nil {
		return err
	}
	return checkCurrency(event, account)
}

func checkCurrency(event domain.BusinessEvent, account accountdomain.Account) error {
	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency != "" && currency != account.Currency {
		return domain.ErrCurrencyMismatch.With(
			"event currency %s, account %s holds %s", currency, account.Code, account.Currency)
	}
	return nil
}

func (s *Service) resolve(ctx context.Context, tenantID snowflake.ID, sel domain.Selector, event domain.BusinessEvent) (accountdomain.Account, error) {
	var (
		account accountdomain.Account
		err     error
	)
	if sel.PartyParent {
		account, err = s.accountSvc.EnsureSubAccount(ctx, tenantID, sel.Code, event.PartyRef, event.PartyName)
	} else {
		account, err = s.accountSvc.FindByCode(ctx, tenantID, sel.Code)
	}
	if err != nil {
		return accountdomain.Account{}, err
	}
	if err := accountservice.CheckPostable(account); err != nil {
		return accountdomain.Account{}, err
	}

	if err := checkCurrency(event, account); err != nil {
		return accountdomain.Account{}, err
	}
	return account, nil
}

func metadata(rule domain.Rule, event domain.BusinessEvent) map[string]any {
	out := make(map[string]any, len(event.Attributes)+3)
	for k, v := range event.Attributes {
		out[k] = v
	}
	out["amount_field"] = rule.AmountField
	if ref := strings.TrimSpace(event.PartyRef); ref != "" {
		out["party_ref"] = ref
	}
	if name := strings.TrimSpace(event.PartyName); name != "" {
		out["party_name"] = name
	}
	return out
}
