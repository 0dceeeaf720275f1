package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/journal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// post moves a locked draft to posted inside tx. Every balance change of the
// system goes through here.
func (s *Service) post(ctx context.Context, tx *gorm.DB, entry *domain.JournalEntry) error {
	switch entry.Status {
	case domain.StatusPosted:
		return domain.ErrAlreadyPosted
	case domain.StatusReversed:
		return domain.ErrAlreadyReversed
	}

	lines, err := s.repo.ListLines(ctx, tx, entry.TenantID, entry.ID)
	if err != nil {
		return err
	}
	if len(lines) < 2 {
		return domain.ErrTooFewLines.With("entry has %d line(s), at least 2 are required", len(lines))
	}

	accountIDs := make([]snowflake.ID, 0, len(lines))
	for _, line := range lines {
		if _, err := line.Amount(); err != nil {
			return err
		}
		accountIDs = append(accountIDs, line.AccountID)
	}
	accounts, err := s.loadPostableAccounts(ctx, tx, entry.TenantID, accountIDs, false)
	if err != nil {
		return err
	}

	debit, credit := totals(lines)
	if !debit.Equal(credit) {
		return domain.ErrImbalanced.With("debit %s does not equal credit %s", debit.String(), credit.String())
	}

	deltas := make(map[snowflake.ID]decimal.Decimal, len(accounts))
	for _, line := range lines {
		nature := accounts[line.AccountID].Nature
		deltas[line.AccountID] = deltas[line.AccountID].Add(nature.SignedDelta(line.Debit, line.Credit))
	}

	seq, err := s.repo.NextSequence(ctx, tx, entry.TenantID, entry.Period)
	if err != nil {
		return err
	}

	balances, err := s.repo.LockBalances(ctx, tx, entry.TenantID, uniqueIDs(accountIDs))
	if err != nil {
		return err
	}
	for accountID, delta := range deltas {
		balance, ok := balances[accountID]
		if !ok {
			s.log.Error("balance row missing after lock",
				zap.String("tenant_id", entry.TenantID.String()),
				zap.String("account_id", accountID.String()),
			)
			return domain.ErrBalanceMismatch.With("balance row for account %s is missing", accountID)
		}
		applied, err := s.repo.ApplyBalanceDelta(ctx, tx, balance, delta)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrConcurrentUpdate.With("balance of account %s changed during posting", accountID)
		}
	}

	now := s.clock.Now()
	entry.Sequence = &seq
	entry.EntryNumber = domain.FormatEntryNumber(entry.Period, seq)
	entry.TotalDebit = debit
	entry.TotalCredit = credit
	entry.PostedAt = &now
	entry.UpdatedAt = now

	ok, err := s.repo.MarkPosted(ctx, tx, entry)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAlreadyPosted
	}
	entry.Status = domain.StatusPosted
	entry.Lines = lines
	return nil
}
