package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	"github.com/smallbiznis/ledgercore/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	JournalRepo journaldomain.Repository
}

// Service is read only. It never takes row locks and never writes.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	accountRepo accountdomain.Repository
	journalRepo journaldomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		journalRepo: p.JournalRepo,
	}
}

func (s *Service) GetAccountStatement(ctx context.Context, tenantID, accountID snowflake.ID, from, to time.Time) (domain.AccountStatement, error) {
	if tenantID == 0 {
		return domain.AccountStatement{}, domain.ErrInvalidTenant
	}
	var fromPtr, toPtr *time.Time
	if !from.IsZero() {
		from = journaldomain.DateOnly(from)
		fromPtr = &from
	}
	if !to.IsZero() {
		to = journaldomain.DateOnly(to)
		toPtr = &to
	}
	if fromPtr != nil && toPtr != nil && from.After(to) {
		return domain.AccountStatement{}, domain.ErrInvalidRange
	}

	account, leaves, err := s.resolveLeaves(ctx, tenantID, accountID)
	if err != nil {
		return domain.AccountStatement{}, err
	}
	leafIDs := make([]snowflake.ID, 0, len(leaves))
	opening := decimal.Zero
	for _, leaf := range leaves {
		leafIDs = append(leafIDs, leaf.ID)
		opening = opening.Add(account.Nature.FromNetDebit(leaf.Nature.NetDebit(leaf.OpeningBalance)))
	}

	if fromPtr != nil {
		before, err := s.repo.ListPostingsBefore(ctx, s.db, tenantID, leafIDs, from)
		if err != nil {
			return domain.AccountStatement{}, err
		}
		for _, p := range before {
			opening = opening.Add(account.Nature.SignedDelta(p.Debit, p.Credit))
		}
	}

	postings, err := s.repo.ListPostings(ctx, s.db, tenantID, leafIDs, fromPtr, toPtr)
	if err != nil {
		return domain.AccountStatement{}, err
	}

	statement := domain.AccountStatement{
		Account:        account,
		From:           from,
		To:             to,
		OpeningBalance: opening,
		TotalDebit:     decimal.Zero,
		TotalCredit:    decimal.Zero,
		Lines:          make([]domain.StatementLine, 0, len(postings)),
	}
	running := opening
	for _, p := range postings {
		delta := account.Nature.SignedDelta(p.Debit, p.Credit)
		running = running.Add(delta)
		statement.TotalDebit = statement.TotalDebit.Add(p.Debit)
		statement.TotalCredit = statement.TotalCredit.Add(p.Credit)
		statement.Lines = append(statement.Lines, domain.StatementLine{
			Posting:        p,
			SignedDelta:    delta,
			RunningBalance: running,
		})
	}
	statement.ClosingBalance = running
	return statement, nil
}

func (s *Service) GetTrialBalance(ctx context.Context, tenantID snowflake.ID, asOf time.Time) (domain.TrialBalance, error) {
	if tenantID == 0 {
		return domain.TrialBalance{}, domain.ErrInvalidTenant
	}
	if asOf.IsZero() {
		return domain.TrialBalance{}, domain.ErrInvalidAsOf
	}
	asOf = journaldomain.DateOnly(asOf)

	if err := s.checkEntries(ctx, tenantID, &asOf); err != nil {
		return domain.TrialBalance{}, err
	}

	tree, err := s.loadTree(ctx, tenantID)
	if err != nil {
		return domain.TrialBalance{}, err
	}

	var leafIDs []snowflake.ID
	netDebit := make(map[snowflake.ID]decimal.Decimal)
	openingDiff := decimal.Zero
	tree.PostOrder(func(n *accountdomain.AccountNode) {
		if n.IsLeaf() {
			leafIDs = append(leafIDs, n.ID)
			opening := n.Nature.NetDebit(n.OpeningBalance)
			netDebit[n.ID] = opening
			openingDiff = openingDiff.Add(opening)
		}
	})

	postings, err := s.repo.ListPostings(ctx, s.db, tenantID, leafIDs, nil, &asOf)
	if err != nil {
		return domain.TrialBalance{}, err
	}
	for _, p := range postings {
		netDebit[p.AccountID] = netDebit[p.AccountID].Add(p.Debit).Sub(p.Credit)
	}

	// Parents are the sum of their children, computed bottom-up once.
	tree.PostOrder(func(n *accountdomain.AccountNode) {
		if n.IsLeaf() {
			return
		}
		sum := decimal.Zero
		for _, child := range n.Children {
			sum = sum.Add(netDebit[child.ID])
		}
		netDebit[n.ID] = sum
	})

	tb := domain.TrialBalance{
		AsOf:        asOf,
		TotalDebit:  decimal.Zero,
		TotalCredit: decimal.Zero,
	}
	var walk func(nodes []*accountdomain.AccountNode)
	walk = func(nodes []*accountdomain.AccountNode) {
		for _, n := range nodes {
			row := trialBalanceRow(n, netDebit[n.ID])
			tb.Rows = append(tb.Rows, row)
			if n.IsLeaf() {
				tb.TotalDebit = tb.TotalDebit.Add(row.Debit)
				tb.TotalCredit = tb.TotalCredit.Add(row.Credit)
			}
			walk(n.Children)
		}
	}
	walk(tree.Roots())

	// Posted entries always balance, so a non-zero opening difference is the
	// usual cause of a mismatch and is logged with it.
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		s.log.Error("trial balance does not balance",
			zap.String("tenant_id", tenantID.String()),
			zap.Time("as_of", asOf),
			zap.String("total_debit", tb.TotalDebit.String()),
			zap.String("total_credit", tb.TotalCredit.String()),
			zap.String("opening_difference", openingDiff.String()),
		)
		return domain.TrialBalance{}, domain.ErrTrialImbalance.With(
			"debit %s, credit %s as of %s (opening difference %s)",
			tb.TotalDebit, tb.TotalCredit, asOf.Format(time.DateOnly), openingDiff)
	}
	return tb, nil
}

func (s *Service) GetAccountBalance(ctx context.Context, tenantID, accountID snowflake.ID) (domain.AccountBalance, error) {
	if tenantID == 0 {
		return domain.AccountBalance{}, domain.ErrInvalidTenant
	}

	account, leaves, err := s.resolveLeaves(ctx, tenantID, accountID)
	if err != nil {
		return domain.AccountBalance{}, err
	}

	leafIDs := make([]snowflake.ID, 0, len(leaves))
	for _, leaf := range leaves {
		leafIDs = append(leafIDs, leaf.ID)
	}
	postings, err := s.repo.ListPostings(ctx, s.db, tenantID, leafIDs, nil, nil)
	if err != nil {
		return domain.AccountBalance{}, err
	}
	recomputed := make(map[snowflake.ID]decimal.Decimal, len(leaves))
	natures := make(map[snowflake.ID]accountdomain.Nature, len(leaves))
	for _, leaf := range leaves {
		natures[leaf.ID] = leaf.Nature
	}
	for _, p := range postings {
		recomputed[p.AccountID] = recomputed[p.AccountID].Add(natures[p.AccountID].SignedDelta(p.Debit, p.Credit))
	}

	result := domain.AccountBalance{
		AccountID:      account.ID,
		Code:           account.Code,
		Nature:         account.Nature,
		OpeningBalance: decimal.Zero,
		PostedDelta:    decimal.Zero,
	}
	for _, leaf := range leaves {
		stored, err := s.journalRepo.FindBalance(ctx, s.db, tenantID, leaf.ID)
		if err != nil {
			return domain.AccountBalance{}, err
		}
		delta := decimal.Zero
		if stored != nil {
			delta = stored.PostedDelta
		}
		if !delta.Equal(recomputed[leaf.ID]) {
			s.log.Error("stored balance drifted from postings",
				zap.String("tenant_id", tenantID.String()),
				zap.String("account_id", leaf.ID.String()),
				zap.String("stored", delta.String()),
				zap.String("recomputed", recomputed[leaf.ID].String()),
			)
			return domain.AccountBalance{}, domain.ErrBalanceDrift.With(
				"account %s stores %s but its postings sum to %s", leaf.Code, delta, recomputed[leaf.ID])
		}
		result.OpeningBalance = result.OpeningBalance.Add(account.Nature.FromNetDebit(leaf.Nature.NetDebit(leaf.OpeningBalance)))
		result.PostedDelta = result.PostedDelta.Add(account.Nature.FromNetDebit(leaf.Nature.NetDebit(delta)))
	}
	result.Balance = result.OpeningBalance.Add(result.PostedDelta)
	return result, nil
}

// resolveLeaves returns the account and the leaves whose postings make up
// its balance: the account itself for a leaf, every leaf descendant for a
// parent.
func (s *Service) resolveLeaves(ctx context.Context, tenantID, accountID snowflake.ID) (accountdomain.Account, []accountdomain.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, s.db, tenantID, accountID)
	if err != nil {
		return accountdomain.Account{}, nil, err
	}
	if account == nil {
		return accountdomain.Account{}, nil, accountdomain.ErrNotFound
	}
	if account.IsLeaf() {
		return *account, []accountdomain.Account{*account}, nil
	}

	tree, err := s.loadTree(ctx, tenantID)
	if err != nil {
		return accountdomain.Account{}, nil, err
	}
	return *account, tree.LeafDescendants(account.ID), nil
}

func (s *Service) loadTree(ctx context.Context, tenantID snowflake.ID) (*accountdomain.Tree, error) {
	items, err := s.accountRepo.List(ctx, s.db, tenantID, accountdomain.ListAccountRequest{})
	if err != nil {
		return nil, err
	}
	accounts := make([]accountdomain.Account, 0, len(items))
	for _, item := range items {
		if item != nil {
			accounts = append(accounts, *item)
		}
	}
	tree, unreachable := accountdomain.BuildTree(accounts)
	if len(unreachable) > 0 {
		s.log.Error("account tree inconsistent",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("unreachable", len(unreachable)),
		)
		return nil, accountdomain.ErrTreeInconsistent.With("%d account(s) unreachable from any root", len(unreachable))
	}
	return tree, nil
}

func (s *Service) checkEntries(ctx context.Context, tenantID snowflake.ID, to *time.Time) error {
	totals, err := s.repo.ListEntryTotals(ctx, s.db, tenantID, to)
	if err != nil {
		return err
	}
	for _, t := range totals {
		if t.Balanced() {
			continue
		}
		s.log.Error("posted entry is imbalanced",
			zap.String("tenant_id", tenantID.String()),
			zap.String("entry_id", t.EntryID.String()),
			zap.String("entry_number", t.EntryNumber),
			zap.String("line_debit", t.LineDebit.String()),
			zap.String("line_credit", t.LineCredit.String()),
		)
		return domain.ErrEntryImbalanced.With("entry %s: debit %s, credit %s", t.EntryNumber, t.LineDebit, t.LineCredit)
	}
	return nil
}

func trialBalanceRow(n *accountdomain.AccountNode, netDebit decimal.Decimal) domain.TrialBalanceRow {
	row := domain.TrialBalanceRow{
		AccountID: n.ID,
		ParentID:  n.ParentID,
		Code:      n.Code,
		Name:      n.Name,
		Category:  n.Category,
		Nature:    n.Nature,
		Level:     n.Level,
		IsParent:  n.IsParent,
		Balance:   n.Nature.FromNetDebit(netDebit),
		Debit:     decimal.Zero,
		Credit:    decimal.Zero,
	}
	if netDebit.IsPositive() {
		row.Debit = netDebit
	} else {
		row.Credit = netDebit.Neg()
	}
	return row
}
