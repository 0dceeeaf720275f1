package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/config"
	"github.com/smallbiznis/ledgercore/internal/lock"
	"github.com/smallbiznis/ledgercore/internal/observability/metrics"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/matcher"
	"github.com/smallbiznis/ledgercore/pkg/db"
	"github.com/smallbiznis/ledgercore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const runLockTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Locker    lock.Locker
	Tolerance *config.ReconcileConfigHolder
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	locker    lock.Locker
	tolerance *config.ReconcileConfigHolder
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("reconciliation.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		locker:    p.Locker,
		tolerance: p.Tolerance,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateIntermediaryAccount(ctx context.Context, tenantID snowflake.ID, req domain.CreateIntermediaryAccountRequest) (domain.IntermediaryAccount, error) {
	if tenantID == 0 {
		return domain.IntermediaryAccount{}, domain.ErrInvalidTenant
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.IntermediaryAccount{}, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.IntermediaryAccount{}, domain.ErrInvalidName
	}
	from := normalizeSubsystem(req.FromSubsystem)
	to := normalizeSubsystem(req.ToSubsystem)
	if from == "" || to == "" || from == to {
		return domain.IntermediaryAccount{}, domain.ErrInvalidSubsystems
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return domain.IntermediaryAccount{}, err
	}
	if req.AmountEpsilon != nil && req.AmountEpsilon.IsNegative() {
		return domain.IntermediaryAccount{}, domain.ErrInvalidTolerance
	}
	if req.DateToleranceDays != nil && *req.DateToleranceDays < 0 {
		return domain.IntermediaryAccount{}, domain.ErrInvalidTolerance
	}

	now := s.clock.Now()
	account := domain.IntermediaryAccount{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		Code:              code,
		Name:              name,
		FromSubsystem:     from,
		ToSubsystem:       to,
		Currency:          currency,
		Balance:           decimal.Zero,
		AmountEpsilon:     req.AmountEpsilon,
		DateToleranceDays: req.DateToleranceDays,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertAccount(ctx, s.db, &account); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.IntermediaryAccount{}, domain.ErrDuplicateCode.With("code %q", code)
		}
		return domain.IntermediaryAccount{}, err
	}

	s.log.Info("intermediary account created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("intermediary_account_id", account.ID.String()),
		zap.String("code", code),
	)
	return account, nil
}

func (s *Service) GetIntermediaryAccount(ctx context.Context, tenantID, id snowflake.ID) (domain.IntermediaryAccount, error) {
	if tenantID == 0 {
		return domain.IntermediaryAccount{}, domain.ErrInvalidTenant
	}
	account, err := s.repo.FindAccount(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.IntermediaryAccount{}, err
	}
	if account == nil {
		return domain.IntermediaryAccount{}, domain.ErrAccountNotFound
	}
	return *account, nil
}

func (s *Service) ListIntermediaryAccounts(ctx context.Context, tenantID snowflake.ID) ([]domain.IntermediaryAccount, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	items, err := s.repo.ListAccounts(ctx, s.db, tenantID, false)
	if err != nil {
		return nil, err
	}
	out := make([]domain.IntermediaryAccount, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) RecordVoucher(ctx context.Context, tenantID snowflake.ID, req domain.RecordVoucherRequest) (domain.Voucher, error) {
	if tenantID == 0 {
		return domain.Voucher{}, domain.ErrInvalidTenant
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.Voucher{}, domain.ErrInvalidReference
	}
	if !req.Amount.IsPositive() {
		return domain.Voucher{}, domain.ErrInvalidAmount
	}
	if req.VoucherDate.IsZero() {
		return domain.Voucher{}, domain.ErrInvalidVoucherDate
	}

	account, err := s.repo.FindAccount(ctx, s.db, tenantID, req.IntermediaryAccountID)
	if err != nil {
		return domain.Voucher{}, err
	}
	if account == nil {
		return domain.Voucher{}, domain.ErrAccountNotFound
	}
	if !account.IsActive {
		return domain.Voucher{}, domain.ErrAccountInactive
	}

	subsystem := normalizeSubsystem(req.Subsystem)
	var direction domain.Direction
	switch subsystem {
	case account.FromSubsystem:
		direction = domain.DirectionOutbound
	case account.ToSubsystem:
		direction = domain.DirectionInbound
	default:
		return domain.Voucher{}, domain.ErrUnknownSubsystem.With("subsystem %q", req.Subsystem)
	}

	currency := account.Currency
	if strings.TrimSpace(req.Currency) != "" {
		currency, err = normalizeCurrency(req.Currency)
		if err != nil {
			return domain.Voucher{}, err
		}
		if currency != account.Currency {
			return domain.Voucher{}, domain.ErrCurrencyMismatch.With("voucher %s, account %s", currency, account.Currency)
		}
	}

	now := s.clock.Now()
	voucher := domain.Voucher{
		ID:                    s.genID.Generate(),
		TenantID:              tenantID,
		IntermediaryAccountID: account.ID,
		Direction:             direction,
		Subsystem:             subsystem,
		Reference:             reference,
		Amount:                req.Amount,
		Currency:              currency,
		VoucherDate:           dateOnly(req.VoucherDate),
		Status:                domain.VoucherUnmatched,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.InsertVoucher(ctx, s.db, &voucher); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Voucher{}, domain.ErrDuplicateVoucher.With("reference %q", reference)
		}
		return domain.Voucher{}, err
	}

	s.log.Info("voucher recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("voucher_id", voucher.ID.String()),
		zap.String("direction", string(direction)),
		zap.String("amount", voucher.Amount.String()),
	)
	return voucher, nil
}

func (s *Service) ListVouchers(ctx context.Context, tenantID snowflake.ID, req domain.ListVoucherRequest) (domain.ListVoucherResponse, error) {
	if tenantID == 0 {
		return domain.ListVoucherResponse{}, domain.ErrInvalidTenant
	}
	afterID, err := decodeAfterID(req.PageToken)
	if err != nil {
		return domain.ListVoucherResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.ListVouchers(ctx, s.db, tenantID, req, afterID, limit+1)
	if err != nil {
		return domain.ListVoucherResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(v *domain.Voucher) pagination.Cursor {
		return pagination.Cursor{ID: v.ID.String(), CreatedAt: v.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return domain.ListVoucherResponse{}, err
	}

	vouchers := make([]domain.Voucher, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		vouchers = append(vouchers, *item)
	}
	return domain.ListVoucherResponse{PageInfo: pageInfo, Vouchers: vouchers}, nil
}

func (s *Service) RunAutoReconcile(ctx context.Context, tenantID snowflake.ID) (domain.RunResult, error) {
	if tenantID == 0 {
		return domain.RunResult{}, domain.ErrInvalidTenant
	}
	accounts, err := s.repo.ListAccounts(ctx, s.db, tenantID, true)
	if err != nil {
		return domain.RunResult{}, err
	}

	runID := ulid.Make().String()
	log := s.log.With(zap.String("tenant_id", tenantID.String()), zap.String("run_id", runID))
	result := domain.RunResult{RunID: runID, Accounts: make([]domain.AccountRunResult, 0, len(accounts))}

	var failures []error
	for _, account := range accounts {
		if account == nil {
			continue
		}
		entry := domain.AccountRunResult{IntermediaryAccountID: account.ID, Code: account.Code}

		proposed, skipped, err := s.reconcileAccount(ctx, runID, account)
		switch {
		case err != nil:
			entry.Status = domain.AccountRunFailed
			entry.Error = err.Error()
			failures = append(failures, fmt.Errorf("intermediary account %s: %w", account.Code, err))
			log.Error("reconcile account failed", zap.String("code", account.Code), zap.Error(err))
		case skipped:
			entry.Status = domain.AccountRunSkipped
			log.Info("reconcile account skipped, run in progress", zap.String("code", account.Code))
		default:
			entry.Status = domain.AccountRunCompleted
			entry.Proposed = proposed
			result.Proposed += proposed
		}
		result.Accounts = append(result.Accounts, entry)
	}

	s.metrics.RecordMatchesProposed(ctx, result.Proposed)
	log.Info("reconcile run finished",
		zap.Int("accounts", len(result.Accounts)),
		zap.Int("proposed", result.Proposed),
		zap.Int("failed", len(failures)),
	)
	return result, errors.Join(failures...)
}

// reconcileAccount proposes matches for one intermediary account while
// holding its run lock. Nothing is written unless every pair persists.
func (s *Service) reconcileAccount(ctx context.Context, runID string, account *domain.IntermediaryAccount) (int, bool, error) {
	key := "reconcile:" + account.ID.String()
	token, ok, err := s.locker.TryLock(ctx, key, runLockTTL)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("release reconcile lock failed", zap.String("key", key), zap.Error(err))
		}
	}()

	tol := s.toleranceFor(account)
	proposed := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool, err := s.repo.ListUnmatchedVouchers(ctx, tx, account.TenantID, account.ID)
		if err != nil {
			return err
		}
		rejected, err := s.repo.ListRejectedMatches(ctx, tx, account.TenantID, account.ID)
		if err != nil {
			return err
		}

		outbound := make([]matcher.Voucher, 0, len(pool))
		inbound := make([]matcher.Voucher, 0, len(pool))
		for _, v := range pool {
			mv := matcher.Voucher{ID: v.ID, Amount: v.Amount, Date: v.VoucherDate}
			if v.Direction == domain.DirectionOutbound {
				outbound = append(outbound, mv)
			} else {
				inbound = append(inbound, mv)
			}
		}
		excluded := make(map[matcher.PairKey]struct{}, len(rejected))
		for _, m := range rejected {
			excluded[matcher.PairKey{Outbound: m.OutboundVoucherID, Inbound: m.InboundVoucherID}] = struct{}{}
		}

		pairs := matcher.Match(outbound, inbound, tol, excluded)
		if len(pairs) == 0 {
			return nil
		}

		now := s.clock.Now()
		ids := make([]snowflake.ID, 0, 2*len(pairs))
		matches := make([]domain.ReconciliationMatch, 0, len(pairs))
		for _, p := range pairs {
			ids = append(ids, p.Outbound.ID, p.Inbound.ID)
			matches = append(matches, domain.ReconciliationMatch{
				ID:                    s.genID.Generate(),
				TenantID:              account.TenantID,
				IntermediaryAccountID: account.ID,
				RunID:                 runID,
				OutboundVoucherID:     p.Outbound.ID,
				InboundVoucherID:      p.Inbound.ID,
				AmountDifference:      p.AmountDifference,
				DateGapDays:           p.DateGapDays,
				Confidence:            p.Score,
				Status:                domain.MatchPending,
				CreatedAt:             now,
			})
		}

		moved, err := s.repo.SetVoucherStatus(ctx, tx, account.TenantID, ids, domain.VoucherUnmatched, domain.VoucherPending, now)
		if err != nil {
			return err
		}
		if moved != int64(len(ids)) {
			return domain.ErrConcurrentUpdate.With("expected %d vouchers, moved %d", len(ids), moved)
		}
		if err := s.repo.InsertMatches(ctx, tx, matches); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrVoucherTaken.Wrap(err)
			}
			return err
		}
		proposed = len(matches)
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return proposed, false, nil
}

func (s *Service) ConfirmMatch(ctx context.Context, tenantID, id snowflake.ID) (domain.ReconciliationMatch, error) {
	return s.resolve(ctx, tenantID, id, domain.MatchConfirmed)
}

func (s *Service) RejectMatch(ctx context.Context, tenantID, id snowflake.ID) (domain.ReconciliationMatch, error) {
	return s.resolve(ctx, tenantID, id, domain.MatchRejected)
}

// resolve finishes a pending match. Confirmation settles both vouchers and
// moves the net transfer into the intermediary balance; rejection returns the
// vouchers to the pool.
func (s *Service) resolve(ctx context.Context, tenantID, id snowflake.ID, status domain.MatchStatus) (domain.ReconciliationMatch, error) {
	if tenantID == 0 {
		return domain.ReconciliationMatch{}, domain.ErrInvalidTenant
	}

	var resolved domain.ReconciliationMatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.repo.FindMatchForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if match == nil {
			return domain.ErrMatchNotFound
		}
		if match.Status != domain.MatchPending {
			return domain.ErrMatchNotPending.With("match is %s", match.Status)
		}

		vouchers, err := s.repo.FindVouchers(ctx, tx, tenantID, []snowflake.ID{match.OutboundVoucherID, match.InboundVoucherID})
		if err != nil {
			return err
		}
		var outbound, inbound *domain.Voucher
		for _, v := range vouchers {
			switch v.ID {
			case match.OutboundVoucherID:
				outbound = v
			case match.InboundVoucherID:
				inbound = v
			}
		}
		if outbound == nil || inbound == nil {
			return domain.ErrVoucherStateDrift.With("match %s references missing vouchers", match.ID)
		}

		now := s.clock.Now()
		target := domain.VoucherUnmatched
		if status == domain.MatchConfirmed {
			target = domain.VoucherMatched
		}
		moved, err := s.repo.SetVoucherStatus(ctx, tx, tenantID, []snowflake.ID{outbound.ID, inbound.ID}, domain.VoucherPending, target, now)
		if err != nil {
			return err
		}
		if moved != 2 {
			return domain.ErrVoucherStateDrift.With("match %s: %d of 2 vouchers pending", match.ID, moved)
		}

		ok, err := s.repo.ResolveMatch(ctx, tx, tenantID, match.ID, status, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentUpdate
		}

		if status == domain.MatchConfirmed {
			delta := outbound.Amount.Sub(inbound.Amount)
			ok, err := s.repo.AddAccountBalance(ctx, tx, tenantID, match.IntermediaryAccountID, delta, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrAccountNotFound
			}
		}

		match.Status = status
		match.ResolvedAt = &now
		resolved = *match
		return nil
	})
	if err != nil {
		return domain.ReconciliationMatch{}, err
	}

	s.metrics.RecordMatchResolved(ctx, string(status))
	s.log.Info("reconciliation match resolved",
		zap.String("tenant_id", tenantID.String()),
		zap.String("match_id", resolved.ID.String()),
		zap.String("status", string(status)),
	)
	return resolved, nil
}

func (s *Service) GetMatch(ctx context.Context, tenantID, id snowflake.ID) (domain.ReconciliationMatch, error) {
	if tenantID == 0 {
		return domain.ReconciliationMatch{}, domain.ErrInvalidTenant
	}
	match, err := s.repo.FindMatch(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.ReconciliationMatch{}, err
	}
	if match == nil {
		return domain.ReconciliationMatch{}, domain.ErrMatchNotFound
	}
	return *match, nil
}

func (s *Service) ListReconciliations(ctx context.Context, tenantID snowflake.ID, req domain.ListMatchRequest) (domain.ListMatchResponse, error) {
	if tenantID == 0 {
		return domain.ListMatchResponse{}, domain.ErrInvalidTenant
	}
	afterID, err := decodeAfterID(req.PageToken)
	if err != nil {
		return domain.ListMatchResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.ListMatches(ctx, s.db, tenantID, req, afterID, limit+1)
	if err != nil {
		return domain.ListMatchResponse{}, err
	}
	items, pageInfo, err := pagination.BuildCursorPageInfo(items, limit, func(m *domain.ReconciliationMatch) pagination.Cursor {
		return pagination.Cursor{ID: m.ID.String(), CreatedAt: m.CreatedAt.Format(time.RFC3339)}
	})
	if err != nil {
		return domain.ListMatchResponse{}, err
	}

	matches := make([]domain.ReconciliationMatch, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		matches = append(matches, *item)
	}
	return domain.ListMatchResponse{PageInfo: pageInfo, Matches: matches}, nil
}

func (s *Service) TenantsWithOpenVouchers(ctx context.Context) ([]snowflake.ID, error) {
	return s.repo.TenantsWithUnmatched(ctx, s.db)
}

func (s *Service) toleranceFor(account *domain.IntermediaryAccount) matcher.Tolerance {
	defaults := config.DefaultReconcileConfig()
	if s.tolerance != nil {
		defaults = s.tolerance.Get()
	}
	tol := matcher.Tolerance{
		AmountEpsilon:     defaults.Epsilon(),
		DateToleranceDays: defaults.DateToleranceDays,
	}
	if account.AmountEpsilon != nil {
		tol.AmountEpsilon = *account.AmountEpsilon
	}
	if account.DateToleranceDays != nil {
		tol.DateToleranceDays = *account.DateToleranceDays
	}
	return tol
}

func decodeAfterID(token string) (*snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	if cursor == nil {
		return nil, nil
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	return &id, nil
}

func normalizeSubsystem(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeCurrency(value string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(value))
	if len(currency) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	return currency, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
