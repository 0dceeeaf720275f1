package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/config"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"github.com/smallbiznis/ledgercore/internal/lock"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/domain"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/repository"
	"github.com/smallbiznis/ledgercore/internal/reconciliation/service"
	"github.com/smallbiznis/ledgercore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(31)

var d = decimal.RequireFromString

type fixture struct {
	db      *gorm.DB
	locker  *lock.LocalLocker
	svc     domain.Service
	account domain.IntermediaryAccount
}

func newFixture(t *testing.T, tol config.ReconcileConfig) *fixture {
	t.Helper()
	conn := testutil.OpenDB(t)
	locker := lock.NewLocalLocker()
	svc := service.New(service.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     testutil.Node(t),
		Clock:     clock.NewFakeClock(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)),
		Repo:      repository.Provide(),
		Locker:    locker,
		Tolerance: config.NewStaticReconcileConfigHolder(tol),
	})

	account, err := svc.CreateIntermediaryAccount(context.Background(), tenantID, domain.CreateIntermediaryAccountRequest{
		Code:          "CLR-BANK-POS",
		Name:          "Bank to POS clearing",
		FromSubsystem: "Bank",
		ToSubsystem:   "POS",
		Currency:      "idr",
	})
	require.NoError(t, err)
	return &fixture{db: conn, locker: locker, svc: svc, account: account}
}

func defaultTolerance() config.ReconcileConfig {
	return config.ReconcileConfig{AmountEpsilon: "0", DateToleranceDays: 3}
}

func (f *fixture) voucher(t *testing.T, subsystem, ref, amount string, day int) domain.Voucher {
	t.Helper()
	v, err := f.svc.RecordVoucher(context.Background(), tenantID, domain.RecordVoucherRequest{
		IntermediaryAccountID: f.account.ID,
		Subsystem:             subsystem,
		Reference:             ref,
		Amount:                d(amount),
		VoucherDate:           time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) voucherStatus(t *testing.T, id snowflake.ID) domain.VoucherStatus {
	t.Helper()
	var status string
	require.NoError(t, f.db.Raw(`SELECT status FROM vouchers WHERE id = ?`, id).Scan(&status).Error)
	return domain.VoucherStatus(status)
}

func TestCreateIntermediaryAccountNormalizes(t *testing.T) {
	f := newFixture(t, defaultTolerance())

	assert.Equal(t, "bank", f.account.FromSubsystem)
	assert.Equal(t, "pos", f.account.ToSubsystem)
	assert.Equal(t, "IDR", f.account.Currency)
	assert.True(t, f.account.Balance.IsZero())
	assert.True(t, f.account.IsActive)

	_, err := f.svc.CreateIntermediaryAccount(context.Background(), tenantID, domain.CreateIntermediaryAccountRequest{
		Code: "CLR-BANK-POS", Name: "dup", FromSubsystem: "a", ToSubsystem: "b", Currency: "IDR",
	})
	assert.ErrorIs(t, err, errs.ErrConflict)

	accounts, err := f.svc.ListIntermediaryAccounts(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestCreateIntermediaryAccountValidation(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	neg := -1
	negEps := d("-0.01")

	cases := []struct {
		name string
		req  domain.CreateIntermediaryAccountRequest
		want error
	}{
		{name: "missing code", req: domain.CreateIntermediaryAccountRequest{Name: "x", FromSubsystem: "a", ToSubsystem: "b", Currency: "IDR"}, want: domain.ErrInvalidCode},
		{name: "same subsystems", req: domain.CreateIntermediaryAccountRequest{Code: "C", Name: "x", FromSubsystem: "a", ToSubsystem: " A ", Currency: "IDR"}, want: domain.ErrInvalidSubsystems},
		{name: "bad currency", req: domain.CreateIntermediaryAccountRequest{Code: "C", Name: "x", FromSubsystem: "a", ToSubsystem: "b", Currency: "RP"}, want: domain.ErrInvalidCurrency},
		{name: "negative days", req: domain.CreateIntermediaryAccountRequest{Code: "C", Name: "x", FromSubsystem: "a", ToSubsystem: "b", Currency: "IDR", DateToleranceDays: &neg}, want: domain.ErrInvalidTolerance},
		{name: "negative epsilon", req: domain.CreateIntermediaryAccountRequest{Code: "C", Name: "x", FromSubsystem: "a", ToSubsystem: "b", Currency: "IDR", AmountEpsilon: &negEps}, want: domain.ErrInvalidTolerance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateIntermediaryAccount(context.Background(), tenantID, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestRecordVoucherDerivesDirection(t *testing.T) {
	f := newFixture(t, defaultTolerance())

	out := f.voucher(t, "bank", "TRF-1", "250.00", 1)
	in := f.voucher(t, "POS", "RCV-1", "250.00", 1)

	assert.Equal(t, domain.DirectionOutbound, out.Direction)
	assert.Equal(t, domain.DirectionInbound, in.Direction)
	assert.Equal(t, domain.VoucherUnmatched, out.Status)
	assert.Equal(t, "IDR", in.Currency)
}

func TestRecordVoucherValidation(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()
	base := func() domain.RecordVoucherRequest {
		return domain.RecordVoucherRequest{
			IntermediaryAccountID: f.account.ID,
			Subsystem:             "bank",
			Reference:             "REF",
			Amount:                d("10"),
			VoucherDate:           time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	cases := []struct {
		name   string
		mutate func(*domain.RecordVoucherRequest)
		want   error
	}{
		{name: "zero amount", mutate: func(r *domain.RecordVoucherRequest) { r.Amount = decimal.Zero }, want: domain.ErrInvalidAmount},
		{name: "negative amount", mutate: func(r *domain.RecordVoucherRequest) { r.Amount = d("-5") }, want: domain.ErrInvalidAmount},
		{name: "no reference", mutate: func(r *domain.RecordVoucherRequest) { r.Reference = " " }, want: domain.ErrInvalidReference},
		{name: "no date", mutate: func(r *domain.RecordVoucherRequest) { r.VoucherDate = time.Time{} }, want: domain.ErrInvalidVoucherDate},
		{name: "foreign subsystem", mutate: func(r *domain.RecordVoucherRequest) { r.Subsystem = "payroll" }, want: domain.ErrUnknownSubsystem},
		{name: "currency mismatch", mutate: func(r *domain.RecordVoucherRequest) { r.Currency = "USD" }, want: domain.ErrCurrencyMismatch},
		{name: "unknown account", mutate: func(r *domain.RecordVoucherRequest) { r.IntermediaryAccountID = 999 }, want: domain.ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			_, err := f.svc.RecordVoucher(ctx, tenantID, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.RecordVoucher(ctx, tenantID, base())
	require.NoError(t, err)
	_, err = f.svc.RecordVoucher(ctx, tenantID, base())
	assert.ErrorIs(t, err, domain.ErrDuplicateVoucher)
}

func TestRunAutoReconcileClosestPairWins(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()

	early := f.voucher(t, "bank", "TRF-0501", "1000.00", 1)
	late := f.voucher(t, "bank", "TRF-0503", "1000.00", 3)
	receipt := f.voucher(t, "pos", "RCV-0502", "1000.00", 2)

	result, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.Proposed)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, domain.AccountRunCompleted, result.Accounts[0].Status)

	list, err := f.svc.ListReconciliations(ctx, tenantID, domain.ListMatchRequest{RunID: result.RunID})
	require.NoError(t, err)
	require.Len(t, list.Matches, 1)
	match := list.Matches[0]
	assert.Equal(t, early.ID, match.OutboundVoucherID)
	assert.Equal(t, receipt.ID, match.InboundVoucherID)
	assert.Equal(t, domain.MatchPending, match.Status)
	assert.Equal(t, 1, match.DateGapDays)

	assert.Equal(t, domain.VoucherPending, f.voucherStatus(t, early.ID))
	assert.Equal(t, domain.VoucherPending, f.voucherStatus(t, receipt.ID))
	assert.Equal(t, domain.VoucherUnmatched, f.voucherStatus(t, late.ID))

	again, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, again.Proposed, "pending vouchers are out of the pool")
}

func TestConfirmMatchSettlesBalance(t *testing.T) {
	f := newFixture(t, config.ReconcileConfig{AmountEpsilon: "5.00", DateToleranceDays: 2})
	ctx := context.Background()

	out := f.voucher(t, "bank", "TRF-1", "1000.00", 1)
	in := f.voucher(t, "pos", "RCV-1", "997.50", 2)

	_, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	list, err := f.svc.ListReconciliations(ctx, tenantID, domain.ListMatchRequest{Status: domain.MatchPending})
	require.NoError(t, err)
	require.Len(t, list.Matches, 1)
	assert.True(t, list.Matches[0].AmountDifference.Equal(d("2.5")))

	confirmed, err := f.svc.ConfirmMatch(ctx, tenantID, list.Matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ResolvedAt)

	assert.Equal(t, domain.VoucherMatched, f.voucherStatus(t, out.ID))
	assert.Equal(t, domain.VoucherMatched, f.voucherStatus(t, in.ID))

	account, err := f.svc.GetIntermediaryAccount(ctx, tenantID, f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.Balance.Equal(d("2.5")), "balance %s", account.Balance)

	_, err = f.svc.ConfirmMatch(ctx, tenantID, confirmed.ID)
	assert.ErrorIs(t, err, domain.ErrMatchNotPending)
	_, err = f.svc.RejectMatch(ctx, tenantID, confirmed.ID)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestRejectMatchReturnsVouchersWithoutRepeatingPair(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()

	early := f.voucher(t, "bank", "TRF-0501", "1000.00", 1)
	late := f.voucher(t, "bank", "TRF-0503", "1000.00", 3)
	receipt := f.voucher(t, "pos", "RCV-0502", "1000.00", 2)

	_, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	list, err := f.svc.ListReconciliations(ctx, tenantID, domain.ListMatchRequest{})
	require.NoError(t, err)
	require.Len(t, list.Matches, 1)

	rejected, err := f.svc.RejectMatch(ctx, tenantID, list.Matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchRejected, rejected.Status)
	assert.Equal(t, domain.VoucherUnmatched, f.voucherStatus(t, early.ID))
	assert.Equal(t, domain.VoucherUnmatched, f.voucherStatus(t, receipt.ID))

	result, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Proposed)

	next, err := f.svc.ListReconciliations(ctx, tenantID, domain.ListMatchRequest{RunID: result.RunID})
	require.NoError(t, err)
	require.Len(t, next.Matches, 1)
	assert.Equal(t, late.ID, next.Matches[0].OutboundVoucherID)
	assert.Equal(t, receipt.ID, next.Matches[0].InboundVoucherID)

	account, err := f.svc.GetIntermediaryAccount(ctx, tenantID, f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
}

func TestRunAutoReconcileSkipsLockedAccount(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()

	f.voucher(t, "bank", "TRF-1", "10", 1)
	f.voucher(t, "pos", "RCV-1", "10", 1)

	token, ok, err := f.locker.TryLock(ctx, "reconcile:"+f.account.ID.String(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, domain.AccountRunSkipped, result.Accounts[0].Status)
	assert.Zero(t, result.Proposed)

	require.NoError(t, f.locker.Release(ctx, "reconcile:"+f.account.ID.String(), token))
	result, err = f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Proposed)
}

func TestPerAccountToleranceOverride(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()
	eps := d("1.00")
	days := 0

	wide, err := f.svc.CreateIntermediaryAccount(ctx, tenantID, domain.CreateIntermediaryAccountRequest{
		Code: "CLR-WIDE", Name: "Wide", FromSubsystem: "ap", ToSubsystem: "bank", Currency: "IDR",
		AmountEpsilon: &eps, DateToleranceDays: &days,
	})
	require.NoError(t, err)

	record := func(subsystem, ref, amount string, day int) {
		_, err := f.svc.RecordVoucher(ctx, tenantID, domain.RecordVoucherRequest{
			IntermediaryAccountID: wide.ID, Subsystem: subsystem, Reference: ref, Amount: d(amount),
			VoucherDate: time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	record("ap", "P-1", "100.00", 4)
	record("bank", "B-1", "100.80", 4)
	record("ap", "P-2", "50.00", 4)
	record("bank", "B-2", "50.00", 5)

	result, err := f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Proposed, "amount widened, date narrowed")
}

func TestMatchLookupsAndPagination(t *testing.T) {
	f := newFixture(t, defaultTolerance())
	ctx := context.Background()

	_, err := f.svc.GetMatch(ctx, tenantID, 12345)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.svc.ConfirmMatch(ctx, tenantID, 12345)
	assert.ErrorIs(t, err, domain.ErrMatchNotFound)

	for i := 1; i <= 3; i++ {
		ref := "R" + string(rune('0'+i))
		f.voucher(t, "bank", "T"+ref, "10", i)
		f.voucher(t, "pos", ref, "10", i)
	}
	_, err = f.svc.RunAutoReconcile(ctx, tenantID)
	require.NoError(t, err)

	page, err := f.svc.ListReconciliations(ctx, tenantID, domain.ListMatchRequest{})
	require.NoError(t, err)
	require.Len(t, page.Matches, 3)
	got, err := f.svc.GetMatch(ctx, tenantID, page.Matches[0].ID)
	require.NoError(t, err)
	assert.Equal(t, page.Matches[0].ID, got.ID)

	req := domain.ListMatchRequest{}
	req.PageSize = 2
	first, err := f.svc.ListReconciliations(ctx, tenantID, req)
	require.NoError(t, err)
	assert.Len(t, first.Matches, 2)
	assert.True(t, first.HasMore)

	req.PageToken = first.NextPageToken
	second, err := f.svc.ListReconciliations(ctx, tenantID, req)
	require.NoError(t, err)
	assert.Len(t, second.Matches, 1)
	assert.False(t, second.HasMore)

	vouchers, err := f.svc.ListVouchers(ctx, tenantID, domain.ListVoucherRequest{Status: domain.VoucherPending})
	require.NoError(t, err)
	assert.Len(t, vouchers.Vouchers, 6)

	req.PageToken = "%%%"
	_, err = f.svc.ListReconciliations(ctx, tenantID, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)

	tenants, err := f.svc.TenantsWithOpenVouchers(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)
}
