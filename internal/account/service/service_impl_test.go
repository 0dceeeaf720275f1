package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgercore/internal/account/domain"
	"github.com/smallbiznis/ledgercore/internal/account/repository"
	"github.com/smallbiznis/ledgercore/internal/account/service"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/errs"
	"github.com/smallbiznis/ledgercore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(42)

type fixture struct {
	db  *gorm.DB
	svc domain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.OpenDB(t)
	svc := service.New(service.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: testutil.Node(t),
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return fixture{db: conn, svc: svc}
}

func (f fixture) create(t *testing.T, req domain.CreateAccountRequest) domain.Account {
	t.Helper()
	if req.Currency == "" {
		req.Currency = "IDR"
	}
	acc, err := f.svc.Create(context.Background(), tenantID, req)
	require.NoError(t, err)
	return acc
}

func TestCreateDerivesLevelAndNature(t *testing.T) {
	f := newFixture(t)

	group := f.create(t, domain.CreateAccountRequest{Code: "4000", Name: "Revenue", Category: domain.CategoryRevenue, IsParent: true})
	leaf := f.create(t, domain.CreateAccountRequest{Code: "4100", Name: "Service Revenue", Category: domain.CategoryRevenue, ParentID: &group.ID, Currency: "idr"})

	assert.Equal(t, 1, group.Level)
	assert.Equal(t, 2, leaf.Level)
	assert.Equal(t, domain.NatureCredit, leaf.Nature)
	assert.Equal(t, "IDR", leaf.Currency)
	assert.True(t, leaf.IsActive)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leaf := f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset})

	cases := []struct {
		name string
		req  domain.CreateAccountRequest
		want error
	}{
		{"missing code", domain.CreateAccountRequest{Name: "x", Category: domain.CategoryAsset, Currency: "IDR"}, domain.ErrInvalidCode},
		{"bad category", domain.CreateAccountRequest{Code: "9", Name: "x", Category: "income", Currency: "IDR"}, domain.ErrInvalidCategory},
		{"bad currency", domain.CreateAccountRequest{Code: "9", Name: "x", Category: domain.CategoryAsset, Currency: "RP"}, domain.ErrInvalidCurrency},
		{"leaf parent", domain.CreateAccountRequest{Code: "9", Name: "x", Category: domain.CategoryAsset, Currency: "IDR", ParentID: &leaf.ID}, domain.ErrParentNotGroup},
		{"parent with balance", domain.CreateAccountRequest{Code: "9", Name: "x", Category: domain.CategoryAsset, Currency: "IDR", IsParent: true, OpeningBalance: decimal.NewFromInt(1)}, domain.ErrParentOpeningBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tenantID, tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}
}

func TestCreateDuplicateCodeIsConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset})

	_, err := f.svc.Create(context.Background(), tenantID, domain.CreateAccountRequest{
		Code: "1110", Name: "Cash again", Category: domain.CategoryAsset, Currency: "IDR",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)
	assert.ErrorIs(t, err, errs.ErrConflict)

	_, err = f.svc.Create(context.Background(), tenantID+1, domain.CreateAccountRequest{
		Code: "1110", Name: "Other tenant", Category: domain.CategoryAsset, Currency: "IDR",
	})
	assert.NoError(t, err)
}

func TestUpdateStructuralFieldsLockedAfterPosting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash := f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset})

	newCode := "1111"
	updated, err := f.svc.Update(ctx, tenantID, cash.ID, domain.UpdateAccountRequest{Code: &newCode})
	require.NoError(t, err)
	assert.Equal(t, "1111", updated.Code)

	insertPostedLine(t, f.db, cash.ID)

	nature := domain.NatureCredit
	_, err = f.svc.Update(ctx, tenantID, cash.ID, domain.UpdateAccountRequest{Nature: &nature})
	assert.ErrorIs(t, err, domain.ErrStructuralChange)

	name := "Petty Cash"
	updated, err = f.svc.Update(ctx, tenantID, cash.ID, domain.UpdateAccountRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Petty Cash", updated.Name)

	other := snowflake.ID(7)
	_, err = f.svc.Update(ctx, tenantID, cash.ID, domain.UpdateAccountRequest{ParentID: &other})
	assert.ErrorIs(t, err, domain.ErrParentImmutable)
}

func TestDeleteConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.create(t, domain.CreateAccountRequest{Code: "1000", Name: "Assets", Category: domain.CategoryAsset, IsParent: true})
	cash := f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset, ParentID: &group.ID})
	bank := f.create(t, domain.CreateAccountRequest{Code: "1120", Name: "Bank", Category: domain.CategoryAsset, ParentID: &group.ID})

	assert.ErrorIs(t, f.svc.Delete(ctx, tenantID, group.ID), domain.ErrHasChildren)

	insertPostedLine(t, f.db, cash.ID)
	assert.ErrorIs(t, f.svc.Delete(ctx, tenantID, cash.ID), domain.ErrHasPostings)

	require.NoError(t, f.svc.Delete(ctx, tenantID, bank.ID))
	_, err := f.svc.GetByID(ctx, tenantID, bank.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, tenantID, bank.ID), domain.ErrNotFound)
}

func TestResolveLeafRejectsParentsAndInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.create(t, domain.CreateAccountRequest{Code: "1000", Name: "Assets", Category: domain.CategoryAsset, IsParent: true})
	cash := f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset, ParentID: &group.ID})

	_, err := f.svc.ResolveLeaf(ctx, tenantID, group.ID)
	assert.ErrorIs(t, err, domain.ErrAccountIsParent)
	assert.ErrorIs(t, err, errs.ErrValidation)

	got, err := f.svc.ResolveLeaf(ctx, tenantID, cash.ID)
	require.NoError(t, err)
	assert.Equal(t, cash.ID, got.ID)

	inactive := false
	_, err = f.svc.Update(ctx, tenantID, cash.ID, domain.UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.svc.ResolveLeaf(ctx, tenantID, cash.ID)
	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}

func TestSeedDefaultChartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SeedDefaultChart(ctx, tenantID)
	require.NoError(t, err)
	assert.Positive(t, first.Created)
	assert.Zero(t, first.Skipped)

	second, err := f.svc.SeedDefaultChart(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, first.Created, second.Skipped)

	roots, err := f.svc.GetTree(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, roots, 5)
	assert.Equal(t, "1000", roots[0].Code)

	depr, err := f.svc.FindByCode(ctx, tenantID, service.CodeAccumulatedDepreciation)
	require.NoError(t, err)
	assert.Equal(t, domain.NatureCredit, depr.Nature)
	assert.Equal(t, 3, depr.Level)

	leaves, err := f.svc.List(ctx, tenantID, domain.ListAccountRequest{LeafOnly: true, Category: domain.CategoryRevenue})
	require.NoError(t, err)
	assert.Len(t, leaves, 2)
}

func TestEnsureSubAccountCreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.SeedDefaultChart(ctx, tenantID)
	require.NoError(t, err)

	first, err := f.svc.EnsureSubAccount(ctx, tenantID, service.CodeAccountsReceivable, "CUST 001", "Budi Santoso")
	require.NoError(t, err)
	assert.Equal(t, "1130-cust-001", first.Code)
	assert.Equal(t, "Accounts Receivable - Budi Santoso", first.Name)
	assert.Equal(t, 4, first.Level)
	assert.True(t, first.IsLeaf())

	again, err := f.svc.EnsureSubAccount(ctx, tenantID, service.CodeAccountsReceivable, "cust-001", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = f.svc.EnsureSubAccount(ctx, tenantID, service.CodeCashOnHand, "CUST 001", "")
	assert.ErrorIs(t, err, domain.ErrParentNotGroup)

	_, err = f.svc.EnsureSubAccount(ctx, tenantID, service.CodeAccountsReceivable, "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidPartyRef)
}

func TestGetTreeReportsCorruption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group := f.create(t, domain.CreateAccountRequest{Code: "1000", Name: "Assets", Category: domain.CategoryAsset, IsParent: true})
	f.create(t, domain.CreateAccountRequest{Code: "1110", Name: "Cash", Category: domain.CategoryAsset, ParentID: &group.ID})

	require.NoError(t, f.db.Exec(`UPDATE accounts SET parent_id = ? WHERE id = ?`, 999, group.ID).Error)

	_, err := f.svc.GetTree(ctx, tenantID)
	assert.True(t, errors.Is(err, errs.ErrConsistency))
}

func insertPostedLine(t *testing.T, conn *gorm.DB, accountID snowflake.ID) {
	t.Helper()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, conn.Exec(`INSERT INTO journal_entries (id, tenant_id, entry_number, period, entry_date, type,
		description, status, total_debit, total_credit, created_at, updated_at)
		VALUES (?, ?, 'JV-202405-00001', '2024-05', ?, 'manual', '', 'posted', 1, 1, ?, ?)`,
		int64(accountID)+1, tenantID, now, now, now).Error)
	require.NoError(t, conn.Exec(`INSERT INTO journal_lines (id, entry_id, tenant_id, line_no, account_id, debit, credit, description)
		VALUES (?, ?, ?, 1, ?, 1, 0, '')`,
		int64(accountID)+2, int64(accountID)+1, tenantID, accountID).Error)
}
