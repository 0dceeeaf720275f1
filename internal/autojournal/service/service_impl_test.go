package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/ledgercore/internal/account/domain"
	accountrepository "github.com/smallbiznis/ledgercore/internal/account/repository"
	accountservice "github.com/smallbiznis/ledgercore/internal/account/service"
	"github.com/smallbiznis/ledgercore/internal/autojournal/domain"
	"github.com/smallbiznis/ledgercore/internal/autojournal/service"
	"github.com/smallbiznis/ledgercore/internal/clock"
	"github.com/smallbiznis/ledgercore/internal/errs"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
	journalrepository "github.com/smallbiznis/ledgercore/internal/journal/repository"
	journalservice "github.com/smallbiznis/ledgercore/internal/journal/service"
	"github.com/smallbiznis/ledgercore/internal/observability/metrics"
	"github.com/smallbiznis/ledgercore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(21)

var d = decimal.RequireFromString

type fixture struct {
	db       *gorm.DB
	reader   *sdkmetric.ManualReader
	accounts accountdomain.Service
	journal  journaldomain.Service
	svc      domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.OpenDB(t)
	node := testutil.Node(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC))
	accountRepo := accountrepository.Provide()

	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(metrics.Config{}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	f := &fixture{db: conn, reader: reader}
	f.accounts = accountservice.New(accountservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: accountRepo,
	})
	f.journal = journalservice.New(journalservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: journalrepository.Provide(), AccountRepo: accountRepo, Metrics: m,
	})
	f.svc = service.New(service.Params{
		Log: zap.NewNop(), Clock: clk, AccountSvc: f.accounts, JournalSvc: f.journal, Metrics: m,
	})

	_, err = f.accounts.SeedDefaultChart(context.Background(), tenantID)
	require.NoError(t, err)
	return f
}

func (f *fixture) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func invoiceEvent(sourceID string) domain.BusinessEvent {
	return domain.BusinessEvent{
		EventType:    domain.EventInvoiceIssued,
		SourceModule: "billing",
		SourceID:     sourceID,
		PartyRef:     "CUST-001",
		PartyName:    "Siti Rahayu",
		Currency:     "idr",
		OccurredAt:   time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		Amounts:      map[string]decimal.Decimal{"amount": d("150000")},
		Attributes:   map[string]any{"meter_id": "MTR-9"},
	}
}

func TestRecordInvoiceIssuedPostsBalancedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.RecordBusinessEvent(ctx, tenantID, invoiceEvent("INV-001"))
	require.NoError(t, err)
	require.True(t, res.Created)

	entry := res.Entry
	assert.Equal(t, journaldomain.StatusPosted, entry.Status)
	assert.Equal(t, journaldomain.EntryTypeAutoSales, entry.Type)
	assert.Equal(t, "JV-202405-00001", entry.EntryNumber)
	require.NotNil(t, entry.SourceModule)
	assert.Equal(t, "billing", *entry.SourceModule)
	assert.Equal(t, "invoice.issued", *entry.EventType)

	receivable, err := f.accounts.FindByCode(ctx, tenantID, "1130-cust-001")
	require.NoError(t, err)
	revenue, err := f.accounts.FindByCode(ctx, tenantID, accountservice.CodeServiceRevenue)
	require.NoError(t, err)

	require.Len(t, entry.Lines, 2)
	assert.Equal(t, receivable.ID, entry.Lines[0].AccountID)
	assert.True(t, entry.Lines[0].Debit.Equal(d("150000")))
	assert.Equal(t, revenue.ID, entry.Lines[1].AccountID)
	assert.True(t, entry.Lines[1].Credit.Equal(d("150000")))

	stored, err := f.journal.GetByID(ctx, tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "MTR-9", stored.Metadata["meter_id"])
	assert.Equal(t, "CUST-001", stored.Metadata["party_ref"])

	assert.EqualValues(t, 1, f.counter(t, "ledgercore_business_events_total"))
	assert.EqualValues(t, 1, f.counter(t, "ledgercore_journal_entries_posted_total"))
}

func TestRecordBusinessEventIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.RecordBusinessEvent(ctx, tenantID, invoiceEvent("INV-002"))
	require.NoError(t, err)
	second, err := f.svc.RecordBusinessEvent(ctx, tenantID, invoiceEvent("INV-002"))
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	var count int64
	require.NoError(t, f.db.Table("journal_entries").Where("source_id = ?", "INV-002").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Same source under another event type is a separate entry.
	payment := invoiceEvent("INV-002")
	payment.EventType = domain.EventPaymentReceived
	res, err := f.svc.RecordBusinessEvent(ctx, tenantID, payment)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestConcurrentDuplicateEventsProduceOneEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	results := make([]domain.Result, n)
	errors := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errors[i] = f.svc.RecordBusinessEvent(ctx, tenantID, invoiceEvent("INV-RACE"))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		if errors[i] != nil {
			assert.ErrorIs(t, errors[i], errs.ErrConflict)
			continue
		}
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)

	var count int64
	require.NoError(t, f.db.Table("journal_entries").Where("source_id = ?", "INV-RACE").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordBusinessEventValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	unknown := invoiceEvent("X-1")
	unknown.EventType = "invoice.voided"
	_, err := f.svc.RecordBusinessEvent(ctx, tenantID, unknown)
	assert.ErrorIs(t, err, domain.ErrUnknownEventType)
	assert.ErrorIs(t, err, errs.ErrValidation)

	payroll := domain.BusinessEvent{
		EventType:    domain.EventPayrollDisbursed,
		SourceModule: "payroll",
		SourceID:     "RUN-2024-05",
		Amounts:      map[string]decimal.Decimal{"amount": d("100")},
	}
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, payroll)
	assert.ErrorIs(t, err, domain.ErrMissingAmount)

	payroll.Amounts = map[string]decimal.Decimal{"net_pay": d("0")}
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, payroll)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	noParty := invoiceEvent("X-2")
	noParty.PartyRef = ""
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, noParty)
	assert.ErrorIs(t, err, domain.ErrPartyRequired)

	usd := invoiceEvent("X-3")
	usd.Currency = "USD"
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, usd)
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	noSource := invoiceEvent("")
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, noSource)
	assert.ErrorIs(t, err, domain.ErrMissingSource)

	var count int64
	require.NoError(t, f.db.Table("journal_entries").Count(&count).Error)
	assert.Zero(t, count)
}

func TestRefusedEventLeavesChartUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	countAccounts := func() int64 {
		var n int64
		require.NoError(t, f.db.Table("accounts").Count(&n).Error)
		return n
	}
	before := countAccounts()

	foreign := invoiceEvent("INV-ZZZ")
	foreign.PartyRef = "cust-77"
	foreign.Currency = "ZZZ"
	_, err := f.svc.RecordBusinessEvent(ctx, tenantID, foreign)
	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	assert.Equal(t, before, countAccounts())

	revenue, err := f.accounts.FindByCode(ctx, tenantID, accountservice.CodeServiceRevenue)
	require.NoError(t, err)
	inactive := false
	_, err = f.accounts.Update(ctx, tenantID, revenue.ID, accountdomain.UpdateAccountRequest{IsActive: &inactive})
	require.NoError(t, err)

	blocked := invoiceEvent("INV-BLOCKED")
	blocked.PartyRef = "cust-78"
	_, err = f.svc.RecordBusinessEvent(ctx, tenantID, blocked)
	assert.ErrorIs(t, err, accountdomain.ErrAccountInactive)
	assert.Equal(t, before, countAccounts())

	_, err = f.accounts.FindByCode(ctx, tenantID, "1130-cust-78")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEveryRuleProducesPostedEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rules := f.svc.Rules()
	require.Len(t, rules, 9)
	for _, rule := range rules {
		event := domain.BusinessEvent{
			EventType:    rule.EventType,
			SourceModule: "test",
			SourceID:     "SRC-" + string(rule.EventType),
			PartyRef:     "PARTY-1",
			Amounts:      map[string]decimal.Decimal{rule.AmountField: d("10.50")},
		}
		res, err := f.svc.RecordBusinessEvent(ctx, tenantID, event)
		require.NoError(t, err, rule.EventType)
		assert.Equal(t, rule.EntryType, res.Entry.Type)
		assert.True(t, res.Entry.TotalDebit.Equal(res.Entry.TotalCredit))
		assert.Equal(t, "2024-05", res.Entry.Period)
	}
}
