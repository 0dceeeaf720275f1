package service

import (
	accountservice "github.com/smallbiznis/ledgercore/internal/account/service"
	"github.com/smallbiznis/ledgercore/internal/autojournal/domain"
	journaldomain "github.com/smallbiznis/ledgercore/internal/journal/domain"
)

const amountField = "amount"

var rules = []domain.Rule{
	{
		EventType:   domain.EventInvoiceIssued,
		EntryType:   journaldomain.EntryTypeAutoSales,
		Debit:       domain.PartyUnder(accountservice.CodeAccountsReceivable),
		Credit:      domain.Fixed(accountservice.CodeServiceRevenue),
		AmountField: amountField,
		Description: "Invoice issued",
	},
	{
		EventType:   domain.EventPaymentReceived,
		EntryType:   journaldomain.EntryTypeAutoReceipt,
		Debit:       domain.Fixed(accountservice.CodeCashOnHand),
		Credit:      domain.PartyUnder(accountservice.CodeAccountsReceivable),
		AmountField: amountField,
		Description: "Payment received",
	},
	{
		EventType:   domain.EventPrepaidRecharged,
		EntryType:   journaldomain.EntryTypeAutoReceipt,
		Debit:       domain.Fixed(accountservice.CodeCashOnHand),
		Credit:      domain.PartyUnder(accountservice.CodePrepaidBalances),
		AmountField: amountField,
		Description: "Prepaid meter recharge",
	},
	{
		EventType:   domain.EventInventoryReceived,
		EntryType:   journaldomain.EntryTypeAutoPurchase,
		Debit:       domain.Fixed(accountservice.CodeInventory),
		Credit:      domain.PartyUnder(accountservice.CodeAccountsPayable),
		AmountField: amountField,
		Description: "Inventory received",
	},
	{
		EventType:   domain.EventSupplierPaid,
		EntryType:   journaldomain.EntryTypeAutoPurchase,
		Debit:       domain.PartyUnder(accountservice.CodeAccountsPayable),
		Credit:      domain.Fixed(accountservice.CodeBank),
		AmountField: amountField,
		Description: "Supplier payment",
	},
	{
		EventType:   domain.EventPayrollDisbursed,
		EntryType:   journaldomain.EntryTypeAutoPayroll,
		Debit:       domain.Fixed(accountservice.CodeSalaries),
		Credit:      domain.Fixed(accountservice.CodeBank),
		AmountField: "net_pay",
		Description: "Payroll disbursement",
	},
	{
		EventType:   domain.EventMeterReplaced,
		EntryType:   journaldomain.EntryTypeAutoAsset,
		Debit:       domain.Fixed(accountservice.CodeMetersEquipment),
		Credit:      domain.Fixed(accountservice.CodeInventory),
		AmountField: amountField,
		Description: "Meter replacement",
	},
	{
		EventType:   domain.EventSubscriptionUpgraded,
		EntryType:   journaldomain.EntryTypeAutoSales,
		Debit:       domain.PartyUnder(accountservice.CodeAccountsReceivable),
		Credit:      domain.Fixed(accountservice.CodeConnectionFees),
		AmountField: amountField,
		Description: "Subscription upgrade",
	},
	{
		EventType:   domain.EventAssetDepreciated,
		EntryType:   journaldomain.EntryTypeAutoAsset,
		Debit:       domain.Fixed(accountservice.CodeDepreciationExpense),
		Credit:      domain.Fixed(accountservice.CodeAccumulatedDepreciation),
		AmountField: amountField,
		Description: "Asset depreciation",
	},
}

var rulesByEvent = func() map[domain.EventType]domain.Rule {
	out := make(map[domain.EventType]domain.Rule, len(rules))
	for _, r := range rules {
		out[r.EventType] = r
	}
	return out
}()
