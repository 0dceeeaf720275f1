package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ledgercore/internal/account/domain"
	"go.uber.org/zap"
)

// Well-known codes of the default utility chart. Rule templates and the
// reconciliation seeds refer to accounts by these codes.
const (
	CodeCashOnHand              = "1110"
	CodeBank                    = "1120"
	CodeAccountsReceivable      = "1130"
	CodeInventory               = "1140"
	CodeMetersEquipment         = "1210"
	CodeAccumulatedDepreciation = "1290"
	CodeAccountsPayable         = "2110"
	CodePrepaidBalances         = "2150"
	CodeCustomerDeposits        = "2160"
	CodeOwnersCapital           = "3100"
	CodeRetainedEarnings        = "3200"
	CodeServiceRevenue          = "4100"
	CodeConnectionFees          = "4200"
	CodeSalaries                = "5100"
	CodeDepreciationExpense     = "5200"
	CodeOperatingExpenses       = "5300"
)

type chartItem struct {
	code       string
	name       string
	category   domain.Category
	nature     domain.Nature
	parentCode string
	isParent   bool
}

var defaultChart = []chartItem{
	{code: "1000", name: "Assets", category: domain.CategoryAsset, isParent: true},
	{code: "1100", name: "Current Assets", category: domain.CategoryAsset, parentCode: "1000", isParent: true},
	{code: CodeCashOnHand, name: "Cash on Hand", category: domain.CategoryAsset, parentCode: "1100"},
	{code: CodeBank, name: "Bank Account", category: domain.CategoryAsset, parentCode: "1100"},
	{code: CodeAccountsReceivable, name: "Accounts Receivable", category: domain.CategoryAsset, parentCode: "1100", isParent: true},
	{code: CodeInventory, name: "Meter & Materials Inventory", category: domain.CategoryAsset, parentCode: "1100"},
	{code: "1200", name: "Fixed Assets", category: domain.CategoryAsset, parentCode: "1000", isParent: true},
	{code: CodeMetersEquipment, name: "Meters & Network Equipment", category: domain.CategoryAsset, parentCode: "1200"},
	{code: CodeAccumulatedDepreciation, name: "Accumulated Depreciation", category: domain.CategoryAsset, nature: domain.NatureCredit, parentCode: "1200"},
	{code: "2000", name: "Liabilities", category: domain.CategoryLiability, isParent: true},
	{code: "2100", name: "Current Liabilities", category: domain.CategoryLiability, parentCode: "2000", isParent: true},
	{code: CodeAccountsPayable, name: "Accounts Payable", category: domain.CategoryLiability, parentCode: "2100", isParent: true},
	{code: CodePrepaidBalances, name: "Prepaid Customer Balances", category: domain.CategoryLiability, parentCode: "2100", isParent: true},
	{code: CodeCustomerDeposits, name: "Customer Deposits", category: domain.CategoryLiability, parentCode: "2100"},
	{code: "3000", name: "Equity", category: domain.CategoryEquity, isParent: true},
	{code: CodeOwnersCapital, name: "Owner's Capital", category: domain.CategoryEquity, parentCode: "3000"},
	{code: CodeRetainedEarnings, name: "Retained Earnings", category: domain.CategoryEquity, parentCode: "3000"},
	{code: "4000", name: "Revenue", category: domain.CategoryRevenue, isParent: true},
	{code: CodeServiceRevenue, name: "Utility Service Revenue", category: domain.CategoryRevenue, parentCode: "4000"},
	{code: CodeConnectionFees, name: "Connection & Upgrade Fees", category: domain.CategoryRevenue, parentCode: "4000"},
	{code: "5000", name: "Expenses", category: domain.CategoryExpense, isParent: true},
	{code: CodeSalaries, name: "Salaries & Wages", category: domain.CategoryExpense, parentCode: "5000"},
	{code: CodeDepreciationExpense, name: "Depreciation Expense", category: domain.CategoryExpense, parentCode: "5000"},
	{code: CodeOperatingExpenses, name: "Operating Expenses", category: domain.CategoryExpense, parentCode: "5000"},
}

// DefaultChartCurrency is used for accounts installed by SeedDefaultChart.
const DefaultChartCurrency = "IDR"

// SeedDefaultChart installs the default chart. Existing codes are kept as is.
func (s *Service) SeedDefaultChart(ctx context.Context, tenantID snowflake.ID) (domain.SeedResult, error) {
	if tenantID == 0 {
		return domain.SeedResult{}, domain.ErrInvalidTenant
	}

	var result domain.SeedResult
	ids := make(map[string]snowflake.ID, len(defaultChart))
	for _, item := range defaultChart {
		existing, err := s.repo.FindByCode(ctx, s.db, tenantID, item.code)
		if err != nil {
			return result, err
		}
		if existing != nil {
			ids[item.code] = existing.ID
			result.Skipped++
			continue
		}

		req := domain.CreateAccountRequest{
			Code:     item.code,
			Name:     item.name,
			Category: item.category,
			Nature:   item.nature,
			IsParent: item.isParent,
			Currency: DefaultChartCurrency,
		}
		if item.parentCode != "" {
			parentID, ok := ids[item.parentCode]
			if !ok {
				return result, domain.ErrInvalidParent.With("parent %s missing for %s", item.parentCode, item.code)
			}
			req.ParentID = &parentID
		}

		created, err := s.Create(ctx, tenantID, req)
		if err != nil {
			return result, err
		}
		ids[item.code] = created.ID
		result.Created++
	}

	s.log.Info("default chart seeded",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}
