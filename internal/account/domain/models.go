package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryAsset     Category = "asset"
	CategoryLiability Category = "liability"
	CategoryEquity    Category = "equity"
	CategoryRevenue   Category = "revenue"
	CategoryExpense   Category = "expense"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryAsset, CategoryLiability, CategoryEquity, CategoryRevenue, CategoryExpense:
		return true
	}
	return false
}

// DefaultNature is the usual normal side for the category. Contra accounts
// (accumulated depreciation, for example) override it at creation.
func (c Category) DefaultNature() Nature {
	switch c {
	case CategoryAsset, CategoryExpense:
		return NatureDebit
	default:
		return NatureCredit
	}
}

// Nature is the side on which an account's balance normally grows.
type Nature string

const (
	NatureDebit  Nature = "debit"
	NatureCredit Nature = "credit"
)

func (n Nature) Valid() bool {
	return n == NatureDebit || n == NatureCredit
}

// SignedDelta is the effect of a posting on a balance of this nature.
func (n Nature) SignedDelta(debit, credit decimal.Decimal) decimal.Decimal {
	if n == NatureCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// NetDebit converts a balance of this nature into a debit-positive amount.
func (n Nature) NetDebit(balance decimal.Decimal) decimal.Decimal {
	if n == NatureCredit {
		return balance.Neg()
	}
	return balance
}

// FromNetDebit is the inverse of NetDebit.
func (n Nature) FromNetDebit(netDebit decimal.Decimal) decimal.Decimal {
	if n == NatureCredit {
		return netDebit.Neg()
	}
	return netDebit
}

type Account struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID    `gorm:"not null;uniqueIndex:ux_accounts_tenant_code,priority:1" json:"tenant_id"`
	Code           string          `gorm:"size:64;not null;uniqueIndex:ux_accounts_tenant_code,priority:2" json:"code"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	LocalName      string          `gorm:"size:255" json:"local_name,omitempty"`
	Category       Category        `gorm:"size:16;not null" json:"category"`
	Nature         Nature          `gorm:"size:8;not null" json:"nature"`
	ParentID       *snowflake.ID   `gorm:"index" json:"parent_id,omitempty"`
	Level          int             `gorm:"not null" json:"level"`
	IsParent       bool            `gorm:"not null" json:"is_parent"`
	Currency       string          `gorm:"size:3;not null" json:"currency"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"opening_balance"`
	IsActive       bool            `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// IsLeaf reports whether the account may appear on a journal line.
func (a Account) IsLeaf() bool {
	return !a.IsParent
}
