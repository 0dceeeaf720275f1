package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// IntermediaryAccount is the clearing account between two subsystems. Balance
// is the net of confirmed transfers: outbound amounts in, inbound amounts out.
type IntermediaryAccount struct {
	ID                snowflake.ID     `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID     `gorm:"not null;uniqueIndex:ux_intermediary_accounts_tenant_code,priority:1" json:"tenant_id"`
	Code              string           `gorm:"size:64;not null;uniqueIndex:ux_intermediary_accounts_tenant_code,priority:2" json:"code"`
	Name              string           `gorm:"size:255;not null" json:"name"`
	FromSubsystem     string           `gorm:"size:64;not null" json:"from_subsystem"`
	ToSubsystem       string           `gorm:"size:64;not null" json:"to_subsystem"`
	Currency          string           `gorm:"size:3;not null" json:"currency"`
	Balance           decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"balance"`
	AmountEpsilon     *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_epsilon,omitempty"`
	DateToleranceDays *int             `json:"date_tolerance_days,omitempty"`
	IsActive          bool             `gorm:"not null" json:"is_active"`
	CreatedAt         time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"not null" json:"updated_at"`
}

func (IntermediaryAccount) TableName() string { return "intermediary_accounts" }

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

type VoucherStatus string

const (
	VoucherUnmatched VoucherStatus = "unmatched"
	VoucherPending   VoucherStatus = "pending"
	VoucherMatched   VoucherStatus = "matched"
)

// Voucher is a payment (outbound, from subsystem) or receipt (inbound, to
// subsystem) waiting to be paired.
type Voucher struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID    `gorm:"not null" json:"tenant_id"`
	IntermediaryAccountID snowflake.ID    `gorm:"not null;index:idx_vouchers_pool,priority:1" json:"intermediary_account_id"`
	Direction             Direction       `gorm:"size:8;not null" json:"direction"`
	Subsystem             string          `gorm:"size:64;not null" json:"subsystem"`
	Reference             string          `gorm:"size:128;not null" json:"reference"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null" json:"currency"`
	VoucherDate           time.Time       `gorm:"type:date;not null" json:"voucher_date"`
	Status                VoucherStatus   `gorm:"size:16;not null;index:idx_vouchers_pool,priority:2" json:"status"`
	CreatedAt             time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"not null" json:"updated_at"`
}

func (Voucher) TableName() string { return "vouchers" }

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchConfirmed MatchStatus = "confirmed"
	MatchRejected  MatchStatus = "rejected"
)

type ReconciliationMatch struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	IntermediaryAccountID snowflake.ID    `gorm:"not null" json:"intermediary_account_id"`
	RunID                 string          `gorm:"size:26;not null" json:"run_id"`
	OutboundVoucherID     snowflake.ID    `gorm:"not null" json:"outbound_voucher_id"`
	InboundVoucherID      snowflake.ID    `gorm:"not null" json:"inbound_voucher_id"`
	AmountDifference      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_difference"`
	DateGapDays           int             `gorm:"not null" json:"date_gap_days"`
	Confidence            decimal.Decimal `gorm:"type:decimal(6,4);not null" json:"confidence"`
	Status                MatchStatus     `gorm:"size:16;not null" json:"status"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt             time.Time       `gorm:"not null" json:"created_at"`
}

func (ReconciliationMatch) TableName() string { return "reconciliation_matches" }
