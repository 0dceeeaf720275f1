package domain

import (
	"github.com/shopspring/decimal"
)

type Side string

// AmountScale is the number of decimal places stored for money.
const AmountScale = 4

const (
	SideDebit  Side = "debit"
	SideCredit Side = "credit"
)

// Amount is a strictly positive value on exactly one side of a line.
type Amount struct {
	side  Side
	value decimal.Decimal
}

func Debit(v decimal.Decimal) Amount  { return Amount{side: SideDebit, value: v} }
func Credit(v decimal.Decimal) Amount { return Amount{side: SideCredit, value: v} }

func (a Amount) Side() Side             { return a.side }
func (a Amount) Value() decimal.Decimal { return a.value }
func (a Amount) IsDebit() bool          { return a.side == SideDebit }

// Valid reports whether the amount has a side and a strictly positive value.
func (a Amount) Valid() bool {
	return (a.side == SideDebit || a.side == SideCredit) && a.value.IsPositive()
}

// FitsScale reports whether the value needs no more than AmountScale decimal places.
func (a Amount) FitsScale() bool {
	return a.value.Equal(a.value.Truncate(AmountScale))
}

// Swap returns the same value on the opposite side.
func (a Amount) Swap() Amount {
	if a.side == SideDebit {
		return Credit(a.value)
	}
	return Debit(a.value)
}

// Columns splits the amount into the stored debit and credit columns.
func (a Amount) Columns() (debit, credit decimal.Decimal) {
	if a.side == SideDebit {
		return a.value, decimal.Zero
	}
	return decimal.Zero, a.value
}

// AmountFromColumns rebuilds an Amount from a debit/credit pair, requiring
// exactly one strictly positive side and the other zero.
func AmountFromColumns(debit, credit decimal.Decimal) (Amount, error) {
	switch {
	case debit.IsNegative() || credit.IsNegative():
		return Amount{}, ErrNegativeAmount
	case debit.IsPositive() && credit.IsZero():
		return Debit(debit), nil
	case credit.IsPositive() && debit.IsZero():
		return Credit(credit), nil
	case debit.IsPositive() && credit.IsPositive():
		return Amount{}, ErrBothSides
	default:
		return Amount{}, ErrZeroAmount
	}
}
