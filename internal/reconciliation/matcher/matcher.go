// Package matcher pairs outbound and inbound vouchers within an amount and
// date tolerance. It holds no state and performs no I/O.
package matcher

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	amountWeight = decimal.RequireFromString("0.6")
	dateWeight   = decimal.RequireFromString("0.4")
	two          = decimal.NewFromInt(2)
)

const scorePlaces = 4

type Voucher struct {
	ID     snowflake.ID
	Amount decimal.Decimal
	Date   time.Time
}

type Tolerance struct {
	AmountEpsilon     decimal.Decimal
	DateToleranceDays int
}

type Pair struct {
	Outbound         Voucher
	Inbound          Voucher
	AmountDifference decimal.Decimal
	DateGapDays      int
	Score            decimal.Decimal
}

type PairKey struct {
	Outbound snowflake.ID
	Inbound  snowflake.ID
}

// Match builds every candidate within tol, scores it and assigns pairs greedily
// by descending score. Each voucher is used at most once. Pairs listed in
// excluded are never proposed. The result is ordered by selection.
func Match(outbound, inbound []Voucher, tol Tolerance, excluded map[PairKey]struct{}) []Pair {
	candidates := Candidates(outbound, inbound, tol, excluded)
	sort.SliceStable(candidates, func(i, j int) bool {
		return ranksBefore(candidates[i], candidates[j])
	})

	usedOut := make(map[snowflake.ID]struct{}, len(outbound))
	usedIn := make(map[snowflake.ID]struct{}, len(inbound))
	selected := make([]Pair, 0)
	for _, c := range candidates {
		if _, ok := usedOut[c.Outbound.ID]; ok {
			continue
		}
		if _, ok := usedIn[c.Inbound.ID]; ok {
			continue
		}
		usedOut[c.Outbound.ID] = struct{}{}
		usedIn[c.Inbound.ID] = struct{}{}
		selected = append(selected, c)
	}
	return selected
}

// Candidates returns every scored pair inside the tolerance window, unordered.
func Candidates(outbound, inbound []Voucher, tol Tolerance, excluded map[PairKey]struct{}) []Pair {
	eps := tol.AmountEpsilon
	if eps.IsNegative() {
		eps = decimal.Zero
	}
	maxGap := tol.DateToleranceDays
	if maxGap < 0 {
		maxGap = 0
	}

	out := make([]Pair, 0)
	for _, o := range outbound {
		for _, in := range inbound {
			if _, skip := excluded[PairKey{Outbound: o.ID, Inbound: in.ID}]; skip {
				continue
			}
			diff := o.Amount.Sub(in.Amount).Abs()
			if diff.GreaterThan(eps) {
				continue
			}
			gap := DayGap(o.Date, in.Date)
			if gap > maxGap {
				continue
			}
			out = append(out, Pair{
				Outbound:         o,
				Inbound:          in,
				AmountDifference: diff,
				DateGapDays:      gap,
				Score:            Score(diff, gap, Tolerance{AmountEpsilon: eps, DateToleranceDays: maxGap}),
			})
		}
	}
	return out
}

// Score combines amount closeness and date closeness into [0, 1]. It is
// strictly decreasing in both the amount difference and the day gap.
func Score(diff decimal.Decimal, gap int, tol Tolerance) decimal.Decimal {
	amountScore := decimal.NewFromInt(1)
	if !diff.IsZero() && tol.AmountEpsilon.IsPositive() {
		amountScore = amountScore.Sub(diff.Div(tol.AmountEpsilon.Mul(two)))
	}
	dateScore := decimal.NewFromInt(1).Sub(
		decimal.NewFromInt(int64(gap)).Div(decimal.NewFromInt(int64(tol.DateToleranceDays + 1))),
	)
	return amountWeight.Mul(amountScore).Add(dateWeight.Mul(dateScore)).Round(scorePlaces)
}

// DayGap returns the absolute number of calendar days between a and b in UTC.
func DayGap(a, b time.Time) int {
	da := dayStart(a)
	db := dayStart(b)
	gap := int(da.Sub(db).Hours() / 24)
	if gap < 0 {
		return -gap
	}
	return gap
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ranksBefore orders by score, then earliest outbound date, earliest inbound
// date, lowest outbound id and lowest inbound id.
func ranksBefore(a, b Pair) bool {
	if c := a.Score.Cmp(b.Score); c != 0 {
		return c > 0
	}
	if ad, bd := dayStart(a.Outbound.Date), dayStart(b.Outbound.Date); !ad.Equal(bd) {
		return ad.Before(bd)
	}
	if ad, bd := dayStart(a.Inbound.Date), dayStart(b.Inbound.Date); !ad.Equal(bd) {
		return ad.Before(bd)
	}
	if a.Outbound.ID != b.Outbound.ID {
		return a.Outbound.ID < b.Outbound.ID
	}
	return a.Inbound.ID < b.Inbound.ID
}
