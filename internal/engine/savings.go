package engine

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Project estimates the money a single execution of action saves given the
// snapshot. Budget increases project a negative amount (an investment).
func Project(snap MetricSnapshot, action Action) decimal.Decimal {
	spend, ok := snap.Value(MetricSpend)
	if !ok {
		return decimal.Zero
	}
	s := decimal.NewFromFloat(spend)

	switch a := action.(type) {
	case AdjustBudget:
		pct := decimal.NewFromFloat(a.Percentage)
		return s.Mul(pct).Div(hundred).Neg()
	case PauseCampaign:
		return s
	default:
		return decimal.Zero
	}
}

// projectFirst is the per-trigger savings convention: only the first action counts.
func projectFirst(snap MetricSnapshot, actions []Action) decimal.Decimal {
	if len(actions) == 0 {
		return decimal.Zero
	}
	return Project(snap, actions[0])
}

// roundCurrency rounds to the nearest whole currency unit.
func roundCurrency(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
