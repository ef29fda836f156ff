package service

import (
	"github.com/shopspring/decimal"
	"pmsf-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ResultValue is the weight for a Yes item and zero otherwise.
func ResultValue(weight decimal.Decimal, status domain.ItemStatus) decimal.Decimal {
	if status == domain.StatusYes {
		return weight
	}
	return decimal.Zero
}

// VisitScore returns the Yes weight as a percentage of all non-NA weight,
// rounded to two places. It is zero when every item is NA.
func VisitScore(items []domain.VisitItemResult) decimal.Decimal {
	yes, nonNA := decimal.Zero, decimal.Zero
	for _, it := range items {
		if it.Status == domain.StatusNA {
			continue
		}
		nonNA = nonNA.Add(it.Weight)
		if it.Status == domain.StatusYes {
			yes = yes.Add(it.Weight)
		}
	}
	if nonNA.IsZero() {
		return decimal.Zero
	}
	return yes.Div(nonNA).Mul(hundred).Round(2)
}
