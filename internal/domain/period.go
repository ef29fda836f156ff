package domain

import (
	"fmt"
	"time"
)

// Period identifies one evaluation quarter.
type Period struct {
	Year    int
	Quarter int
}

// QuarterOfMonth maps 1..12 to 1..4.
func QuarterOfMonth(month int) int {
	return (month-1)/3 + 1
}

// PeriodOf returns the quarter containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Quarter: QuarterOfMonth(int(t.Month()))}
}

func (p Period) Valid() bool {
	return p.Year > 0 && p.Quarter >= 1 && p.Quarter <= 4
}

// Previous returns the preceding quarter, wrapping Q1 to Q4 of the prior year.
func (p Period) Previous() Period {
	if p.Quarter <= 1 {
		return Period{Year: p.Year - 1, Quarter: 4}
	}
	return Period{Year: p.Year, Quarter: p.Quarter - 1}
}

// Contains reports whether month belongs to the quarter.
func (p Period) Contains(month int) bool {
	return month >= 1 && month <= 12 && QuarterOfMonth(month) == p.Quarter
}

func (p Period) String() string {
	return fmt.Sprintf("Q%d %d", p.Quarter, p.Year)
}
