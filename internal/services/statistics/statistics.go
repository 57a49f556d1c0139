// Package statistics classifies the discrepancies found in a reconciled snapshot.
package statistics

import (
	"fmt"
	"io"

	"github.com/vadiminshakov/balancerecon/internal/domain"
)

// Statistics aggregate discrepancy counts over a snapshot.
// r is the recorded balance and o the observed one.
type Statistics struct {
	// Total all records.
	Total int
	// WithDifference r != o.
	WithDifference int
	// PositiveWithdraw r > o.
	PositiveWithdraw int
	// NegativeWithdraw r < o.
	NegativeWithdraw int
	// NegativeWithZeroOnchain r < o and o == 0.
	NegativeWithZeroOnchain int
	// PositiveWithZeroOnchain r > o and o == 0.
	PositiveWithZeroOnchain int
}

// Compute counts every class in a single pass over recs.
func Compute(recs []domain.MergedRecord) Statistics {
	var s Statistics
	for _, rec := range recs {
		s.Total++

		cmp := rec.Recorded.Cmp(rec.Observed)
		if cmp != 0 {
			s.WithDifference++
		}

		switch {
		case cmp > 0:
			s.PositiveWithdraw++
			if rec.ZeroOnchain() {
				s.PositiveWithZeroOnchain++
			}
		case cmp < 0:
			s.NegativeWithdraw++
			if rec.ZeroOnchain() {
				s.NegativeWithZeroOnchain++
			}
		}
	}

	return s
}

// Add sums two partial results. Counts computed over disjoint partitions add up to the whole.
func (s Statistics) Add(other Statistics) Statistics {
	return Statistics{
		Total:                   s.Total + other.Total,
		WithDifference:          s.WithDifference + other.WithDifference,
		PositiveWithdraw:        s.PositiveWithdraw + other.PositiveWithdraw,
		NegativeWithdraw:        s.NegativeWithdraw + other.NegativeWithdraw,
		NegativeWithZeroOnchain: s.NegativeWithZeroOnchain + other.NegativeWithZeroOnchain,
		PositiveWithZeroOnchain: s.PositiveWithZeroOnchain + other.PositiveWithZeroOnchain,
	}
}

// WriteReport prints one "Label: count" line per statistic in a fixed order.
func (s Statistics) WriteReport(w io.Writer) error {
	lines := []struct {
		label string
		value int
	}{
		{"Total Count", s.Total},
		{"With Difference Count", s.WithDifference},
		{"Positive Withdraw Count", s.PositiveWithdraw},
		{"Negative Withdraw Count", s.NegativeWithdraw},
		{"Negative With Zero Onchain", s.NegativeWithZeroOnchain},
		{"Positive With Zero Onchain", s.PositiveWithZeroOnchain},
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(w, "%s: %d\n", line.label, line.value); err != nil {
			return err
		}
	}

	return nil
}
