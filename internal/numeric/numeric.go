// Package numeric is the decimal boundary for the analytics store. All money,
// emissions, and ratio quantities are fixed-point decimals so that sums and
// averages over many records do not accumulate binary-float drift.
package numeric

import (
	"github.com/shopspring/decimal"

	"github.com/gridsight/infra-analytics/internal/model"
)

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
)

// Parse converts a numeric string to a decimal. Malformed input yields a
// DecimalParseError.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &model.DecimalParseError{Input: s, Err: err}
	}
	return d, nil
}

// IsRatio reports whether d lies in [0,1].
func IsRatio(d decimal.Decimal) bool {
	return d.Cmp(zero) >= 0 && d.Cmp(one) <= 0
}

// IsNonNegative reports whether d >= 0.
func IsNonNegative(d decimal.Decimal) bool {
	return d.Cmp(zero) >= 0
}

// Sum adds values without leaving decimal space.
func Sum(vals []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range vals {
		total = total.Add(v)
	}
	return total
}

// Mean returns the decimal average of vals, or zero for an empty slice.
// Division precision follows shopspring's default (16 fractional digits).
func Mean(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	return Sum(vals).Div(decimal.NewFromInt(int64(len(vals))))
}

// Min returns the smallest of vals, or zero for an empty slice.
func Min(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v.Cmp(m) < 0 {
			m = v
		}
	}
	return m
}

// Max returns the largest of vals, or zero for an empty slice.
func Max(vals []decimal.Decimal) decimal.Decimal {
	if len(vals) == 0 {
		return decimal.Zero
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v.Cmp(m) > 0 {
			m = v
		}
	}
	return m
}
