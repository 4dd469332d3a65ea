// Package calculator computes each counterparty's owed share of a bill.
package calculator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
)

var (
	// ErrUnsupportedMethod is returned for an apportion method outside the
	// known set. It is a validation failure, never silently defaulted.
	ErrUnsupportedMethod = errors.New("unsupported apportion method")

	// ErrNoCounterparties is returned when the counterparty set is empty.
	ErrNoCounterparties = errors.New("bill has no counterparties")

	// ErrZeroShares is returned for the share method when the declared weights
	// sum to zero.
	ErrZeroShares = errors.New("share weights sum to zero")
)

var (
	hundred = decimal.NewFromInt(100)
)

// Apportion computes the amount each counterparty owes for a bill with the
// given total price. Declared values are interpreted per method:
//
//   - price: the declared value is the owed amount (missing entries owe 0.00)
//   - ratio: owed = total * value / 100, rounded half up to 2 decimal places
//   - share: owed = total * value / sum(values), rounded half up to 2 decimal places
//
// The returned amounts cover exactly the given counterparties and sum exactly
// to total. After per-user rounding, any remainder is assigned in full to the
// counterparty with the lexicographically smallest UID, so the correction is a
// pure function of the inputs and independent of iteration order.
func Apportion(total decimal.Decimal, method models.ApportionMethod, values map[string]decimal.Decimal, counterparties []string) (map[string]decimal.Decimal, error) {
	if len(counterparties) == 0 {
		return nil, ErrNoCounterparties
	}

	owed := make(map[string]decimal.Decimal, len(counterparties))

	switch method {
	case models.MethodPrice:
		for _, uid := range counterparties {
			owed[uid] = values[uid] // zero value is 0.00
		}

	case models.MethodRatio:
		for _, uid := range counterparties {
			owed[uid] = total.Mul(values[uid]).Div(hundred).Round(2)
		}

	case models.MethodShare:
		totalShare := decimal.Zero
		for _, uid := range counterparties {
			totalShare = totalShare.Add(values[uid])
		}
		if totalShare.IsZero() {
			return nil, ErrZeroShares
		}
		for _, uid := range counterparties {
			owed[uid] = total.Mul(values[uid]).Div(totalShare).Round(2)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	// Per-user rounding can leave the sum a cent or two off the total.
	// Assign the whole remainder to one counterparty so the sum is exact.
	sum := decimal.Zero
	for _, v := range owed {
		sum = sum.Add(v)
	}
	if remainder := total.Sub(sum); !remainder.IsZero() {
		uid := smallestUID(counterparties)
		owed[uid] = owed[uid].Add(remainder)
	}

	return owed, nil
}

func smallestUID(uids []string) string {
	min := uids[0]
	for _, uid := range uids[1:] {
		if uid < min {
			min = uid
		}
	}
	return min
}
