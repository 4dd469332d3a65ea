package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApportionMethod selects how a bill's total is divided among counterparties.
type ApportionMethod string

const (
	// MethodPrice apportions by explicit per-user amounts that must sum to the
	// bill's total price.
	MethodPrice ApportionMethod = "price"

	// MethodRatio apportions by percentage points that must sum to exactly 100.00.
	MethodRatio ApportionMethod = "ratio"

	// MethodShare apportions by relative weights whose sum must be positive.
	MethodShare ApportionMethod = "share"
)

// Valid reports whether m is one of the known apportion methods.
func (m ApportionMethod) Valid() bool {
	switch m {
	case MethodPrice, MethodRatio, MethodShare:
		return true
	}
	return false
}

// Bill represents one shared-expense event split between a payer and a set of
// counterparties.
type Bill struct {
	// ID is the unique identifier for the bill (UUID format).
	ID string

	// Title is the human-readable name for the bill.
	Title string

	// Description is free text attached by the creator.
	Description string

	// TradeTime is when the expense happened. It always carries an explicit
	// timezone; requests without one are rejected at the boundary.
	TradeTime time.Time

	// Price is the total amount of the bill, quantized to 2 decimal places.
	// Always strictly positive.
	Price decimal.Decimal

	// PayerUID is the identity of the user who paid the full amount.
	// Identities are weak references into the external directory.
	PayerUID string

	// Counterparty lists the users who owe a share. Non-empty, no duplicates.
	Counterparty []string

	// Deleted marks the bill as soft-deleted. Deleted bills are excluded from
	// listings but their settlement entries stay queryable.
	Deleted bool

	// CreatedAt is the Unix timestamp when the bill was created.
	CreatedAt int64
}

// ApportionValue is one user's declared value under an apportion method.
type ApportionValue struct {
	UID   string
	Value decimal.Decimal
}

// Apportionment is the method and declared per-counterparty values used to
// compute owed shares for one bill.
type Apportionment struct {
	ID     string
	BillID string
	Method ApportionMethod
	Values []ApportionValue
}

// SettlementEntry is the per-participant ledger row for one bill.
//
// The payer's entry starts with Amount equal to the bill price and Diff equal
// to its negation (the payer is owed money back). Each counterparty's entry
// starts with Amount zero and Diff equal to the computed owed share.
type SettlementEntry struct {
	ID     string
	BillID string
	UID    string

	// Amount is what this participant has put in so far.
	Amount decimal.Decimal

	// Diff is the signed net position: positive means the participant still
	// owes, negative means they are owed back.
	Diff decimal.Decimal

	// Completed flips once, from pending to done. The payer's entry completes
	// automatically when every counterparty entry has completed.
	Completed bool
}

// Preset is a named, reusable apportionment template scoped to an organization.
type Preset struct {
	ID        string
	Name      string
	OrgID     string
	Method    ApportionMethod
	Values    []ApportionValue
	CreatedAt int64
}
