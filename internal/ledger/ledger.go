// Package ledger tracks per-participant settlement of bills.
//
// Every bill gets one settlement entry per participant: the payer's entry
// carries the full price (and a negative diff, money owed back), each
// counterparty's entry carries its computed share as a positive diff. Entries
// complete one way only; the payer's entry completes automatically once every
// counterparty entry has.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/calculator"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// ErrIntegrity signals a bill whose entry set does not match its declared
// participants. It indicates broken creation atomicity, not caller error.
var ErrIntegrity = errors.New("settlement entries inconsistent with bill participants")

// Ledger creates and transitions settlement entries on top of a Store.
type Ledger struct {
	store storage.Store
}

// New creates a Ledger backed by the given store.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// CreateBill computes owed shares for the bill, builds its settlement entries,
// and persists everything atomically. A nil preset skips preset creation.
// On any failure nothing is persisted.
func (l *Ledger) CreateBill(ctx context.Context, bill *models.Bill, ap *models.Apportionment, preset *models.Preset) error {
	values := make(map[string]decimal.Decimal, len(ap.Values))
	for _, v := range ap.Values {
		values[v.UID] = v.Value
	}

	owed, err := calculator.Apportion(bill.Price, ap.Method, values, bill.Counterparty)
	if err != nil {
		return fmt.Errorf("apportion bill: %w", err)
	}

	entries := make([]models.SettlementEntry, 0, len(bill.Counterparty)+1)
	entries = append(entries, models.SettlementEntry{
		UID:    bill.PayerUID,
		Amount: bill.Price,
		Diff:   bill.Price.Neg(),
	})
	for _, uid := range bill.Counterparty {
		entries = append(entries, models.SettlementEntry{
			UID:    uid,
			Amount: decimal.Zero,
			Diff:   owed[uid],
		})
	}

	if err := l.store.CreateBill(ctx, bill, ap, entries, preset); err != nil {
		return fmt.Errorf("persist bill: %w", err)
	}

	slog.Info("bill created",
		"bill_id", bill.ID,
		"payer", bill.PayerUID,
		"counterparties", len(bill.Counterparty),
		"method", ap.Method,
		"price", bill.Price,
	)
	return nil
}

// Complete marks the participant's entry for the bill as completed, then
// re-checks the whole entry set: once every counterparty entry is completed,
// the payer's entry completes too. The payer's own entry is never completed
// directly; it only transitions through that aggregate condition. The check
// runs inside one write transaction, so concurrent completions of the same
// bill are linearized and exactly one of them observes the all-complete state.
// Completing an already-completed entry is a no-op.
func (l *Ledger) Complete(ctx context.Context, billID, uid string) error {
	return l.store.InTx(ctx, func(tx storage.Tx) error {
		bill, err := tx.GetBill(ctx, billID)
		if err != nil {
			return err
		}

		entries, err := tx.GetEntriesByBill(ctx, billID)
		if err != nil {
			return err
		}
		if !hasEntry(entries, uid) {
			return fmt.Errorf("entry %s/%s: %w", billID, uid, storage.ErrNotFound)
		}

		if uid != bill.PayerUID {
			if err := tx.SetEntryCompleted(ctx, billID, uid); err != nil {
				return err
			}
		}

		// Re-read and evaluate the aggregate condition after this transition.
		entries, err = tx.GetEntriesByBill(ctx, billID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.UID != bill.PayerUID && !entry.Completed {
				return nil
			}
		}

		if err := tx.SetEntryCompleted(ctx, billID, bill.PayerUID); err != nil {
			return err
		}
		slog.Info("bill fully settled", "bill_id", billID, "payer", bill.PayerUID)
		return nil
	})
}

// SoftDelete hides the bill from listings while keeping its entries for audit.
func (l *Ledger) SoftDelete(ctx context.Context, billID string) error {
	return l.store.SoftDeleteBill(ctx, billID)
}

// UserBill is one bill in a user's listing, paired with that user's own
// settlement entry.
type UserBill struct {
	Bill  *models.Bill
	Entry *models.SettlementEntry
}

// ListForUser returns all non-deleted bills the user participates in, each
// with the user's own entry. A participating bill without an entry for the
// user means creation atomicity was broken somewhere and surfaces as
// ErrIntegrity.
func (l *Ledger) ListForUser(ctx context.Context, uid string) ([]UserBill, error) {
	bills, err := l.store.ListBillsForUser(ctx, uid)
	if err != nil {
		return nil, err
	}

	result := make([]UserBill, 0, len(bills))
	for _, bill := range bills {
		entry, err := l.store.GetEntry(ctx, bill.ID, uid)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("bill %s has no entry for participant %s: %w", bill.ID, uid, ErrIntegrity)
		}
		if err != nil {
			return nil, err
		}
		result = append(result, UserBill{Bill: bill, Entry: entry})
	}
	return result, nil
}

// Entry returns the settlement entry for one participant of a bill, including
// entries of soft-deleted bills.
func (l *Ledger) Entry(ctx context.Context, billID, uid string) (*models.SettlementEntry, error) {
	return l.store.GetEntry(ctx, billID, uid)
}

func hasEntry(entries []*models.SettlementEntry, uid string) bool {
	for _, entry := range entries {
		if entry.UID == uid {
			return true
		}
	}
	return false
}
