package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// CreateBill persists the bill, its counterparty set, apportionment,
// settlement entries, and optional preset in one transaction.
func (s *SQLiteStore) CreateBill(ctx context.Context, bill *models.Bill, ap *models.Apportionment, entries []models.SettlementEntry, preset *models.Preset) error {
	if bill.ID == "" {
		bill.ID = uuid.New().String()
	}
	if bill.CreatedAt == 0 {
		bill.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO bills (id, title, description, trade_time, price, payer_uid, deleted, created_at) VALUES (?, ?, ?, ?, ?, ?, 0, ?)",
		bill.ID, bill.Title, bill.Description, bill.TradeTime.Format(time.RFC3339), bill.Price.StringFixed(2), bill.PayerUID, bill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}

	for _, uid := range bill.Counterparty {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO bill_counterparties (bill_id, uid) VALUES (?, ?)",
			bill.ID, uid,
		); err != nil {
			return fmt.Errorf("failed to insert counterparty: %w", err)
		}
	}

	if ap.ID == "" {
		ap.ID = uuid.New().String()
	}
	ap.BillID = bill.ID
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO apportionments (id, bill_id, method) VALUES (?, ?, ?)",
		ap.ID, ap.BillID, string(ap.Method),
	); err != nil {
		return fmt.Errorf("failed to insert apportionment: %w", err)
	}
	for _, v := range ap.Values {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO apportionment_values (apportionment_id, uid, value) VALUES (?, ?, ?)",
			ap.ID, v.UID, v.Value.StringFixed(2),
		); err != nil {
			return fmt.Errorf("failed to insert apportionment value: %w", err)
		}
	}

	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		entry.BillID = bill.ID
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO settlement_entries (id, bill_id, uid, amount, diff, completed) VALUES (?, ?, ?, ?, ?, ?)",
			entry.ID, entry.BillID, entry.UID, entry.Amount.StringFixed(2), entry.Diff.StringFixed(2), entry.Completed,
		); err != nil {
			return fmt.Errorf("failed to insert settlement entry: %w", err)
		}
	}

	if preset != nil {
		if preset.ID == "" {
			preset.ID = uuid.New().String()
		}
		if preset.CreatedAt == 0 {
			preset.CreatedAt = bill.CreatedAt
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO apportion_presets (id, name, org_id, method, created_at) VALUES (?, ?, ?, ?, ?)",
			preset.ID, preset.Name, preset.OrgID, string(preset.Method), preset.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert preset: %w", err)
		}
		for _, v := range preset.Values {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO apportion_preset_values (preset_id, uid, value) VALUES (?, ?, ?)",
				preset.ID, v.UID, v.Value.StringFixed(2),
			); err != nil {
				return fmt.Errorf("failed to insert preset value: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetBill retrieves a bill by ID, including its counterparty set.
func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	return getBill(ctx, s.db, billID)
}

func getBill(ctx context.Context, q querier, billID string) (*models.Bill, error) {
	bill := &models.Bill{}
	var tradeTime, price string
	err := q.QueryRowContext(ctx,
		"SELECT id, title, description, trade_time, price, payer_uid, deleted, created_at FROM bills WHERE id = ?",
		billID,
	).Scan(&bill.ID, &bill.Title, &bill.Description, &tradeTime, &price, &bill.PayerUID, &bill.Deleted, &bill.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %s: %w", billID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	if bill.TradeTime, err = time.Parse(time.RFC3339, tradeTime); err != nil {
		return nil, fmt.Errorf("failed to parse trade time: %w", err)
	}
	if bill.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT uid FROM bill_counterparties WHERE bill_id = ? ORDER BY uid",
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get counterparties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan counterparty: %w", err)
		}
		bill.Counterparty = append(bill.Counterparty, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counterparties: %w", err)
	}

	return bill, nil
}

// ListBillsForUser returns all non-deleted bills where the user is the payer
// or a counterparty.
func (s *SQLiteStore) ListBillsForUser(ctx context.Context, uid string) ([]*models.Bill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM bills
		 WHERE deleted = 0
		   AND (payer_uid = ? OR id IN (SELECT bill_id FROM bill_counterparties WHERE uid = ?))
		 ORDER BY created_at, id`,
		uid, uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan bill id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bills: %w", err)
	}

	bills := make([]*models.Bill, 0, len(ids))
	for _, id := range ids {
		bill, err := getBill(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, nil
}

// GetEntry retrieves the settlement entry for one participant of a bill.
func (s *SQLiteStore) GetEntry(ctx context.Context, billID, uid string) (*models.SettlementEntry, error) {
	entry, err := scanEntry(s.db.QueryRowContext(ctx,
		"SELECT id, bill_id, uid, amount, diff, completed FROM settlement_entries WHERE bill_id = ? AND uid = ?",
		billID, uid,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s/%s: %w", billID, uid, storage.ErrNotFound)
	}
	return entry, err
}

// GetEntriesByBill returns every settlement entry of a bill.
func (s *SQLiteStore) GetEntriesByBill(ctx context.Context, billID string) ([]*models.SettlementEntry, error) {
	return getEntriesByBill(ctx, s.db, billID)
}

func getEntriesByBill(ctx context.Context, q querier, billID string) ([]*models.SettlementEntry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, bill_id, uid, amount, diff, completed FROM settlement_entries WHERE bill_id = ? ORDER BY uid",
		billID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SettlementEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.SettlementEntry, error) {
	entry := &models.SettlementEntry{}
	var amount, diff string
	if err := row.Scan(&entry.ID, &entry.BillID, &entry.UID, &amount, &diff, &entry.Completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	var err error
	if entry.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse entry amount: %w", err)
	}
	if entry.Diff, err = decimal.NewFromString(diff); err != nil {
		return nil, fmt.Errorf("failed to parse entry diff: %w", err)
	}
	return entry, nil
}

// SoftDeleteBill flags the bill as deleted. Its rows stay in place for audit.
func (s *SQLiteStore) SoftDeleteBill(ctx context.Context, billID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE bills SET deleted = 1 WHERE id = ?", billID)
	if err != nil {
		return fmt.Errorf("failed to soft delete bill: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bill %s: %w", billID, storage.ErrNotFound)
	}
	return nil
}
