package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// CreateAccount inserts a new account row for a user.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (uid, building_id, portal_id, portal_password) VALUES (?, ?, ?, ?)",
		account.UID, nullable(account.BuildingID), nullable(account.PortalID), nullable(account.PortalPassword),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetAccount retrieves a user's account row.
func (s *SQLiteStore) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	account := &models.Account{}
	var buildingID, portalID, portalPassword sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT uid, building_id, portal_id, portal_password FROM accounts WHERE uid = ?",
		uid,
	).Scan(&account.UID, &buildingID, &portalID, &portalPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", uid, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.BuildingID = buildingID.String
	account.PortalID = portalID.String
	account.PortalPassword = portalPassword.String
	return account, nil
}

// UpdateAccount overwrites the mutable fields of an account row.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET building_id = ?, portal_id = ?, portal_password = ? WHERE uid = ?",
		nullable(account.BuildingID), nullable(account.PortalID), nullable(account.PortalPassword), account.UID,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", account.UID, storage.ErrNotFound)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
