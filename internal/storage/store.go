// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lingzc/dormlife/internal/models"
)

// ErrNotFound is returned when a requested row does not exist. Callers must
// not confuse it with a validation failure.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations the service needs. The interface
// keeps the ledger and handlers independent of the backing database.
type Store interface {
	// CreateBill persists a bill together with its apportionment, all
	// settlement entries, and an optional preset in a single transaction.
	// Either everything is written or nothing is. IDs and CreatedAt are
	// populated by the store.
	CreateBill(ctx context.Context, bill *models.Bill, ap *models.Apportionment, entries []models.SettlementEntry, preset *models.Preset) error

	// GetBill retrieves a bill by ID, including its counterparty set.
	GetBill(ctx context.Context, billID string) (*models.Bill, error)

	// ListBillsForUser returns all non-deleted bills where the user is the
	// payer or a counterparty, oldest first.
	ListBillsForUser(ctx context.Context, uid string) ([]*models.Bill, error)

	// GetEntry retrieves the settlement entry for one participant of a bill.
	// Soft-deleted bills keep their entries retrievable here.
	GetEntry(ctx context.Context, billID, uid string) (*models.SettlementEntry, error)

	// GetEntriesByBill returns every settlement entry of a bill.
	GetEntriesByBill(ctx context.Context, billID string) ([]*models.SettlementEntry, error)

	// SoftDeleteBill flags the bill as deleted without removing any rows.
	SoftDeleteBill(ctx context.Context, billID string) error

	// InTx runs fn inside a write transaction. For a given bill the
	// read-then-write sequences inside fn are serialized against concurrent
	// transactions.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListPresetsByOrgs returns the apportion presets of the given
	// organizations with their per-user values.
	ListPresetsByOrgs(ctx context.Context, orgIDs []string) ([]*models.Preset, error)

	// Close releases any resources held by the store.
	Close() error
}

// Tx is the slice of operations available inside InTx.
type Tx interface {
	GetBill(ctx context.Context, billID string) (*models.Bill, error)
	GetEntriesByBill(ctx context.Context, billID string) ([]*models.SettlementEntry, error)

	// SetEntryCompleted marks the entry for (billID, uid) as completed.
	// Marking an already-completed entry is a no-op.
	SetEntryCompleted(ctx context.Context, billID, uid string) error
}

// AccountStore persists per-user settings (building binding, portal
// credentials) used by the profile and electricity features.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, uid string) (*models.Account, error)
	UpdateAccount(ctx context.Context, account *models.Account) error
}

// BuildingFilter narrows FindBuildings to one level of the portal hierarchy.
// Empty fields match everything.
type BuildingFilter struct {
	AreaID      string
	ApartmentID string
	FloorID     string
}

// ElecStore persists building metadata and sampled electricity stats.
type ElecStore interface {
	GetBuilding(ctx context.Context, buildingID string) (*models.ElecBuilding, error)
	FindBuildings(ctx context.Context, filter BuildingFilter) ([]*models.ElecBuilding, error)
	InsertStat(ctx context.Context, stat *models.ElecStat) error
	StatsBetween(ctx context.Context, buildingID string, start, end time.Time) ([]*models.ElecStat, error)

	// ListBoundAccounts returns accounts that have both a building binding and
	// portal credentials, as candidates for the stat collector.
	ListBoundAccounts(ctx context.Context) ([]*models.Account, error)
}
