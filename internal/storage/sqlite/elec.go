package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// GetBuilding retrieves one building row.
func (s *SQLiteStore) GetBuilding(ctx context.Context, buildingID string) (*models.ElecBuilding, error) {
	b := &models.ElecBuilding{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, area_id, area_name, apartment_id, apartment_name, floor_id, floor_name, dormitory_id, dormitory_name
		 FROM elec_buildings WHERE id = ?`,
		buildingID,
	).Scan(&b.ID, &b.AreaID, &b.AreaName, &b.ApartmentID, &b.ApartmentName, &b.FloorID, &b.FloorName, &b.DormitoryID, &b.DormitoryName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("building %s: %w", buildingID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get building: %w", err)
	}
	return b, nil
}

// FindBuildings returns buildings matching the filter, one hierarchy level at
// a time (empty fields match everything).
func (s *SQLiteStore) FindBuildings(ctx context.Context, filter storage.BuildingFilter) ([]*models.ElecBuilding, error) {
	query := `SELECT id, area_id, area_name, apartment_id, apartment_name, floor_id, floor_name, dormitory_id, dormitory_name
	          FROM elec_buildings WHERE 1=1`
	var args []any
	if filter.AreaID != "" {
		query += " AND area_id = ?"
		args = append(args, filter.AreaID)
	}
	if filter.ApartmentID != "" {
		query += " AND apartment_id = ?"
		args = append(args, filter.ApartmentID)
	}
	if filter.FloorID != "" {
		query += " AND floor_id = ?"
		args = append(args, filter.FloorID)
	}
	query += " ORDER BY area_id, apartment_id, floor_id, dormitory_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find buildings: %w", err)
	}
	defer rows.Close()

	var buildings []*models.ElecBuilding
	for rows.Next() {
		b := &models.ElecBuilding{}
		if err := rows.Scan(&b.ID, &b.AreaID, &b.AreaName, &b.ApartmentID, &b.ApartmentName, &b.FloorID, &b.FloorName, &b.DormitoryID, &b.DormitoryName); err != nil {
			return nil, fmt.Errorf("failed to scan building: %w", err)
		}
		buildings = append(buildings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate buildings: %w", err)
	}
	return buildings, nil
}

// InsertStat stores one sampled surplus reading. Sample times are normalized
// to UTC so the stored strings order lexicographically.
func (s *SQLiteStore) InsertStat(ctx context.Context, stat *models.ElecStat) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO elec_stats (building_id, search_time, surplus) VALUES (?, ?, ?)",
		stat.BuildingID, stat.SearchTime.UTC().Format(time.RFC3339), stat.Surplus.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stat: %w", err)
	}
	if stat.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read stat id: %w", err)
	}
	return nil
}

// StatsBetween returns a building's surplus readings inside [start, end],
// ordered by sample time.
func (s *SQLiteStore) StatsBetween(ctx context.Context, buildingID string, start, end time.Time) ([]*models.ElecStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, building_id, search_time, surplus FROM elec_stats
		 WHERE building_id = ? AND search_time BETWEEN ? AND ?
		 ORDER BY search_time`,
		buildingID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.ElecStat
	for rows.Next() {
		stat := &models.ElecStat{}
		var searchTime, surplus string
		if err := rows.Scan(&stat.ID, &stat.BuildingID, &searchTime, &surplus); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		if stat.SearchTime, err = time.Parse(time.RFC3339, searchTime); err != nil {
			return nil, fmt.Errorf("failed to parse stat time: %w", err)
		}
		if stat.Surplus, err = decimal.NewFromString(surplus); err != nil {
			return nil, fmt.Errorf("failed to parse surplus: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stats: %w", err)
	}
	return stats, nil
}

// ListBoundAccounts returns accounts with both a building binding and portal
// credentials.
func (s *SQLiteStore) ListBoundAccounts(ctx context.Context) ([]*models.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, building_id, portal_id, portal_password FROM accounts
		 WHERE building_id IS NOT NULL AND portal_id IS NOT NULL AND portal_password IS NOT NULL`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bound accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		if err := rows.Scan(&account.UID, &account.BuildingID, &account.PortalID, &account.PortalPassword); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// InsertBuilding is used by seeding and tests to register a building row.
func (s *SQLiteStore) InsertBuilding(ctx context.Context, b *models.ElecBuilding) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO elec_buildings (id, area_id, area_name, apartment_id, apartment_name, floor_id, floor_name, dormitory_id, dormitory_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AreaID, b.AreaName, b.ApartmentID, b.ApartmentName, b.FloorID, b.FloorName, b.DormitoryID, b.DormitoryName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert building: %w", err)
	}
	return nil
}
