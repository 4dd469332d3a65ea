package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
)

// ListPresetsByOrgs returns the apportion presets of the given organizations,
// each with its per-user values.
func (s *SQLiteStore) ListPresetsByOrgs(ctx context.Context, orgIDs []string) ([]*models.Preset, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(orgIDs)), ", ")
	args := make([]any, len(orgIDs))
	for i, id := range orgIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, org_id, method, created_at FROM apportion_presets WHERE org_id IN ("+placeholders+") ORDER BY created_at, id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var presets []*models.Preset
	for rows.Next() {
		preset := &models.Preset{}
		var method string
		if err := rows.Scan(&preset.ID, &preset.Name, &preset.OrgID, &method, &preset.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		preset.Method = models.ApportionMethod(method)
		presets = append(presets, preset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate presets: %w", err)
	}

	for _, preset := range presets {
		values, err := s.presetValues(ctx, preset.ID)
		if err != nil {
			return nil, err
		}
		preset.Values = values
	}
	return presets, nil
}

func (s *SQLiteStore) presetValues(ctx context.Context, presetID string) ([]models.ApportionValue, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT uid, value FROM apportion_preset_values WHERE preset_id = ? ORDER BY uid",
		presetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get preset values: %w", err)
	}
	defer rows.Close()

	var values []models.ApportionValue
	for rows.Next() {
		var v models.ApportionValue
		var raw string
		if err := rows.Scan(&v.UID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan preset value: %w", err)
		}
		if v.Value, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to parse preset value: %w", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preset values: %w", err)
	}
	return values, nil
}
