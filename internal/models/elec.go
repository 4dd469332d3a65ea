package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ElecBuilding identifies one dormitory room on the campus electricity portal.
// The four-level hierarchy (area, apartment, floor, dormitory) mirrors the
// portal's own drill-down.
type ElecBuilding struct {
	ID            string
	AreaID        string
	AreaName      string
	ApartmentID   string
	ApartmentName string
	FloorID       string
	FloorName     string
	DormitoryID   string
	DormitoryName string
}

// ElecStat is one sampled surplus reading for a building.
type ElecStat struct {
	ID         int64
	BuildingID string
	SearchTime time.Time
	Surplus    decimal.Decimal
}
