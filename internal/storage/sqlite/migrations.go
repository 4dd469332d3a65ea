package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database.
// These run on startup to ensure tables exist. Money columns are TEXT holding
// 2-decimal strings so amounts round-trip exactly.
const schema = `
CREATE TABLE IF NOT EXISTS bills (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    trade_time TEXT NOT NULL,
    price TEXT NOT NULL,
    payer_uid TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bill_counterparties (
    bill_id TEXT NOT NULL,
    uid TEXT NOT NULL,
    PRIMARY KEY (bill_id, uid),
    FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS apportionments (
    id TEXT PRIMARY KEY,
    bill_id TEXT NOT NULL,
    method TEXT NOT NULL,
    FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS apportionment_values (
    apportionment_id TEXT NOT NULL,
    uid TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (apportionment_id, uid),
    FOREIGN KEY (apportionment_id) REFERENCES apportionments(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS settlement_entries (
    id TEXT PRIMARY KEY,
    bill_id TEXT NOT NULL,
    uid TEXT NOT NULL,
    amount TEXT NOT NULL,
    diff TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    UNIQUE (bill_id, uid),
    FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS apportion_presets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    org_id TEXT NOT NULL,
    method TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS apportion_preset_values (
    preset_id TEXT NOT NULL,
    uid TEXT NOT NULL,
    value TEXT NOT NULL,
    PRIMARY KEY (preset_id, uid),
    FOREIGN KEY (preset_id) REFERENCES apportion_presets(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS accounts (
    uid TEXT PRIMARY KEY,
    building_id TEXT,
    portal_id TEXT,
    portal_password TEXT
);

CREATE TABLE IF NOT EXISTS elec_buildings (
    id TEXT PRIMARY KEY,
    area_id TEXT NOT NULL,
    area_name TEXT NOT NULL,
    apartment_id TEXT NOT NULL,
    apartment_name TEXT NOT NULL,
    floor_id TEXT NOT NULL,
    floor_name TEXT NOT NULL,
    dormitory_id TEXT NOT NULL,
    dormitory_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS elec_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    building_id TEXT NOT NULL,
    search_time TEXT NOT NULL,
    surplus TEXT NOT NULL,
    FOREIGN KEY (building_id) REFERENCES elec_buildings(id)
);

CREATE INDEX IF NOT EXISTS idx_bill_counterparties_uid ON bill_counterparties(uid);
CREATE INDEX IF NOT EXISTS idx_apportionments_bill_id ON apportionments(bill_id);
CREATE INDEX IF NOT EXISTS idx_settlement_entries_bill_id ON settlement_entries(bill_id);
CREATE INDEX IF NOT EXISTS idx_apportion_presets_org_id ON apportion_presets(org_id);
CREATE INDEX IF NOT EXISTS idx_elec_stats_building_time ON elec_stats(building_id, search_time);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
