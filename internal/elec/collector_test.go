package elec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage/sqlite"
)

type fakePortal struct {
	mu       sync.Mutex
	readings map[string]Reading
	failFor  map[string]bool
	calls    []string
}

func (f *fakePortal) Verify(_ context.Context, cred Credential) error {
	if f.failFor[cred.Username] {
		return ErrBadCredentials
	}
	return nil
}

func (f *fakePortal) Surplus(_ context.Context, cred Credential, building models.ElecBuilding) (Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cred.Username)
	if f.failFor[cred.Username] {
		return Reading{}, errors.New("portal search: account locked")
	}
	r, ok := f.readings[building.ID]
	if !ok {
		return Reading{}, errors.New("portal search: no reading")
	}
	return r, nil
}

func setupCollector(t *testing.T, portal Portal) (*Collector, *sqlite.SQLiteStore) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "elec.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	c := NewCollector(store, portal, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.totalDelay = 0
	c.sleep = func(context.Context, time.Duration) {}
	return c, store
}

func seedBuilding(t *testing.T, store *sqlite.SQLiteStore, id string) {
	t.Helper()
	err := store.InsertBuilding(context.Background(), &models.ElecBuilding{
		ID:            id,
		AreaID:        "a1",
		AreaName:      "west",
		ApartmentID:   "p1",
		ApartmentName: "building 3",
		FloorID:       "f2",
		FloorName:     "2nd",
		DormitoryID:   "d301",
		DormitoryName: "301",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func bindAccount(t *testing.T, store *sqlite.SQLiteStore, uid, buildingID, portalID string) {
	t.Helper()
	err := store.CreateAccount(context.Background(), &models.Account{
		UID:            uid,
		BuildingID:     buildingID,
		PortalID:       portalID,
		PortalPassword: "pw",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCollectorRecordsStat(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.Local)
	portal := &fakePortal{readings: map[string]Reading{
		"b1": {Surplus: decimal.RequireFromString("42.50"), SearchTime: at},
	}}
	c, store := setupCollector(t, portal)
	seedBuilding(t, store, "b1")
	bindAccount(t, store, "alice", "b1", "2023211001")

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := store.StatsBetween(context.Background(), "b1", at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d stats, want 1", len(stats))
	}
	if !stats[0].Surplus.Equal(decimal.RequireFromString("42.50")) {
		t.Errorf("surplus = %s", stats[0].Surplus)
	}
}

func TestCollectorFallsBackAcrossAccounts(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.Local)
	portal := &fakePortal{
		readings: map[string]Reading{"b1": {Surplus: decimal.NewFromInt(10), SearchTime: at}},
		failFor:  map[string]bool{"locked": true},
	}
	c, store := setupCollector(t, portal)
	seedBuilding(t, store, "b1")
	bindAccount(t, store, "alice", "b1", "locked")
	bindAccount(t, store, "bob", "b1", "working")

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := store.StatsBetween(context.Background(), "b1", at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d stats, want 1", len(stats))
	}
}

func TestCollectorIsolatesBuildingFailures(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.Local)
	portal := &fakePortal{readings: map[string]Reading{
		"good": {Surplus: decimal.NewFromInt(5), SearchTime: at},
	}}
	c, store := setupCollector(t, portal)
	seedBuilding(t, store, "good")
	seedBuilding(t, store, "bad")
	bindAccount(t, store, "alice", "good", "u1")
	bindAccount(t, store, "bob", "bad", "u2")

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	stats, err := store.StatsBetween(context.Background(), "good", at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("failing building blocked the healthy one: got %d stats", len(stats))
	}
}

func TestCollectorNoBoundAccounts(t *testing.T) {
	portal := &fakePortal{}
	c, _ := setupCollector(t, portal)

	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(portal.calls) != 0 {
		t.Errorf("portal called %d times with no bound accounts", len(portal.calls))
	}
}
