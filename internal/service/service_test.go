package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/elec"
	"github.com/lingzc/dormlife/internal/ledger"
	"github.com/lingzc/dormlife/internal/middleware"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage/sqlite"
)

type fakeDirectory struct {
	users   map[string]string
	orgs    map[string][]models.Organization
	members map[string][]models.User
}

func (f *fakeDirectory) ResolveUser(_ context.Context, uid string) (*models.User, error) {
	name, ok := f.users[uid]
	if !ok {
		return nil, nil
	}
	return &models.User{ID: uid, Username: name}, nil
}

func (f *fakeDirectory) SearchUsers(_ context.Context, prefix string) ([]models.User, error) {
	var result []models.User
	for uid, name := range f.users {
		if strings.HasPrefix(name, prefix) {
			result = append(result, models.User{ID: uid, Username: name})
		}
	}
	return result, nil
}

func (f *fakeDirectory) OrganizationsOf(_ context.Context, uid string) ([]models.Organization, error) {
	return f.orgs[uid], nil
}

func (f *fakeDirectory) OrganizationMembers(_ context.Context, oid string) ([]models.User, error) {
	return f.members[oid], nil
}

type stubPortal struct {
	rejects map[string]bool
}

func (p *stubPortal) Verify(_ context.Context, cred elec.Credential) error {
	if p.rejects[cred.Password] {
		return elec.ErrBadCredentials
	}
	return nil
}

func (p *stubPortal) Surplus(context.Context, elec.Credential, models.ElecBuilding) (elec.Reading, error) {
	return elec.Reading{}, nil
}

// asUser injects an authenticated user so handlers can be tested without a
// token verifier.
func asUser(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), uid)))
		})
	}
}

type testEnv struct {
	store  *sqlite.SQLiteStore
	dir    *fakeDirectory
	portal *stubPortal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &testEnv{
		store: store,
		dir: &fakeDirectory{
			users: map[string]string{
				"alice": "alice",
				"bob":   "bob",
				"carol": "carol",
			},
			orgs: map[string][]models.Organization{
				"alice": {{ID: "org-1", Name: "room 301"}},
			},
			members: map[string][]models.User{
				"org-1": {
					{ID: "alice", Username: "alice"},
					{ID: "bob", Username: "bob"},
				},
			},
		},
		portal: &stubPortal{rejects: map[string]bool{"wrong": true}},
	}
}

func (e *testEnv) router(uid string) chi.Router {
	r := chi.NewRouter()
	r.Use(asUser(uid))

	l := ledger.New(e.store)
	NewBillService(l, e.store, e.dir).MountRoutes(r)
	NewCommonService(e.dir).MountRoutes(r)
	NewProfileService(e.store, e.portal).MountRoutes(r)
	NewElecService(e.store, e.store).MountRoutes(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const createBillBody = `{
	"title": "water",
	"trade_time": "2026-02-01T20:00:00+08:00",
	"description": "monthly",
	"price": 30,
	"party": "alice",
	"counterparty": ["bob", "carol"],
	"apportion_method": "ratio",
	"apportions": [
		{"user": "bob", "value": 50},
		{"user": "carol", "value": 50}
	]
}`

func TestBillLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router("alice"), http.MethodPost, "/bill/create", createBillBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("create returned empty bill id")
	}

	w = doJSON(t, env.router("bob"), http.MethodGet, "/bill/list", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d, body = %s", w.Code, w.Body)
	}
	var bills []struct {
		ID     string `json:"id"`
		Payer  string `json:"payer"`
		Amount struct {
			Diff decimal.Decimal `json:"diff"`
		} `json:"amount"`
		IsCompleted bool `json:"is_completed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bills); err != nil {
		t.Fatal(err)
	}
	if len(bills) != 1 || bills[0].Payer != "alice" {
		t.Fatalf("bills = %+v", bills)
	}
	if !bills[0].Amount.Diff.Equal(decimal.NewFromInt(15)) {
		t.Errorf("bob diff = %s, want 15", bills[0].Amount.Diff)
	}

	completeBody := `{"bill_id": "` + created.ID + `"}`
	if w = doJSON(t, env.router("bob"), http.MethodPost, "/bill/complete_amount", completeBody); w.Code != http.StatusOK {
		t.Fatalf("bob complete: status = %d", w.Code)
	}
	if w = doJSON(t, env.router("carol"), http.MethodPost, "/bill/complete_amount", completeBody); w.Code != http.StatusOK {
		t.Fatalf("carol complete: status = %d", w.Code)
	}

	// Both counterparties done, the payer entry must now be completed too.
	w = doJSON(t, env.router("alice"), http.MethodGet, "/bill/list", "")
	var aliceBills []struct {
		IsCompleted bool `json:"is_completed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &aliceBills); err != nil {
		t.Fatal(err)
	}
	if len(aliceBills) != 1 || !aliceBills[0].IsCompleted {
		t.Fatalf("payer entry not auto-completed: %+v", aliceBills)
	}

	if w = doJSON(t, env.router("alice"), http.MethodPost, "/bill/delete_amount", completeBody); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w = doJSON(t, env.router("alice"), http.MethodGet, "/bill/list", ""); w.Code != http.StatusNoContent {
		t.Fatalf("list after delete: status = %d, want 204", w.Code)
	}
}

func TestBillListEmpty(t *testing.T) {
	env := newTestEnv(t)
	if w := doJSON(t, env.router("alice"), http.MethodGet, "/bill/list", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestCreateBillRejectsUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	body := strings.Replace(createBillBody, `"carol"`, `"ghost"`, 1)
	body = strings.Replace(body, `{"user": "carol", "value": 50}`, `{"user": "ghost", "value": 50}`, 1)
	if w := doJSON(t, env.router("alice"), http.MethodPost, "/bill/create", body); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCompleteUnknownBill(t *testing.T) {
	env := newTestEnv(t)
	w := doJSON(t, env.router("alice"), http.MethodPost, "/bill/complete_amount", `{"bill_id": "nope"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestApportionPresets(t *testing.T) {
	env := newTestEnv(t)

	body := strings.Replace(createBillBody, `"apportions": [`,
		`"as_apportion_preset": true,
		"apportion_preset_title": "utilities",
		"apportion_preset_organization_id": "org-1",
		"apportions": [`, 1)
	if w := doJSON(t, env.router("alice"), http.MethodPost, "/bill/create", body); w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body)
	}

	w := doJSON(t, env.router("alice"), http.MethodGet, "/bill/apportion_preset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var presets []struct {
		Name    string `json:"name"`
		Org     string `json:"org"`
		Method  string `json:"method"`
		Details []struct {
			UID      string `json:"uid"`
			Username string `json:"username"`
		} `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &presets); err != nil {
		t.Fatal(err)
	}
	if len(presets) != 1 || presets[0].Name != "utilities" || presets[0].Org != "room 301" {
		t.Fatalf("presets = %+v", presets)
	}
	// carol is not an org-1 member, so only bob's value survives filtering.
	if len(presets[0].Details) != 1 || presets[0].Details[0].UID != "bob" {
		t.Fatalf("details = %+v", presets[0].Details)
	}

	// bob has no organizations at all.
	if w := doJSON(t, env.router("bob"), http.MethodGet, "/bill/apportion_preset", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestSearchUser(t *testing.T) {
	env := newTestEnv(t)

	w := doJSON(t, env.router("alice"), http.MethodGet, "/common/search/user?username=bo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var users []struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "bob" {
		t.Fatalf("users = %+v", users)
	}

	if w := doJSON(t, env.router("alice"), http.MethodGet, "/common/search/user?username=zzz", ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestOrganizationUsersRequiresMembership(t *testing.T) {
	env := newTestEnv(t)

	if w := doJSON(t, env.router("alice"), http.MethodGet, "/common/organization/user?organization_id=org-1", ""); w.Code != http.StatusOK {
		t.Fatalf("member: status = %d", w.Code)
	}
	if w := doJSON(t, env.router("carol"), http.MethodGet, "/common/organization/user?organization_id=org-1", ""); w.Code != http.StatusForbidden {
		t.Fatalf("non-member: status = %d, want 403", w.Code)
	}
	if w := doJSON(t, env.router("alice"), http.MethodGet, "/common/organization/user?organization_id=org-x", ""); w.Code != http.StatusForbidden {
		t.Fatalf("unknown org: status = %d, want 403", w.Code)
	}
}

func TestProfileCreateAndBind(t *testing.T) {
	env := newTestEnv(t)
	r := env.router("alice")

	if w := doJSON(t, r, http.MethodPost, "/profile/create", ""); w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/profile/create", ""); w.Code != http.StatusConflict {
		t.Fatalf("duplicate create: status = %d, want 409", w.Code)
	}

	if w := doJSON(t, r, http.MethodGet, "/profile/info/bind", ""); w.Code != http.StatusNoContent {
		t.Fatalf("unbound info: status = %d, want 204", w.Code)
	}

	bad := `{"username": "2023211001", "password": "wrong", "save_credentials": true}`
	if w := doJSON(t, r, http.MethodPost, "/profile/bind", bad); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad credential bind: status = %d, want 401", w.Code)
	}

	good := `{"username": "2023211001", "password": "ok", "save_credentials": true}`
	if w := doJSON(t, r, http.MethodPost, "/profile/bind", good); w.Code != http.StatusOK {
		t.Fatalf("bind: status = %d", w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/profile/info/bind", "")
	if w.Code != http.StatusOK {
		t.Fatalf("bound info: status = %d", w.Code)
	}
	var info struct {
		PortalID      string `json:"portal_id"`
		PasswordSaved bool   `json:"password_saved"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.PortalID != "2023211001" || !info.PasswordSaved {
		t.Fatalf("info = %+v", info)
	}

	if w := doJSON(t, r, http.MethodDelete, "/profile/password", ""); w.Code != http.StatusOK {
		t.Fatalf("delete password: status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/profile/password", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("delete absent password: status = %d, want 400", w.Code)
	}

	if w := doJSON(t, r, http.MethodPut, "/profile/password", `{"password": "ok"}`); w.Code != http.StatusOK {
		t.Fatalf("save password: status = %d", w.Code)
	}
}

func seedTestBuilding(t *testing.T, env *testEnv) {
	t.Helper()
	err := env.store.InsertBuilding(context.Background(), &models.ElecBuilding{
		ID:            "b1",
		AreaID:        "a1",
		AreaName:      "west campus",
		ApartmentID:   "p1",
		ApartmentName: "building 3",
		FloorID:       "f2",
		FloorName:     "2nd floor",
		DormitoryID:   "d301",
		DormitoryName: "301",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestElecSelectAndBind(t *testing.T) {
	env := newTestEnv(t)
	seedTestBuilding(t, env)
	r := env.router("alice")

	w := doJSON(t, r, http.MethodPost, "/elec/select", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select areas: status = %d", w.Code)
	}
	var sel struct {
		Type string `json:"type"`
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sel); err != nil {
		t.Fatal(err)
	}
	if sel.Type != "area" || len(sel.Data) != 1 || sel.Data[0].ID != "a1" {
		t.Fatalf("select = %+v", sel)
	}

	w = doJSON(t, r, http.MethodPost, "/elec/select", `{"area_id": "a1", "apartment_id": "p1", "floor_id": "f2"}`)
	if err := json.Unmarshal(w.Body.Bytes(), &sel); err != nil {
		t.Fatal(err)
	}
	if sel.Type != "dormitory" || len(sel.Data) != 1 || sel.Data[0].Name != "301" {
		t.Fatalf("select = %+v", sel)
	}

	bind := `{"area_id": "a1", "apartment_id": "p1", "floor_id": "f2", "dormitory_id": "d301"}`
	if w := doJSON(t, r, http.MethodPost, "/elec/bind", bind); w.Code != http.StatusOK {
		t.Fatalf("bind: status = %d, body = %s", w.Code, w.Body)
	}

	w = doJSON(t, r, http.MethodGet, "/elec/info/bind", "")
	var bound struct {
		BuildingID string `json:"building_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bound); err != nil {
		t.Fatal(err)
	}
	if bound.BuildingID != "b1" {
		t.Fatalf("building_id = %q", bound.BuildingID)
	}

	missing := `{"area_id": "a1", "apartment_id": "p1", "floor_id": "f2", "dormitory_id": "d999"}`
	if w := doJSON(t, r, http.MethodPost, "/elec/bind", missing); w.Code != http.StatusNotFound {
		t.Fatalf("bind unknown dorm: status = %d, want 404", w.Code)
	}
}

func TestElecBuildingInfoAndData(t *testing.T) {
	env := newTestEnv(t)
	seedTestBuilding(t, env)
	r := env.router("alice")

	w := doJSON(t, r, http.MethodGet, "/elec/info/building?building_id=b1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var names struct {
		DormitoryName string `json:"dormitory_name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &names); err != nil {
		t.Fatal(err)
	}
	if names.DormitoryName != "301" {
		t.Fatalf("names = %+v", names)
	}

	bind := `{"area_id": "a1", "apartment_id": "p1", "floor_id": "f2", "dormitory_id": "d301"}`
	if w := doJSON(t, r, http.MethodPost, "/elec/bind", bind); w.Code != http.StatusOK {
		t.Fatalf("bind: status = %d", w.Code)
	}

	err := env.store.InsertStat(context.Background(), &models.ElecStat{
		BuildingID: "b1",
		SearchTime: mustParse(t, "2026-03-01T12:05:00+08:00"),
		Surplus:    decimal.RequireFromString("42.50"),
	})
	if err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, r, http.MethodGet, "/elec/info/data?start=2026-03-01T00:00:00%2B08:00&end=2026-03-02T00:00:00%2B08:00", "")
	if w.Code != http.StatusOK {
		t.Fatalf("data: status = %d, body = %s", w.Code, w.Body)
	}
	var points []struct {
		Surplus decimal.Decimal `json:"surplus"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &points); err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 || !points[0].Surplus.Equal(decimal.RequireFromString("42.50")) {
		t.Fatalf("points = %+v", points)
	}
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}
