package elec

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/models"
)

func newFakePortalServer(t *testing.T, searchBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("password") != "right" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1"})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "s1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("dromNumber"); got != "d301" {
			t.Errorf("dromNumber = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var testBuilding = models.ElecBuilding{
	ID:          "b1",
	AreaID:      "a1",
	ApartmentID: "p1",
	FloorID:     "f2",
	DormitoryID: "d301",
}

func TestSurplusIncludesFreeAllowance(t *testing.T) {
	srv := newFakePortalServer(t, `{"e":0,"d":{"data":{"surplus":12.34,"freeEnd":"5","time":"2026-03-01 12:05:00"}}}`)
	c := NewClient(srv.URL+"/login", srv.URL+"/search")

	reading, err := c.Surplus(context.Background(), Credential{Username: "u", Password: "right"}, testBuilding)
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("17.34"); !reading.Surplus.Equal(want) {
		t.Errorf("surplus = %s, want %s", reading.Surplus, want)
	}
	if reading.SearchTime.Hour() != 12 || reading.SearchTime.Minute() != 5 {
		t.Errorf("search time = %v", reading.SearchTime)
	}
}

func TestSurplusPortalError(t *testing.T) {
	srv := newFakePortalServer(t, `{"e":1,"m":"系统繁忙"}`)
	c := NewClient(srv.URL+"/login", srv.URL+"/search")

	if _, err := c.Surplus(context.Background(), Credential{Username: "u", Password: "right"}, testBuilding); err == nil {
		t.Fatal("expected error for portal envelope e != 0")
	}
}

func TestVerifyBadCredentials(t *testing.T) {
	srv := newFakePortalServer(t, `{}`)
	c := NewClient(srv.URL+"/login", srv.URL+"/search")

	err := c.Verify(context.Background(), Credential{Username: "u", Password: "wrong"})
	if !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("err = %v, want ErrBadCredentials", err)
	}

	if err := c.Verify(context.Background(), Credential{Username: "u", Password: "right"}); err != nil {
		t.Fatalf("valid credential rejected: %v", err)
	}
}
