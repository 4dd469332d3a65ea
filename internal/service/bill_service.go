// Package service exposes the HTTP API: bills and settlement, directory
// lookups, profile and building binding, and electricity stats.
package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/directory"
	"github.com/lingzc/dormlife/internal/httpx"
	"github.com/lingzc/dormlife/internal/ledger"
	"github.com/lingzc/dormlife/internal/middleware"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
	"github.com/lingzc/dormlife/internal/validate"
)

// BillService handles bill creation, listing, settlement transitions, and
// apportion presets.
type BillService struct {
	ledger *ledger.Ledger
	store  storage.Store
	dir    directory.Directory
}

// NewBillService creates a BillService.
func NewBillService(l *ledger.Ledger, store storage.Store, dir directory.Directory) *BillService {
	return &BillService{ledger: l, store: store, dir: dir}
}

// MountRoutes attaches the bill routes under /bill.
func (s *BillService) MountRoutes(r chi.Router) {
	r.Route("/bill", func(r chi.Router) {
		r.Get("/list", s.list)
		r.Post("/create", s.create)
		r.Post("/complete_amount", s.completeAmount)
		r.Post("/delete_amount", s.deleteAmount)
		r.Get("/apportion_preset", s.apportionPresets)
	})
}

type billAmount struct {
	Price decimal.Decimal `json:"price"`
	Diff  decimal.Decimal `json:"diff"`
}

type billListItem struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Time        string          `json:"time"`
	Description string          `json:"description"`
	Total       decimal.Decimal `json:"total"`
	Payer       string          `json:"payer"`
	Amount      billAmount      `json:"amount"`
	IsCompleted bool            `json:"is_completed"`
}

func (s *BillService) list(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	bills, err := s.ledger.ListForUser(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(bills) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Payer display names come from the directory; resolve each payer once.
	payerNames := make(map[string]string)
	result := make([]billListItem, 0, len(bills))
	for _, ub := range bills {
		name, ok := payerNames[ub.Bill.PayerUID]
		if !ok {
			payer, err := s.dir.ResolveUser(r.Context(), ub.Bill.PayerUID)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if payer != nil {
				name = payer.Username
			}
			payerNames[ub.Bill.PayerUID] = name
		}
		result = append(result, billListItem{
			ID:          ub.Bill.ID,
			Title:       ub.Bill.Title,
			Time:        ub.Bill.TradeTime.Format("2006-01-02T15:04:05-07:00"),
			Description: ub.Bill.Description,
			Total:       ub.Bill.Price,
			Payer:       name,
			Amount: billAmount{
				Price: ub.Entry.Amount,
				Diff:  ub.Entry.Diff,
			},
			IsCompleted: ub.Entry.Completed,
		})
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (s *BillService) create(w http.ResponseWriter, r *http.Request) {
	vb, err := validate.ParseBill(r.Context(), r.Body, s.dir)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var preset *models.Preset
	if vb.SavePreset {
		preset = &models.Preset{
			Name:   vb.PresetName,
			OrgID:  vb.PresetOrgID,
			Method: vb.Apportionment.Method,
			Values: vb.Apportionment.Values,
		}
	}

	if err := s.ledger.CreateBill(r.Context(), &vb.Bill, &vb.Apportionment, preset); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": vb.Bill.ID})
}

type billIDRequest struct {
	BillID string `json:"bill_id"`
}

func (s *BillService) completeAmount(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	var req billIDRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.BillID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bill_id is required")
		return
	}

	if err := s.ledger.Complete(r.Context(), req.BillID, uid); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *BillService) deleteAmount(w http.ResponseWriter, r *http.Request) {
	var req billIDRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.BillID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "bill_id is required")
		return
	}

	if err := s.ledger.SoftDelete(r.Context(), req.BillID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type presetDetail struct {
	UID      string          `json:"uid"`
	Username string          `json:"username"`
	Value    decimal.Decimal `json:"value"`
}

type presetItem struct {
	Name    string         `json:"name"`
	Org     string         `json:"org"`
	Method  string         `json:"method"`
	Details []presetDetail `json:"details"`
}

func (s *BillService) apportionPresets(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	orgs, err := s.dir.OrganizationsOf(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(orgs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	orgNames := make(map[string]string, len(orgs))
	orgIDs := make([]string, 0, len(orgs))
	for _, org := range orgs {
		orgNames[org.ID] = org.Name
		orgIDs = append(orgIDs, org.ID)
	}

	presets, err := s.store.ListPresetsByOrgs(r.Context(), orgIDs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(presets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Preset values are filtered to current organization members so departed
	// users drop out of the suggestion.
	members := make(map[string]map[string]string)
	result := make([]presetItem, 0, len(presets))
	for _, preset := range presets {
		orgMembers, ok := members[preset.OrgID]
		if !ok {
			users, err := s.dir.OrganizationMembers(r.Context(), preset.OrgID)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			orgMembers = make(map[string]string, len(users))
			for _, u := range users {
				orgMembers[u.ID] = u.Username
			}
			members[preset.OrgID] = orgMembers
		}

		details := make([]presetDetail, 0, len(preset.Values))
		for _, v := range preset.Values {
			username, ok := orgMembers[v.UID]
			if !ok {
				continue
			}
			details = append(details, presetDetail{
				UID:      v.UID,
				Username: username,
				Value:    v.Value,
			})
		}
		result = append(result, presetItem{
			Name:    preset.Name,
			Org:     orgNames[preset.OrgID],
			Method:  string(preset.Method),
			Details: details,
		})
	}
	httpx.JSON(w, http.StatusOK, result)
}
