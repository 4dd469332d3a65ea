package service

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lingzc/dormlife/internal/httpx"
	"github.com/lingzc/dormlife/internal/middleware"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// ElecService serves building metadata, the caller's building binding, and
// the sampled surplus series.
type ElecService struct {
	accounts storage.AccountStore
	elec     storage.ElecStore
}

// NewElecService creates an ElecService.
func NewElecService(accounts storage.AccountStore, elecStore storage.ElecStore) *ElecService {
	return &ElecService{accounts: accounts, elec: elecStore}
}

// MountRoutes attaches the electricity routes under /elec.
func (s *ElecService) MountRoutes(r chi.Router) {
	r.Route("/elec", func(r chi.Router) {
		r.Get("/info/bind", s.infoBind)
		r.Get("/info/building", s.infoBuilding)
		r.Get("/info/data", s.data)
		r.Post("/select", s.selectLevel)
		r.Post("/bind", s.bind)
	})
}

func (s *ElecService) infoBind(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.JSON(w, http.StatusOK, map[string]string{"building_id": ""})
		return
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"building_id": account.BuildingID})
}

type buildingNames struct {
	AreaName      string `json:"area_name"`
	ApartmentName string `json:"apartment_name"`
	FloorName     string `json:"floor_name"`
	DormitoryName string `json:"dormitory_name"`
}

func (s *ElecService) infoBuilding(w http.ResponseWriter, r *http.Request) {
	buildingID := r.URL.Query().Get("building_id")
	if buildingID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "building_id is required")
		return
	}

	building, err := s.elec.GetBuilding(r.Context(), buildingID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, buildingNames{
		AreaName:      building.AreaName,
		ApartmentName: building.ApartmentName,
		FloorName:     building.FloorName,
		DormitoryName: building.DormitoryName,
	})
}

type statPoint struct {
	Time    string          `json:"time"`
	Surplus decimal.Decimal `json:"surplus"`
}

func (s *ElecService) data(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if account.BuildingID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no building bound")
		return
	}

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start must be ISO 8601")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end must be ISO 8601")
		return
	}

	stats, err := s.elec.StatsBetween(r.Context(), account.BuildingID, start, end)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	result := make([]statPoint, 0, len(stats))
	for _, stat := range stats {
		result = append(result, statPoint{
			Time:    stat.SearchTime.Format(time.RFC3339),
			Surplus: stat.Surplus,
		})
	}
	httpx.JSON(w, http.StatusOK, result)
}

type selectRequest struct {
	AreaID      string `json:"area_id"`
	ApartmentID string `json:"apartment_id"`
	FloorID     string `json:"floor_id"`
}

type selectOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type selectResponse struct {
	Type string         `json:"type"`
	Data []selectOption `json:"data"`
}

// selectLevel drills down the building hierarchy one level at a time: with no
// area chosen it lists areas, with an area it lists apartments, and so on
// down to dormitories.
func (s *ElecService) selectLevel(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid body")
		return
	}

	filter := storage.BuildingFilter{
		AreaID:      req.AreaID,
		ApartmentID: req.ApartmentID,
		FloorID:     req.FloorID,
	}
	buildings, err := s.elec.FindBuildings(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var level string
	var key func(b *models.ElecBuilding) selectOption
	switch {
	case req.AreaID == "":
		level = "area"
		key = func(b *models.ElecBuilding) selectOption {
			return selectOption{ID: b.AreaID, Name: b.AreaName}
		}
	case req.ApartmentID == "":
		level = "apartment"
		key = func(b *models.ElecBuilding) selectOption {
			return selectOption{ID: b.ApartmentID, Name: b.ApartmentName}
		}
	case req.FloorID == "":
		level = "floor"
		key = func(b *models.ElecBuilding) selectOption {
			return selectOption{ID: b.FloorID, Name: b.FloorName}
		}
	default:
		level = "dormitory"
		key = func(b *models.ElecBuilding) selectOption {
			return selectOption{ID: b.DormitoryID, Name: b.DormitoryName}
		}
	}

	seen := make(map[string]struct{})
	options := make([]selectOption, 0, len(buildings))
	for _, b := range buildings {
		opt := key(b)
		if _, dup := seen[opt.ID]; dup {
			continue
		}
		seen[opt.ID] = struct{}{}
		options = append(options, opt)
	}
	httpx.JSON(w, http.StatusOK, selectResponse{Type: level, Data: options})
}

type elecBindRequest struct {
	AreaID      string `json:"area_id"`
	ApartmentID string `json:"apartment_id"`
	FloorID     string `json:"floor_id"`
	DormitoryID string `json:"dormitory_id"`
}

// bind attaches the caller to one dormitory. The account row is created on
// first bind.
func (s *ElecService) bind(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	var req elecBindRequest
	if err := httpx.DecodeJSON(r, &req); err != nil ||
		req.AreaID == "" || req.ApartmentID == "" || req.FloorID == "" || req.DormitoryID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "all four building levels are required")
		return
	}

	buildings, err := s.elec.FindBuildings(r.Context(), storage.BuildingFilter{
		AreaID:      req.AreaID,
		ApartmentID: req.ApartmentID,
		FloorID:     req.FloorID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var building *models.ElecBuilding
	for _, b := range buildings {
		if b.DormitoryID == req.DormitoryID {
			building = b
			break
		}
	}
	if building == nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no such dormitory")
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), uid)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		account = &models.Account{UID: uid, BuildingID: building.ID}
		err = s.accounts.CreateAccount(r.Context(), account)
	case err == nil:
		account.BuildingID = building.ID
		err = s.accounts.UpdateAccount(r.Context(), account)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"building_id": building.ID})
}
