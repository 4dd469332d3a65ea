package service

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lingzc/dormlife/internal/elec"
	"github.com/lingzc/dormlife/internal/httpx"
	"github.com/lingzc/dormlife/internal/middleware"
	"github.com/lingzc/dormlife/internal/models"
	"github.com/lingzc/dormlife/internal/storage"
)

// ProfileService manages per-user account rows: creation and campus portal
// credential binding. Credentials are verified against the portal before they
// are stored.
type ProfileService struct {
	accounts storage.AccountStore
	portal   elec.Portal
}

// NewProfileService creates a ProfileService.
func NewProfileService(accounts storage.AccountStore, portal elec.Portal) *ProfileService {
	return &ProfileService{accounts: accounts, portal: portal}
}

// MountRoutes attaches the profile routes under /profile.
func (s *ProfileService) MountRoutes(r chi.Router) {
	r.Route("/profile", func(r chi.Router) {
		r.Post("/create", s.create)
		r.Get("/info/bind", s.infoBind)
		r.Post("/bind", s.bind)
		r.Put("/password", s.savePassword)
		r.Delete("/password", s.deletePassword)
	})
}

func (s *ProfileService) create(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	if _, err := s.accounts.GetAccount(r.Context(), uid); err == nil {
		httpx.Problem(w, http.StatusConflict, "Conflict", "account already exists")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		httpx.RespondError(w, err)
		return
	}

	if err := s.accounts.CreateAccount(r.Context(), &models.Account{UID: uid}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

type bindInfo struct {
	PortalID      string `json:"portal_id"`
	PasswordSaved bool   `json:"password_saved"`
}

func (s *ProfileService) infoBind(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if account.PortalID == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.JSON(w, http.StatusOK, bindInfo{
		PortalID:      account.PortalID,
		PasswordSaved: account.PortalPassword != "",
	})
}

type bindRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	SaveCredentials bool   `json:"save_credentials"`
}

// bind attaches a portal account to the caller's profile. The credential is
// replayed against the portal first; the password is only persisted when the
// caller opts in, so the collector can use it later.
func (s *ProfileService) bind(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	var req bindRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "username and password are required")
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if account.PortalID == req.Username {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "portal account already bound")
		return
	}

	cred := elec.Credential{Username: req.Username, Password: req.Password}
	if err := s.portal.Verify(r.Context(), cred); err != nil {
		if errors.Is(err, elec.ErrBadCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "portal rejected the credentials")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	account.PortalID = req.Username
	if req.SaveCredentials {
		account.PortalPassword = req.Password
	} else {
		account.PortalPassword = ""
	}
	if err := s.accounts.UpdateAccount(r.Context(), account); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// savePassword stores the password for an already-bound portal account, after
// verifying it.
func (s *ProfileService) savePassword(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	var req passwordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.Password == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "password is required")
		return
	}

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if account.PortalID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no portal account bound")
		return
	}

	cred := elec.Credential{Username: account.PortalID, Password: req.Password}
	if err := s.portal.Verify(r.Context(), cred); err != nil {
		if errors.Is(err, elec.ErrBadCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "portal rejected the credentials")
			return
		}
		httpx.RespondError(w, err)
		return
	}

	account.PortalPassword = req.Password
	if err := s.accounts.UpdateAccount(r.Context(), account); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *ProfileService) deletePassword(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())

	account, err := s.accounts.GetAccount(r.Context(), uid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if account.PortalPassword == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no saved password")
		return
	}

	account.PortalPassword = ""
	if err := s.accounts.UpdateAccount(r.Context(), account); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
