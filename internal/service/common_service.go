package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lingzc/dormlife/internal/directory"
	"github.com/lingzc/dormlife/internal/httpx"
	"github.com/lingzc/dormlife/internal/middleware"
)

// CommonService exposes directory lookups: user search, the caller's
// organizations, and organization member lists.
type CommonService struct {
	dir directory.Directory
}

// NewCommonService creates a CommonService.
func NewCommonService(dir directory.Directory) *CommonService {
	return &CommonService{dir: dir}
}

// MountRoutes attaches the directory routes under /common.
func (s *CommonService) MountRoutes(r chi.Router) {
	r.Route("/common", func(r chi.Router) {
		r.Get("/search/user", s.searchUser)
		r.Get("/my/organization", s.myOrganizations)
		r.Get("/organization/user", s.organizationUsers)
	})
}

type userItem struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func (s *CommonService) searchUser(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "username is required")
		return
	}

	users, err := s.dir.SearchUsers(r.Context(), username)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(users) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	result := make([]userItem, 0, len(users))
	for _, u := range users {
		result = append(result, userItem{ID: u.ID, Username: u.Username})
	}
	httpx.JSON(w, http.StatusOK, result)
}

type orgItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *CommonService) myOrganizations(w http.ResponseWriter, r *http.Request) {
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

	result := make([]orgItem, 0, len(orgs))
	for _, org := range orgs {
		result = append(result, orgItem{ID: org.ID, Name: org.Name})
	}
	httpx.JSON(w, http.StatusOK, result)
}

// organizationUsers lists the members of one organization. The caller must be
// a member themselves.
func (s *CommonService) organizationUsers(w http.ResponseWriter, r *http.Request) {
	uid := middleware.GetUserID(r.Context())
	oid := r.URL.Query().Get("organization_id")
	if oid == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "organization_id is required")
		return
	}

	users, err := s.dir.OrganizationMembers(r.Context(), oid)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	isMember := false
	for _, u := range users {
		if u.ID == uid {
			isMember = true
			break
		}
	}
	if !isMember {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not a member of this organization")
		return
	}

	result := make([]userItem, 0, len(users))
	for _, u := range users {
		result = append(result, userItem{ID: u.ID, Username: u.Username})
	}
	httpx.JSON(w, http.StatusOK, result)
}
