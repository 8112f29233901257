package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finease/internal/admin"
	"finease/internal/core"
)

const manageUsersPath = "/dashboard/manage-users"

type userRow struct {
	core.User
	CanDelete bool
}

type usersView struct {
	admin.View
	Rows      []userRow
	Roles     []core.Role
	Sorts     []sortOption
	PageSizes []int
	Error     string
}

var userSorts = []sortOption{
	{admin.SortNewest, "Newest"},
	{admin.SortOldest, "Oldest"},
	{admin.SortNameAsc, "Name (A-Z)"},
	{admin.SortNameDesc, "Name (Z-A)"},
	{admin.SortEmailAsc, "Email (A-Z)"},
	{admin.SortEmailDesc, "Email (Z-A)"},
	{admin.SortRoleAsc, "Role (A-Z)"},
	{admin.SortRoleDesc, "Role (Z-A)"},
}

type analyticsBar struct {
	Month string
	Count int
	Width int
}

type analyticsView struct {
	Bars  []analyticsBar
	Total int
	Error string
}

func adminNotice(err error) (int, Notification) {
	switch {
	case errors.Is(err, core.ErrInvalidRole):
		return http.StatusUnprocessableEntity, failure("Action failed", "Unknown role.")
	case errors.Is(err, admin.ErrNotFound):
		return http.StatusNotFound, failure("Action failed", "User not found.")
	case errors.Is(err, admin.ErrSelfDelete):
		return http.StatusForbidden, failure("Action failed", "You cannot delete your own account.")
	case errors.Is(err, admin.ErrNotConfirmed):
		return http.StatusBadRequest, failure("Delete this user?", "This action cannot be undone.")
	default:
		return http.StatusBadGateway, failure("Action failed", "Try again later.")
	}
}

// ensureUsers loads the user table unless a previous load succeeded.
func (s *Server) ensureUsers(r *http.Request) error {
	if s.admin.Loaded() {
		return nil
	}
	return s.admin.Load(r.Context())
}

func (s *Server) handleManageUsers(w http.ResponseWriter, r *http.Request) {
	actor := s.session.State().Email()
	view := usersView{Roles: core.Roles, Sorts: userSorts, PageSizes: admin.PageSizes}

	var err error
	if !isHTMX(r) || r.URL.Query().Get("refresh") == "1" {
		err = s.admin.Load(r.Context())
	} else {
		err = s.ensureUsers(r)
	}
	if err != nil {
		view.Error = "Could not load users. Showing the last loaded list."
	}

	current := s.admin.View()
	ParseListParams(r.URL.Query()).Apply(s.admin, current.Query, current.SortKey, current.PageSize)
	view.View = s.admin.View()
	for _, u := range view.Items {
		view.Rows = append(view.Rows, userRow{User: u, CanDelete: admin.CanDelete(u, actor)})
	}

	if isHTMX(r) {
		s.renderPartial(w, r, "manage_users.html", "users_table", view)
		return
	}
	s.render(w, r, http.StatusOK, "manage_users.html", s.newPage(r, "Manage Users", view))
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	if err := s.ensureUsers(r); err != nil {
		s.respond(w, r, outcome{Status: http.StatusBadGateway, Notice: failure("Action failed", "Try again later."), Back: manageUsersPath})
		return
	}
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	role := core.Role(p.Get("role"))
	u, err := s.admin.SetRole(r.Context(), s.session.State().Email(), chi.URLParam(r, "id"), role)
	if err != nil {
		status, n := adminNotice(err)
		s.respond(w, r, outcome{Status: status, Notice: n, Back: manageUsersPath})
		return
	}
	s.respond(w, r, outcome{
		Notice:   success("Role updated", "User role updated to "+string(u.Role)+"."),
		Back:     manageUsersPath,
		Triggers: []string{"users:changed"},
	})
}

func (s *Server) handleDeleteUserConfirm(w http.ResponseWriter, r *http.Request) {
	if err := s.ensureUsers(r); err != nil {
		s.respond(w, r, outcome{Status: http.StatusBadGateway, Notice: failure("Action failed", "Try again later."), Back: manageUsersPath})
		return
	}
	id := chi.URLParam(r, "id")
	u, ok := s.admin.Get(id)
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	s.render(w, r, http.StatusOK, "confirm.html", s.newPage(r, "Delete User", confirmView{
		Title:        "Delete this user?",
		Text:         "This action cannot be undone.",
		Action:       manageUsersPath + "/" + id + "/delete",
		ConfirmLabel: "Yes, delete",
		CancelURL:    manageUsersPath,
		Disabled:     !admin.CanDelete(u, s.session.State().Email()),
	}))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if errResp := RequireDeleteOrPOST(r); errResp != nil {
		errResp.Write(w)
		return
	}
	if err := s.ensureUsers(r); err != nil {
		s.respond(w, r, outcome{Status: http.StatusBadGateway, Notice: failure("Action failed", "Try again later."), Back: manageUsersPath})
		return
	}
	p, errResp := ParseBodyOrFail(r)
	if errResp != nil {
		errResp.Write(w)
		return
	}

	err := s.admin.Delete(r.Context(), s.session.State().Email(), chi.URLParam(r, "id"), p.Bool("confirmed"))
	if err != nil {
		status, n := adminNotice(err)
		s.respond(w, r, outcome{Status: status, Notice: n, Back: manageUsersPath})
		return
	}
	o := outcome{
		Notice:   success("User deleted", ""),
		Back:     manageUsersPath,
		Triggers: []string{"users:changed"},
	}
	if !isHTMX(r) {
		o.Redirect = manageUsersPath
	}
	s.respond(w, r, o)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	var view analyticsView
	if err := s.admin.LoadAnalytics(r.Context()); err != nil {
		view.Error = "Could not load analytics."
	}

	counts := s.admin.View().Analytics
	peak := 0
	for _, c := range counts {
		view.Total += c.Count
		peak = max(peak, c.Count)
	}
	for _, c := range counts {
		width := 0
		if peak > 0 && c.Count > 0 {
			width = max(2, c.Count*100/peak)
		}
		view.Bars = append(view.Bars, analyticsBar{Month: c.Month, Count: c.Count, Width: width})
	}
	s.render(w, r, http.StatusOK, "analytics.html", s.newPage(r, "Analytics", view))
}
