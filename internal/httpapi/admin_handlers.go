package httpapi

import (
	"net/http"
	"strings"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/obs"
	"quickcourt.org/internal/workflow"
)

type registerUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type banRequest struct {
	Banned bool `json:"banned"`
}

type fileReportRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Reason     string `json:"reason"`
}

type resolveReportRequest struct {
	Status string `json:"status"` // "resolved" | "dismissed"
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.registerUser(w, r)
	case http.MethodGet:
		a.listUsersByRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/role/approve"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.decideRole(w, r, id, true)
		return
	}
	if id, ok := strings.CutSuffix(path, "/role/reject"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.decideRole(w, r, id, false)
		return
	}
	if id, ok := strings.CutSuffix(path, "/ban"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.setBan(w, r, id)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getUser(w, r, path)
}

func (a *API) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.workflow.RegisterUser(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.Email))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if actor.ID != id && !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "not your profile")
		return
	}
	u, err := a.workflow.GetUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) listUsersByRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	role, ok := auth.ParseRole(r.URL.Query().Get("role"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	items, err := a.workflow.ListUsersByRole(r.Context(), role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleRoleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}
	u, err := a.workflow.RequestRole(r.Context(), actor, role)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "role.request", "user", actor.ID, map[string]string{"role": string(role)})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) decideRole(w http.ResponseWriter, r *http.Request, userID string, approve bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var (
		u   workflow.User
		err error
	)
	outcome := "reject"
	if approve {
		outcome = "approve"
		u, err = a.workflow.ApproveRole(r.Context(), actor, userID)
	} else {
		u, err = a.workflow.RejectRole(r.Context(), actor, userID)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.ApprovalDecision("role", outcome)
	a.audit(r.Context(), "role."+outcome, "user", userID, nil)
	writeJSON(w, http.StatusOK, u)
}

func (a *API) setBan(w http.ResponseWriter, r *http.Request, userID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.workflow.SetBan(r.Context(), actor, userID, req.Banned)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	event := "user.ban"
	if !req.Banned {
		event = "user.unban"
	}
	a.audit(r.Context(), event, "user", userID, nil)
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleReportsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req fileReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := a.workflow.FileReport(r.Context(), actor, workflow.ReportRequest{
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rep)
}

func (a *API) handleReportResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	id, ok := strings.CutSuffix(path, "/resolve")
	if !ok || id == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, okActor := actorFrom(w, r)
	if !okActor {
		return
	}
	var req resolveReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := workflow.ReportStatus(req.Status)
	rep, err := a.workflow.ResolveReport(r.Context(), actor, id, status)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "report.resolve", "report", id, map[string]string{"status": req.Status})
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleAdminActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	items, err := a.workflow.ListAdminActions(r.Context(),
		r.URL.Query().Get("target_type"), r.URL.Query().Get("target_id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
