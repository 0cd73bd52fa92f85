package httpapi

import (
	"net/http"
	"strings"

	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/obs"
)

type createVenueRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type rejectVenueRequest struct {
	Comment string `json:"comment"`
}

func (a *API) handleVenuesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listVenues(w, r)
	case http.MethodPost:
		a.createVenue(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePendingVenues(w http.ResponseWriter, r *http.Request) {
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
	items, err := a.catalog.ListVenues(r.Context(), false)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleVenueResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/venues/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/approve"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.approveVenue(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/reject"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.rejectVenue(w, r, id)
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
	a.getVenue(w, r, path)
}

// listVenues is the public approved-venue listing.
func (a *API) listVenues(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalog.ListVenues(r.Context(), true)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createVenue(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createVenueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	v, err := a.catalog.CreateVenue(r.Context(), actor, booking.VenueRequest{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "venue.create", "venue", v.ID, nil)
	w.Header().Set("Location", "/v1/venues/"+v.ID)
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) getVenue(w http.ResponseWriter, r *http.Request, id string) {
	v, err := a.catalog.GetVenue(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	// Unapproved venues are visible to their owner and admins only.
	if !v.IsApproved {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		if v.OwnerID != actor.ID && !actor.IsAdmin() {
			writeError(w, r, http.StatusNotFound, booking.ErrVenueNotFound.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) approveVenue(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	v, err := a.workflow.ApproveVenue(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.ApprovalDecision("venue", "approve")
	a.audit(r.Context(), "venue.approve", "venue", id, nil)
	writeJSON(w, http.StatusOK, v)
}

func (a *API) rejectVenue(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req rejectVenueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.workflow.RejectVenue(r.Context(), actor, id, req.Comment); err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.ApprovalDecision("venue", "reject")
	a.audit(r.Context(), "venue.reject", "venue", id, map[string]string{"comment": req.Comment})
	writeJSON(w, http.StatusOK, map[string]any{"status": "rejected"})
}
