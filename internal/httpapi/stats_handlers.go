package httpapi

import (
	"net/http"
	"strings"
)

func (a *API) handleBookingActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.stats.BookingActivity(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleRegistrationTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.stats.RegistrationTrends(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleApprovalTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.stats.ApprovalTrends(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleMostActiveSports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	items, err := a.stats.MostActiveSports(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleGlobalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stats, err := a.stats.GlobalStats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleOwnerResource serves /v1/owners/{id}/dashboard. Earnings stay in
// minor units in the engine; the boundary adds the display value.
func (a *API) handleOwnerResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/owners/")
	ownerID, ok := strings.CutSuffix(path, "/dashboard")
	if !ok || ownerID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, okActor := actorFrom(w, r)
	if !okActor {
		return
	}
	if actor.ID != ownerID && !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "not your dashboard")
		return
	}

	dash, err := a.stats.OwnerDashboard(r.Context(), ownerID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_id":         dash.OwnerID,
		"owner_name":       dash.OwnerName,
		"total_bookings":   dash.TotalBookings,
		"active_courts":    dash.ActiveCourts,
		"earnings_cents":   dash.EarningsCents,
		"earnings":         float64(dash.EarningsCents) / 100,
		"bookings_by_date": dash.BookingsByDate,
	})
}
