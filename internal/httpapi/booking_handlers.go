package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/obs"
	"quickcourt.org/internal/stream"
)

type createBookingRequest struct {
	CourtID        string    `json:"court_id"`
	StartAt        time.Time `json:"start_at"`
	EndAt          time.Time `json:"end_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

type addCourtRequest struct {
	VenueID      string `json:"venue_id"`
	Name         string `json:"name"`
	Sport        string `json:"sport"`
	PricePerHour string `json:"price_per_hour"`
}

type addSlotRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

type addBlockRequest struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	Reason  string    `json:"reason"`
}

func (a *API) handleBookingsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createBooking(w, r)
	case http.MethodGet:
		a.listBookings(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleBookingResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/bookings/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/cancel"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.cancelBooking(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/history"); ok && id != "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.bookingHistory(w, r, id)
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
	a.getBooking(w, r, path)
}

func (a *API) createBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.CourtID) == "" {
		writeError(w, r, http.StatusBadRequest, "court_id is required")
		return
	}
	if req.StartAt.IsZero() || req.EndAt.IsZero() {
		writeError(w, r, http.StatusBadRequest, "start_at and end_at are required")
		return
	}

	idem := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if req.IdempotencyKey != "" {
		bodyKey := strings.TrimSpace(req.IdempotencyKey)
		if idem == "" {
			idem = bodyKey
		} else if idem != bodyKey {
			writeError(w, r, http.StatusBadRequest, "Idempotency-Key header and body value must match")
			return
		}
	}
	if len(idem) > 128 {
		writeError(w, r, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}

	b, err := a.bookings.CreateBooking(r.Context(), actor, booking.CreateRequest{
		CourtID:        req.CourtID,
		StartAt:        req.StartAt.UTC(),
		EndAt:          req.EndAt.UTC(),
		IdempotencyKey: idem,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	obs.BookingCreated()
	if a.events != nil {
		a.events.Publish(stream.BookingEvent{
			Kind:      "created",
			BookingID: b.ID,
			CourtID:   b.CourtID,
			VenueID:   b.VenueID,
			StartAt:   b.StartAt,
			EndAt:     b.EndAt,
		})
	}
	fields := map[string]string{
		"court_id":     b.CourtID,
		"amount_cents": strconv.FormatInt(b.AmountCents, 10),
	}
	if idem != "" {
		fields["idempotency_key"] = idem
		w.Header().Set("Idempotency-Key", idem)
	}
	a.audit(r.Context(), "booking.create", "booking", b.ID, fields)

	w.Header().Set("Location", "/v1/bookings/"+b.ID)
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) cancelBooking(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	b, err := a.bookings.CancelBooking(r.Context(), actor, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if a.events != nil {
		a.events.Publish(stream.BookingEvent{
			Kind:      "cancelled",
			BookingID: b.ID,
			CourtID:   b.CourtID,
			VenueID:   b.VenueID,
			StartAt:   b.StartAt,
			EndAt:     b.EndAt,
		})
	}
	a.audit(r.Context(), "booking.cancel", "booking", b.ID, nil)
	writeJSON(w, http.StatusOK, b)
}

func (a *API) getBooking(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	b, err := a.bookings.GetBooking(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if b.UserID != actor.ID && b.OwnerID != actor.ID && !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "not your booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) bookingHistory(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	b, err := a.bookings.GetBooking(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if b.UserID != actor.ID && b.OwnerID != actor.ID && !actor.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "not your booking")
		return
	}
	entries, err := a.bookings.History(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) listBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	f := booking.ListFilter{
		UserID:  strings.TrimSpace(r.URL.Query().Get("user_id")),
		OwnerID: strings.TrimSpace(r.URL.Query().Get("owner_id")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, ok := booking.ParseStatus(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown status")
			return
		}
		f.Status = st
	}
	// Non-admins only see their own side of the ledger.
	if !actor.IsAdmin() {
		if actor.IsOwner() && f.OwnerID == actor.ID {
			f.UserID = ""
		} else {
			f.UserID = actor.ID
			f.OwnerID = ""
		}
	}

	items, err := a.bookings.ListBookings(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"as_of": time.Now().UTC(),
	})
}

// --- courts ---

func (a *API) handleCourtsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req addCourtRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.VenueID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "venue_id and name are required")
		return
	}
	price, err := decimal.NewFromString(req.PricePerHour)
	if err != nil || price.IsNegative() {
		writeError(w, r, http.StatusBadRequest, "price_per_hour must be a non-negative decimal")
		return
	}

	c, err := a.catalog.AddCourt(r.Context(), actor, booking.CourtRequest{
		VenueID:      req.VenueID,
		Name:         req.Name,
		Sport:        req.Sport,
		PricePerHour: price,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "court.create", "court", c.ID, map[string]string{"venue_id": c.VenueID})
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleCourtResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/courts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/availability"); ok && id != "" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.courtAvailability(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/slots"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.addTimeSlot(w, r, id)
		return
	}
	if id, ok := strings.CutSuffix(path, "/blocks"); ok && id != "" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.addBlockedWindow(w, r, id)
		return
	}
	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) courtAvailability(w http.ResponseWriter, r *http.Request, courtID string) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	free, err := a.bookings.IsAvailable(r.Context(), courtID, start.UTC(), end.UTC())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"court_id":  courtID,
		"start_at":  start.UTC(),
		"end_at":    end.UTC(),
		"available": free,
	})
}

func (a *API) addTimeSlot(w http.ResponseWriter, r *http.Request, courtID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req addSlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, r, http.StatusBadRequest, "day_of_week must be 0..6")
		return
	}
	err := a.catalog.AddTimeSlot(r.Context(), actor, booking.TimeSlot{
		CourtID:   courtID,
		DayOfWeek: time.Weekday(req.DayOfWeek),
		Start:     req.Start,
		End:       req.End,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok"})
}

func (a *API) addBlockedWindow(w http.ResponseWriter, r *http.Request, courtID string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req addBlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !req.StartAt.Before(req.EndAt) {
		writeError(w, r, http.StatusBadRequest, "start_at must be before end_at")
		return
	}
	block, err := a.catalog.AddBlockedWindow(r.Context(), actor, booking.BlockedWindow{
		CourtID: courtID,
		StartAt: req.StartAt.UTC(),
		EndAt:   req.EndAt.UTC(),
		Reason:  req.Reason,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "court.block", "court", courtID, map[string]string{"block_id": block.ID})
	writeJSON(w, http.StatusCreated, block)
}
