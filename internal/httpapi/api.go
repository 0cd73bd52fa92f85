package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"quickcourt.org/internal/audit"
	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/obs"
	"quickcourt.org/internal/payment"
	"quickcourt.org/internal/reporting"
	"quickcourt.org/internal/stream"
	"quickcourt.org/internal/workflow"
)

// ReadyProbe checks that the backing store answers before the service
// reports ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the engines and collaborators into the HTTP layer.
type Config struct {
	Bookings booking.Service
	Catalog  booking.Catalog
	Workflow workflow.Service
	Stats    reporting.Service
	Verifier *auth.Verifier
	Events   *stream.Stream
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	bookings booking.Service
	catalog  booking.Catalog
	workflow workflow.Service
	stats    reporting.Service
	verifier *auth.Verifier
	events   *stream.Stream
}

func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.Ready,
		version:    cfg.Version,
		bookings:   cfg.Bookings,
		catalog:    cfg.Catalog,
		workflow:   cfg.Workflow,
		stats:      cfg.Stats,
		verifier:   cfg.Verifier,
		events:     cfg.Events,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// booking lifecycle
	a.mux.HandleFunc("/v1/bookings", a.handleBookingsCollection)
	a.mux.HandleFunc("/v1/bookings/", a.handleBookingResource)
	a.mux.HandleFunc("/v1/courts", a.handleCourtsCollection)
	a.mux.HandleFunc("/v1/courts/", a.handleCourtResource)

	// venues and approval workflow
	a.mux.HandleFunc("/v1/venues", a.handleVenuesCollection)
	a.mux.HandleFunc("/v1/venues/pending", a.handlePendingVenues)
	a.mux.HandleFunc("/v1/venues/", a.handleVenueResource)

	// users, roles, moderation
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/roles/request", a.handleRoleRequest)
	a.mux.HandleFunc("/v1/reports", a.handleReportsCollection)
	a.mux.HandleFunc("/v1/reports/", a.handleReportResource)
	a.mux.HandleFunc("/v1/admin/actions", a.handleAdminActions)

	// reporting
	a.mux.HandleFunc("/v1/stats/bookings", a.handleBookingActivity)
	a.mux.HandleFunc("/v1/stats/registrations", a.handleRegistrationTrends)
	a.mux.HandleFunc("/v1/stats/approvals", a.handleApprovalTrends)
	a.mux.HandleFunc("/v1/stats/sports", a.handleMostActiveSports)
	a.mux.HandleFunc("/v1/stats/global", a.handleGlobalStats)
	a.mux.HandleFunc("/v1/owners/", a.handleOwnerResource)

	// live booking events
	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler with authentication applied.
// Outer middleware (rate limits, CORS, logging) is composed by the caller.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- service handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "quickcourt-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "quickcourt-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, event, targetType, targetID string, fields map[string]string) {
	payload := map[string]any{
		"target_type": targetType,
		"target_id":   targetID,
	}
	for k, v := range fields {
		payload[k] = v
	}
	_ = audit.LogEvent(ctx, event, payload)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain sentinels onto the stable HTTP taxonomy.
// Only the error kind and message cross the boundary.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, booking.ErrCourtNotFound),
		errors.Is(err, booking.ErrVenueNotFound),
		errors.Is(err, workflow.ErrUserNotFound),
		errors.Is(err, workflow.ErrReportNotFound),
		errors.Is(err, reporting.ErrOwnerNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, booking.ErrConflict):
		obs.BookingConflict()
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrCourtInactive),
		errors.Is(err, booking.ErrVenueNotApproved),
		errors.Is(err, workflow.ErrAlreadyResolved),
		errors.Is(err, workflow.ErrNoPendingRequest):
		writeError(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, booking.ErrForbidden),
		errors.Is(err, booking.ErrBannedActor),
		errors.Is(err, workflow.ErrForbidden),
		errors.Is(err, workflow.ErrBannedActor):
		writeError(w, r, http.StatusForbidden, err.Error())

	case errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, booking.ErrInvalidName),
		errors.Is(err, booking.ErrPastBooking),
		errors.Is(err, workflow.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, booking.ErrStoreUnavailable),
		errors.Is(err, payment.ErrGatewayUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, err.Error())

	// Deadline expiry and dropped connections from the store are
	// transient: the client may retry the exact same request.
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sql.ErrConnDone):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusServiceUnavailable, booking.ErrStoreUnavailable.Error())

	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
