package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/ids"
)

// VenueDirectory is the slice of the venue catalog the approval engine
// mutates. booking.InMemory and store/pg both satisfy it.
type VenueDirectory interface {
	GetVenue(ctx context.Context, id string) (booking.Venue, error)
	SetVenueApproval(ctx context.Context, venueID, adminID string, approved bool) (booking.Venue, error)
}

// Service is the approval workflow engine: venue publication gating, role
// change gating, bans and moderation reports. Every decision appends an
// AdminAction record.
type Service interface {
	RegisterUser(ctx context.Context, name, email string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListUsersByRole(ctx context.Context, role auth.Role) ([]User, error)

	RequestRole(ctx context.Context, actor auth.Actor, role auth.Role) (User, error)
	ApproveRole(ctx context.Context, admin auth.Actor, userID string) (User, error)
	RejectRole(ctx context.Context, admin auth.Actor, userID string) (User, error)
	SetBan(ctx context.Context, admin auth.Actor, userID string, banned bool) (User, error)

	ApproveVenue(ctx context.Context, admin auth.Actor, venueID string) (booking.Venue, error)
	RejectVenue(ctx context.Context, admin auth.Actor, venueID, comment string) error

	FileReport(ctx context.Context, actor auth.Actor, req ReportRequest) (Report, error)
	ResolveReport(ctx context.Context, admin auth.Actor, reportID string, status ReportStatus) (Report, error)

	ListAdminActions(ctx context.Context, targetType, targetID string) ([]AdminAction, error)
}

// InMemory implements Service with in-process concurrency safety. The
// durable implementation lives in store/pg.
type InMemory struct {
	venues VenueDirectory
	now    func() time.Time

	mu      sync.RWMutex
	users   map[string]*User
	actions []AdminAction
	reports map[string]*Report
}

// NewInMemory creates an empty engine over the given venue directory.
func NewInMemory(venues VenueDirectory) *InMemory {
	return &InMemory{
		venues:  venues,
		now:     func() time.Time { return time.Now().UTC() },
		users:   make(map[string]*User),
		reports: make(map[string]*Report),
	}
}

// SetNow overrides the clock. Tests only.
func (s *InMemory) SetNow(now func() time.Time) { s.now = now }

func (s *InMemory) RegisterUser(ctx context.Context, name, email string) (User, error) {
	if name == "" || email == "" {
		return User{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	u := &User{
		ID:        ids.New(),
		Name:      name,
		Email:     email,
		Role:      auth.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[u.ID] = u
	return *u, nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *InMemory) ListUsersByRole(ctx context.Context, role auth.Role) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []User
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RequestRole records a role-change request. Admin requesters change role
// immediately; everyone else waits for approval.
func (s *InMemory) RequestRole(ctx context.Context, actor auth.Actor, role auth.Role) (User, error) {
	if actor.Banned {
		return User{}, ErrBannedActor
	}
	if _, ok := auth.ParseRole(string(role)); !ok {
		return User{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[actor.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	now := s.now()
	if actor.IsAdmin() {
		u.Role = role
		u.PendingRole = nil
	} else {
		pending := role
		u.PendingRole = &pending
	}
	u.UpdatedAt = now
	return *u, nil
}

func (s *InMemory) ApproveRole(ctx context.Context, admin auth.Actor, userID string) (User, error) {
	if err := requireAdmin(admin); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if u.PendingRole == nil {
		return User{}, ErrNoPendingRequest
	}
	u.Role = *u.PendingRole
	u.PendingRole = nil
	u.UpdatedAt = s.now()
	s.appendActionLocked(admin.ID, "user", userID, "approve", "role change approved")
	return *u, nil
}

// RejectRole clears the pending request without applying it.
func (s *InMemory) RejectRole(ctx context.Context, admin auth.Actor, userID string) (User, error) {
	if err := requireAdmin(admin); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if u.PendingRole == nil {
		return User{}, ErrNoPendingRequest
	}
	u.PendingRole = nil
	u.UpdatedAt = s.now()
	s.appendActionLocked(admin.ID, "user", userID, "reject", "role change rejected")
	return *u, nil
}

func (s *InMemory) SetBan(ctx context.Context, admin auth.Actor, userID string, banned bool) (User, error) {
	if err := requireAdmin(admin); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.IsBanned = banned
	u.UpdatedAt = s.now()
	action := "ban"
	if !banned {
		action = "unban"
	}
	s.appendActionLocked(admin.ID, "user", userID, action, "")
	return *u, nil
}

// ApproveVenue publishes a pending venue. Re-approving is a no-op success.
func (s *InMemory) ApproveVenue(ctx context.Context, admin auth.Actor, venueID string) (booking.Venue, error) {
	if err := requireAdmin(admin); err != nil {
		return booking.Venue{}, err
	}
	current, err := s.venues.GetVenue(ctx, venueID)
	if err != nil {
		return booking.Venue{}, err
	}
	if current.IsApproved {
		return current, nil
	}
	v, err := s.venues.SetVenueApproval(ctx, venueID, admin.ID, true)
	if err != nil {
		return booking.Venue{}, err
	}
	s.mu.Lock()
	s.appendActionLocked(admin.ID, "venue", venueID, "approve", "")
	s.mu.Unlock()
	return v, nil
}

// RejectVenue records the decision without publishing; the venue stays
// pending and can be resubmitted.
func (s *InMemory) RejectVenue(ctx context.Context, admin auth.Actor, venueID, comment string) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	if _, err := s.venues.GetVenue(ctx, venueID); err != nil {
		return err
	}
	s.mu.Lock()
	s.appendActionLocked(admin.ID, "venue", venueID, "reject", comment)
	s.mu.Unlock()
	return nil
}

func (s *InMemory) FileReport(ctx context.Context, actor auth.Actor, req ReportRequest) (Report, error) {
	if actor.Banned {
		return Report{}, ErrBannedActor
	}
	if req.TargetType == "" || req.TargetID == "" {
		return Report{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Report{
		ID:         ids.New(),
		ReporterID: actor.ID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
		Status:     ReportOpen,
		CreatedAt:  s.now(),
	}
	s.reports[r.ID] = r
	return *r, nil
}

func (s *InMemory) ResolveReport(ctx context.Context, admin auth.Actor, reportID string, status ReportStatus) (Report, error) {
	if err := requireAdmin(admin); err != nil {
		return Report{}, err
	}
	if status != ReportResolved && status != ReportDismissed {
		return Report{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[reportID]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	if r.Status != ReportOpen {
		return Report{}, ErrAlreadyResolved
	}
	now := s.now()
	r.Status = status
	r.ResolvedBy = admin.ID
	r.ResolvedAt = &now
	s.appendActionLocked(admin.ID, "report", reportID, "resolve", string(status))
	return *r, nil
}

func (s *InMemory) ListAdminActions(ctx context.Context, targetType, targetID string) ([]AdminAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AdminAction
	for _, a := range s.actions {
		if targetType != "" && a.TargetType != targetType {
			continue
		}
		if targetID != "" && a.TargetID != targetID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// SnapshotUsers returns a copy of all users for the metrics aggregator.
func (s *InMemory) SnapshotUsers(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, nil
}

func (s *InMemory) appendActionLocked(adminID, targetType, targetID, action, comment string) {
	s.actions = append(s.actions, AdminAction{
		ID:         ids.New(),
		AdminID:    adminID,
		TargetType: targetType,
		TargetID:   targetID,
		Action:     action,
		Comment:    comment,
		CreatedAt:  s.now(),
	})
}

func requireAdmin(actor auth.Actor) error {
	if actor.Banned {
		return ErrBannedActor
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
