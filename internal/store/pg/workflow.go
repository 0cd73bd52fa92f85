package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"quickcourt.org/internal/auth"
	"quickcourt.org/internal/booking"
	"quickcourt.org/internal/ids"
	"quickcourt.org/internal/workflow"
)

const userCols = `id, name, email, role, pending_role, is_banned, created_at, updated_at`

func scanUser(row rowScanner) (workflow.User, error) {
	var u workflow.User
	var role string
	var pending sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &pending, &u.IsBanned, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return workflow.User{}, err
	}
	u.Role = auth.Role(role)
	if pending.Valid {
		r := auth.Role(pending.String)
		u.PendingRole = &r
	}
	return u, nil
}

func (s *Store) RegisterUser(ctx context.Context, name, email string) (workflow.User, error) {
	if name == "" || email == "" {
		return workflow.User{}, workflow.ErrInvalidInput
	}
	now := s.now()
	u := workflow.User{
		ID:        ids.New(),
		Name:      name,
		Email:     email,
		Role:      auth.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		insert into app_user(id, name, email, role, is_banned, created_at, updated_at)
		values ($1,$2,$3,$4,false,$5,$5)
	`, u.ID, u.Name, u.Email, string(u.Role), now)
	if err != nil {
		return workflow.User{}, err
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (workflow.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from app_user where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.User{}, workflow.ErrUserNotFound
	}
	return u, err
}

func (s *Store) ListUsersByRole(ctx context.Context, role auth.Role) ([]workflow.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userCols+` from app_user where role=$1 order by id asc
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RequestRole records a role-change request. Admin requesters change role
// immediately; everyone else waits for approval.
func (s *Store) RequestRole(ctx context.Context, actor auth.Actor, role auth.Role) (workflow.User, error) {
	if actor.Banned {
		return workflow.User{}, workflow.ErrBannedActor
	}
	if _, ok := auth.ParseRole(string(role)); !ok {
		return workflow.User{}, workflow.ErrInvalidInput
	}
	var res sql.Result
	var err error
	if actor.IsAdmin() {
		res, err = s.db.ExecContext(ctx, `
			update app_user set role=$2, pending_role=null, updated_at=$3 where id=$1
		`, actor.ID, string(role), s.now())
	} else {
		res, err = s.db.ExecContext(ctx, `
			update app_user set pending_role=$2, updated_at=$3 where id=$1
		`, actor.ID, string(role), s.now())
	}
	if err != nil {
		return workflow.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.User{}, workflow.ErrUserNotFound
	}
	return s.GetUser(ctx, actor.ID)
}

func (s *Store) ApproveRole(ctx context.Context, admin auth.Actor, userID string) (workflow.User, error) {
	return s.decideRole(ctx, admin, userID, true)
}

// RejectRole clears the pending request without applying it.
func (s *Store) RejectRole(ctx context.Context, admin auth.Actor, userID string) (workflow.User, error) {
	return s.decideRole(ctx, admin, userID, false)
}

func (s *Store) decideRole(ctx context.Context, admin auth.Actor, userID string, apply bool) (workflow.User, error) {
	if err := requireAdmin(admin); err != nil {
		return workflow.User{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var pending sql.NullString
	err = tx.QueryRowContext(ctx, `select pending_role from app_user where id=$1 for update`, userID).Scan(&pending)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.User{}, workflow.ErrUserNotFound
	}
	if err != nil {
		return workflow.User{}, err
	}
	if !pending.Valid {
		return workflow.User{}, workflow.ErrNoPendingRequest
	}

	now := s.now()
	action, comment := "reject", "role change rejected"
	if apply {
		action, comment = "approve", "role change approved"
		_, err = tx.ExecContext(ctx, `
			update app_user set role=pending_role, pending_role=null, updated_at=$2 where id=$1
		`, userID, now)
	} else {
		_, err = tx.ExecContext(ctx, `
			update app_user set pending_role=null, updated_at=$2 where id=$1
		`, userID, now)
	}
	if err != nil {
		return workflow.User{}, err
	}
	if err := insertAction(ctx, tx, admin.ID, "user", userID, action, comment, now); err != nil {
		return workflow.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.User{}, err
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) SetBan(ctx context.Context, admin auth.Actor, userID string, banned bool) (workflow.User, error) {
	if err := requireAdmin(admin); err != nil {
		return workflow.User{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	res, err := tx.ExecContext(ctx, `
		update app_user set is_banned=$2, updated_at=$3 where id=$1
	`, userID, banned, now)
	if err != nil {
		return workflow.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.User{}, workflow.ErrUserNotFound
	}
	action := "ban"
	if !banned {
		action = "unban"
	}
	if err := insertAction(ctx, tx, admin.ID, "user", userID, action, "", now); err != nil {
		return workflow.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.User{}, err
	}
	return s.GetUser(ctx, userID)
}

// ApproveVenue publishes a pending venue. Re-approving is a no-op success.
// The approval and its admin_action row commit together.
func (s *Store) ApproveVenue(ctx context.Context, admin auth.Actor, venueID string) (booking.Venue, error) {
	if err := requireAdmin(admin); err != nil {
		return booking.Venue{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Venue{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var approved bool
	err = tx.QueryRowContext(ctx, `select is_approved from venue where id=$1 for update`, venueID).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Venue{}, booking.ErrVenueNotFound
	}
	if err != nil {
		return booking.Venue{}, err
	}
	if !approved {
		now := s.now()
		if _, err := tx.ExecContext(ctx, `
			update venue set is_approved=true, approved_by=$2, approved_at=$3 where id=$1
		`, venueID, admin.ID, now); err != nil {
			return booking.Venue{}, err
		}
		if err := insertAction(ctx, tx, admin.ID, "venue", venueID, "approve", "", now); err != nil {
			return booking.Venue{}, err
		}
		if err := tx.Commit(); err != nil {
			return booking.Venue{}, err
		}
	}
	return s.GetVenue(ctx, venueID)
}

// RejectVenue records the decision without publishing; the venue stays
// pending and can be resubmitted.
func (s *Store) RejectVenue(ctx context.Context, admin auth.Actor, venueID, comment string) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var approved bool
	err = tx.QueryRowContext(ctx, `select is_approved from venue where id=$1 for update`, venueID).Scan(&approved)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrVenueNotFound
	}
	if err != nil {
		return err
	}
	if err := insertAction(ctx, tx, admin.ID, "venue", venueID, "reject", comment, s.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) FileReport(ctx context.Context, actor auth.Actor, req workflow.ReportRequest) (workflow.Report, error) {
	if actor.Banned {
		return workflow.Report{}, workflow.ErrBannedActor
	}
	if req.TargetType == "" || req.TargetID == "" {
		return workflow.Report{}, workflow.ErrInvalidInput
	}
	r := workflow.Report{
		ID:         ids.New(),
		ReporterID: actor.ID,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Reason:     req.Reason,
		Status:     workflow.ReportOpen,
		CreatedAt:  s.now(),
	}
	_, err := s.db.ExecContext(ctx, `
		insert into report(id, reporter_id, target_type, target_id, reason, status, created_at)
		values ($1,$2,$3,$4,nullif($5,''),'open',$6)
	`, r.ID, r.ReporterID, r.TargetType, r.TargetID, r.Reason, r.CreatedAt)
	if err != nil {
		return workflow.Report{}, err
	}
	return r, nil
}

func (s *Store) ResolveReport(ctx context.Context, admin auth.Actor, reportID string, status workflow.ReportStatus) (workflow.Report, error) {
	if err := requireAdmin(admin); err != nil {
		return workflow.Report{}, err
	}
	if status != workflow.ReportResolved && status != workflow.ReportDismissed {
		return workflow.Report{}, workflow.ErrInvalidInput
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.Report{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `select status from report where id=$1 for update`, reportID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Report{}, workflow.ErrReportNotFound
	}
	if err != nil {
		return workflow.Report{}, err
	}
	if workflow.ReportStatus(current) != workflow.ReportOpen {
		return workflow.Report{}, workflow.ErrAlreadyResolved
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx, `
		update report set status=$2, resolved_by=$3, resolved_at=$4 where id=$1
	`, reportID, string(status), admin.ID, now); err != nil {
		return workflow.Report{}, err
	}
	if err := insertAction(ctx, tx, admin.ID, "report", reportID, "resolve", string(status), now); err != nil {
		return workflow.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.Report{}, err
	}

	r := workflow.Report{ID: reportID, Status: status, ResolvedBy: admin.ID, ResolvedAt: &now}
	err = s.db.QueryRowContext(ctx, `
		select reporter_id, target_type, target_id, coalesce(reason,''), created_at from report where id=$1
	`, reportID).Scan(&r.ReporterID, &r.TargetType, &r.TargetID, &r.Reason, &r.CreatedAt)
	if err != nil {
		return workflow.Report{}, err
	}
	return r, nil
}

func (s *Store) ListAdminActions(ctx context.Context, targetType, targetID string) ([]workflow.AdminAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, admin_id, target_type, target_id, action, coalesce(comment,''), created_at
		from admin_action
		where ($1='' or target_type=$1) and ($2='' or target_id=$2)
		order by created_at asc, id asc
	`, targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.AdminAction
	for rows.Next() {
		var a workflow.AdminAction
		if err := rows.Scan(&a.ID, &a.AdminID, &a.TargetType, &a.TargetID, &a.Action, &a.Comment, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertAction(ctx context.Context, tx *sql.Tx, adminID, targetType, targetID, action, comment string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		insert into admin_action(id, admin_id, target_type, target_id, action, comment, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7)
	`, ids.New(), adminID, targetType, targetID, action, comment, at)
	return err
}

func requireAdmin(actor auth.Actor) error {
	if actor.Banned {
		return workflow.ErrBannedActor
	}
	if !actor.IsAdmin() {
		return workflow.ErrForbidden
	}
	return nil
}
