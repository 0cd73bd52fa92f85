package workflow

import (
	"errors"
	"time"

	"quickcourt.org/internal/auth"
)

// User is an account in the reservation system. Role changes only happen
// through the approval workflow.
type User struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	PendingRole *auth.Role `json:"pending_role,omitempty"`
	IsBanned    bool       `json:"is_banned"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AdminAction is an append-only record of a moderation decision.
type AdminAction struct {
	ID         string    `json:"id"`
	AdminID    string    `json:"admin_id"`
	TargetType string    `json:"target_type"` // "venue" | "user" | "booking" | "report"
	TargetID   string    `json:"target_id"`
	Action     string    `json:"action"` // "approve" | "reject" | "ban" | "unban" | "resolve"
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportStatus is the lifecycle state of a moderation report.
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Report is a user-filed moderation report against a target entity.
type Report struct {
	ID         string       `json:"id"`
	ReporterID string       `json:"reporter_id"`
	TargetType string       `json:"target_type"`
	TargetID   string       `json:"target_id"`
	Reason     string       `json:"reason,omitempty"`
	Status     ReportStatus `json:"status"`
	ResolvedBy string       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ReportRequest is the input for FileReport.
type ReportRequest struct {
	TargetType string
	TargetID   string
	Reason     string
}

var (
	ErrUserNotFound     = errors.New("workflow: user not found")
	ErrReportNotFound   = errors.New("workflow: report not found")
	ErrNoPendingRequest = errors.New("workflow: no pending role request")
	ErrForbidden        = errors.New("workflow: admin role required")
	ErrBannedActor      = errors.New("workflow: actor is banned")
	ErrInvalidInput     = errors.New("workflow: invalid input")
	ErrAlreadyResolved  = errors.New("workflow: report already resolved")
)
