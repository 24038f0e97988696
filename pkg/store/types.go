package store

import (
	"fmt"
	"time"

	"github.com/platinummonkey/tracker/pkg/roles"
)

// User is an account owned by the account subsystem
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Role      roles.Role `json:"role"` // global default role
	IsDeleted bool       `json:"is_deleted"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FullName returns "first last" with empty parts dropped
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Project is owned by the project subsystem
type Project struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Membership binds a user to a project with one project role
type Membership struct {
	ProjectID int64      `json:"project_id"`
	UserID    int64      `json:"user_id"`
	Role      roles.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Equal compares the identifying fields and the role, ignoring timestamps
func (m Membership) Equal(other Membership) bool {
	return m.ProjectID == other.ProjectID &&
		m.UserID == other.UserID &&
		m.Role == other.Role
}

func (m Membership) String() string {
	return fmt.Sprintf("Membership{project=%d user=%d role=%s}", m.ProjectID, m.UserID, m.Role)
}

// ManagerState is the manager slot of a project. Version increases on every
// appointment and is the compare-and-swap token for ReplaceManager.
type ManagerState struct {
	ProjectID int64  `json:"project_id"`
	ManagerID *int64 `json:"manager_id,omitempty"`
	Version   int64  `json:"version"`
}

// IsManager reports whether userID currently holds the slot
func (s ManagerState) IsManager(userID int64) bool {
	return s.ManagerID != nil && *s.ManagerID == userID
}

// ManagerChange describes an applied appointment
type ManagerChange struct {
	ProjectID         int64  `json:"project_id"`
	ManagerID         int64  `json:"manager_id"`
	PreviousManagerID *int64 `json:"previous_manager_id,omitempty"`
	Version           int64  `json:"version"`
}

// Issue is read to resolve the project and assignee behind a work log
type Issue struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"project_id"`
	AssigneeID *int64 `json:"assignee_id,omitempty"`
	Title      string `json:"title"`
}

// IsAssignee reports whether userID is assigned to the issue
func (i Issue) IsAssignee(userID int64) bool {
	return i.AssigneeID != nil && *i.AssigneeID == userID
}

// WorkLog is a time entry authored by a user against an issue
type WorkLog struct {
	ID        int64         `json:"id"`
	IssueID   int64         `json:"issue_id"`
	UserID    int64         `json:"user_id"`
	Duration  time.Duration `json:"duration"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	CreatedAt time.Time     `json:"created_at"`
}

// Equal compares all fields except CreatedAt
func (w WorkLog) Equal(other WorkLog) bool {
	return w.ID == other.ID &&
		w.IssueID == other.IssueID &&
		w.UserID == other.UserID &&
		w.Duration == other.Duration &&
		w.StartDate.Equal(other.StartDate) &&
		w.EndDate.Equal(other.EndDate)
}

func (w WorkLog) String() string {
	return fmt.Sprintf("WorkLog{id=%d issue=%d user=%d duration=%s start=%s end=%s}",
		w.ID, w.IssueID, w.UserID, w.Duration,
		w.StartDate.Format("2006-01-02"), w.EndDate.Format("2006-01-02"))
}
