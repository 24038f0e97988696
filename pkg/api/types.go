package api

import (
	"time"

	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

// AccessResponse answers GET /projects/{project_id}/access
type AccessResponse struct {
	ProjectID int64 `json:"project_id"`
	CanView   bool  `json:"can_view"`
	CanManage bool  `json:"can_manage"`
}

// MembersResponse lists a project's membership rows
type MembersResponse struct {
	ProjectID int64              `json:"project_id"`
	Members   []store.Membership `json:"members"`
}

// AvailableUsersResponse lists users that can be added to a project
type AvailableUsersResponse struct {
	ProjectID int64        `json:"project_id"`
	Users     []store.User `json:"users"`
}

// RoleOptionsResponse lists roles the member can be moved to
type RoleOptionsResponse struct {
	ProjectID int64        `json:"project_id"`
	UserID    int64        `json:"user_id"`
	Roles     []roles.Role `json:"roles"`
}

// AppointManagerRequest is the body of PUT /projects/{project_id}/manager
type AppointManagerRequest struct {
	UserID int64 `json:"user_id"`
}

// AssignRoleRequest is the body of PUT /projects/{project_id}/members/{user_id}.
// An empty role removes the member.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// WorkLogDraft is the body of POST /issues/{issue_id}/worklogs/check
type WorkLogDraft struct {
	IssueID         int64     `json:"issue_id,omitempty"`
	UserID          int64     `json:"user_id,omitempty"`
	DurationSeconds int64     `json:"duration_seconds,omitempty"`
	StartDate       time.Time `json:"start_date,omitempty"`
	EndDate         time.Time `json:"end_date,omitempty"`
}

// WorkLog converts the draft to the store shape
func (d WorkLogDraft) WorkLog() *store.WorkLog {
	return &store.WorkLog{
		IssueID:   d.IssueID,
		UserID:    d.UserID,
		Duration:  time.Duration(d.DurationSeconds) * time.Second,
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
	}
}

// CheckResponse answers the work log permission checks
type CheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
