package store

import (
	"context"
	"errors"

	"github.com/platinummonkey/tracker/pkg/roles"
)

var (
	// ErrNotFound is returned when the referenced row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic write lost a race
	ErrConflict = errors.New("concurrent modification")

	// ErrManagerRow is returned when a per-row write targets the current
	// project manager. That row only changes through ReplaceManager or removal.
	ErrManagerRow = errors.New("membership is the project manager")
)

// UserReader reads accounts
type UserReader interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
}

// ProjectReader reads projects
type ProjectReader interface {
	GetProject(ctx context.Context, projectID int64) (*Project, error)
}

// MembershipReader reads the membership table
type MembershipReader interface {
	// GetMembership returns ErrNotFound when the pair has no row
	GetMembership(ctx context.Context, projectID, userID int64) (*Membership, error)

	// GetManager returns the project's manager slot, ErrNotFound for unknown projects
	GetManager(ctx context.Context, projectID int64) (*ManagerState, error)

	// ListMembers returns every row of the project, soft-deleted users included
	ListMembers(ctx context.Context, projectID int64) ([]Membership, error)

	// ListAvailableUsers returns active, non-admin users without a row in the project
	ListAvailableUsers(ctx context.Context, projectID int64) ([]User, error)
}

// IssueReader reads issues
type IssueReader interface {
	GetIssue(ctx context.Context, issueID int64) (*Issue, error)
}

// WorkLogReader reads work log entries
type WorkLogReader interface {
	GetWorkLog(ctx context.Context, workLogID int64) (*WorkLog, error)
}

// MembershipWriter mutates membership and account state. Only the role
// transition manager writes through it.
type MembershipWriter interface {
	// ReplaceManager atomically demotes the current manager (if any) to
	// DEVELOPER and makes userID the manager. It fails with ErrConflict when
	// the slot version is no longer expectedVersion.
	ReplaceManager(ctx context.Context, projectID, expectedVersion, userID int64) (*ManagerChange, error)

	// SetMemberRole upserts a DEVELOPER or QA row. It fails with ErrManagerRow
	// when the existing row holds PROJECT_MANAGER.
	SetMemberRole(ctx context.Context, projectID, userID int64, role roles.Role) error

	// DeleteMembership removes the row and reports whether one existed
	DeleteMembership(ctx context.Context, projectID, userID int64) (bool, error)

	// SetUserDeleted flags the account deleted and reports whether it changed
	SetUserDeleted(ctx context.Context, userID int64) (bool, error)
}

// Store is the full collaborator surface used by the core
type Store interface {
	UserReader
	ProjectReader
	MembershipReader
	IssueReader
	WorkLogReader
	MembershipWriter
}
