package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

// PostgreSQL error codes mapped onto store sentinels
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
)

// Store is the PostgreSQL implementation of store.Store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new PostgreSQL store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying connection pool
func (s *Store) DB() *sql.DB {
	return s.db
}

var _ store.Store = (*Store)(nil)

// mapError translates driver errors into store sentinels
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation, codeSerializationFailure:
			return fmt.Errorf("%s: %w", pqErr.Message, store.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w", pqErr.Message, store.ErrNotFound)
		}
	}
	return err
}

// GetUser retrieves an account by ID
func (s *Store) GetUser(ctx context.Context, userID int64) (*store.User, error) {
	query := `
		SELECT id, email, first_name, last_name, role, is_deleted, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var u store.User
	var role string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&role,
		&u.IsDeleted,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.Role = roles.Role(role)
	return &u, nil
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(ctx context.Context, projectID int64) (*store.Project, error) {
	query := `
		SELECT id, title, description, created_at
		FROM projects
		WHERE id = $1
	`

	var p store.Project
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(&p.ID, &p.Title, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d: %w", projectID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

// GetMembership retrieves the membership row for a user in a project
func (s *Store) GetMembership(ctx context.Context, projectID, userID int64) (*store.Membership, error) {
	query := `
		SELECT project_id, user_id, role, created_at, updated_at
		FROM project_memberships
		WHERE project_id = $1 AND user_id = $2
	`

	var m store.Membership
	var role string
	err := s.db.QueryRowContext(ctx, query, projectID, userID).Scan(
		&m.ProjectID,
		&m.UserID,
		&role,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("membership %d/%d: %w", projectID, userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	m.Role = roles.Role(role)
	return &m, nil
}

// GetManager reads the manager slot version and the current manager row together
func (s *Store) GetManager(ctx context.Context, projectID int64) (*store.ManagerState, error) {
	query := `
		SELECT p.manager_version, m.user_id
		FROM projects p
		LEFT JOIN project_memberships m ON m.project_id = p.id AND m.role = 'PROJECT_MANAGER'
		WHERE p.id = $1
	`

	state := &store.ManagerState{ProjectID: projectID}
	var managerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, projectID).Scan(&state.Version, &managerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %d: %w", projectID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project manager: %w", err)
	}

	if managerID.Valid {
		id := managerID.Int64
		state.ManagerID = &id
	}
	return state, nil
}

// ListMembers lists every membership row of a project ordered by user ID
func (s *Store) ListMembers(ctx context.Context, projectID int64) ([]store.Membership, error) {
	query := `
		SELECT project_id, user_id, role, created_at, updated_at
		FROM project_memberships
		WHERE project_id = $1
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]store.Membership, 0)
	for rows.Next() {
		var m store.Membership
		var role string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &role, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = roles.Role(role)
		members = append(members, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// ListAvailableUsers lists active, non-admin users that are not members of the project
func (s *Store) ListAvailableUsers(ctx context.Context, projectID int64) ([]store.User, error) {
	query := `
		SELECT u.id, u.email, u.first_name, u.last_name, u.role, u.is_deleted, u.created_at, u.updated_at
		FROM users u
		WHERE u.is_deleted = FALSE
		  AND u.role <> 'ADMIN'
		  AND NOT EXISTS (
			SELECT 1 FROM project_memberships m
			WHERE m.project_id = $1 AND m.user_id = u.id
		  )
		ORDER BY u.id
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list available users: %w", err)
	}
	defer rows.Close()

	users := make([]store.User, 0)
	for rows.Next() {
		var u store.User
		var role string
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.FirstName,
			&u.LastName,
			&role,
			&u.IsDeleted,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = roles.Role(role)
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// GetIssue retrieves an issue by ID
func (s *Store) GetIssue(ctx context.Context, issueID int64) (*store.Issue, error) {
	query := `
		SELECT id, project_id, assignee_id, title
		FROM issues
		WHERE id = $1
	`

	var i store.Issue
	var assigneeID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, issueID).Scan(&i.ID, &i.ProjectID, &assigneeID, &i.Title)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %d: %w", issueID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}

	if assigneeID.Valid {
		id := assigneeID.Int64
		i.AssigneeID = &id
	}
	return &i, nil
}

// GetWorkLog retrieves a work log entry by ID
func (s *Store) GetWorkLog(ctx context.Context, workLogID int64) (*store.WorkLog, error) {
	query := `
		SELECT id, issue_id, user_id, duration_seconds, start_date, end_date, created_at
		FROM work_logs
		WHERE id = $1
	`

	var w store.WorkLog
	var seconds int64
	err := s.db.QueryRowContext(ctx, query, workLogID).Scan(
		&w.ID,
		&w.IssueID,
		&w.UserID,
		&seconds,
		&w.StartDate,
		&w.EndDate,
		&w.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("worklog %d: %w", workLogID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worklog: %w", err)
	}

	w.Duration = time.Duration(seconds) * time.Second
	return &w, nil
}

// ReplaceManager swaps the project manager in one transaction. The manager
// slot version on the project row is the compare-and-swap guard.
func (s *Store) ReplaceManager(ctx context.Context, projectID, expectedVersion, userID int64) (*store.ManagerChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `
		UPDATE projects SET manager_version = manager_version + 1
		WHERE id = $1 AND manager_version = $2
		RETURNING manager_version
	`, projectID, expectedVersion).Scan(&version)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check project: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("project %d: %w", projectID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("project %d manager slot moved past version %d: %w", projectID, expectedVersion, store.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bump manager version: %w", mapError(err))
	}

	now := s.now()
	change := &store.ManagerChange{ProjectID: projectID, ManagerID: userID, Version: version}

	var previous int64
	err = tx.QueryRowContext(ctx, `
		UPDATE project_memberships SET role = 'DEVELOPER', updated_at = $3
		WHERE project_id = $1 AND role = 'PROJECT_MANAGER' AND user_id <> $2
		RETURNING user_id
	`, projectID, userID, now).Scan(&previous)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to demote previous manager: %w", mapError(err))
	default:
		change.PreviousManagerID = &previous
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_memberships (project_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, 'PROJECT_MANAGER', $3, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
	`, projectID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to appoint manager: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit manager change: %w", mapError(err))
	}
	return change, nil
}

// SetMemberRole upserts a DEVELOPER or QA row, leaving a manager row untouched
func (s *Store) SetMemberRole(ctx context.Context, projectID, userID int64, role roles.Role) error {
	if !roles.IsAssignable(role) {
		return fmt.Errorf("invalid member role %s", role)
	}

	now := s.now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO project_memberships (project_id, user_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (project_id, user_id) DO UPDATE
		SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
		WHERE project_memberships.role <> 'PROJECT_MANAGER'
	`, projectID, userID, string(role), now)
	if err != nil {
		return fmt.Errorf("failed to set member role: %w", mapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("membership %d/%d: %w", projectID, userID, store.ErrManagerRow)
	}
	return nil
}

// DeleteMembership removes a membership row. Removing the manager bumps the
// slot version so in-flight appointments read against the old state fail.
func (s *Store) DeleteMembership(ctx context.Context, projectID, userID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var role string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM project_memberships
		WHERE project_id = $1 AND user_id = $2
		RETURNING role
	`, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", mapError(err))
	}

	if roles.Role(role) == roles.ProjectManager {
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET manager_version = manager_version + 1 WHERE id = $1`,
			projectID,
		); err != nil {
			return false, fmt.Errorf("failed to bump manager version: %w", mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit membership removal: %w", mapError(err))
	}
	return true, nil
}

// SetUserDeleted flags the account deleted. It reports false when the account
// was already deleted and ErrNotFound when it does not exist.
func (s *Store) SetUserDeleted(ctx context.Context, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_deleted = TRUE, updated_at = $2
		WHERE id = $1 AND is_deleted = FALSE
	`, userID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return false, nil
}
