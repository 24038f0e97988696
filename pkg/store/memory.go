package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tracker/pkg/roles"
)

type memberKey struct {
	projectID int64
	userID    int64
}

// MemoryStore is an in-process Store. All methods are safe for concurrent use;
// readers receive copies so a row is never observed half-written.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]User
	projects map[int64]Project
	members  map[memberKey]Membership
	managers map[int64]int64 // project -> manager user
	versions map[int64]int64 // project -> manager slot version
	issues   map[int64]Issue
	workLogs map[int64]WorkLog
	nextID   int64
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]User),
		projects: make(map[int64]Project),
		members:  make(map[memberKey]Membership),
		managers: make(map[int64]int64),
		versions: make(map[int64]int64),
		issues:   make(map[int64]Issue),
		workLogs: make(map[int64]WorkLog),
		now:      time.Now,
	}
}

func (s *MemoryStore) allocID(id int64) int64 {
	if id == 0 {
		s.nextID++
		return s.nextID
	}
	if id > s.nextID {
		s.nextID = id
	}
	return id
}

// CreateUser inserts an account. A zero ID is allocated.
func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID != 0 {
		if _, ok := s.users[u.ID]; ok {
			return fmt.Errorf("user %d already exists", u.ID)
		}
	}
	for _, existing := range s.users {
		if existing.Email == u.Email && u.Email != "" {
			return fmt.Errorf("user with email %s already exists", u.Email)
		}
	}

	u.ID = s.allocID(u.ID)
	now := s.now()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = *u
	return nil
}

// CreateProject inserts a project. A zero ID is allocated.
func (s *MemoryStore) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok && p.ID != 0 {
		return fmt.Errorf("project %d already exists", p.ID)
	}

	p.ID = s.allocID(p.ID)
	p.CreatedAt = s.now()
	s.projects[p.ID] = *p
	s.versions[p.ID] = 0
	return nil
}

// CreateIssue inserts an issue. A zero ID is allocated.
func (s *MemoryStore) CreateIssue(ctx context.Context, i *Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[i.ProjectID]; !ok {
		return fmt.Errorf("project %d: %w", i.ProjectID, ErrNotFound)
	}

	i.ID = s.allocID(i.ID)
	s.issues[i.ID] = *i
	return nil
}

// CreateWorkLog inserts a work log entry. A zero ID is allocated.
func (s *MemoryStore) CreateWorkLog(ctx context.Context, w *WorkLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issues[w.IssueID]; !ok {
		return fmt.Errorf("issue %d: %w", w.IssueID, ErrNotFound)
	}

	w.ID = s.allocID(w.ID)
	w.CreatedAt = s.now()
	s.workLogs[w.ID] = *w
	return nil
}

// GetUser returns a copy of the account
func (s *MemoryStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return &u, nil
}

// GetProject returns a copy of the project
func (s *MemoryStore) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	return &p, nil
}

// GetMembership returns a copy of the membership row
func (s *MemoryStore) GetMembership(ctx context.Context, projectID, userID int64) (*Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberKey{projectID, userID}]
	if !ok {
		return nil, fmt.Errorf("membership %d/%d: %w", projectID, userID, ErrNotFound)
	}
	return &m, nil
}

// GetManager returns the manager slot of the project
func (s *MemoryStore) GetManager(ctx context.Context, projectID int64) (*ManagerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}

	state := &ManagerState{ProjectID: projectID, Version: s.versions[projectID]}
	if managerID, ok := s.managers[projectID]; ok {
		id := managerID
		state.ManagerID = &id
	}
	return state, nil
}

// ListMembers returns the project's rows ordered by user ID
func (s *MemoryStore) ListMembers(ctx context.Context, projectID int64) ([]Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]Membership, 0)
	for key, m := range s.members {
		if key.projectID == projectID {
			members = append(members, m)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// ListAvailableUsers returns active, non-admin users outside the project ordered by ID
func (s *MemoryStore) ListAvailableUsers(ctx context.Context, projectID int64) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]User, 0)
	for id, u := range s.users {
		if u.IsDeleted || u.Role == roles.Admin {
			continue
		}
		if _, member := s.members[memberKey{projectID, id}]; member {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetIssue returns a copy of the issue
func (s *MemoryStore) GetIssue(ctx context.Context, issueID int64) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.issues[issueID]
	if !ok {
		return nil, fmt.Errorf("issue %d: %w", issueID, ErrNotFound)
	}
	return &i, nil
}

// GetWorkLog returns a copy of the work log entry
func (s *MemoryStore) GetWorkLog(ctx context.Context, workLogID int64) (*WorkLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workLogs[workLogID]
	if !ok {
		return nil, fmt.Errorf("worklog %d: %w", workLogID, ErrNotFound)
	}
	return &w, nil
}

// ReplaceManager swaps the project manager under the write lock
func (s *MemoryStore) ReplaceManager(ctx context.Context, projectID, expectedVersion, userID int64) (*ManagerChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if s.versions[projectID] != expectedVersion {
		return nil, fmt.Errorf("project %d manager slot at version %d, expected %d: %w",
			projectID, s.versions[projectID], expectedVersion, ErrConflict)
	}

	now := s.now()
	change := &ManagerChange{ProjectID: projectID, ManagerID: userID}

	if previous, ok := s.managers[projectID]; ok && previous != userID {
		key := memberKey{projectID, previous}
		if row, ok := s.members[key]; ok {
			row.Role = roles.Developer
			row.UpdatedAt = now
			s.members[key] = row
		}
		prev := previous
		change.PreviousManagerID = &prev
	}

	key := memberKey{projectID, userID}
	row, ok := s.members[key]
	if !ok {
		row = Membership{ProjectID: projectID, UserID: userID, CreatedAt: now}
	}
	row.Role = roles.ProjectManager
	row.UpdatedAt = now
	s.members[key] = row

	s.managers[projectID] = userID
	s.versions[projectID]++
	change.Version = s.versions[projectID]

	return change, nil
}

// SetMemberRole upserts a DEVELOPER or QA row
func (s *MemoryStore) SetMemberRole(ctx context.Context, projectID, userID int64, role roles.Role) error {
	if !roles.IsAssignable(role) {
		return fmt.Errorf("invalid member role %s", role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if _, ok := s.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}

	now := s.now()
	key := memberKey{projectID, userID}
	row, ok := s.members[key]
	if ok && row.Role == roles.ProjectManager {
		return fmt.Errorf("membership %d/%d: %w", projectID, userID, ErrManagerRow)
	}
	if !ok {
		row = Membership{ProjectID: projectID, UserID: userID, CreatedAt: now}
	}
	row.Role = role
	row.UpdatedAt = now
	s.members[key] = row
	return nil
}

// DeleteMembership removes the row, clearing the manager slot when needed
func (s *MemoryStore) DeleteMembership(ctx context.Context, projectID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{projectID, userID}
	if _, ok := s.members[key]; !ok {
		return false, nil
	}
	delete(s.members, key)

	if managerID, ok := s.managers[projectID]; ok && managerID == userID {
		delete(s.managers, projectID)
		s.versions[projectID]++
	}
	return true, nil
}

// SetUserDeleted flags the account deleted
func (s *MemoryStore) SetUserDeleted(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return false, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if u.IsDeleted {
		return false, nil
	}
	u.IsDeleted = true
	u.UpdatedAt = s.now()
	s.users[userID] = u
	return true, nil
}

// ManagerCount returns how many rows of the project hold PROJECT_MANAGER.
// Used to verify the single-manager invariant.
func (s *MemoryStore) ManagerCount(projectID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key, m := range s.members {
		if key.projectID == projectID && m.Role == roles.ProjectManager {
			count++
		}
	}
	return count
}

var _ Store = (*MemoryStore)(nil)
