package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()

	ctx := context.Background()
	s := NewMemoryStore()

	for _, u := range []*User{
		{ID: 1, Email: "admin@example.com", Role: roles.Admin},
		{ID: 3, Email: "old-pm@example.com", Role: roles.ProjectManager},
		{ID: 5, Email: "dev@example.com", Role: roles.Developer},
		{ID: 7, Email: "free@example.com", Role: roles.User},
	} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	require.NoError(t, s.CreateProject(ctx, &Project{ID: 10, Title: "Tracker"}))

	return s
}

func TestMemoryStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u := &User{Email: "a@example.com", Role: roles.User}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	err := s.CreateUser(ctx, &User{Email: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetUser(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetProject(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetMembership(ctx, 1, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetManager(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetIssue(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.GetWorkLog(ctx, 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_ReplaceManager(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	t.Run("first appointment", func(t *testing.T) {
		change, err := s.ReplaceManager(ctx, 10, 0, 3)
		require.NoError(t, err)
		assert.Nil(t, change.PreviousManagerID)
		assert.Equal(t, int64(1), change.Version)

		m, err := s.GetMembership(ctx, 10, 3)
		require.NoError(t, err)
		assert.Equal(t, roles.ProjectManager, m.Role)
	})

	t.Run("replacement demotes previous manager", func(t *testing.T) {
		require.NoError(t, s.SetMemberRole(ctx, 10, 5, roles.QA))

		change, err := s.ReplaceManager(ctx, 10, 1, 5)
		require.NoError(t, err)
		require.NotNil(t, change.PreviousManagerID)
		assert.Equal(t, int64(3), *change.PreviousManagerID)

		old, err := s.GetMembership(ctx, 10, 3)
		require.NoError(t, err)
		assert.Equal(t, roles.Developer, old.Role)

		current, err := s.GetMembership(ctx, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, roles.ProjectManager, current.Role)

		state, err := s.GetManager(ctx, 10)
		require.NoError(t, err)
		assert.True(t, state.IsManager(5))
		assert.Equal(t, 1, s.ManagerCount(10))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		_, err := s.ReplaceManager(ctx, 10, 1, 7)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConflict))

		m, err := s.GetMembership(ctx, 10, 5)
		require.NoError(t, err)
		assert.Equal(t, roles.ProjectManager, m.Role)
		_, err = s.GetMembership(ctx, 10, 7)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unknown project", func(t *testing.T) {
		_, err := s.ReplaceManager(ctx, 99, 0, 5)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestMemoryStore_ReplaceManagerRace(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, target := range []int64{5, 7} {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := s.ReplaceManager(ctx, 10, 0, userID)
			results <- err
		}(target)
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, 1, s.ManagerCount(10))
}

func TestMemoryStore_SetMemberRole(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	require.NoError(t, s.SetMemberRole(ctx, 10, 5, roles.Developer))
	require.NoError(t, s.SetMemberRole(ctx, 10, 5, roles.QA))

	m, err := s.GetMembership(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, roles.QA, m.Role)

	err = s.SetMemberRole(ctx, 10, 5, roles.ProjectManager)
	require.Error(t, err)

	_, err = s.ReplaceManager(ctx, 10, 0, 3)
	require.NoError(t, err)
	err = s.SetMemberRole(ctx, 10, 3, roles.QA)
	assert.True(t, errors.Is(err, ErrManagerRow))

	err = s.SetMemberRole(ctx, 99, 5, roles.QA)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_DeleteMembership(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	require.NoError(t, s.SetMemberRole(ctx, 10, 5, roles.Developer))

	removed, err := s.DeleteMembership(ctx, 10, 5)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.DeleteMembership(ctx, 10, 5)
	require.NoError(t, err)
	assert.False(t, removed)

	t.Run("removing the manager frees the slot", func(t *testing.T) {
		_, err := s.ReplaceManager(ctx, 10, 0, 3)
		require.NoError(t, err)

		removed, err := s.DeleteMembership(ctx, 10, 3)
		require.NoError(t, err)
		assert.True(t, removed)

		state, err := s.GetManager(ctx, 10)
		require.NoError(t, err)
		assert.Nil(t, state.ManagerID)
		assert.Equal(t, int64(2), state.Version)
	})
}

func TestMemoryStore_SoftDeleteAndListings(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	require.NoError(t, s.SetMemberRole(ctx, 10, 5, roles.Developer))

	available, err := s.ListAvailableUsers(ctx, 10)
	require.NoError(t, err)
	ids := userIDs(available)
	assert.Equal(t, []int64{3, 7}, ids)

	changed, err := s.SetUserDeleted(ctx, 7)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.SetUserDeleted(ctx, 7)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = s.SetUserDeleted(ctx, 5)
	require.NoError(t, err)
	assert.True(t, changed)

	available, err = s.ListAvailableUsers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, userIDs(available))

	members, err := s.ListMembers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int64(5), members[0].UserID)

	_, err = s.SetUserDeleted(ctx, 99)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_IssuesAndWorkLogs(t *testing.T) {
	ctx := context.Background()
	s := seedMemoryStore(t)

	err := s.CreateIssue(ctx, &Issue{ProjectID: 99})
	assert.True(t, errors.Is(err, ErrNotFound))

	assignee := int64(5)
	issue := &Issue{ProjectID: 10, AssigneeID: &assignee, Title: "crash"}
	require.NoError(t, s.CreateIssue(ctx, issue))

	wl := &WorkLog{IssueID: issue.ID, UserID: 7}
	require.NoError(t, s.CreateWorkLog(ctx, wl))

	got, err := s.GetWorkLog(ctx, wl.ID)
	require.NoError(t, err)
	assert.True(t, got.Equal(*wl))

	gotIssue, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.True(t, gotIssue.IsAssignee(5))
	assert.False(t, gotIssue.IsAssignee(7))
}

func userIDs(users []User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
