package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/roles"
)

const seedYAML = `
users:
  - {id: 1, email: admin@example.com, role: ADMIN}
  - {id: 3, email: pm@example.com, first_name: Pat, last_name: Manager}
  - {id: 5, email: dev@example.com, role: ROLE_DEVELOPER}
  - {id: 9, email: gone@example.com, role: QA, deleted: true}
projects:
  - {id: 10, title: Tracker}
memberships:
  - {project_id: 10, user_id: 3, role: PROJECT_MANAGER}
  - {project_id: 10, user_id: 5, role: DEVELOPER}
  - {project_id: 10, user_id: 9, role: QA}
issues:
  - {id: 100, project_id: 10, assignee_id: 5, title: Login}
worklogs:
  - {id: 200, issue_id: 100, user_id: 5, duration: 90m, start_date: 2024-03-01, end_date: 2024-03-01}
`

func TestLoadSeed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, LoadSeed(ctx, s, strings.NewReader(seedYAML)))

	u, err := s.GetUser(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, roles.User, u.Role)
	assert.Equal(t, "Pat Manager", u.FullName())

	u, err = s.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, roles.Developer, u.Role)

	gone, err := s.GetUser(ctx, 9)
	require.NoError(t, err)
	assert.True(t, gone.IsDeleted)

	state, err := s.GetManager(ctx, 10)
	require.NoError(t, err)
	assert.True(t, state.IsManager(3))
	assert.Equal(t, 1, s.ManagerCount(10))

	m, err := s.GetMembership(ctx, 10, 9)
	require.NoError(t, err)
	assert.Equal(t, roles.QA, m.Role)

	issue, err := s.GetIssue(ctx, 100)
	require.NoError(t, err)
	assert.True(t, issue.IsAssignee(5))

	w, err := s.GetWorkLog(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, w.Duration)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.StartDate)
}

func TestLoadSeed_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "users: [oops"},
		{"unknown role", "users:\n  - {id: 1, email: a@example.com, role: OWNER}"},
		{"two managers", `
users:
  - {id: 1, email: a@example.com}
  - {id: 2, email: b@example.com}
projects:
  - {id: 10, title: P}
memberships:
  - {project_id: 10, user_id: 1, role: PROJECT_MANAGER}
  - {project_id: 10, user_id: 2, role: PROJECT_MANAGER}
`},
		{"membership for unknown project", `
users:
  - {id: 1, email: a@example.com}
memberships:
  - {project_id: 10, user_id: 1, role: QA}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := LoadSeed(context.Background(), NewMemoryStore(), strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadSeed_ExampleFile(t *testing.T) {
	f, err := os.Open("../../examples/seed.yaml")
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, LoadSeed(ctx, s, f))

	state, err := s.GetManager(ctx, 10)
	require.NoError(t, err)
	assert.True(t, state.IsManager(2))

	w, err := s.GetWorkLog(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, w.Duration)
}
