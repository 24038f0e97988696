package roles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOrdering(t *testing.T) {
	ordered := []Role{None, User, QA, Developer, ProjectManager, Admin}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, Outranks(ordered[i], ordered[i-1]), "%s should outrank %s", ordered[i], ordered[i-1])
		assert.False(t, Outranks(ordered[i-1], ordered[i]))
	}

	assert.True(t, AtLeast(ProjectManager, ProjectManager))
	assert.True(t, AtLeast(Admin, ProjectManager))
	assert.False(t, AtLeast(Developer, ProjectManager))
	assert.Equal(t, 0, Rank(Role("BOGUS")))
}

func TestProjectRoles(t *testing.T) {
	assert.ElementsMatch(t, []Role{ProjectManager, Developer, QA}, ProjectRoles())
	for _, r := range ProjectRoles() {
		assert.True(t, IsProjectRole(r))
	}
	assert.False(t, IsProjectRole(Admin))
	assert.False(t, IsProjectRole(User))
	assert.False(t, IsProjectRole(None))

	assert.True(t, IsAssignable(Developer))
	assert.True(t, IsAssignable(QA))
	assert.False(t, IsAssignable(ProjectManager))
	assert.False(t, IsAssignable(None))
}

func TestEffectiveRole(t *testing.T) {
	tests := []struct {
		name       string
		global     Role
		membership Role
		want       Role
	}{
		{"admin without membership", Admin, None, Admin},
		{"admin with developer row", Admin, Developer, Admin},
		{"manager row", Developer, ProjectManager, ProjectManager},
		{"global manager without row", ProjectManager, None, None},
		{"qa row", User, QA, QA},
		{"no row", User, None, None},
		{"corrupt row value", User, Admin, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveRole(tt.global, tt.membership))
		})
	}
}

func TestAvailableRolesFor(t *testing.T) {
	assert.Equal(t, []Role{Developer, QA}, AvailableRolesFor(User))
	assert.Equal(t, []Role{Developer, QA}, AvailableRolesFor(None))
	assert.Equal(t, []Role{QA}, AvailableRolesFor(Developer))
	assert.Equal(t, []Role{Developer}, AvailableRolesFor(QA))
	assert.Empty(t, AvailableRolesFor(ProjectManager))
	assert.Empty(t, AvailableRolesFor(Admin))
}

func TestParse(t *testing.T) {
	t.Run("canonical and legacy names", func(t *testing.T) {
		cases := map[string]Role{
			"ADMIN":                Admin,
			"ROLE_PROJECT_MANAGER": ProjectManager,
			"role_developer":       Developer,
			" qa ":                 QA,
			"USER":                 User,
			"":                     None,
			"none":                 None,
		}
		for in, want := range cases {
			got, err := Parse(in)
			require.NoError(t, err, in)
			assert.Equal(t, want, got, in)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		_, err := Parse("SUPERUSER")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownRole))
	})
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "NONE", None.String())
	assert.Equal(t, "QA", QA.String())
	assert.False(t, None.Valid())
	assert.True(t, Admin.Valid())
}
