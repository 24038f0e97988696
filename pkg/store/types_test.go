package store

import (
	"testing"
	"time"

	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/stretchr/testify/assert"
)

func TestMembershipEqualAndString(t *testing.T) {
	a := Membership{ProjectID: 1, UserID: 2, Role: roles.QA, CreatedAt: time.Now()}
	b := Membership{ProjectID: 1, UserID: 2, Role: roles.QA}

	assert.True(t, a.Equal(b))
	b.Role = roles.Developer
	assert.False(t, a.Equal(b))
	assert.Equal(t, "Membership{project=1 user=2 role=QA}", a.String())
}

func TestWorkLogEqualAndString(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := WorkLog{ID: 1, IssueID: 2, UserID: 3, Duration: 90 * time.Minute, StartDate: day, EndDate: day}
	b := a
	b.CreatedAt = time.Now()

	assert.True(t, a.Equal(b))
	b.Duration = time.Hour
	assert.False(t, a.Equal(b))
	assert.Equal(t, "WorkLog{id=1 issue=2 user=3 duration=1h30m0s start=2024-03-01 end=2024-03-01}", a.String())
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", User{FirstName: "Ada", LastName: "Lovelace"}.FullName())
	assert.Equal(t, "Ada", User{FirstName: "Ada"}.FullName())
	assert.Equal(t, "Lovelace", User{LastName: "Lovelace"}.FullName())
}

func TestManagerStateIsManager(t *testing.T) {
	id := int64(4)
	assert.True(t, ManagerState{ManagerID: &id}.IsManager(4))
	assert.False(t, ManagerState{ManagerID: &id}.IsManager(5))
	assert.False(t, ManagerState{}.IsManager(4))
}
