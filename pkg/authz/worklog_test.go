package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/store"
)

const (
	issueID        int64 = 100
	unassignedID   int64 = 101
	foreignIssueID int64 = 200
	devLogID       int64 = 1000
	qaLogID        int64 = 1001
)

func seedWorkLogs(t *testing.T) *store.MemoryStore {
	t.Helper()

	ctx := context.Background()
	s := seedStore(t)

	assignee := devID
	require.NoError(t, s.CreateIssue(ctx, &store.Issue{ID: issueID, ProjectID: projectID, AssigneeID: &assignee, Title: "Fix login"}))
	require.NoError(t, s.CreateIssue(ctx, &store.Issue{ID: unassignedID, ProjectID: projectID, Title: "Triage"}))
	require.NoError(t, s.CreateIssue(ctx, &store.Issue{ID: foreignIssueID, ProjectID: otherProjectID, Title: "Elsewhere"}))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateWorkLog(ctx, &store.WorkLog{
		ID: devLogID, IssueID: issueID, UserID: devID, Duration: 2 * time.Hour, StartDate: start, EndDate: start,
	}))
	require.NoError(t, s.CreateWorkLog(ctx, &store.WorkLog{
		ID: qaLogID, IssueID: issueID, UserID: qaID, Duration: time.Hour, StartDate: start, EndDate: start,
	}))
	return s
}

func newTestWorkLogEvaluator(t *testing.T) *WorkLogEvaluator {
	t.Helper()

	s := seedWorkLogs(t)
	evaluator, _, _ := newTestEvaluator(t, s)
	return NewWorkLogEvaluator(evaluator, s)
}

func TestWorkLogEvaluator_CanSaveWorkLog(t *testing.T) {
	w := newTestWorkLogEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		actorID int64
		issueID int64
		draft   *store.WorkLog
		want    bool
	}{
		{"assignee", devID, issueID, nil, true},
		{"assignee own draft", devID, issueID, &store.WorkLog{IssueID: issueID, UserID: devID}, true},
		{"assignee on behalf of another user", devID, issueID, &store.WorkLog{IssueID: issueID, UserID: qaID}, false},
		{"manager", managerID, issueID, nil, true},
		{"manager on behalf of another user", managerID, issueID, &store.WorkLog{IssueID: issueID, UserID: qaID}, true},
		{"admin", adminID, unassignedID, nil, true},
		{"non-assignee member", qaID, issueID, nil, false},
		{"outsider", outsiderID, issueID, nil, false},
		{"unassigned issue developer", devID, unassignedID, nil, false},
		{"manager of another project", managerID, foreignIssueID, nil, false},
		{"draft names another issue", managerID, issueID, &store.WorkLog{IssueID: unassignedID}, false},
		{"unknown issue", adminID, missingID, nil, false},
		{"unknown actor", missingID, issueID, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.CanSaveWorkLog(ctx, tt.actorID, tt.issueID, tt.draft))
		})
	}
}

func TestWorkLogEvaluator_DeletedAssigneeDenied(t *testing.T) {
	s := seedWorkLogs(t)
	ctx := context.Background()

	_, err := s.SetUserDeleted(ctx, devID)
	require.NoError(t, err)

	evaluator, _, _ := newTestEvaluator(t, s)
	w := NewWorkLogEvaluator(evaluator, s)

	d := w.DecideSave(ctx, devID, issueID, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonActorDeleted, d.Reason)

	d = w.DecideRemove(ctx, devID, devLogID)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonActorDeleted, d.Reason)
}

func TestWorkLogEvaluator_CanRemoveWorkLog(t *testing.T) {
	w := newTestWorkLogEvaluator(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		actorID   int64
		workLogID int64
		want      bool
	}{
		{"author", devID, devLogID, true},
		{"other author", qaID, qaLogID, true},
		{"member removing someone else's entry", qaID, devLogID, false},
		{"manager", managerID, devLogID, true},
		{"admin", adminID, qaLogID, true},
		{"outsider", outsiderID, devLogID, false},
		{"unknown worklog", adminID, missingID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.CanRemoveWorkLog(ctx, tt.actorID, tt.workLogID))
		})
	}
}

func TestWorkLogEvaluator_Reasons(t *testing.T) {
	w := newTestWorkLogEvaluator(t)
	ctx := context.Background()

	d := w.DecideSave(ctx, devID, issueID, nil)
	assert.Equal(t, ReasonAssignee, d.Reason)
	assert.Equal(t, projectID, d.ProjectID)

	d = w.DecideSave(ctx, managerID, issueID, nil)
	assert.Equal(t, ReasonManager, d.Reason)

	d = w.DecideSave(ctx, adminID, missingID, nil)
	assert.Equal(t, ReasonIssueNotFound, d.Reason)

	d = w.DecideSave(ctx, devID, issueID, &store.WorkLog{IssueID: unassignedID})
	assert.Equal(t, ReasonDraftMismatch, d.Reason)

	d = w.DecideRemove(ctx, devID, devLogID)
	assert.Equal(t, ReasonAuthor, d.Reason)

	d = w.DecideRemove(ctx, adminID, missingID)
	assert.Equal(t, ReasonWorkLogNotFound, d.Reason)
}
