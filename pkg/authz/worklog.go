package authz

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tracker/pkg/store"
)

// WorkLogReader is the read surface for resolving work log ownership
type WorkLogReader interface {
	store.IssueReader
	store.WorkLogReader
}

// WorkLogEvaluator resolves worklog → issue → project and defers the
// project-level part to an Evaluator
type WorkLogEvaluator struct {
	projects *Evaluator
	reader   WorkLogReader
}

// NewWorkLogEvaluator composes a project evaluator with issue and worklog lookups
func NewWorkLogEvaluator(projects *Evaluator, reader WorkLogReader) *WorkLogEvaluator {
	return &WorkLogEvaluator{projects: projects, reader: reader}
}

// CanSaveWorkLog reports whether the actor may save draft against the issue.
// The issue assignee may log their own time; a project manager or admin may
// save any draft. A draft naming another issue is denied. draft may be nil.
func (w *WorkLogEvaluator) CanSaveWorkLog(ctx context.Context, actorID, issueID int64, draft *store.WorkLog) bool {
	return w.DecideSave(ctx, actorID, issueID, draft).Allowed
}

// CanRemoveWorkLog reports whether the actor authored the entry or manages
// the project it belongs to
func (w *WorkLogEvaluator) CanRemoveWorkLog(ctx context.Context, actorID, workLogID int64) bool {
	return w.DecideRemove(ctx, actorID, workLogID).Allowed
}

// DecideSave is CanSaveWorkLog with the reason attached
func (w *WorkLogEvaluator) DecideSave(ctx context.Context, actorID, issueID int64, draft *store.WorkLog) Decision {
	e := w.projects
	ctx, span := e.tracer.Start(ctx, "authz.DecideSaveWorkLog", trace.WithAttributes(
		attribute.Int64("authz.actor_id", actorID),
		attribute.Int64("authz.issue_id", issueID),
	))
	defer span.End()

	start := time.Now()
	d := w.decideSave(ctx, actorID, issueID, draft)
	e.record(ctx, d, start)
	span.SetAttributes(attribute.Bool("authz.allowed", d.Allowed), attribute.String("authz.reason", d.Reason))
	return d
}

func (w *WorkLogEvaluator) decideSave(ctx context.Context, actorID, issueID int64, draft *store.WorkLog) Decision {
	d := Decision{Action: ActionSaveWorkLog, ActorID: actorID}

	if draft != nil && draft.IssueID != 0 && draft.IssueID != issueID {
		return deny(d, ReasonDraftMismatch)
	}

	issue, err := w.reader.GetIssue(ctx, issueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return deny(d, ReasonIssueNotFound)
		}
		w.projects.storeError(ctx, ActionSaveWorkLog, err, "issue lookup failed")
		return deny(d, ReasonStoreError)
	}
	d.ProjectID = issue.ProjectID

	// logging time on behalf of someone else needs manager rights
	onBehalf := draft != nil && draft.UserID != 0 && draft.UserID != actorID
	if issue.IsAssignee(actorID) && !onBehalf {
		if actor, reason := w.projects.activeActor(ctx, actorID, ActionSaveWorkLog); actor == nil {
			return deny(d, reason)
		}
		return allow(d, ReasonAssignee)
	}

	manage := w.projects.decide(ctx, actorID, issue.ProjectID, ActionManageProject)
	d.Role = manage.Role
	if manage.Allowed {
		return allow(d, manage.Reason)
	}
	return deny(d, manage.Reason)
}

// DecideRemove is CanRemoveWorkLog with the reason attached
func (w *WorkLogEvaluator) DecideRemove(ctx context.Context, actorID, workLogID int64) Decision {
	e := w.projects
	ctx, span := e.tracer.Start(ctx, "authz.DecideRemoveWorkLog", trace.WithAttributes(
		attribute.Int64("authz.actor_id", actorID),
		attribute.Int64("authz.worklog_id", workLogID),
	))
	defer span.End()

	start := time.Now()
	d := w.decideRemove(ctx, actorID, workLogID)
	e.record(ctx, d, start)
	span.SetAttributes(attribute.Bool("authz.allowed", d.Allowed), attribute.String("authz.reason", d.Reason))
	return d
}

func (w *WorkLogEvaluator) decideRemove(ctx context.Context, actorID, workLogID int64) Decision {
	d := Decision{Action: ActionRemoveWorkLog, ActorID: actorID}

	entry, err := w.reader.GetWorkLog(ctx, workLogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return deny(d, ReasonWorkLogNotFound)
		}
		w.projects.storeError(ctx, ActionRemoveWorkLog, err, "worklog lookup failed")
		return deny(d, ReasonStoreError)
	}

	issue, err := w.reader.GetIssue(ctx, entry.IssueID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return deny(d, ReasonIssueNotFound)
		}
		w.projects.storeError(ctx, ActionRemoveWorkLog, err, "issue lookup failed")
		return deny(d, ReasonStoreError)
	}
	d.ProjectID = issue.ProjectID

	if entry.UserID == actorID {
		if actor, reason := w.projects.activeActor(ctx, actorID, ActionRemoveWorkLog); actor == nil {
			return deny(d, reason)
		}
		return allow(d, ReasonAuthor)
	}

	manage := w.projects.decide(ctx, actorID, issue.ProjectID, ActionManageProject)
	d.Role = manage.Role
	if manage.Allowed {
		return allow(d, manage.Reason)
	}
	return deny(d, manage.Reason)
}
