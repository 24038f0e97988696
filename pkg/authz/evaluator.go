package authz

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

const tracerName = "github.com/platinummonkey/tracker/pkg/authz"

// Action is one of the fixed checks the evaluators answer
type Action string

const (
	ActionViewProject   Action = "view_project"
	ActionManageProject Action = "manage_project"
	ActionSaveWorkLog   Action = "save_worklog"
	ActionRemoveWorkLog Action = "remove_worklog"
)

// Reasons attached to decisions
const (
	ReasonAdmin           = "global admin"
	ReasonMember          = "project member"
	ReasonManager         = "project manager"
	ReasonAssignee        = "issue assignee"
	ReasonAuthor          = "worklog author"
	ReasonNotMember       = "no membership"
	ReasonNotManager      = "not project manager"
	ReasonActorNotFound   = "actor not found"
	ReasonActorDeleted    = "actor deleted"
	ReasonProjectNotFound = "project not found"
	ReasonIssueNotFound   = "issue not found"
	ReasonWorkLogNotFound = "worklog not found"
	ReasonDraftMismatch   = "draft belongs to another issue"
	ReasonStoreError      = "store error"
)

// Decision is the outcome of one check
type Decision struct {
	Action    Action     `json:"action"`
	ActorID   int64      `json:"actor_id"`
	ProjectID int64      `json:"project_id,omitempty"`
	Allowed   bool       `json:"allowed"`
	Role      roles.Role `json:"role"`
	Reason    string     `json:"reason"`
}

func allow(d Decision, reason string) Decision {
	d.Allowed = true
	d.Reason = reason
	return d
}

func deny(d Decision, reason string) Decision {
	d.Allowed = false
	d.Reason = reason
	return d
}

// Reader is the read surface the project evaluator needs
type Reader interface {
	store.UserReader
	store.ProjectReader
	store.MembershipReader
}

// Evaluator answers project-level permission checks
type Evaluator struct {
	reader  Reader
	logger  *logrus.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewEvaluator creates a project permission evaluator. metrics may be nil.
func NewEvaluator(reader Reader, logger *logrus.Logger, metrics *observability.Metrics) *Evaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Evaluator{
		reader:  reader,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// CanViewProject reports whether the actor is a global admin or holds any
// membership in the project
func (e *Evaluator) CanViewProject(ctx context.Context, actorID, projectID int64) bool {
	return e.Decide(ctx, actorID, projectID, ActionViewProject).Allowed
}

// CanManageProject reports whether the actor is a global admin or the
// project's manager
func (e *Evaluator) CanManageProject(ctx context.Context, actorID, projectID int64) bool {
	return e.Decide(ctx, actorID, projectID, ActionManageProject).Allowed
}

// Decide evaluates a project action and explains the result. Actions other
// than view and manage are denied.
func (e *Evaluator) Decide(ctx context.Context, actorID, projectID int64, action Action) Decision {
	ctx, span := e.tracer.Start(ctx, "authz.Decide", trace.WithAttributes(
		attribute.String("authz.action", string(action)),
		attribute.Int64("authz.actor_id", actorID),
		attribute.Int64("authz.project_id", projectID),
	))
	defer span.End()

	start := time.Now()
	decision := e.decide(ctx, actorID, projectID, action)
	e.record(ctx, decision, start)

	span.SetAttributes(
		attribute.Bool("authz.allowed", decision.Allowed),
		attribute.String("authz.reason", decision.Reason),
	)
	return decision
}

func (e *Evaluator) decide(ctx context.Context, actorID, projectID int64, action Action) Decision {
	d := Decision{Action: action, ActorID: actorID, ProjectID: projectID, Role: roles.None}

	actor, reason := e.activeActor(ctx, actorID, action)
	if actor == nil {
		return deny(d, reason)
	}

	if _, err := e.reader.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return deny(d, ReasonProjectNotFound)
		}
		e.storeError(ctx, action, err, "project lookup failed")
		return deny(d, ReasonStoreError)
	}

	membershipRole := roles.None
	if actor.Role != roles.Admin {
		membership, err := e.reader.GetMembership(ctx, projectID, actorID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			e.storeError(ctx, action, err, "membership lookup failed")
			return deny(d, ReasonStoreError)
		default:
			membershipRole = membership.Role
		}
	}

	d.Role = roles.EffectiveRole(actor.Role, membershipRole)

	switch action {
	case ActionViewProject:
		switch {
		case d.Role == roles.Admin:
			return allow(d, ReasonAdmin)
		case roles.IsProjectRole(d.Role):
			return allow(d, ReasonMember)
		default:
			return deny(d, ReasonNotMember)
		}
	case ActionManageProject:
		switch {
		case d.Role == roles.Admin:
			return allow(d, ReasonAdmin)
		case roles.AtLeast(d.Role, roles.ProjectManager):
			return allow(d, ReasonManager)
		default:
			return deny(d, ReasonNotManager)
		}
	default:
		return deny(d, "unsupported action")
	}
}

// activeActor loads the actor and returns nil with a reason when they are
// missing, deleted or unreadable
func (e *Evaluator) activeActor(ctx context.Context, actorID int64, action Action) (*store.User, string) {
	actor, err := e.reader.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ReasonActorNotFound
		}
		e.storeError(ctx, action, err, "actor lookup failed")
		return nil, ReasonStoreError
	}
	if actor.IsDeleted {
		return nil, ReasonActorDeleted
	}
	return actor, ""
}

func (e *Evaluator) storeError(ctx context.Context, action Action, err error, msg string) {
	observability.WithTraceContext(ctx, e.logger).
		WithError(err).
		WithField("action", action).
		Error(msg)
	if e.metrics != nil {
		e.metrics.AuthzStoreErrorsTotal.WithLabelValues(string(action)).Inc()
	}
}

func (e *Evaluator) record(ctx context.Context, d Decision, start time.Time) {
	result := "deny"
	if d.Allowed {
		result = "allow"
	}

	if e.metrics != nil {
		e.metrics.AuthzDecisionsTotal.WithLabelValues(string(d.Action), result).Inc()
		e.metrics.AuthzDecisionDuration.WithLabelValues(string(d.Action)).Observe(time.Since(start).Seconds())
	}

	observability.WithTraceContext(ctx, e.logger).WithFields(logrus.Fields{
		"action":     d.Action,
		"actor_id":   d.ActorID,
		"project_id": d.ProjectID,
		"role":       d.Role.String(),
		"result":     result,
		"reason":     d.Reason,
	}).Debug("Authorization decision")
}
