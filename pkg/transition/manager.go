package transition

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tracker/pkg/audit"
	"github.com/platinummonkey/tracker/pkg/authz"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/roles"
	"github.com/platinummonkey/tracker/pkg/store"
)

const tracerName = "github.com/platinummonkey/tracker/pkg/transition"

// Operation names used for metrics and logs
const (
	OpAppointManager   = "appoint_manager"
	OpAssignRole       = "assign_role"
	OpRemoveMembership = "remove_membership"
	OpSoftDeleteUser   = "soft_delete_user"
)

// Outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeNoop     = "noop"
	OutcomeDenied   = "denied"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Manager applies role transitions against the membership store
type Manager struct {
	store     store.Store
	evaluator *authz.Evaluator
	audit     audit.Logger
	logger    *logrus.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer

	// exported over OTLP when a meter provider is installed
	transitionCounter metric.Int64Counter
}

// NewManager creates a transition manager. auditLogger, logger and metrics may be nil.
func NewManager(s store.Store, evaluator *authz.Evaluator, auditLogger audit.Logger, logger *logrus.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	counter, err := otel.Meter(tracerName).Int64Counter(
		"tracker.role_transitions",
		metric.WithDescription("Role transition attempts by operation and outcome"),
	)
	if err != nil {
		logger.WithError(err).Warn("Failed to create role transition counter")
	}

	return &Manager{
		store:             s,
		evaluator:         evaluator,
		audit:             auditLogger,
		logger:            logger,
		metrics:           metrics,
		tracer:            otel.Tracer(tracerName),
		transitionCounter: counter,
	}
}

// AppointProjectManager makes targetUserID the manager of projectID. A
// previous manager is demoted to DEVELOPER in the same atomic write.
// Re-appointing the current manager is a no-op.
func (m *Manager) AppointProjectManager(ctx context.Context, actorID, targetUserID, projectID int64) (err error) {
	ctx, span := m.start(ctx, OpAppointManager, actorID, projectID, targetUserID)
	event := &audit.AuditEvent{
		EventType:    audit.EventTypeManagerAppoint,
		ActorID:      actorID,
		ResourceType: audit.ResourceTypeProject,
		ResourceID:   projectID,
		TargetUserID: &targetUserID,
	}
	var change *store.ManagerChange
	defer func() { m.finish(ctx, span, OpAppointManager, event, change, err) }()

	if err := m.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	if _, err := m.store.GetProject(ctx, projectID); err != nil {
		return m.lookupError(err, "project %d", projectID)
	}
	if err := m.requireActiveTarget(ctx, targetUserID); err != nil {
		return err
	}

	state, err := m.store.GetManager(ctx, projectID)
	if err != nil {
		return m.lookupError(err, "manager of project %d", projectID)
	}
	if state.IsManager(targetUserID) {
		event.Status = audit.EventStatusNoop
		return nil
	}

	change, err = m.store.ReplaceManager(ctx, projectID, state.Version, targetUserID)
	switch {
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("project %d: %w", projectID, ErrConcurrencyConflict)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("project %d or user %d: %w", projectID, targetUserID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to appoint manager: %w", err)
	}

	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"manager_id": state.ManagerID, "version": state.Version},
		After:  map[string]interface{}{"manager_id": change.ManagerID, "version": change.Version},
	}
	return nil
}

// AssignRole sets the target's role in the project to DEVELOPER or QA.
// roles.None removes the membership. PROJECT_MANAGER is only reachable
// through AppointProjectManager, and the current manager's row cannot be
// changed here.
func (m *Manager) AssignRole(ctx context.Context, actorID, projectID, targetUserID int64, role roles.Role) (err error) {
	if role == roles.None {
		return m.removeMembership(ctx, OpAssignRole, actorID, projectID, targetUserID)
	}

	ctx, span := m.start(ctx, OpAssignRole, actorID, projectID, targetUserID)
	span.SetAttributes(attribute.String("transition.role", role.String()))
	event := &audit.AuditEvent{
		EventType:    audit.EventTypeRoleAssign,
		ActorID:      actorID,
		ResourceType: audit.ResourceTypeProject,
		ResourceID:   projectID,
		TargetUserID: &targetUserID,
		Metadata:     map[string]interface{}{"role": role.String()},
	}
	defer func() { m.finish(ctx, span, OpAssignRole, event, nil, err) }()

	if !m.evaluator.CanManageProject(ctx, actorID, projectID) {
		return fmt.Errorf("actor %d cannot manage project %d: %w", actorID, projectID, ErrAccessDenied)
	}

	if !roles.IsAssignable(role) {
		return fmt.Errorf("role %s cannot be assigned, allowed %v: %w", role, roles.AssignableRoles(), ErrValidation)
	}
	if err := m.requireActiveTarget(ctx, targetUserID); err != nil {
		return err
	}

	current := roles.None
	existing, err := m.store.GetMembership(ctx, projectID, targetUserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to read membership: %w", err)
	default:
		current = existing.Role
	}

	if current == roles.ProjectManager {
		return fmt.Errorf("user %d manages project %d, appoint another manager first: %w", targetUserID, projectID, ErrValidation)
	}
	if current == role {
		event.Status = audit.EventStatusNoop
		return nil
	}

	if err := m.store.SetMemberRole(ctx, projectID, targetUserID, role); err != nil {
		if errors.Is(err, store.ErrManagerRow) {
			return fmt.Errorf("user %d became manager of project %d: %w", targetUserID, projectID, ErrValidation)
		}
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %d or user %d: %w", projectID, targetUserID, ErrNotFound)
		}
		return fmt.Errorf("failed to assign role: %w", err)
	}

	event.Changes = &audit.ChangeDetails{
		Before: map[string]interface{}{"role": current.String()},
		After:  map[string]interface{}{"role": role.String()},
	}
	return nil
}

// RemoveMembership deletes the user's row in the project. Removing a missing
// row succeeds. Removing the manager leaves the project without one.
func (m *Manager) RemoveMembership(ctx context.Context, actorID, projectID, userID int64) error {
	return m.removeMembership(ctx, OpRemoveMembership, actorID, projectID, userID)
}

func (m *Manager) removeMembership(ctx context.Context, op string, actorID, projectID, userID int64) (err error) {
	ctx, span := m.start(ctx, op, actorID, projectID, userID)
	event := &audit.AuditEvent{
		EventType:    audit.EventTypeMembershipRemove,
		ActorID:      actorID,
		ResourceType: audit.ResourceTypeProject,
		ResourceID:   projectID,
		TargetUserID: &userID,
		Metadata:     map[string]interface{}{"operation": op},
	}
	defer func() { m.finish(ctx, span, op, event, nil, err) }()

	if !m.evaluator.CanManageProject(ctx, actorID, projectID) {
		return fmt.Errorf("actor %d cannot manage project %d: %w", actorID, projectID, ErrAccessDenied)
	}

	removed, err := m.store.DeleteMembership(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	if !removed {
		event.Status = audit.EventStatusNoop
	}
	return nil
}

// SoftDeleteUser flags the account deleted. Memberships and work logs are
// kept. Deleting an already deleted user succeeds.
func (m *Manager) SoftDeleteUser(ctx context.Context, actorID, userID int64) (err error) {
	ctx, span := m.start(ctx, OpSoftDeleteUser, actorID, 0, userID)
	event := &audit.AuditEvent{
		EventType:    audit.EventTypeUserSoftDelete,
		ActorID:      actorID,
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   userID,
		TargetUserID: &userID,
	}
	defer func() { m.finish(ctx, span, OpSoftDeleteUser, event, nil, err) }()

	if err := m.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	changed, err := m.store.SetUserDeleted(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if !changed {
		event.Status = audit.EventStatusNoop
	}
	return nil
}

// AvailableMembers lists active, non-admin users without a row in the
// project. Requires manage permission.
func (m *Manager) AvailableMembers(ctx context.Context, actorID, projectID int64) ([]store.User, error) {
	if !m.evaluator.CanManageProject(ctx, actorID, projectID) {
		return nil, m.denied(ctx, actorID, projectID, authz.ActionManageProject)
	}
	users, err := m.store.ListAvailableUsers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list available users: %w", err)
	}
	return users, nil
}

// ProjectMembers lists every membership row of the project, including rows
// of soft-deleted users. Requires view permission.
func (m *Manager) ProjectMembers(ctx context.Context, actorID, projectID int64) ([]store.Membership, error) {
	if !m.evaluator.CanViewProject(ctx, actorID, projectID) {
		return nil, m.denied(ctx, actorID, projectID, authz.ActionViewProject)
	}
	members, err := m.store.ListMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ProjectManager returns the project's manager slot. Requires view permission.
func (m *Manager) ProjectManager(ctx context.Context, actorID, projectID int64) (*store.ManagerState, error) {
	if !m.evaluator.CanViewProject(ctx, actorID, projectID) {
		return nil, m.denied(ctx, actorID, projectID, authz.ActionViewProject)
	}
	state, err := m.store.GetManager(ctx, projectID)
	if err != nil {
		return nil, m.lookupError(err, "manager of project %d", projectID)
	}
	return state, nil
}

// RoleOptions returns the roles the target can be moved to by AssignRole,
// given their current membership. Requires manage permission.
func (m *Manager) RoleOptions(ctx context.Context, actorID, projectID, targetUserID int64) ([]roles.Role, error) {
	if !m.evaluator.CanManageProject(ctx, actorID, projectID) {
		return nil, m.denied(ctx, actorID, projectID, authz.ActionManageProject)
	}

	current := roles.None
	existing, err := m.store.GetMembership(ctx, projectID, targetUserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read membership: %w", err)
	default:
		current = existing.Role
	}
	return roles.AvailableRolesFor(current), nil
}

// requireAdmin passes only for an active global ADMIN
func (m *Manager) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := m.store.GetUser(ctx, actorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("actor %d unknown: %w", actorID, ErrAccessDenied)
	case err != nil:
		return fmt.Errorf("failed to read actor: %w", err)
	case actor.IsDeleted || actor.Role != roles.Admin:
		return fmt.Errorf("actor %d is not an administrator: %w", actorID, ErrAccessDenied)
	}
	return nil
}

func (m *Manager) requireActiveTarget(ctx context.Context, userID int64) error {
	target, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return m.lookupError(err, "user %d", userID)
	}
	if target.IsDeleted {
		return fmt.Errorf("user %d is deleted: %w", userID, ErrValidation)
	}
	return nil
}

// lookupError maps store.ErrNotFound to ErrNotFound and wraps everything else
func (m *Manager) lookupError(err error, format string, args ...interface{}) error {
	subject := fmt.Sprintf(format, args...)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", subject, err)
}

// denied records a read-side access denial
func (m *Manager) denied(ctx context.Context, actorID, projectID int64, action authz.Action) error {
	event := &audit.AuditEvent{
		EventType:    audit.EventTypeAccessDenied,
		Status:       audit.EventStatusDenied,
		ActorID:      actorID,
		ResourceType: audit.ResourceTypeProject,
		ResourceID:   projectID,
		Metadata:     map[string]interface{}{"action": string(action)},
	}
	if err := m.audit.Log(ctx, event); err != nil {
		observability.WithTraceContext(ctx, m.logger).WithError(err).Warn("Failed to write audit event")
	}
	return fmt.Errorf("actor %d cannot %s %d: %w", actorID, action, projectID, ErrAccessDenied)
}

func (m *Manager) start(ctx context.Context, op string, actorID, projectID, targetUserID int64) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "transition."+op, trace.WithAttributes(
		attribute.Int64("transition.actor_id", actorID),
		attribute.Int64("transition.project_id", projectID),
		attribute.Int64("transition.target_user_id", targetUserID),
	))
}

// finish logs the outcome, writes the audit event, counts the transition and
// ends the span
func (m *Manager) finish(ctx context.Context, span trace.Span, op string, event *audit.AuditEvent, change *store.ManagerChange, err error) {
	defer span.End()

	outcome := classify(err)
	if err == nil && event.Status == audit.EventStatusNoop {
		outcome = OutcomeNoop
	}

	switch outcome {
	case OutcomeSuccess:
		event.Status = audit.EventStatusSuccess
	case OutcomeNoop:
	case OutcomeDenied:
		event.Status = audit.EventStatusDenied
	case OutcomeConflict:
		event.Status = audit.EventStatusConflict
	default:
		event.Status = audit.EventStatusFailure
	}
	if err != nil {
		event.ErrorMessage = err.Error()
		span.RecordError(err)
		if outcome == OutcomeError {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.SetAttributes(attribute.String("transition.outcome", outcome))

	if m.metrics != nil {
		m.metrics.RoleTransitionsTotal.WithLabelValues(op, outcome).Inc()
	}
	if m.transitionCounter != nil {
		m.transitionCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}

	fields := logrus.Fields{
		"operation": op,
		"outcome":   outcome,
		"actor_id":  event.ActorID,
	}
	if event.ResourceType == audit.ResourceTypeProject {
		fields["project_id"] = event.ResourceID
	}
	if event.TargetUserID != nil {
		fields["target_user_id"] = *event.TargetUserID
	}
	if change != nil {
		fields["manager_version"] = change.Version
		if change.PreviousManagerID != nil {
			fields["previous_manager_id"] = *change.PreviousManagerID
		}
	}
	entry := observability.WithTraceContext(ctx, m.logger).WithFields(fields)

	switch outcome {
	case OutcomeSuccess, OutcomeNoop:
		entry.Info("Role transition applied")
	case OutcomeError:
		entry.WithError(err).Error("Role transition failed")
	default:
		entry.WithError(err).Warn("Role transition rejected")
	}

	if auditErr := m.audit.Log(ctx, event); auditErr != nil {
		entry.WithError(auditErr).Warn("Failed to write audit event")
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrAccessDenied):
		return OutcomeDenied
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrValidation):
		return OutcomeInvalid
	case errors.Is(err, ErrConcurrencyConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
