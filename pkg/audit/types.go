package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeManagerAppoint   EventType = "membership.manager_appoint"
	EventTypeRoleAssign       EventType = "membership.role_assign"
	EventTypeMembershipRemove EventType = "membership.remove"
	EventTypeUserSoftDelete   EventType = "user.soft_delete"
	EventTypeAccessDenied     EventType = "authz.access_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess  EventStatus = "success"
	EventStatusNoop     EventStatus = "noop"
	EventStatusFailure  EventStatus = "failure"
	EventStatusDenied   EventStatus = "denied"
	EventStatusConflict EventStatus = "conflict"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeProject ResourceType = "project"
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeWorkLog ResourceType = "worklog"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID      int64        `json:"actor_id"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   int64        `json:"resource_id,omitempty"`
	TargetUserID *int64       `json:"target_user_id,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
