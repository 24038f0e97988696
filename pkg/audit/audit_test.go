package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	logger := NewLogrusLogger(base)
	ctx := contextkeys.WithRequestID(context.Background(), "req-42")
	target := int64(5)

	err := logger.Log(ctx, &AuditEvent{
		EventType:    EventTypeManagerAppoint,
		Status:       EventStatusSuccess,
		ActorID:      1,
		ResourceType: ResourceTypeProject,
		ResourceID:   10,
		TargetUserID: &target,
		Message:      "Project manager appointed",
		Changes: &ChangeDetails{
			Before: map[string]interface{}{"manager_id": int64(3)},
			After:  map[string]interface{}{"manager_id": int64(5)},
		},
	})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "Project manager appointed", entry.Message)
	assert.Equal(t, EventTypeManagerAppoint, entry.Data["event_type"])
	assert.Equal(t, int64(5), entry.Data["target_user_id"])
	assert.Equal(t, "req-42", entry.Data["request_id"])

	require.NoError(t, logger.Log(ctx, &AuditEvent{
		EventType: EventTypeAccessDenied,
		Status:    EventStatusDenied,
		ActorID:   7,
		Message:   "Access denied",
	}))
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestMemoryLogger(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()

	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeRoleAssign, Status: EventStatusSuccess}))
	require.NoError(t, logger.Log(ctx, &AuditEvent{EventType: EventTypeMembershipRemove, Status: EventStatusNoop}))

	events := logger.Events()
	require.Len(t, events, 2)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Len(t, logger.Filter(EventTypeMembershipRemove), 1)
	assert.Empty(t, logger.Filter(EventTypeUserSoftDelete))
}

type failingLogger struct{ closed bool }

func (f *failingLogger) Log(ctx context.Context, event *AuditEvent) error {
	return errors.New("sink unavailable")
}

func (f *failingLogger) Close() error {
	f.closed = true
	return errors.New("close failed")
}

func TestMultiLogger(t *testing.T) {
	memory := NewMemoryLogger()
	failing := &failingLogger{}
	multi := NewMultiLogger(failing, memory, NoopLogger{})

	err := multi.Log(context.Background(), &AuditEvent{EventType: EventTypeUserSoftDelete})
	assert.EqualError(t, err, "sink unavailable")
	assert.Len(t, memory.Events(), 1)

	assert.Error(t, multi.Close())
	assert.True(t, failing.closed)
}

func TestAuditEvent_ToJSON(t *testing.T) {
	data, err := (&AuditEvent{EventType: EventTypeRoleAssign, ActorID: 3}).ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event_type":"membership.role_assign"`)
	assert.Contains(t, string(data), `"actor_id":3`)
}
