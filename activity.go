package auth

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/goliatone/go-print"
	"github.com/oklog/ulid/v2"
)

// ActivityEventType enumerates the domain events published by commands.
type ActivityEventType string

const (
	ActivityEventUserRegistered         ActivityEventType = "user.registered"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventAccountLocked          ActivityEventType = "auth.account.locked"
	ActivityEventTokenRefreshed         ActivityEventType = "auth.token.refreshed"
	ActivityEventLogout                 ActivityEventType = "auth.logout"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged        ActivityEventType = "auth.password.changed"
	ActivityEventEmailVerified          ActivityEventType = "user.email.verified"
	ActivityEventRoleAssigned           ActivityEventType = "user.role.assigned"
	ActivityEventRoleRemoved            ActivityEventType = "user.role.removed"
	ActivityEventUserStatusChanged      ActivityEventType = "user.status.changed"
	ActivityEventUserDeleted            ActivityEventType = "user.deleted"
	ActivityEventRoleCreated            ActivityEventType = "role.created"
	ActivityEventRoleUpdated            ActivityEventType = "role.updated"
	ActivityEventRoleDeleted            ActivityEventType = "role.deleted"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	ID         string            `json:"id"`
	EventType  ActivityEventType `json:"event_type"`
	Actor      ActorRef          `json:"actor"`
	UserID     string            `json:"user_id,omitempty"`
	RoleID     string            `json:"role_id,omitempty"`
	FromStatus string            `json:"from_status,omitempty"`
	ToStatus   string            `json:"to_status,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LoggingActivitySink writes every event to a Logger.
type LoggingActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LoggingActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("activity %s: %s", event.EventType, print.MaybePrettyJSON(event))
	return nil
}

var (
	eventEntropyMu sync.Mutex
	eventEntropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEventID returns a lexicographically sortable event identifier.
func NewEventID(at time.Time) string {
	eventEntropyMu.Lock()
	defer eventEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), eventEntropy).String()
}

func newActivityEvent(eventType ActivityEventType, userID string, at time.Time) ActivityEvent {
	return ActivityEvent{
		ID:         NewEventID(at),
		EventType:  eventType,
		UserID:     userID,
		Metadata:   map[string]any{},
		OccurredAt: at,
	}
}

func (e ActivityEvent) String() string {
	return fmt.Sprintf("%s[%s]", e.EventType, e.ID)
}
