package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"counselmeet-backend/pkg/constants"
)

// Meeting audit event types
const (
	EventRoomCreated         = "room_created"
	EventRoomEnded           = "room_ended"
	EventRoomEndedByHost     = "room_ended_by_host"
	EventRoomLockChanged     = "room_lock_changed"
	EventParticipantAdmitted = "participant_admitted"
	EventParticipantDenied   = "participant_denied"
	EventRecordingStarted    = "recording_started"
	EventStreamStarted       = "stream_started"
	EventStreamStopped       = "stream_stopped"
)

// RecordingEvent names the event for a recording reaching a final status
func RecordingEvent(status string) string {
	return "recording_" + status
}

// AuditEvent represents an audit log entry
type AuditEvent struct {
	EventID   uuid.UUID      `json:"event_id"`
	EventType string         `json:"event_type"`
	RoomID    string         `json:"room_id"`
	Actor     string         `json:"actor,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ListStore is the subset of the Redis client the audit log uses
type ListStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// AuditLogger handles audit logging
type AuditLogger struct {
	redisClient ListStore
	now         func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(store ListStore) *AuditLogger {
	return &AuditLogger{
		redisClient: store,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func dayKey(t time.Time) string {
	return fmt.Sprintf("audit:events:%s", t.Format("2006-01-02"))
}

// Log stores an audit event in the list for its day
func (al *AuditLogger) Log(ctx context.Context, event *AuditEvent) error {
	event.Timestamp = al.now()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := dayKey(event.Timestamp)
	if err := al.redisClient.LPush(ctx, key, eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}

	if err := al.redisClient.Expire(ctx, key, constants.AuditLogRetention).Err(); err != nil {
		return fmt.Errorf("failed to set audit log expiry: %w", err)
	}

	return nil
}

// LogMeetingEvent records a room lifecycle event
func (al *AuditLogger) LogMeetingEvent(ctx context.Context, eventType, roomID, actor string, metadata map[string]any) error {
	return al.Log(ctx, &AuditEvent{
		EventType: eventType,
		RoomID:    roomID,
		Actor:     actor,
		Metadata:  metadata,
	})
}

// GetRoomEvents returns the events of one room logged on the given day, newest first
func (al *AuditLogger) GetRoomEvents(ctx context.Context, roomID string, day time.Time, limit int) ([]*AuditEvent, error) {
	members, err := al.redisClient.LRange(ctx, dayKey(day.UTC()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}

	events := []*AuditEvent{}
	for _, member := range members {
		var event AuditEvent
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		if event.RoomID != roomID {
			continue
		}
		events = append(events, &event)
		if limit > 0 && len(events) >= limit {
			break
		}
	}

	return events, nil
}
