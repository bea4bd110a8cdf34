package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counselmeet-backend/pkg/constants"
)

// memoryLists keeps Redis lists in memory
type memoryLists struct {
	lists   map[string][]string
	expires map[string]time.Duration
	pushErr error
}

func newMemoryLists() *memoryLists {
	return &memoryLists{lists: map[string][]string{}, expires: map[string]time.Duration{}}
}

func (m *memoryLists) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if m.pushErr != nil {
		return redis.NewIntResult(0, m.pushErr)
	}
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case []byte:
			s = string(val)
		case string:
			s = val
		}
		m.lists[key] = append([]string{s}, m.lists[key]...)
	}
	return redis.NewIntResult(int64(len(m.lists[key])), nil)
}

func (m *memoryLists) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memoryLists) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(m.lists[key], nil)
}

func TestLogMeetingEvent(t *testing.T) {
	store := newMemoryLists()
	al := NewAuditLogger(store)
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	al.now = func() time.Time { return fixed }

	err := al.LogMeetingEvent(context.Background(), EventRoomCreated, "room-1", "owner", map[string]any{"security_level": "high"})
	require.NoError(t, err)

	key := "audit:events:2026-03-04"
	require.Len(t, store.lists[key], 1)
	assert.Equal(t, constants.AuditLogRetention, store.expires[key])

	var event AuditEvent
	require.NoError(t, json.Unmarshal([]byte(store.lists[key][0]), &event))
	assert.Equal(t, EventRoomCreated, event.EventType)
	assert.Equal(t, "room-1", event.RoomID)
	assert.Equal(t, "owner", event.Actor)
	assert.Equal(t, "high", event.Metadata["security_level"])
	assert.Equal(t, fixed, event.Timestamp)
}

func TestGetRoomEvents(t *testing.T) {
	store := newMemoryLists()
	al := NewAuditLogger(store)
	day := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	al.now = func() time.Time { return day }
	ctx := context.Background()

	require.NoError(t, al.LogMeetingEvent(ctx, EventRoomCreated, "room-1", "owner", nil))
	require.NoError(t, al.LogMeetingEvent(ctx, EventRoomCreated, "room-2", "owner", nil))
	require.NoError(t, al.LogMeetingEvent(ctx, RecordingEvent("completed"), "room-1", "host", nil))
	store.lists["audit:events:2026-03-04"] = append(store.lists["audit:events:2026-03-04"], "not json")

	events, err := al.GetRoomEvents(ctx, "room-1", day, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "recording_completed", events[0].EventType)
	assert.Equal(t, EventRoomCreated, events[1].EventType)

	events, err = al.GetRoomEvents(ctx, "room-1", day, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLog_StoreFailure(t *testing.T) {
	store := newMemoryLists()
	store.pushErr = errors.New("connection refused")
	al := NewAuditLogger(store)

	err := al.LogMeetingEvent(context.Background(), EventRoomEnded, "room-1", "", nil)
	assert.Error(t, err)
}
