package meeting

import (
	"time"

	"counselmeet-backend/internal/domain"
)

// EventType names an outbound room event
type EventType string

const (
	EventJoined             EventType = "joined"
	EventParticipantJoined  EventType = "participant_joined"
	EventParticipantLeft    EventType = "participant_left"
	EventParticipantWaiting EventType = "participant_waiting"
	EventAdmitted           EventType = "admitted"
	EventAdmissionDenied    EventType = "admission_denied"
	EventHostChanged        EventType = "host_changed"
	EventMediaToggled       EventType = "media_toggled"
	EventChatMessage        EventType = "chat_message"
	EventScreenShareStarted EventType = "screen_share_started"
	EventScreenShareStopped EventType = "screen_share_stopped"
	EventHandRaised         EventType = "hand_raised"
	EventRoomLocked         EventType = "room_locked"
	EventRoomEnded          EventType = "room_ended"
	EventRecordingStarted   EventType = "recording_started"
	EventRecordingStopped   EventType = "recording_stopped"
	EventRecordingFailed    EventType = "recording_failed"
	EventStreamStarted      EventType = "stream_started"
	EventStreamStopped      EventType = "stream_stopped"
)

// Event is delivered to participants through the Notifier
type Event struct {
	Type      EventType `json:"type"`
	RoomID    string    `json:"room_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans events out to participant connections.
// Deliver is called while a room is locked and must not block.
type Notifier interface {
	Deliver(participantIDs []string, evt *Event)
}

type nopNotifier struct{}

func (nopNotifier) Deliver([]string, *Event) {}

// End reasons carried by room_ended
const (
	EndReasonEmpty    = "empty"
	EndReasonHost     = "ended_by_host"
	EndReasonInactive = "inactive"
	EndReasonShutdown = "shutdown"
)

type ParticipantPayload struct {
	Participant domain.Participant `json:"participant"`
}

type ParticipantLeftPayload struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	Waiting       bool   `json:"waiting,omitempty"`
}

type AdmissionDeniedPayload struct {
	Reason string `json:"reason"`
}

type HostChangedPayload struct {
	ParticipantID  string `json:"participant_id"`
	PreviousHostID string `json:"previous_host_id"`
}

type MediaToggledPayload struct {
	ParticipantID string           `json:"participant_id"`
	Kind          domain.MediaKind `json:"kind"`
	Enabled       bool             `json:"enabled"`
}

type ScreenSharePayload struct {
	ParticipantID string `json:"participant_id"`
}

type HandRaisedPayload struct {
	ParticipantID string `json:"participant_id"`
	Raised        bool   `json:"raised"`
}

type RoomLockedPayload struct {
	Locked bool `json:"locked"`
}

type RoomEndedPayload struct {
	Reason string `json:"reason"`
}

type RecordingPayload struct {
	RecordingID     string                 `json:"recording_id"`
	StartedBy       string                 `json:"started_by,omitempty"`
	Status          domain.RecordingStatus `json:"status"`
	DurationSeconds int64                  `json:"duration_seconds,omitempty"`
	FileSize        int64                  `json:"file_size,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
}

type StreamPayload struct {
	StreamID  string `json:"stream_id"`
	StartedBy string `json:"started_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
}
