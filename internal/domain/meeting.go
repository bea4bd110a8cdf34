package domain

import (
	"time"

	"github.com/google/uuid"
)

// MeetingType classifies what a meeting room is used for
type MeetingType string

const (
	MeetingTypeConsultation  MeetingType = "consultation"
	MeetingTypeClientMeeting MeetingType = "client_meeting"
	MeetingTypeDeposition    MeetingType = "deposition"
	MeetingTypeMediation     MeetingType = "mediation"
	MeetingTypeCourtHearing  MeetingType = "court_hearing"
	MeetingTypeInternal      MeetingType = "internal"
)

// Valid reports whether t is a known meeting type
func (t MeetingType) Valid() bool {
	switch t {
	case MeetingTypeConsultation, MeetingTypeClientMeeting, MeetingTypeDeposition,
		MeetingTypeMediation, MeetingTypeCourtHearing, MeetingTypeInternal:
		return true
	}
	return false
}

// SecurityLevel drives which room settings are forced on creation
type SecurityLevel string

const (
	SecurityStandard     SecurityLevel = "standard"
	SecurityHigh         SecurityLevel = "high"
	SecurityConfidential SecurityLevel = "confidential"
)

// Valid reports whether l is a known security level
func (l SecurityLevel) Valid() bool {
	return l == SecurityStandard || l == SecurityHigh || l == SecurityConfidential
}

// RoomStatus is the lifecycle state of a room: waiting -> active -> ended
type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusEnded   RoomStatus = "ended"
)

// RecordingStatus is the lifecycle state of a recording: recording -> completed | failed
type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusCompleted RecordingStatus = "completed"
	RecordingStatusFailed    RecordingStatus = "failed"
)

// MediaKind names a toggleable media track
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Valid reports whether k is audio or video
func (k MediaKind) Valid() bool {
	return k == MediaAudio || k == MediaVideo
}

// ConnectionStatus of a participant's transport
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionWaiting      ConnectionStatus = "waiting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// ChatMessageType distinguishes participant messages from room notices
type ChatMessageType string

const (
	ChatMessageUser   ChatMessageType = "user"
	ChatMessageSystem ChatMessageType = "system"
)

// RoomSettings control what participants may do inside a room
type RoomSettings struct {
	WaitingRoom      bool `json:"waiting_room"`
	RequireAuth      bool `json:"require_auth"`
	AllowScreenShare bool `json:"allow_screen_share"`
	AllowChat        bool `json:"allow_chat"`
	AllowRecording   bool `json:"allow_recording"`
	MuteOnJoin       bool `json:"mute_on_join"`
	Locked           bool `json:"locked"`
}

// DefaultRoomSettings are applied before caller overrides and security rules
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowScreenShare: true,
		AllowChat:        true,
		AllowRecording:   true,
	}
}

// MeetingRoom is the persisted projection of a room
type MeetingRoom struct {
	ID              string        `json:"room_id"`
	Title           string        `json:"title"`
	CaseID          *uuid.UUID    `json:"case_id,omitempty"`
	CreatedBy       uuid.UUID     `json:"created_by"`
	AccessCode      string        `json:"access_code"`
	HostKeyHash     string        `json:"-"`
	MeetingType     MeetingType   `json:"meeting_type"`
	SecurityLevel   SecurityLevel `json:"security_level"`
	MaxParticipants int           `json:"max_participants"`
	Status          RoomStatus    `json:"status"`
	Settings        RoomSettings  `json:"settings"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
}

// LastActivity is the most recent of the room's lifecycle timestamps
func (r *MeetingRoom) LastActivity() time.Time {
	last := r.CreatedAt
	if r.StartedAt != nil && r.StartedAt.After(last) {
		last = *r.StartedAt
	}
	if r.EndedAt != nil && r.EndedAt.After(last) {
		last = *r.EndedAt
	}
	return last
}

// Participant is a member of a room, either active or waiting for admission
type Participant struct {
	ID               string           `json:"participant_id"`
	UserID           *uuid.UUID       `json:"user_id,omitempty"`
	DisplayName      string           `json:"display_name"`
	Email            string           `json:"email,omitempty"`
	IsHost           bool             `json:"is_host"`
	IsGuest          bool             `json:"is_guest"`
	AudioEnabled     bool             `json:"audio_enabled"`
	VideoEnabled     bool             `json:"video_enabled"`
	IsScreenSharing  bool             `json:"is_screen_sharing"`
	HandRaised       bool             `json:"hand_raised"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	JoinedAt         time.Time        `json:"joined_at"`
}

// Recording is one encoder run capturing a room
type Recording struct {
	ID              string          `json:"recording_id"`
	RoomID          string          `json:"room_id"`
	OutputPath      string          `json:"output_path"`
	ObjectKey       string          `json:"object_key,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	StartedBy       string          `json:"started_by"`
	DurationSeconds int64           `json:"duration_seconds"`
	FileSize        int64           `json:"file_size"`
	Status          RecordingStatus `json:"status"`
	FailureReason   string          `json:"failure_reason,omitempty"`
}

// ChatMessage is an entry in a room's chat history
type ChatMessage struct {
	ID         string          `json:"message_id"`
	Type       ChatMessageType `json:"type"`
	SenderID   string          `json:"sender_id,omitempty"`
	SenderName string          `json:"sender_name,omitempty"`
	Text       string          `json:"text"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ScreenShareSession tracks one participant sharing their screen
type ScreenShareSession struct {
	ParticipantID string    `json:"participant_id"`
	StartedAt     time.Time `json:"started_at"`
}

// LiveStream is an encoder run pushing a room to an external endpoint
type LiveStream struct {
	ID        string    `json:"stream_id"`
	RoomID    string    `json:"room_id"`
	Target    string    `json:"-"`
	StartedAt time.Time `json:"started_at"`
	StartedBy string    `json:"started_by"`
}
