// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 54 * time.Second

	// WebSocketPongWait is how long a connection may stay silent before it is dropped
	WebSocketPongWait = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Storage constants
const (
	// PresignedURLExpiry is the validity period for presigned recording download URLs
	PresignedURLExpiry = 15 * time.Minute

	// RecordingUploadTimeout bounds a single recording upload including retries
	RecordingUploadTimeout = 10 * time.Minute
)

// Audit log constants
const (
	// AuditLogRetention is the duration audit logs are retained
	AuditLogRetention = 90 * 24 * time.Hour // 90 days
)

// Meeting room constants
const (
	// ChatHistoryLimit is the number of chat messages a room keeps in memory
	ChatHistoryLimit = 200

	// MaxChatMessageLength is the maximum accepted chat message length in runes
	MaxChatMessageLength = 4000

	// MaxDisplayNameLength is the maximum allowed participant display name length
	MaxDisplayNameLength = 100

	// MaxRoomTitleLength is the maximum allowed room title length
	MaxRoomTitleLength = 200

	// DefaultMaxParticipants applies when a room is created without a capacity
	DefaultMaxParticipants = 50

	// RoomSweepInterval is how often inactive rooms are looked for
	RoomSweepInterval = 5 * time.Minute

	// RoomInactivityThreshold retires rooms whose last activity is older than this
	RoomInactivityThreshold = 24 * time.Hour
)

// Encoder process constants
const (
	// EncoderStartTimeout bounds the wait for an encoder spawn confirmation
	EncoderStartTimeout = 10 * time.Second

	// EncoderStopTimeout bounds the wait for an encoder to exit after a graceful stop
	EncoderStopTimeout = 15 * time.Second

	// EncoderStderrTail is how many bytes of encoder stderr are kept for diagnostics
	EncoderStderrTail = 8 * 1024
)

// Signaling constants
const (
	// MaxSignalingConnections caps concurrent websocket connections per instance
	MaxSignalingConnections = 1000

	// SignalingSendBuffer is the per-connection outbound queue length
	SignalingSendBuffer = 256

	// MaxSignalingMessageSize is the largest inbound frame accepted
	MaxSignalingMessageSize = 64 * 1024
)

// HTTP API constants
const (
	// TranscriptDefaultLimit is the number of messages a transcript read returns by default
	TranscriptDefaultLimit = 500

	// TranscriptMaxLimit caps a single transcript read
	TranscriptMaxLimit = 5000

	// RoleAdmin is the JWT role allowed to inspect other users' rooms and the encoders
	RoleAdmin = "admin"

	// RoomCreateRateLimit is the number of rooms a user may create per RoomCreateRateWindow
	RoomCreateRateLimit = 20

	// RoomCreateRateWindow is the fixed window for room creation rate limiting
	RoomCreateRateWindow = time.Minute
)
