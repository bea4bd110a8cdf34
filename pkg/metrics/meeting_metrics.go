package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Meeting metrics for room lifecycle, signaling fan-out and encoder supervision
var (
	// Room lifecycle metrics
	MeetingRoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_rooms_active",
		Help: "Current number of rooms held by the registry",
	})

	MeetingRoomsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_rooms_created_total",
		Help: "Total number of rooms created",
	}, []string{"security_level"})

	MeetingRoomsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_rooms_ended_total",
		Help: "Total number of rooms ended",
	}, []string{"reason"}) // "empty", "ended_by_host", "inactive", "shutdown"

	MeetingParticipantsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_participants_active",
		Help: "Current number of active participants across all rooms",
	})

	MeetingParticipantsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_participants_waiting",
		Help: "Current number of participants in waiting rooms",
	})

	MeetingJoinRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_join_rejected_total",
		Help: "Total number of rejected join attempts",
	}, []string{"reason"})

	// Recording metrics
	MeetingRecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recordings_total",
		Help: "Total number of recordings by final status",
	}, []string{"status"}) // "started", "spawn_failed", "completed", "failed"

	MeetingRecordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meeting_recording_duration_seconds",
		Help:    "Duration of completed recordings",
		Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
	})

	// Encoder process metrics
	EncoderProcessesActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "encoder_processes_active",
		Help: "Current number of supervised encoder processes",
	}, []string{"purpose"})

	EncoderProcessExitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_process_exits_total",
		Help: "Total number of encoder process exits by final state",
	}, []string{"purpose", "state"})

	EncoderSpawnFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_spawn_failures_total",
		Help: "Total number of encoder processes that failed to start",
	}, []string{"purpose", "reason"})

	// Signaling metrics
	SignalingConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_connections_active",
		Help: "Current number of signaling websocket connections",
	})

	SignalingMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_messages_total",
		Help: "Total number of inbound signaling messages by type",
	}, []string{"type"})

	SignalingRelayDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relay_dropped_total",
		Help: "Total number of relayed messages dropped",
	}, []string{"reason"}) // "not_connected", "room_mismatch", "target_missing"

	SignalingSlowConsumersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_slow_consumers_total",
		Help: "Total number of connections closed because their send queue was full",
	})

	// Background dispatch metrics
	MeetingDispatchDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_dispatch_dropped_total",
		Help: "Total number of background jobs dropped because the queue was full",
	}, []string{"job"})

	MeetingDispatchFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_dispatch_failed_total",
		Help: "Total number of background jobs that returned an error",
	}, []string{"job"})
)

// Recording upload metrics
var (
	RecordingUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recording_uploads_total",
		Help: "Total number of recording uploads to object storage",
	}, []string{"status"})

	RecordingUploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recording_upload_bytes_total",
		Help: "Total bytes of recordings uploaded to object storage",
	})
)
