package cockroach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"counselmeet-backend/internal/domain"
	apperrors "counselmeet-backend/pkg/errors"
)

// MeetingSchema creates the tables the meeting repository works on
const MeetingSchema = `
CREATE TABLE IF NOT EXISTS meeting_rooms (
	room_id          STRING PRIMARY KEY,
	title            STRING NOT NULL,
	case_id          UUID NULL,
	created_by       UUID NOT NULL,
	access_code      STRING NOT NULL UNIQUE,
	host_key_hash    STRING NOT NULL,
	meeting_type     STRING NOT NULL,
	security_level   STRING NOT NULL,
	max_participants INT NOT NULL,
	status           STRING NOT NULL,
	settings         JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	started_at       TIMESTAMPTZ NULL,
	ended_at         TIMESTAMPTZ NULL,
	INDEX meeting_rooms_created_by_idx (created_by, created_at DESC)
);

CREATE TABLE IF NOT EXISTS meeting_recordings (
	recording_id     STRING PRIMARY KEY,
	room_id          STRING NOT NULL REFERENCES meeting_rooms (room_id),
	output_path      STRING NOT NULL,
	object_key       STRING NOT NULL DEFAULT '',
	started_by       STRING NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ NULL,
	duration_seconds INT8 NOT NULL DEFAULT 0,
	file_size        INT8 NOT NULL DEFAULT 0,
	status           STRING NOT NULL,
	failure_reason   STRING NOT NULL DEFAULT '',
	INDEX meeting_recordings_room_idx (room_id, started_at DESC)
);
`

// MeetingRepository persists meeting rooms and their recordings
type MeetingRepository struct {
	pool *pgxpool.Pool
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(pool *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// EnsureSchema creates missing tables
func (r *MeetingRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, MeetingSchema); err != nil {
		return fmt.Errorf("failed to create meeting schema: %w", err)
	}
	return nil
}

// SaveRoom inserts a new room
func (r *MeetingRepository) SaveRoom(ctx context.Context, room *domain.MeetingRoom) error {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode room settings: %w", err)
	}

	query := `
		INSERT INTO meeting_rooms (
			room_id, title, case_id, created_by, access_code, host_key_hash,
			meeting_type, security_level, max_participants, status, settings,
			created_at, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.pool.Exec(ctx, query,
		room.ID,
		room.Title,
		room.CaseID,
		room.CreatedBy,
		room.AccessCode,
		room.HostKeyHash,
		room.MeetingType,
		room.SecurityLevel,
		room.MaxParticipants,
		room.Status,
		settings,
		room.CreatedAt,
		room.StartedAt,
		room.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save meeting room: %w", err)
	}

	return nil
}

// UpdateRoomStatus records a lifecycle transition. at becomes started_at or ended_at.
func (r *MeetingRepository) UpdateRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus, at time.Time) error {
	var query string
	switch status {
	case domain.RoomStatusActive:
		query = `UPDATE meeting_rooms SET status = $2, started_at = $3 WHERE room_id = $1`
	case domain.RoomStatusEnded:
		query = `UPDATE meeting_rooms SET status = $2, ended_at = $3 WHERE room_id = $1`
	default:
		return fmt.Errorf("unsupported room status transition: %s", status)
	}

	tag, err := r.pool.Exec(ctx, query, roomID, status, at)
	if err != nil {
		return fmt.Errorf("failed to update meeting room status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.RoomNotFoundError()
	}

	return nil
}

const roomColumns = `
	room_id, title, case_id, created_by, access_code, host_key_hash,
	meeting_type, security_level, max_participants, status, settings,
	created_at, started_at, ended_at
`

// GetRoom retrieves a room by id
func (r *MeetingRepository) GetRoom(ctx context.Context, roomID string) (*domain.MeetingRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM meeting_rooms WHERE room_id = $1`
	return r.scanRoom(r.pool.QueryRow(ctx, query, roomID))
}

// GetRoomByAccessCode retrieves a room by its join code
func (r *MeetingRepository) GetRoomByAccessCode(ctx context.Context, accessCode string) (*domain.MeetingRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM meeting_rooms WHERE access_code = $1`
	return r.scanRoom(r.pool.QueryRow(ctx, query, accessCode))
}

func (r *MeetingRepository) scanRoom(row pgx.Row) (*domain.MeetingRoom, error) {
	room := &domain.MeetingRoom{}
	var settings []byte
	err := row.Scan(
		&room.ID,
		&room.Title,
		&room.CaseID,
		&room.CreatedBy,
		&room.AccessCode,
		&room.HostKeyHash,
		&room.MeetingType,
		&room.SecurityLevel,
		&room.MaxParticipants,
		&room.Status,
		&settings,
		&room.CreatedAt,
		&room.StartedAt,
		&room.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.RoomNotFoundError()
		}
		return nil, fmt.Errorf("failed to get meeting room: %w", err)
	}

	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode room settings: %w", err)
	}

	return room, nil
}

// SaveRecording inserts a recording or overwrites its mutable fields
func (r *MeetingRepository) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	query := `
		INSERT INTO meeting_recordings (
			recording_id, room_id, output_path, object_key, started_by, started_at,
			ended_at, duration_seconds, file_size, status, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (recording_id) DO UPDATE SET
			object_key = excluded.object_key,
			ended_at = excluded.ended_at,
			duration_seconds = excluded.duration_seconds,
			file_size = excluded.file_size,
			status = excluded.status,
			failure_reason = excluded.failure_reason
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.RoomID,
		rec.OutputPath,
		rec.ObjectKey,
		rec.StartedBy,
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		rec.FileSize,
		rec.Status,
		rec.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}

	return nil
}

// ListRecordings retrieves the recordings of a room, newest first
func (r *MeetingRepository) ListRecordings(ctx context.Context, roomID string) ([]*domain.Recording, error) {
	query := `
		SELECT recording_id, room_id, output_path, object_key, started_by, started_at,
		       ended_at, duration_seconds, file_size, status, failure_reason
		FROM meeting_recordings
		WHERE room_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	recs := []*domain.Recording{}
	for rows.Next() {
		rec := &domain.Recording{}
		err := rows.Scan(
			&rec.ID,
			&rec.RoomID,
			&rec.OutputPath,
			&rec.ObjectKey,
			&rec.StartedBy,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.DurationSeconds,
			&rec.FileSize,
			&rec.Status,
			&rec.FailureReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recordings: %w", err)
	}

	return recs, nil
}
