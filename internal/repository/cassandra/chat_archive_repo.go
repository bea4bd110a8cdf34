package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/pkg/metrics"
)

const chatTable = "meeting_chat"

// ChatArchiveSchema creates the archive table. Rows are clustered by time within a room.
const ChatArchiveSchema = `
CREATE TABLE IF NOT EXISTS meeting_chat (
	room_id      text,
	created_at   timestamp,
	message_id   text,
	message_type text,
	sender_id    text,
	sender_name  text,
	content      text,
	PRIMARY KEY ((room_id), created_at, message_id)
) WITH CLUSTERING ORDER BY (created_at DESC, message_id DESC)
`

// ChatArchiveRepository keeps every meeting chat message beyond the in-memory window
type ChatArchiveRepository struct {
	session *gocql.Session
}

// NewChatArchiveRepository creates a new ChatArchiveRepository
func NewChatArchiveRepository(session *gocql.Session) *ChatArchiveRepository {
	return &ChatArchiveRepository{session: session}
}

// EnsureSchema creates the archive table if it is missing
func (r *ChatArchiveRepository) EnsureSchema(ctx context.Context) error {
	if err := r.session.Query(ChatArchiveSchema).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to create chat archive table: %w", err)
	}
	return nil
}

// AppendChat stores one message
func (r *ChatArchiveRepository) AppendChat(ctx context.Context, roomID string, msg *domain.ChatMessage) error {
	query := `
		INSERT INTO meeting_chat (
			room_id, created_at, message_id, message_type, sender_id, sender_name, content
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err := r.session.Query(query,
		roomID,
		msg.Timestamp,
		msg.ID,
		string(msg.Type),
		msg.SenderID,
		msg.SenderName,
		msg.Text,
	).WithContext(ctx).Exec()
	metrics.RecordCassandraQueryDuration("append_chat", chatTable, time.Since(start).Seconds())

	if err != nil {
		metrics.RecordCassandraQuery("append_chat", chatTable, "error")
		metrics.RecordCassandraWriteError(chatTable, errorType(err))
		return fmt.Errorf("failed to archive chat message: %w", err)
	}
	metrics.RecordCassandraQuery("append_chat", chatTable, "success")

	return nil
}

// GetTranscript returns the latest limit messages of a room, oldest first
func (r *ChatArchiveRepository) GetTranscript(ctx context.Context, roomID string, limit int) ([]*domain.ChatMessage, error) {
	query := `
		SELECT message_id, message_type, sender_id, sender_name, content, created_at
		FROM meeting_chat
		WHERE room_id = ?
		LIMIT ?
	`

	start := time.Now()
	iter := r.session.Query(query, roomID, limit).WithContext(ctx).Iter()

	var messages []*domain.ChatMessage
	for {
		msg := &domain.ChatMessage{}
		var msgType string
		if !iter.Scan(
			&msg.ID,
			&msgType,
			&msg.SenderID,
			&msg.SenderName,
			&msg.Text,
			&msg.Timestamp,
		) {
			break
		}
		msg.Type = domain.ChatMessageType(msgType)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}

	err := iter.Close()
	metrics.RecordCassandraQueryDuration("get_transcript", chatTable, time.Since(start).Seconds())
	if err != nil {
		metrics.RecordCassandraQuery("get_transcript", chatTable, "error")
		metrics.RecordCassandraReadError(chatTable, errorType(err))
		return nil, fmt.Errorf("failed to fetch transcript: %w", err)
	}
	metrics.RecordCassandraQuery("get_transcript", chatTable, "success")

	reverse(messages)
	return messages, nil
}

// reverse flips newest-first rows into reading order
func reverse(messages []*domain.ChatMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

func errorType(err error) string {
	switch err.(type) {
	case *gocql.RequestErrWriteTimeout, *gocql.RequestErrReadTimeout:
		return "timeout"
	case *gocql.RequestErrUnavailable:
		return "unavailable"
	}
	if err == gocql.ErrTimeoutNoResponse || err == gocql.ErrNoConnections {
		return "connection"
	}
	return "other"
}
