package meeting

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/pkg/audit"
	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/sanitize"
)

// activeParticipant resolves an active participant of a live room. r.mu must be held.
func (r *room) activeParticipant(participantID string) (*domain.Participant, error) {
	if r.info.Status == domain.RoomStatusEnded {
		return nil, apperrors.RoomEndedError()
	}
	p, ok := r.participants[participantID]
	if !ok {
		return nil, apperrors.ParticipantNotFoundError()
	}
	return p, nil
}

// ToggleMedia records an audio or video change and tells the other participants
func (s *Service) ToggleMedia(ctx context.Context, roomID, participantID string, kind domain.MediaKind, enabled bool) error {
	if !kind.Valid() {
		return apperrors.ValidationError("media kind must be audio or video")
	}
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.activeParticipant(participantID)
	if err != nil {
		return err
	}
	switch kind {
	case domain.MediaAudio:
		p.AudioEnabled = enabled
	case domain.MediaVideo:
		p.VideoEnabled = enabled
	}
	s.emit(r, r.activeIDs(participantID), EventMediaToggled, MediaToggledPayload{
		ParticipantID: participantID,
		Kind:          kind,
		Enabled:       enabled,
	})
	return nil
}

// SendChat appends a user message to the room history and relays it to every active participant
func (s *Service) SendChat(ctx context.Context, roomID, participantID, text string) (*domain.ChatMessage, error) {
	r, err := s.getRoom(roomID)
	if err != nil {
		return nil, err
	}

	text = sanitize.SanitizeMessage(text)
	if text == "" || utf8.RuneCountInString(text) > constants.MaxChatMessageLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("message must be 1-%d characters", constants.MaxChatMessageLength))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.activeParticipant(participantID)
	if err != nil {
		return nil, err
	}
	if !r.info.Settings.AllowChat {
		return nil, apperrors.ChatDisabledError()
	}

	msg := domain.ChatMessage{
		ID:         uuid.New().String(),
		Type:       domain.ChatMessageUser,
		SenderID:   p.ID,
		SenderName: p.DisplayName,
		Text:       text,
		Timestamp:  s.now(),
	}
	s.appendChat(r, msg)
	s.emit(r, r.activeIDs(""), EventChatMessage, msg)
	return &msg, nil
}

// StartScreenShare marks the participant as sharing. Sharing twice is a no-op.
func (s *Service) StartScreenShare(ctx context.Context, roomID, participantID string) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.activeParticipant(participantID)
	if err != nil {
		return err
	}
	if !r.info.Settings.AllowScreenShare {
		return apperrors.ScreenShareDisabledError()
	}
	if _, sharing := r.screenShares[participantID]; sharing {
		return nil
	}
	r.screenShares[participantID] = domain.ScreenShareSession{ParticipantID: participantID, StartedAt: s.now()}
	p.IsScreenSharing = true
	s.emit(r, r.activeIDs(participantID), EventScreenShareStarted, ScreenSharePayload{ParticipantID: participantID})

	logger.FromContext(ctx).Debug("Screen share started",
		zap.String("room_id", roomID),
		zap.String("participant_id", participantID))
	return nil
}

// StopScreenShare clears the participant's share. Stopping when not sharing is a no-op.
func (s *Service) StopScreenShare(ctx context.Context, roomID, participantID string) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.activeParticipant(participantID)
	if err != nil {
		return err
	}
	if _, sharing := r.screenShares[participantID]; !sharing {
		return nil
	}
	delete(r.screenShares, participantID)
	p.IsScreenSharing = false
	s.emit(r, r.activeIDs(participantID), EventScreenShareStopped, ScreenSharePayload{ParticipantID: participantID})
	return nil
}

// RaiseHand sets or clears the participant's raised hand
func (s *Service) RaiseHand(ctx context.Context, roomID, participantID string, raised bool) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.activeParticipant(participantID)
	if err != nil {
		return err
	}
	if p.HandRaised == raised {
		return nil
	}
	p.HandRaised = raised
	s.emit(r, r.activeIDs(participantID), EventHandRaised, HandRaisedPayload{ParticipantID: participantID, Raised: raised})
	return nil
}

// SetLocked locks or unlocks the room against new joiners; hosts only
func (s *Service) SetLocked(ctx context.Context, roomID, requesterID string, locked bool) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info.Status == domain.RoomStatusEnded {
		return apperrors.RoomEndedError()
	}
	host, err := r.requireHost(requesterID)
	if err != nil {
		return err
	}
	if r.info.Settings.Locked == locked {
		return nil
	}
	r.info.Settings.Locked = locked
	s.emit(r, r.activeIDs(""), EventRoomLocked, RoomLockedPayload{Locked: locked})
	s.auditEvent(audit.EventRoomLockChanged, roomID, host.DisplayName, map[string]any{"locked": locked})
	return nil
}
