package meeting

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/encoder"
	"counselmeet-backend/pkg/audit"
	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
	"counselmeet-backend/pkg/sanitize"
)

// SettingsOverrides lets the creator adjust defaults; nil fields keep the default
type SettingsOverrides struct {
	WaitingRoom      *bool `json:"waiting_room,omitempty"`
	RequireAuth      *bool `json:"require_auth,omitempty"`
	AllowScreenShare *bool `json:"allow_screen_share,omitempty"`
	AllowChat        *bool `json:"allow_chat,omitempty"`
	AllowRecording   *bool `json:"allow_recording,omitempty"`
	MuteOnJoin       *bool `json:"mute_on_join,omitempty"`
}

// CreateRoomInput contains room creation data
type CreateRoomInput struct {
	Title           string
	CaseID          *uuid.UUID
	CreatedBy       uuid.UUID
	MeetingType     domain.MeetingType
	SecurityLevel   domain.SecurityLevel
	MaxParticipants int
	Settings        *SettingsOverrides
}

// CreateRoomOutput carries the only copy of the plain host key
type CreateRoomOutput struct {
	RoomID     string             `json:"room_id"`
	AccessCode string             `json:"access_code"`
	HostKey    string             `json:"host_key"`
	Room       domain.MeetingRoom `json:"room"`
}

// JoinInput identifies a joiner; UserID is nil for guests
type JoinInput struct {
	ParticipantID string
	UserID        *uuid.UUID
	DisplayName   string
	Email         string
	HostKey       string
}

// JoinStatus tells the joiner where they landed
type JoinStatus string

const (
	JoinAdmitted JoinStatus = "admitted"
	JoinWaiting  JoinStatus = "waiting"
)

// JoinOutput is returned to the joiner
type JoinOutput struct {
	Status        JoinStatus `json:"status"`
	ParticipantID string     `json:"participant_id"`
	IsHost        bool       `json:"is_host"`
	Room          *RoomView  `json:"room"`
}

// deriveSettings applies defaults, then overrides, then what the security level forces
func deriveSettings(level domain.SecurityLevel, o *SettingsOverrides) domain.RoomSettings {
	st := domain.DefaultRoomSettings()
	if o != nil {
		apply := func(dst *bool, src *bool) {
			if src != nil {
				*dst = *src
			}
		}
		apply(&st.WaitingRoom, o.WaitingRoom)
		apply(&st.RequireAuth, o.RequireAuth)
		apply(&st.AllowScreenShare, o.AllowScreenShare)
		apply(&st.AllowChat, o.AllowChat)
		apply(&st.AllowRecording, o.AllowRecording)
		apply(&st.MuteOnJoin, o.MuteOnJoin)
	}
	switch level {
	case domain.SecurityConfidential:
		st.AllowScreenShare = false
		fallthrough
	case domain.SecurityHigh:
		st.WaitingRoom = true
		st.RequireAuth = true
	}
	return st
}

// CreateRoom allocates a waiting room with derived settings
func (s *Service) CreateRoom(ctx context.Context, input *CreateRoomInput) (*CreateRoomOutput, error) {
	if input.MaxParticipants <= 0 {
		return nil, apperrors.InvalidConfigurationError("max participants must be greater than zero")
	}
	if input.CreatedBy == uuid.Nil {
		return nil, apperrors.UnauthorizedError("an authenticated creator is required")
	}
	title := strings.TrimSpace(sanitize.StripControlCharacters(input.Title))
	if title == "" || utf8.RuneCountInString(title) > constants.MaxRoomTitleLength {
		return nil, apperrors.InvalidConfigurationError(fmt.Sprintf("title must be 1-%d characters", constants.MaxRoomTitleLength))
	}
	meetingType := input.MeetingType
	if meetingType == "" {
		meetingType = domain.MeetingTypeConsultation
	}
	if !meetingType.Valid() {
		return nil, apperrors.InvalidConfigurationError("unknown meeting type")
	}
	level := input.SecurityLevel
	if level == "" {
		level = domain.SecurityStandard
	}
	if !level.Valid() {
		return nil, apperrors.InvalidConfigurationError("unknown security level")
	}

	hostKey, hostKeyHash, err := generateHostKey()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create meeting", err)
	}

	info := domain.MeetingRoom{
		ID:              uuid.New().String(),
		Title:           title,
		CaseID:          input.CaseID,
		CreatedBy:       input.CreatedBy,
		HostKeyHash:     string(hostKeyHash),
		MeetingType:     meetingType,
		SecurityLevel:   level,
		MaxParticipants: input.MaxParticipants,
		Status:          domain.RoomStatusWaiting,
		Settings:        deriveSettings(level, input.Settings),
		CreatedAt:       s.now(),
	}
	r := &room{
		id:           info.ID,
		createdBy:    input.CreatedBy,
		hostKeyHash:  hostKeyHash,
		info:         info,
		participants: make(map[string]*domain.Participant),
		waiting:      make(map[string]*domain.Participant),
		screenShares: make(map[string]domain.ScreenShareSession),
		orphanExits:  make(map[string]encoder.ExitStatus),
	}

	s.mu.Lock()
	for {
		code, err := generateAccessCode()
		if err != nil {
			s.mu.Unlock()
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "Failed to create meeting", err)
		}
		if _, taken := s.codes[code]; !taken {
			r.info.AccessCode = code
			s.codes[code] = r.id
			break
		}
	}
	s.rooms[r.id] = r
	info = r.info
	s.mu.Unlock()

	metrics.MeetingRoomsActive.Inc()
	metrics.MeetingRoomsCreatedTotal.WithLabelValues(string(level)).Inc()

	if s.store != nil {
		stored := info
		s.enqueue("room_save", func(ctx context.Context) error {
			return s.store.SaveRoom(ctx, &stored)
		})
	}
	s.auditEvent(audit.EventRoomCreated, info.ID, input.CreatedBy.String(), map[string]any{
		"security_level": level,
		"meeting_type":   meetingType,
	})

	logger.FromContext(ctx).Info("Meeting room created",
		zap.String("room_id", info.ID),
		zap.String("security_level", string(level)),
		zap.Int("max_participants", info.MaxParticipants))

	return &CreateRoomOutput{
		RoomID:     info.ID,
		AccessCode: info.AccessCode,
		HostKey:    hostKey,
		Room:       info,
	}, nil
}

// JoinRoomByCode joins the room an access code points at
func (s *Service) JoinRoomByCode(ctx context.Context, code string, input *JoinInput) (*JoinOutput, error) {
	s.mu.RLock()
	roomID, ok := s.codes[NormalizeAccessCode(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.RoomNotFoundError()
	}
	return s.JoinRoom(ctx, roomID, input)
}

// JoinRoom admits the joiner or parks them in the waiting room. The joiner's
// first event is always joined, ahead of anything the room does afterwards.
func (s *Service) JoinRoom(ctx context.Context, roomID string, input *JoinInput) (*JoinOutput, error) {
	displayName := strings.TrimSpace(sanitize.StripControlCharacters(input.DisplayName))
	if displayName == "" || utf8.RuneCountInString(displayName) > constants.MaxDisplayNameLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("display name must be 1-%d characters", constants.MaxDisplayNameLength))
	}
	email := sanitize.SanitizeEmail(input.Email)
	if email != "" && !sanitize.ValidateEmailFormat(email) {
		return nil, apperrors.ValidationError("invalid email address")
	}

	participantID := input.ParticipantID
	if participantID == "" {
		participantID = uuid.New().String()
	}
	if _, taken := s.participantRoom(participantID); taken {
		return nil, apperrors.ConflictError("participant id is already in a meeting")
	}

	r, err := s.getRoom(roomID)
	if err != nil {
		metrics.MeetingJoinRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	// Creator and host key never change, so host status is resolved before locking.
	isGuest := input.UserID == nil
	isHost := (!isGuest && *input.UserID == r.createdBy) || verifyHostKey(r.hostKeyHash, input.HostKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.info.Status == domain.RoomStatusEnded:
		err = apperrors.RoomEndedError()
	case r.info.Settings.RequireAuth && isGuest && !isHost:
		err = apperrors.NotAuthorizedError("This meeting requires a signed-in account")
	case r.info.Settings.Locked && !isHost:
		err = apperrors.RoomLockedError()
	case !isHost && len(r.participants) >= r.info.MaxParticipants:
		err = apperrors.RoomFullError()
	}
	if err != nil {
		metrics.MeetingJoinRejectedTotal.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}

	p := &domain.Participant{
		ID:           participantID,
		UserID:       input.UserID,
		DisplayName:  displayName,
		Email:        email,
		IsHost:       isHost,
		IsGuest:      isGuest,
		AudioEnabled: true,
		VideoEnabled: true,
		JoinedAt:     s.now(),
	}
	s.indexParticipant(p.ID, r.id)

	if r.info.Settings.WaitingRoom && !isHost {
		p.ConnectionStatus = domain.ConnectionWaiting
		r.waiting[p.ID] = p
		r.waitingOrder = append(r.waitingOrder, p.ID)
		metrics.MeetingParticipantsWaiting.Inc()
		s.emit(r, r.hostIDs(), EventParticipantWaiting, ParticipantPayload{Participant: *p})

		logger.FromContext(ctx).Info("Participant waiting for admission",
			zap.String("room_id", r.id),
			zap.String("participant_id", p.ID))

		out := &JoinOutput{Status: JoinWaiting, ParticipantID: p.ID, Room: r.view(false)}
		s.emit(r, []string{p.ID}, EventJoined, out)
		return out, nil
	}

	s.activate(r, p)

	logger.FromContext(ctx).Info("Participant joined meeting",
		zap.String("room_id", r.id),
		zap.String("participant_id", p.ID),
		zap.Bool("is_host", isHost))

	out := &JoinOutput{Status: JoinAdmitted, ParticipantID: p.ID, IsHost: isHost, Room: r.view(true)}
	s.emit(r, []string{p.ID}, EventJoined, out)
	return out, nil
}

// activate moves p into the active set. r.mu must be held.
func (s *Service) activate(r *room, p *domain.Participant) {
	now := s.now()
	p.JoinedAt = now
	p.ConnectionStatus = domain.ConnectionConnected
	if r.info.Settings.MuteOnJoin && !p.IsHost {
		p.AudioEnabled = false
	}
	r.participants[p.ID] = p
	r.order = append(r.order, p.ID)
	metrics.MeetingParticipantsActive.Inc()

	// Only the first host join activates the room.
	if p.IsHost && r.info.Status == domain.RoomStatusWaiting {
		r.info.Status = domain.RoomStatusActive
		r.info.StartedAt = &now
		s.persistStatus(r.id, domain.RoomStatusActive, now)
	}

	s.emit(r, r.activeIDs(p.ID), EventParticipantJoined, ParticipantPayload{Participant: *p})
	s.systemMessage(r, fmt.Sprintf("%s joined the meeting", p.DisplayName), p.ID)
}

// AdmitParticipant moves a waiting participant into the meeting
func (s *Service) AdmitParticipant(ctx context.Context, roomID, participantID, requesterID string) error {
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
	p, ok := r.waiting[participantID]
	if !ok {
		return apperrors.ParticipantNotWaitingError()
	}
	if len(r.participants) >= r.info.MaxParticipants {
		return apperrors.RoomFullError()
	}

	r.removeWaiting(participantID)
	metrics.MeetingParticipantsWaiting.Dec()
	s.activate(r, p)
	s.emit(r, []string{p.ID}, EventAdmitted, r.view(true))

	s.auditEvent(audit.EventParticipantAdmitted, r.id, host.DisplayName, map[string]any{"participant_id": p.ID})
	logger.FromContext(ctx).Info("Participant admitted",
		zap.String("room_id", r.id),
		zap.String("participant_id", p.ID))

	return nil
}

// DenyParticipant removes a waiting participant without admitting them
func (s *Service) DenyParticipant(ctx context.Context, roomID, participantID, requesterID string) error {
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
	if _, ok := r.waiting[participantID]; !ok {
		return apperrors.ParticipantNotWaitingError()
	}

	r.removeWaiting(participantID)
	metrics.MeetingParticipantsWaiting.Dec()
	s.unindexParticipant(participantID)
	s.emit(r, []string{participantID}, EventAdmissionDenied, AdmissionDeniedPayload{Reason: "denied_by_host"})

	s.auditEvent(audit.EventParticipantDenied, r.id, host.DisplayName, map[string]any{"participant_id": participantID})
	logger.FromContext(ctx).Info("Participant denied admission",
		zap.String("room_id", r.id),
		zap.String("participant_id", participantID))

	return nil
}

// LeaveRoom removes a participant wherever they are. Unknown ids are a no-op.
func (s *Service) LeaveRoom(ctx context.Context, participantID string) error {
	roomID, ok := s.participantRoom(participantID)
	if !ok {
		return nil
	}
	r, err := s.getRoom(roomID)
	if err != nil {
		s.unindexParticipant(participantID)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.waiting[participantID]; ok {
		r.removeWaiting(participantID)
		metrics.MeetingParticipantsWaiting.Dec()
		s.unindexParticipant(participantID)
		s.emit(r, r.hostIDs(), EventParticipantLeft, ParticipantLeftPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Waiting:       true,
		})
	} else if p, ok := r.participants[participantID]; ok {
		r.removeActive(participantID)
		metrics.MeetingParticipantsActive.Dec()
		s.unindexParticipant(participantID)

		if _, sharing := r.screenShares[participantID]; sharing {
			delete(r.screenShares, participantID)
			s.emit(r, r.activeIDs(""), EventScreenShareStopped, ScreenSharePayload{ParticipantID: participantID})
		}
		s.systemMessage(r, fmt.Sprintf("%s left the meeting", p.DisplayName), "")
		s.emit(r, r.activeIDs(""), EventParticipantLeft, ParticipantLeftPayload{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
		})

		if p.IsHost && !r.hasHost() && len(r.order) > 0 {
			next := r.participants[r.order[0]]
			next.IsHost = true
			s.emit(r, r.activeIDs(""), EventHostChanged, HostChangedPayload{
				ParticipantID:  next.ID,
				PreviousHostID: p.ID,
			})
			logger.FromContext(ctx).Info("Host transferred",
				zap.String("room_id", r.id),
				zap.String("participant_id", next.ID))
		}
	} else {
		s.unindexParticipant(participantID)
		return nil
	}

	logger.FromContext(ctx).Info("Participant left meeting",
		zap.String("room_id", r.id),
		zap.String("participant_id", participantID))

	if len(r.participants) == 0 && len(r.waiting) == 0 && r.info.Status != domain.RoomStatusEnded {
		s.endRoomLocked(r, EndReasonEmpty)
	}
	return nil
}

// EndRoom ends the meeting for everyone; only a host may do it
func (s *Service) EndRoom(ctx context.Context, roomID, requesterID string) error {
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
	s.endRoomLocked(r, EndReasonHost)
	s.auditEvent(audit.EventRoomEndedByHost, r.id, host.DisplayName, nil)
	return nil
}

// EndRoomAsOwner lets the creating user end the meeting without being connected
func (s *Service) EndRoomAsOwner(ctx context.Context, roomID string, userID uuid.UUID) error {
	r, err := s.getRoom(roomID)
	if err != nil {
		return err
	}
	if userID != r.createdBy {
		return apperrors.NotAuthorizedError("Only the meeting owner can end it")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.info.Status == domain.RoomStatusEnded {
		return apperrors.RoomEndedError()
	}
	s.endRoomLocked(r, EndReasonHost)
	s.auditEvent(audit.EventRoomEndedByHost, r.id, userID.String(), nil)
	return nil
}

// endRoomLocked moves the room to ended, empties it and finalizes capture. r.mu must be held.
func (s *Service) endRoomLocked(r *room, reason string) {
	now := s.now()

	recipients := append(r.activeIDs(""), r.waitingOrder...)
	s.emit(r, recipients, EventRoomEnded, RoomEndedPayload{Reason: reason})

	for _, id := range recipients {
		s.unindexParticipant(id)
	}
	metrics.MeetingParticipantsActive.Sub(float64(len(r.participants)))
	metrics.MeetingParticipantsWaiting.Sub(float64(len(r.waiting)))
	r.participants = make(map[string]*domain.Participant)
	r.order = nil
	r.waiting = make(map[string]*domain.Participant)
	r.waitingOrder = nil
	r.screenShares = make(map[string]domain.ScreenShareSession)

	if rec := r.recording; rec != nil {
		s.finalizeRecording(r, rec, now, domain.RecordingStatusCompleted, "")
		if !r.recordingStopping {
			s.finalizingMu.Lock()
			s.finalizing[rec.ID] = rec
			s.finalizingMu.Unlock()
			s.stopAsync(r.id, encoder.PurposeRecording)
		}
	}
	if r.stream != nil {
		r.stream = nil
		if !r.streamStopping {
			s.stopAsync(r.id, encoder.PurposeStreaming)
		}
	}

	r.info.Status = domain.RoomStatusEnded
	r.info.EndedAt = &now

	metrics.MeetingRoomsEndedTotal.WithLabelValues(reason).Inc()
	s.persistStatus(r.id, domain.RoomStatusEnded, now)
	s.auditEvent(audit.EventRoomEnded, r.id, "", map[string]any{"reason": reason})

	logger.Info("Meeting room ended", zap.String("room_id", r.id), zap.String("reason", reason))
}

// stopAsync stops an encoder off the room lock, killing it if it ignores the stop
func (s *Service) stopAsync(roomID string, purpose encoder.Purpose) {
	if s.supervisor == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
		defer cancel()
		if _, err := s.supervisor.Stop(ctx, roomID, purpose); err != nil {
			if apperrors.HasCode(err, apperrors.ErrCodeTimeout) {
				_ = s.supervisor.Kill(roomID, purpose)
			}
			logger.Warn("Encoder stop after room end failed",
				zap.String("room_id", roomID),
				zap.String("purpose", string(purpose)),
				zap.Error(err))
		}
	}()
}
