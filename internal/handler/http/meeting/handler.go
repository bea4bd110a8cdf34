package meeting

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/encoder"
	"counselmeet-backend/internal/service/meeting"
	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/pagination"
	"counselmeet-backend/pkg/response"
)

// Registry is the part of the room registry exposed over REST
type Registry interface {
	CreateRoom(ctx context.Context, input *meeting.CreateRoomInput) (*meeting.CreateRoomOutput, error)
	GetRoomView(ctx context.Context, roomID string) (*meeting.RoomView, error)
	EndRoomAsOwner(ctx context.Context, roomID string, userID uuid.UUID) error
	ListRecordings(ctx context.Context, roomID string) ([]domain.Recording, error)
	LookupByAccessCode(ctx context.Context, code string) (*domain.MeetingRoom, error)
}

// TranscriptReader reads archived chat, oldest first
type TranscriptReader interface {
	GetTranscript(ctx context.Context, roomID string, limit int) ([]*domain.ChatMessage, error)
}

// DownloadSigner issues time-limited links for uploaded recordings
type DownloadSigner interface {
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// ProcessLister reports live encoder processes
type ProcessLister interface {
	ListActive() []encoder.ProcessInfo
}

// Handler handles meeting HTTP requests
type Handler struct {
	registry               Registry
	encoders               ProcessLister
	transcripts            TranscriptReader
	signer                 DownloadSigner
	defaultMaxParticipants int
}

// Option wires an optional backend into the handler
type Option func(*Handler)

func WithTranscripts(reader TranscriptReader) Option {
	return func(h *Handler) { h.transcripts = reader }
}

func WithDownloadSigner(signer DownloadSigner) Option {
	return func(h *Handler) { h.signer = signer }
}

// NewHandler creates a new meeting handler
func NewHandler(registry Registry, encoders ProcessLister, defaultMaxParticipants int, opts ...Option) *Handler {
	if defaultMaxParticipants <= 0 {
		defaultMaxParticipants = constants.DefaultMaxParticipants
	}
	h := &Handler{
		registry:               registry,
		encoders:               encoders,
		defaultMaxParticipants: defaultMaxParticipants,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateMeetingRequest represents room creation request
type CreateMeetingRequest struct {
	Title           string                     `json:"title" binding:"required,max=200"`
	CaseID          string                     `json:"case_id" binding:"omitempty,uuid"`
	MeetingType     string                     `json:"meeting_type" binding:"omitempty,oneof=consultation client_meeting deposition mediation court_hearing internal"`
	SecurityLevel   string                     `json:"security_level" binding:"omitempty,oneof=standard high confidential"`
	MaxParticipants int                        `json:"max_participants" binding:"omitempty,min=1"`
	Settings        *meeting.SettingsOverrides `json:"settings"`
}

// CreateMeeting creates a room owned by the caller
// POST /v1/meetings
func (h *Handler) CreateMeeting(c *gin.Context) {
	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	input := &meeting.CreateRoomInput{
		Title:           req.Title,
		CreatedBy:       userID,
		MeetingType:     domain.MeetingType(req.MeetingType),
		SecurityLevel:   domain.SecurityLevel(req.SecurityLevel),
		MaxParticipants: req.MaxParticipants,
		Settings:        req.Settings,
	}
	if input.MaxParticipants == 0 {
		input.MaxParticipants = h.defaultMaxParticipants
	}
	if req.CaseID != "" {
		caseID, err := uuid.Parse(req.CaseID)
		if err != nil {
			response.ValidationError(c, "Invalid case ID")
			return
		}
		input.CaseID = &caseID
	}

	output, err := h.registry.CreateRoom(c.Request.Context(), input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, output)
}

// MeetingSummary is the REST view of a room. Chat and media state stay on the socket.
type MeetingSummary struct {
	Room             domain.MeetingRoom   `json:"room"`
	ParticipantCount int                  `json:"participant_count"`
	WaitingCount     int                  `json:"waiting_count"`
	Participants     []domain.Participant `json:"participants"`
	Recording        *domain.Recording    `json:"recording,omitempty"`
	Streaming        bool                 `json:"streaming"`
}

// GetMeeting returns a room summary to its owner or an admin
// GET /v1/meetings/:id
func (h *Handler) GetMeeting(c *gin.Context) {
	view, ok := h.ownedRoom(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, MeetingSummary{
		Room:             view.Room,
		ParticipantCount: len(view.Participants),
		WaitingCount:     len(view.Waiting),
		Participants:     view.Participants,
		Recording:        view.Recording,
		Streaming:        view.Stream != nil,
	})
}

// EndMeeting ends a room on behalf of its owner
// POST /v1/meetings/:id/end
func (h *Handler) EndMeeting(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.registry.EndRoomAsOwner(c.Request.Context(), c.Param("id"), userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Meeting ended",
	})
}

// RecordingResponse adds a download link to uploaded recordings
type RecordingResponse struct {
	domain.Recording
	DownloadURL string `json:"download_url,omitempty"`
}

// ListRecordings returns the recordings of a room, newest first
// GET /v1/meetings/:id/recordings
func (h *Handler) ListRecordings(c *gin.Context) {
	view, ok := h.ownedRoom(c)
	if !ok {
		return
	}

	recs, err := h.registry.ListRecordings(c.Request.Context(), view.Room.ID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	out := make([]RecordingResponse, 0, len(recs))
	for _, rec := range recs {
		item := RecordingResponse{Recording: rec}
		if h.signer != nil && rec.ObjectKey != "" {
			url, err := h.signer.PresignedURL(c.Request.Context(), rec.ObjectKey)
			if err != nil {
				logger.Warn("Failed to sign recording download",
					zap.String("recording_id", rec.ID),
					zap.Error(err))
			} else {
				item.DownloadURL = url
			}
		}
		out = append(out, item)
	}

	response.Success(c, http.StatusOK, gin.H{
		"recordings": out,
		"count":      len(out),
	})
}

// GetTranscript returns the chat of a room. The archive is preferred; live rooms fall back to their in-memory window.
// GET /v1/meetings/:id/transcript?limit=500
func (h *Handler) GetTranscript(c *gin.Context) {
	view, ok := h.ownedRoom(c)
	if !ok {
		return
	}

	limit, err := pagination.ParseLimit(c.Query("limit"), constants.TranscriptDefaultLimit, constants.TranscriptMaxLimit)
	if err != nil {
		response.ValidationError(c, "limit must be a positive integer")
		return
	}

	messages := view.Chat
	if h.transcripts != nil {
		archived, err := h.transcripts.GetTranscript(c.Request.Context(), view.Room.ID, limit)
		if err != nil {
			response.FromError(c, err)
			return
		}
		messages = make([]domain.ChatMessage, 0, len(archived))
		for _, m := range archived {
			messages = append(messages, *m)
		}
	} else if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	response.Success(c, http.StatusOK, gin.H{
		"room_id":  view.Room.ID,
		"messages": messages,
		"count":    len(messages),
	})
}

// AccessCodeInfo is what an unauthenticated caller learns from a join code
type AccessCodeInfo struct {
	RoomID       string            `json:"room_id"`
	Title        string            `json:"title"`
	Status       domain.RoomStatus `json:"status"`
	RequiresAuth bool              `json:"requires_auth"`
	WaitingRoom  bool              `json:"waiting_room"`
}

// LookupAccessCode resolves a join code
// GET /v1/meetings/code/:code
func (h *Handler) LookupAccessCode(c *gin.Context) {
	room, err := h.registry.LookupByAccessCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, AccessCodeInfo{
		RoomID:       room.ID,
		Title:        room.Title,
		Status:       room.Status,
		RequiresAuth: room.Settings.RequireAuth,
		WaitingRoom:  room.Settings.WaitingRoom,
	})
}

// ListEncoders returns the live encoder processes
// GET /v1/encoders
func (h *Handler) ListEncoders(c *gin.Context) {
	procs := []encoder.ProcessInfo{}
	if h.encoders != nil {
		procs = h.encoders.ListActive()
	}

	response.Success(c, http.StatusOK, gin.H{
		"processes": procs,
		"count":     len(procs),
	})
}

// ownedRoom loads the room in :id and checks the caller owns it or is an admin
func (h *Handler) ownedRoom(c *gin.Context) (*meeting.RoomView, bool) {
	userID, ok := currentUser(c)
	if !ok {
		return nil, false
	}

	view, err := h.registry.GetRoomView(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return nil, false
	}

	if view.Room.CreatedBy != userID && c.GetString("role") != constants.RoleAdmin {
		response.FromError(c, apperrors.NotAuthorizedError("only the room owner can view this meeting"))
		return nil, false
	}
	return view, true
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	val, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}
	return userID, true
}
