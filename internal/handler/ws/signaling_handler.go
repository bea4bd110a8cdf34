package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/internal/service/meeting"
	"counselmeet-backend/pkg/constants"
	apperrors "counselmeet-backend/pkg/errors"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
)

// Registry is the room state the relay drives
type Registry interface {
	JoinRoom(ctx context.Context, roomID string, input *meeting.JoinInput) (*meeting.JoinOutput, error)
	JoinRoomByCode(ctx context.Context, code string, input *meeting.JoinInput) (*meeting.JoinOutput, error)
	LeaveRoom(ctx context.Context, participantID string) error
	AdmitParticipant(ctx context.Context, roomID, participantID, requesterID string) error
	DenyParticipant(ctx context.Context, roomID, participantID, requesterID string) error
	ToggleMedia(ctx context.Context, roomID, participantID string, kind domain.MediaKind, enabled bool) error
	SendChat(ctx context.Context, roomID, participantID, text string) (*domain.ChatMessage, error)
	StartScreenShare(ctx context.Context, roomID, participantID string) error
	StopScreenShare(ctx context.Context, roomID, participantID string) error
	RaiseHand(ctx context.Context, roomID, participantID string, raised bool) error
	SetLocked(ctx context.Context, roomID, requesterID string, locked bool) error
	EndRoom(ctx context.Context, roomID, requesterID string) error
	StartRecording(ctx context.Context, roomID, requesterID string) (*meeting.RecordingOutput, error)
	StopRecording(ctx context.Context, roomID, requesterID string) (*meeting.StopRecordingOutput, error)
	StartStream(ctx context.Context, roomID, requesterID, target string) (*meeting.StreamOutput, error)
	StopStream(ctx context.Context, roomID, requesterID string) error
}

// SignalingHandler upgrades connections and translates their messages into registry calls
type SignalingHandler struct {
	hub      *SignalingHub
	registry Registry
}

// NewSignalingHandler creates a new signaling handler
func NewSignalingHandler(hub *SignalingHub, registry Registry) *SignalingHandler {
	return &SignalingHandler{hub: hub, registry: registry}
}

// session is the per-connection state owned by the read pump
type session struct {
	client *SignalingClient
	userID *uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	// current participant binding, if joined
	participantID string
}

// ServeWS handles WebSocket requests for signaling
func (h *SignalingHandler) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case h.hub.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.hub.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	// Identity is optional; guests connect without a token
	var userID *uuid.UUID
	if val, ok := c.Get("user_id"); ok {
		if id, ok := val.(uuid.UUID); ok {
			userID = &id
		}
	}

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.hub.semaphore
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, h.hub.sendBuffer),
	}
	h.hub.register(client)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{client: client, userID: userID, ctx: ctx, cancel: cancel}

	go client.writePump()
	go h.readPump(s)
}

// readPump reads messages until the connection fails, then disconnects exactly once
func (h *SignalingHandler) readPump(s *session) {
	c := s.client
	defer h.disconnect(s)

	c.conn.SetReadLimit(constants.MaxSignalingMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("participant_id", s.participantID),
					zap.Error(err))
			}
			return
		}

		req, err := decodeRequest(raw)
		if err != nil {
			h.sendError(s, envelopeType(raw), apperrors.ValidationError(err.Error()))
			continue
		}
		metrics.SignalingMessagesTotal.WithLabelValues(req.requestType()).Inc()

		if err := h.dispatch(s, req); err != nil {
			h.sendError(s, req.requestType(), err)
		}
	}
}

// disconnect leaves the room, drops the mapping and closes the send queue
func (h *SignalingHandler) disconnect(s *session) {
	s.client.cleanupOnce.Do(func() {
		if s.participantID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultTimeout)
			if err := h.registry.LeaveRoom(ctx, s.participantID); err != nil {
				logger.Warn("Leave on disconnect failed",
					zap.String("participant_id", s.participantID),
					zap.Error(err))
			}
			cancel()
			h.hub.unbind(s.participantID, s.client)
		}
		s.cancel()
		h.hub.unregister(s.client)
		s.client.closeConn()
		<-h.hub.semaphore
	})
}

// dispatch handles every request type exhaustively
func (h *SignalingHandler) dispatch(s *session, req Request) error {
	if j, ok := req.(JoinRequest); ok {
		return h.join(s, j)
	}
	if s.participantID == "" {
		return apperrors.ParticipantNotFoundError()
	}
	pid := s.participantID
	ctx := s.ctx

	switch r := req.(type) {
	case LeaveRequest:
		err := h.registry.LeaveRoom(ctx, pid)
		h.hub.unbind(pid, s.client)
		s.participantID = ""
		return err
	case Offer:
		h.forward(s, TypeOffer, r.peerSignal)
	case Answer:
		h.forward(s, TypeAnswer, r.peerSignal)
	case IceCandidate:
		h.forward(s, TypeICE, r.peerSignal)
	case ChatRequest:
		_, err := h.registry.SendChat(ctx, r.RoomID, pid, r.Text)
		return err
	case MediaToggle:
		return h.registry.ToggleMedia(ctx, r.RoomID, pid, r.Kind, r.Enabled)
	case RecordingControl:
		if r.Action == ActionStart {
			_, err := h.registry.StartRecording(ctx, r.RoomID, pid)
			return err
		}
		_, err := h.registry.StopRecording(ctx, r.RoomID, pid)
		return err
	case StreamControl:
		if r.Action == ActionStart {
			_, err := h.registry.StartStream(ctx, r.RoomID, pid, r.Target)
			return err
		}
		return h.registry.StopStream(ctx, r.RoomID, pid)
	case ScreenShareControl:
		if r.Action == ActionStart {
			return h.registry.StartScreenShare(ctx, r.RoomID, pid)
		}
		return h.registry.StopScreenShare(ctx, r.RoomID, pid)
	case AdmissionDecision:
		if r.Action == ActionAdmit {
			return h.registry.AdmitParticipant(ctx, r.RoomID, r.ParticipantID, pid)
		}
		return h.registry.DenyParticipant(ctx, r.RoomID, r.ParticipantID, pid)
	case HandRaise:
		return h.registry.RaiseHand(ctx, r.RoomID, pid, r.Raised)
	case LockControl:
		return h.registry.SetLocked(ctx, r.RoomID, pid, r.Locked)
	case EndMeeting:
		return h.registry.EndRoom(ctx, r.RoomID, pid)
	default:
		return apperrors.ValidationError("unsupported message type")
	}
	return nil
}

// join binds a fresh participant id to the connection before the registry can address it
func (h *SignalingHandler) join(s *session, req JoinRequest) error {
	if s.participantID != "" {
		if !s.client.detached.Load() {
			return apperrors.ConflictError("connection has already joined a meeting")
		}
		h.hub.unbind(s.participantID, s.client)
		s.participantID = ""
	}

	pid := uuid.New().String()
	h.hub.bind(pid, s.client)

	input := &meeting.JoinInput{
		ParticipantID: pid,
		UserID:        s.userID,
		DisplayName:   req.DisplayName,
		Email:         req.Email,
		HostKey:       req.HostKey,
	}
	var (
		out *meeting.JoinOutput
		err error
	)
	if req.RoomID != "" {
		out, err = h.registry.JoinRoom(s.ctx, req.RoomID, input)
	} else {
		out, err = h.registry.JoinRoomByCode(s.ctx, req.AccessCode, input)
	}
	if err != nil {
		h.hub.unbind(pid, s.client)
		return err
	}

	s.participantID = pid
	h.hub.setRoom(s.client, out.Room.Room.ID)
	s.ctx = logger.WithRoomID(s.ctx, out.Room.Room.ID)
	return nil
}

// forward relays an opaque payload to one peer in the sender's room. Missing targets are dropped.
func (h *SignalingHandler) forward(s *session, typ string, sig peerSignal) {
	_, senderRoom, ok := h.hub.lookup(s.participantID)
	if !ok || senderRoom == "" || (sig.RoomID != "" && sig.RoomID != senderRoom) {
		metrics.SignalingRelayDroppedTotal.WithLabelValues("room_mismatch").Inc()
		return
	}
	target, targetRoom, ok := h.hub.lookup(sig.To)
	if !ok || targetRoom != senderRoom {
		metrics.SignalingRelayDroppedTotal.WithLabelValues("target_missing").Inc()
		return
	}

	data, err := json.Marshal(outbound{
		Type:      typ,
		RoomID:    senderRoom,
		From:      s.participantID,
		Payload:   sig.Payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	h.hub.sendTo(target, data)
}

// sendError reports a failed request to its sender only
func (h *SignalingHandler) sendError(s *session, requestType string, err error) {
	appErr := apperrors.InternalError("Request failed")
	if apperrors.IsAppError(err) {
		appErr = apperrors.GetAppError(err)
	} else {
		logger.FromContext(s.ctx).Error("Signaling request failed", zap.String("type", requestType), zap.Error(err))
	}
	data, mErr := json.Marshal(outbound{
		Type: TypeError,
		Payload: errorPayload{
			Code:        string(appErr.Code),
			Message:     appErr.Message,
			RequestType: requestType,
		},
		Timestamp: time.Now().UTC(),
	})
	if mErr != nil {
		return
	}
	h.hub.sendTo(s.client, data)
}

func envelopeType(raw []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(raw, &env)
	return env.Type
}

// writePump writes messages to WebSocket
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
