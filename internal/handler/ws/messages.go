package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"counselmeet-backend/internal/domain"
)

// Inbound message types
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeICE         = "ice_candidate"
	TypeChat        = "chat"
	TypeMedia       = "media_toggle"
	TypeRecording   = "recording_control"
	TypeStream      = "stream_control"
	TypeScreenShare = "screen_share_control"
	TypeAdmission   = "admission_decision"
	TypeHandRaise   = "hand_raise"
	TypeLock        = "lock_control"
	TypeEndMeeting  = "end_meeting"
)

// TypeError is the outbound event carrying a failed request back to its sender
const TypeError = "error"

// Envelope is the wire shape of every inbound message
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request is one decoded inbound message
type Request interface {
	requestType() string
}

type JoinRequest struct {
	RoomID      string `json:"-"`
	AccessCode  string `json:"access_code,omitempty"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	HostKey     string `json:"host_key,omitempty"`
}

type LeaveRequest struct{}

// peerSignal is an opaque payload addressed to one participant
type peerSignal struct {
	RoomID  string
	To      string
	Payload json.RawMessage
}

type Offer struct{ peerSignal }
type Answer struct{ peerSignal }
type IceCandidate struct{ peerSignal }

type ChatRequest struct {
	RoomID string `json:"-"`
	Text   string `json:"text"`
}

type MediaToggle struct {
	RoomID  string           `json:"-"`
	Kind    domain.MediaKind `json:"kind"`
	Enabled bool             `json:"enabled"`
}

// Control actions
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionAdmit = "admit"
	ActionDeny  = "deny"
)

type RecordingControl struct {
	RoomID string `json:"-"`
	Action string `json:"action"`
}

type StreamControl struct {
	RoomID string `json:"-"`
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

type ScreenShareControl struct {
	RoomID string `json:"-"`
	Action string `json:"action"`
}

type AdmissionDecision struct {
	RoomID        string `json:"-"`
	ParticipantID string `json:"participant_id"`
	Action        string `json:"action"`
}

type HandRaise struct {
	RoomID string `json:"-"`
	Raised bool   `json:"raised"`
}

type LockControl struct {
	RoomID string `json:"-"`
	Locked bool   `json:"locked"`
}

type EndMeeting struct {
	RoomID string `json:"-"`
}

func (JoinRequest) requestType() string        { return TypeJoin }
func (LeaveRequest) requestType() string       { return TypeLeave }
func (Offer) requestType() string              { return TypeOffer }
func (Answer) requestType() string             { return TypeAnswer }
func (IceCandidate) requestType() string       { return TypeICE }
func (ChatRequest) requestType() string        { return TypeChat }
func (MediaToggle) requestType() string        { return TypeMedia }
func (RecordingControl) requestType() string   { return TypeRecording }
func (StreamControl) requestType() string      { return TypeStream }
func (ScreenShareControl) requestType() string { return TypeScreenShare }
func (AdmissionDecision) requestType() string  { return TypeAdmission }
func (HandRaise) requestType() string          { return TypeHandRaise }
func (LockControl) requestType() string        { return TypeLock }
func (EndMeeting) requestType() string         { return TypeEndMeeting }

// decodeRequest parses an envelope into its concrete request
func decodeRequest(raw []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case TypeOffer, TypeAnswer, TypeICE:
		if env.To == "" {
			return nil, fmt.Errorf("%s requires a target participant", env.Type)
		}
		sig := peerSignal{RoomID: env.RoomID, To: env.To, Payload: env.Payload}
		switch env.Type {
		case TypeOffer:
			return Offer{sig}, nil
		case TypeAnswer:
			return Answer{sig}, nil
		default:
			return IceCandidate{sig}, nil
		}
	case TypeLeave:
		return LeaveRequest{}, nil
	case TypeJoin:
		var req JoinRequest
		if err := decodePayload(env, &req); err != nil {
			return nil, err
		}
		req.RoomID = env.RoomID
		if req.RoomID == "" && req.AccessCode == "" {
			return nil, fmt.Errorf("join requires room_id or access_code")
		}
		return req, nil
	case TypeChat:
		var req ChatRequest
		err := decodePayload(env, &req)
		req.RoomID = env.RoomID
		return req, err
	case TypeMedia:
		var req MediaToggle
		err := decodePayload(env, &req)
		req.RoomID = env.RoomID
		return req, err
	case TypeRecording:
		var req RecordingControl
		if err := decodePayload(env, &req); err != nil {
			return nil, err
		}
		req.RoomID = env.RoomID
		return req, checkAction(req.Action, ActionStart, ActionStop)
	case TypeStream:
		var req StreamControl
		if err := decodePayload(env, &req); err != nil {
			return nil, err
		}
		req.RoomID = env.RoomID
		return req, checkAction(req.Action, ActionStart, ActionStop)
	case TypeScreenShare:
		var req ScreenShareControl
		if err := decodePayload(env, &req); err != nil {
			return nil, err
		}
		req.RoomID = env.RoomID
		return req, checkAction(req.Action, ActionStart, ActionStop)
	case TypeAdmission:
		var req AdmissionDecision
		if err := decodePayload(env, &req); err != nil {
			return nil, err
		}
		req.RoomID = env.RoomID
		return req, checkAction(req.Action, ActionAdmit, ActionDeny)
	case TypeHandRaise:
		var req HandRaise
		err := decodePayload(env, &req)
		req.RoomID = env.RoomID
		return req, err
	case TypeLock:
		var req LockControl
		err := decodePayload(env, &req)
		req.RoomID = env.RoomID
		return req, err
	case TypeEndMeeting:
		return EndMeeting{RoomID: env.RoomID}, nil
	}
	return nil, fmt.Errorf("unknown message type %q", env.Type)
}

func decodePayload(env Envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return nil
}

func checkAction(action string, allowed ...string) error {
	for _, a := range allowed {
		if action == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported action %q", action)
}

// outbound is a relay-originated message: forwarded signals and errors
type outbound struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id,omitempty"`
	From      string    `json:"from,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	RequestType string `json:"request_type,omitempty"`
}
