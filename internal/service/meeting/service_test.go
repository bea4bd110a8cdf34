package meeting

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"counselmeet-backend/internal/domain"
	apperrors "counselmeet-backend/pkg/errors"
)

var accessCodePattern = regexp.MustCompile(`^[A-Z2-9]{3}-[A-Z2-9]{3}-[A-Z2-9]{3}$`)

func TestCreateRoom(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())

	out, owner := createRoom(t, svc, domain.SecurityStandard, 10, nil)

	assert.NotEmpty(t, out.RoomID)
	assert.Regexp(t, accessCodePattern, out.AccessCode)
	assert.Len(t, out.HostKey, 32)
	assert.Equal(t, domain.RoomStatusWaiting, out.Room.Status)
	assert.Equal(t, owner, out.Room.CreatedBy)
	assert.Nil(t, out.Room.StartedAt)
	assert.True(t, out.Room.Settings.AllowChat)
	assert.False(t, out.Room.Settings.WaitingRoom)

	found, err := svc.LookupByAccessCode(context.Background(), NormalizeAccessCode(out.AccessCode))
	require.NoError(t, err)
	assert.Equal(t, out.RoomID, found.ID)
}

func TestCreateRoom_ConfidentialForcesSettings(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())

	out, _ := createRoom(t, svc, domain.SecurityConfidential, 5, &SettingsOverrides{
		WaitingRoom:      boolPtr(false),
		RequireAuth:      boolPtr(false),
		AllowScreenShare: boolPtr(true),
		MuteOnJoin:       boolPtr(true),
	})

	st := out.Room.Settings
	assert.True(t, st.WaitingRoom)
	assert.True(t, st.RequireAuth)
	assert.False(t, st.AllowScreenShare)
	assert.True(t, st.MuteOnJoin)
}

func TestCreateRoom_Validation(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateRoomInput
		code  apperrors.ErrorCode
	}{
		{"zero max participants", CreateRoomInput{Title: "t", CreatedBy: uuid.New(), MaxParticipants: 0}, apperrors.ErrCodeInvalidConfiguration},
		{"empty title", CreateRoomInput{Title: "  ", CreatedBy: uuid.New(), MaxParticipants: 2}, apperrors.ErrCodeInvalidConfiguration},
		{"unknown level", CreateRoomInput{Title: "t", CreatedBy: uuid.New(), MaxParticipants: 2, SecurityLevel: "secret"}, apperrors.ErrCodeInvalidConfiguration},
		{"no creator", CreateRoomInput{Title: "t", MaxParticipants: 2}, apperrors.ErrCodeUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			_, err := svc.CreateRoom(ctx, &input)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestJoinRoom_FirstHostActivatesRoom(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 10, nil)

	first := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	assert.Equal(t, JoinAdmitted, first.Status)
	assert.True(t, first.IsHost)
	assert.Equal(t, domain.RoomStatusActive, first.Room.Room.Status)
	require.NotNil(t, first.Room.Room.StartedAt)
	startedAt := *first.Room.Room.StartedAt

	second, err := svc.JoinRoom(context.Background(), room.RoomID, &JoinInput{DisplayName: "Co-counsel", HostKey: room.HostKey})
	require.NoError(t, err)
	assert.True(t, second.IsHost)
	require.NotNil(t, second.Room.Room.StartedAt)
	assert.Equal(t, startedAt, *second.Room.Room.StartedAt)
	assert.Len(t, second.Room.Participants, 2)
}

func TestJoinRoom_GuestDoesNotActivate(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, _ := createRoom(t, svc, domain.SecurityStandard, 10, nil)

	out := joinAsGuest(t, svc, room.RoomID, "Client")
	assert.False(t, out.IsHost)
	assert.Equal(t, domain.RoomStatusWaiting, out.Room.Room.Status)
}

func TestJoinRoom_RoomFull(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 2, nil)

	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	joinAsGuest(t, svc, room.RoomID, "Client")

	_, err := svc.JoinRoom(context.Background(), room.RoomID, &JoinInput{DisplayName: "Witness"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomFull))

	view, err := svc.GetRoomView(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Len(t, view.Participants, 2)
}

func TestJoinRoom_ConcurrentJoinsRespectCapacity(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	const joiners = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, full := 0, 0
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.JoinRoom(context.Background(), room.RoomID, &JoinInput{DisplayName: fmt.Sprintf("Guest %d", i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case apperrors.HasCode(err, apperrors.ErrCodeRoomFull):
				full++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, admitted)
	assert.Equal(t, joiners-4, full)

	view, err := svc.GetRoomView(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Len(t, view.Participants, 5)
}

func TestJoinRoom_Rejections(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()

	_, err := svc.JoinRoom(ctx, "missing", &JoinInput{DisplayName: "Client"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomNotFound))

	high, _ := createRoom(t, svc, domain.SecurityHigh, 5, nil)
	_, err = svc.JoinRoom(ctx, high.RoomID, &JoinInput{DisplayName: "Guest"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	std, _ := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	_, err = svc.JoinRoom(ctx, std.RoomID, &JoinInput{DisplayName: ""})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	_, err = svc.JoinRoom(ctx, std.RoomID, &JoinInput{DisplayName: "Client", Email: "not-an-email"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	joined := joinAsGuest(t, svc, std.RoomID, "Client")
	_, err = svc.JoinRoom(ctx, std.RoomID, &JoinInput{ParticipantID: joined.ParticipantID, DisplayName: "Again"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
}

func TestJoinRoomByCode(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, _ := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	typed := strings.ToLower(strings.ReplaceAll(room.AccessCode, "-", ""))
	out, err := svc.JoinRoomByCode(context.Background(), typed, &JoinInput{DisplayName: "Client"})
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, out.Room.Room.ID)

	_, err = svc.JoinRoomByCode(context.Background(), "AAA-AAA-AAA", &JoinInput{DisplayName: "Client"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomNotFound))
}

func TestWaitingRoom_Admit(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, &SettingsOverrides{WaitingRoom: boolPtr(true)})

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")
	assert.Equal(t, JoinWaiting, guest.Status)
	assert.Empty(t, guest.Room.Participants)
	assert.Contains(t, notifier.received(host.ParticipantID), EventParticipantWaiting)

	err := svc.AdmitParticipant(ctx, room.RoomID, guest.ParticipantID, guest.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	require.NoError(t, svc.AdmitParticipant(ctx, room.RoomID, guest.ParticipantID, host.ParticipantID))
	assert.Contains(t, notifier.received(guest.ParticipantID), EventAdmitted)
	assert.Contains(t, notifier.received(host.ParticipantID), EventParticipantJoined)

	err = svc.AdmitParticipant(ctx, room.RoomID, guest.ParticipantID, host.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParticipantNotWaiting))

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Len(t, view.Participants, 2)
	assert.Empty(t, view.Waiting)
}

func TestWaitingRoom_AdmitRespectsCapacity(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 2, &SettingsOverrides{WaitingRoom: boolPtr(true)})

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	first := joinAsGuest(t, svc, room.RoomID, "Client")
	second := joinAsGuest(t, svc, room.RoomID, "Witness")

	require.NoError(t, svc.AdmitParticipant(ctx, room.RoomID, first.ParticipantID, host.ParticipantID))
	err := svc.AdmitParticipant(ctx, room.RoomID, second.ParticipantID, host.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomFull))
}

func TestWaitingRoom_Deny(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, &SettingsOverrides{WaitingRoom: boolPtr(true)})

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	require.NoError(t, svc.DenyParticipant(ctx, room.RoomID, guest.ParticipantID, host.ParticipantID))
	assert.Equal(t, []EventType{EventJoined, EventAdmissionDenied}, notifier.received(guest.ParticipantID))

	// Already gone, so leaving is a no-op.
	require.NoError(t, svc.LeaveRoom(ctx, guest.ParticipantID))
	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, view.Room.Status)
}

func TestLeaveRoom_Idempotent(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	require.NoError(t, svc.LeaveRoom(ctx, guest.ParticipantID))
	require.NoError(t, svc.LeaveRoom(ctx, guest.ParticipantID))
	require.NoError(t, svc.LeaveRoom(ctx, "never-joined"))

	assert.Equal(t, 1, notifier.count(EventParticipantLeft))
}

func TestLeaveRoom_HostTransfer(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	first := joinAsGuest(t, svc, room.RoomID, "Client")
	second := joinAsGuest(t, svc, room.RoomID, "Witness")

	require.NoError(t, svc.LeaveRoom(ctx, host.ParticipantID))

	d, ok := notifier.last(EventHostChanged)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{first.ParticipantID, second.ParticipantID}, d.ids)
	payload := d.event.Payload.(HostChangedPayload)
	assert.Equal(t, first.ParticipantID, payload.ParticipantID)
	assert.Equal(t, host.ParticipantID, payload.PreviousHostID)

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, view.Participants, 2)
	assert.True(t, view.Participants[0].IsHost)
	assert.False(t, view.Participants[1].IsHost)

	// The new host can act as one.
	require.NoError(t, svc.SetLocked(ctx, room.RoomID, first.ParticipantID, true))
}

func TestLeaveRoom_LastParticipantEndsRoom(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	require.NoError(t, svc.LeaveRoom(ctx, host.ParticipantID))

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusEnded, view.Room.Status)
	assert.NotNil(t, view.Room.EndedAt)

	_, err = svc.JoinRoom(ctx, room.RoomID, &JoinInput{DisplayName: "Late"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomEnded))
}

func TestEndRoom(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	err := svc.EndRoom(ctx, room.RoomID, guest.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	require.NoError(t, svc.EndRoom(ctx, room.RoomID, host.ParticipantID))
	d, ok := notifier.last(EventRoomEnded)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{host.ParticipantID, guest.ParticipantID}, d.ids)
	assert.Equal(t, EndReasonHost, d.event.Payload.(RoomEndedPayload).Reason)

	err = svc.EndRoom(ctx, room.RoomID, host.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomEnded))
	assert.Zero(t, svc.Stats().Participants)
}

func TestEndRoomAsOwner(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	err := svc.EndRoomAsOwner(ctx, room.RoomID, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	require.NoError(t, svc.EndRoomAsOwner(ctx, room.RoomID, owner))
	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusEnded, view.Room.Status)
}

func TestToggleMedia(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	require.NoError(t, svc.ToggleMedia(ctx, room.RoomID, guest.ParticipantID, domain.MediaAudio, false))
	assert.Contains(t, notifier.received(host.ParticipantID), EventMediaToggled)
	assert.NotContains(t, notifier.received(guest.ParticipantID), EventMediaToggled)

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	assert.False(t, view.Participants[1].AudioEnabled)
	assert.True(t, view.Participants[1].VideoEnabled)

	err = svc.ToggleMedia(ctx, room.RoomID, "stranger", domain.MediaVideo, false)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParticipantNotFound))
	err = svc.ToggleMedia(ctx, room.RoomID, guest.ParticipantID, "screen", true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestMuteOnJoin(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, &SettingsOverrides{MuteOnJoin: boolPtr(true)})

	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	out := joinAsGuest(t, svc, room.RoomID, "Client")

	assert.True(t, out.Room.Participants[0].AudioEnabled)
	assert.False(t, out.Room.Participants[1].AudioEnabled)
}

func TestSendChat(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	msg, err := svc.SendChat(ctx, room.RoomID, guest.ParticipantID, "  hello\x00 there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, domain.ChatMessageUser, msg.Type)
	assert.Equal(t, "Client", msg.SenderName)

	d, ok := notifier.last(EventChatMessage)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{host.ParticipantID, guest.ParticipantID}, d.ids)

	_, err = svc.SendChat(ctx, room.RoomID, guest.ParticipantID, "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	_, err = svc.SendChat(ctx, room.RoomID, "stranger", "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeParticipantNotFound))
}

func TestSendChat_Disabled(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, &SettingsOverrides{AllowChat: boolPtr(false)})
	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	_, err := svc.SendChat(context.Background(), room.RoomID, host.ParticipantID, "hi")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeChatDisabled))
}

func TestSendChat_HistoryIsBounded(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	for i := 0; i < 210; i++ {
		_, err := svc.SendChat(ctx, room.RoomID, host.ParticipantID, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, view.Chat, 200)
	assert.Equal(t, "message 10", view.Chat[0].Text)
	assert.Equal(t, "message 209", view.Chat[199].Text)
}

func TestScreenShare(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	require.NoError(t, svc.StartScreenShare(ctx, room.RoomID, guest.ParticipantID))
	require.NoError(t, svc.StartScreenShare(ctx, room.RoomID, guest.ParticipantID))
	assert.Equal(t, 1, notifier.count(EventScreenShareStarted))

	view, err := svc.GetRoomView(ctx, room.RoomID)
	require.NoError(t, err)
	require.Len(t, view.ScreenShares, 1)
	assert.Equal(t, guest.ParticipantID, view.ScreenShares[0].ParticipantID)

	// Leaving ends the share for everyone else.
	require.NoError(t, svc.LeaveRoom(ctx, guest.ParticipantID))
	assert.Contains(t, notifier.received(host.ParticipantID), EventScreenShareStopped)
	require.NoError(t, svc.StopScreenShare(ctx, room.RoomID, host.ParticipantID))
}

func TestScreenShare_DisabledForConfidential(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityConfidential, 5, nil)
	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	err := svc.StartScreenShare(context.Background(), room.RoomID, host.ParticipantID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeScreenShareDisabled))
}

func TestRaiseHand(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	require.NoError(t, svc.RaiseHand(ctx, room.RoomID, guest.ParticipantID, true))
	require.NoError(t, svc.RaiseHand(ctx, room.RoomID, guest.ParticipantID, true))
	assert.Equal(t, 1, notifier.count(EventHandRaised))
	assert.Contains(t, notifier.received(host.ParticipantID), EventHandRaised)
}

func TestSetLocked(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)

	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	guest := joinAsGuest(t, svc, room.RoomID, "Client")

	err := svc.SetLocked(ctx, room.RoomID, guest.ParticipantID, true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotAuthorized))

	require.NoError(t, svc.SetLocked(ctx, room.RoomID, host.ParticipantID, true))
	_, err = svc.JoinRoom(ctx, room.RoomID, &JoinInput{DisplayName: "Late"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomLocked))

	// Hosts still get in.
	out, err := svc.JoinRoom(ctx, room.RoomID, &JoinInput{DisplayName: "Partner", HostKey: room.HostKey})
	require.NoError(t, err)
	assert.True(t, out.IsHost)
}

func TestPersistence(t *testing.T) {
	saved := make(chan *domain.MeetingRoom, 1)
	activated := make(chan struct{}, 1)
	store := new(MockRoomStore)
	store.On("SaveRoom", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		saved <- args.Get(1).(*domain.MeetingRoom)
	}).Return(nil)
	store.On("UpdateRoomStatus", mock.Anything, mock.Anything, domain.RoomStatusActive, mock.Anything).Run(func(args mock.Arguments) {
		activated <- struct{}{}
	}).Return(nil)
	store.On("UpdateRoomStatus", mock.Anything, mock.Anything, domain.RoomStatusEnded, mock.Anything).Return(nil).Maybe()

	svc, _ := newTestService(t, newMockSupervisor(), WithStore(store))
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	select {
	case got := <-saved:
		assert.Equal(t, room.RoomID, got.ID)
		assert.Equal(t, room.AccessCode, got.AccessCode)
	case <-time.After(2 * time.Second):
		t.Fatal("room was not saved")
	}
	select {
	case <-activated:
	case <-time.After(2 * time.Second):
		t.Fatal("room activation was not persisted")
	}
}

func TestGetRoomView_FallsBackToStore(t *testing.T) {
	store := new(MockRoomStore)
	stored := &domain.MeetingRoom{ID: "retired", Status: domain.RoomStatusEnded}
	store.On("GetRoom", mock.Anything, "retired").Return(stored, nil)
	store.On("ListRecordings", mock.Anything, "retired").Return([]*domain.Recording{{ID: "rec-1", RoomID: "retired"}}, nil)

	svc, _ := newTestService(t, newMockSupervisor(), WithStore(store))

	view, err := svc.GetRoomView(context.Background(), "retired")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusEnded, view.Room.Status)

	recs, err := svc.ListRecordings(context.Background(), "retired")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "rec-1", recs[0].ID)
}
