package meeting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counselmeet-backend/internal/domain"
	apperrors "counselmeet-backend/pkg/errors"
)

func TestSweep_RetiresWaitingOnlyRoom(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	room, _ := createRoom(t, svc, domain.SecurityStandard, 5, &SettingsOverrides{WaitingRoom: boolPtr(true)})
	guest := joinAsGuest(t, svc, room.RoomID, "Client")
	require.Equal(t, JoinWaiting, guest.Status)

	retired := svc.Sweep(time.Now().Add(25 * time.Hour))
	assert.Equal(t, []string{room.RoomID}, retired)

	d, ok := notifier.last(EventRoomEnded)
	require.True(t, ok)
	assert.Equal(t, []string{guest.ParticipantID}, d.ids)
	assert.Equal(t, EndReasonInactive, d.event.Payload.(RoomEndedPayload).Reason)

	_, err := svc.GetRoomView(context.Background(), room.RoomID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomNotFound))
	_, err = svc.LookupByAccessCode(context.Background(), room.AccessCode)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRoomNotFound))

	// The guest is no longer indexed anywhere.
	require.NoError(t, svc.LeaveRoom(context.Background(), guest.ParticipantID))
	assert.Zero(t, svc.Stats().Rooms)
}

func TestSweep_KeepsRecentRooms(t *testing.T) {
	svc, _ := newTestService(t, newMockSupervisor())
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	joinAsOwner(t, svc, room.RoomID, owner, "Counsel")

	assert.Empty(t, svc.Sweep(time.Now().Add(time.Hour)))

	view, err := svc.GetRoomView(context.Background(), room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, view.Room.Status)
}

func TestSweep_RetiresEndedRooms(t *testing.T) {
	svc, notifier := newTestService(t, newMockSupervisor())
	ctx := context.Background()
	room, owner := createRoom(t, svc, domain.SecurityStandard, 5, nil)
	host := joinAsOwner(t, svc, room.RoomID, owner, "Counsel")
	require.NoError(t, svc.LeaveRoom(ctx, host.ParticipantID))
	ended := notifier.count(EventRoomEnded)

	assert.Empty(t, svc.Sweep(time.Now()))
	assert.Equal(t, []string{room.RoomID}, svc.Sweep(time.Now().Add(25*time.Hour)))

	// Already ended, so nobody is told twice.
	assert.Equal(t, ended, notifier.count(EventRoomEnded))
}
